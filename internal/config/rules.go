package config

import (
	"sort"
	"strconv"
	"strings"

	"engage-notify/internal/domain/entity"
)

// legacySlots is the number of positional variables the legacy shape holds.
const legacySlots = 5

// defaultTemplateLanguage is applied to template_config entries saved
// without a language.
const defaultTemplateLanguage = "en"

var fallbackTemplates = map[string]string{
	entity.TypeOrderFailed:     "order_failed_default",
	entity.TypeOrderCancelled:  "order_cancelled_default",
	entity.TypeOrderProcessing: "order_confirmation",
	entity.TypeOrderCompleted:  "order_confirmation",
	entity.TypeOrderShipped:    "order_shipped_default",
}

// FallbackTemplateName is the template used when a rule names none.
func FallbackTemplateName(notificationType string) string {
	if name, ok := fallbackTemplates[notificationType]; ok {
		return name
	}
	return "order_confirmation"
}

// Normalize folds template_config and the legacy arrays into one rule per
// notification type. A template_config entry always wins over the legacy
// fields for its type.
func Normalize(s *Settings) map[string]entity.NotificationRule {
	rules := make(map[string]entity.NotificationRule)
	for _, t := range notificationKeys(s) {
		var rule entity.NotificationRule
		if tc, ok := s.TemplateConfig[t]; ok {
			rule = ruleFromTemplateConfig(t, tc)
		} else {
			rule = legacyRule(s, t)
		}
		if rule.TemplateName == "" {
			rule.TemplateName = FallbackTemplateName(t)
		}
		rule.LegacyImageURL = strings.TrimSpace(s.TemplateImages[t])
		if d := s.TemplateDelays[t]; d > 0 {
			rule.DelayMinutes = d
		}
		rules[t] = rule
	}
	return rules
}

func ruleFromTemplateConfig(t string, tc TemplateConfig) entity.NotificationRule {
	lang := strings.TrimSpace(tc.TemplateLang)
	if lang == "" {
		lang = defaultTemplateLanguage
	}
	count := tc.BodyVariableCount
	if count < 0 {
		count = 0
	}
	buttons := make([]entity.ButtonVariable, 0, len(tc.ButtonVariables))
	for _, b := range tc.ButtonVariables {
		if b.PlaceholderIndex < 1 {
			continue
		}
		if b.Type == "" {
			b.Type = "url"
		}
		buttons = append(buttons, b)
	}
	if len(buttons) == 0 {
		buttons = nil
	}
	return entity.NotificationRule{
		Type:              t,
		Enabled:           bool(tc.Enabled),
		TemplateName:      strings.TrimSpace(tc.TemplateName),
		TemplateLanguage:  lang,
		TemplateBody:      tc.TemplateBody,
		VariableMap:       indexedMap(tc.VariableMap),
		CustomText:        indexedMap(tc.CustomText),
		HeaderImageURL:    strings.TrimSpace(tc.ImageURL),
		UseProductImage:   bool(tc.UseProductImage),
		ButtonVariables:   buttons,
		BodyVariableCount: count,
	}
}

func legacyRule(s *Settings, t string) entity.NotificationRule {
	vars, ok := s.TemplateVariables[t]
	if !ok {
		vars = defaultLegacyVariables
	}
	vm := make(map[int]string, legacySlots)
	for i, field := range vars {
		if i >= legacySlots {
			break
		}
		if field = strings.TrimSpace(field); field != "" {
			vm[i+1] = field
		}
	}
	return entity.NotificationRule{
		Type:         t,
		Enabled:      bool(s.EnabledNotifications[t]),
		TemplateName: strings.TrimSpace(s.Templates[t]),
		VariableMap:  vm,
	}
}

// indexedMap converts "var_N" keyed maps to 1-based index keys. Keys that
// do not parse to a positive index are dropped.
func indexedMap(in map[string]string) map[int]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[int]string, len(in))
	for k, v := range in {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(k), "var_"))
		if err != nil || n < 1 {
			continue
		}
		out[n] = strings.TrimSpace(v)
	}
	return out
}

// notificationKeys lists every type the settings mention: defaults first in
// display order, then the remaining keys sorted.
func notificationKeys(s *Settings) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(entity.DefaultNotificationTypes))
	for _, t := range entity.DefaultNotificationTypes {
		seen[t] = true
		keys = append(keys, t)
	}

	var extra []string
	add := func(k string) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		extra = append(extra, k)
	}
	for k := range s.TemplateConfig {
		add(k)
	}
	for k := range s.Templates {
		add(k)
	}
	for k := range s.EnabledNotifications {
		add(k)
	}
	for _, cs := range s.CustomStatuses {
		add(cs.ID)
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func (s *Settings) ruleOrder() []string {
	return notificationKeys(s)
}
