// Package config loads the notification settings document and normalizes
// it into per-type rules, plus the gateway connection settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"engage-notify/internal/domain/entity"
	pkgconfig "engage-notify/internal/pkg/config"
)

// Bounds applied by the sanitize step.
const (
	MinRetentionDays = 1
	MaxRetentionDays = 365
	MinRetryAttempts = 0
	MaxRetryAttempts = 10
	MinRetryDelay    = 60
	MaxRetryDelay    = 3600
)

// Settings is the immutable notification settings snapshot. It is loaded
// once at startup and shared read-only.
type Settings struct {
	TemplateLanguage string `yaml:"template_language" validate:"required"`
	TemplateCategory string `yaml:"template_category" validate:"required,oneof=UTILITY MARKETING AUTHENTICATION"`
	PhoneField       string `yaml:"phone_field" validate:"required"`
	CountryCode      string `yaml:"country_code" validate:"required,startswith=+"`

	LogRetentionDays int `yaml:"log_retention_days" validate:"min=1,max=365"`
	RetryAttempts    int `yaml:"retry_attempts" validate:"min=0,max=10"`
	// RetryDelay is in seconds.
	RetryDelay int `yaml:"retry_delay" validate:"min=60,max=3600"`

	TemplateConfig map[string]TemplateConfig `yaml:"template_config"`

	// Legacy per-field shape. Used for a type only when template_config has
	// no entry for it.
	Templates               map[string]string   `yaml:"templates"`
	EnabledNotifications    map[string]Flag     `yaml:"enabled_notifications"`
	TemplateVariables       map[string][]string `yaml:"template_variables"`
	TemplateImages          map[string]string   `yaml:"template_images"`
	TemplateDelays          map[string]int      `yaml:"template_delays"`
	TemplateMessages        map[string]string   `yaml:"template_messages"`
	TemplateCouponCodes     map[string]string   `yaml:"template_coupon_codes"`
	TemplateCouponPositions map[string]int      `yaml:"template_coupon_positions"`

	StatusMapping  map[string]string `yaml:"status_mapping"`
	CustomStatuses []CustomStatus    `yaml:"custom_statuses"`
	Store          entity.Store      `yaml:"store"`

	rules map[string]entity.NotificationRule
}

// TemplateConfig is one entry of the current template_config shape.
// VariableMap and CustomText are keyed "var_1", "var_2", ... (a bare "1"
// is accepted too).
type TemplateConfig struct {
	Enabled           Flag                    `yaml:"enabled"`
	TemplateName      string                  `yaml:"template_name"`
	TemplateLang      string                  `yaml:"template_lang"`
	TemplateBody      string                  `yaml:"template_body"`
	VariableMap       map[string]string       `yaml:"variable_map"`
	CustomText        map[string]string       `yaml:"custom_text"`
	ImageURL          string                  `yaml:"image_url"`
	UseProductImage   Flag                    `yaml:"use_product_image"`
	ButtonVariables   []entity.ButtonVariable `yaml:"button_variables"`
	BodyVariableCount int                     `yaml:"body_variable_count"`
}

// CustomStatus is an administrator defined notification key. It fires on an
// order status (WCStatus) or, when EventType is not "order_status", on a
// non-order account event such as "user_registered".
type CustomStatus struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	WCStatus    string `yaml:"wc_status"`
	EventType   string `yaml:"event_type"`
}

// IsOrderStatus reports whether the custom status is driven by order
// transitions.
func (c CustomStatus) IsOrderStatus() bool {
	return c.EventType == "" || c.EventType == "order_status"
}

var defaultTemplateMessages = map[string]string{
	"hello_world":              "Hello World! 👋",
	entity.TypeOrderReceived:   "Hi {{1}}, your order #{{2}} for {{3}} has been received. Thank you for shopping with us!",
	entity.TypeOrderProcessing: "Hi {{1}}, your order #{{2}} is now being processed. Total: {{3}}",
	entity.TypeOrderShipped:    "Hi {{1}}, great news! Your order #{{2}} has been shipped. Total: {{3}}",
	entity.TypeOrderDelivered:  "Hi {{1}}, your order #{{2}} has been delivered. Total: {{3}}. Enjoy!",
	entity.TypeOrderCompleted:  "Hi {{1}}, your order #{{2}} is complete. Total: {{3}}. Thank you!",
	entity.TypeOrderCancelled:  "Hi {{1}}, your order #{{2}} has been cancelled. Amount: {{3}}",
	entity.TypeOrderFailed:     "Hi {{1}}, unfortunately your order #{{2}} payment failed. Amount: {{3}}",
	entity.TypeOrderRefunded:   "Hi {{1}}, your order #{{2}} has been refunded. Amount: {{3}}",
}

// defaultLegacyVariables is the five slot legacy mapping every default
// type starts with.
var defaultLegacyVariables = []string{"full_name", "order_id", "order_total", "", ""}

func scalarDefaults() *Settings {
	return &Settings{
		TemplateLanguage: "en_US",
		TemplateCategory: "UTILITY",
		PhoneField:       "billing_phone",
		CountryCode:      "+1",
		LogRetentionDays: 30,
		RetryAttempts:    3,
		RetryDelay:       300,
	}
}

// applyCollectionDefaults fills collections the document did not set.
// A collection present in the document replaces the default as a whole.
func (s *Settings) applyCollectionDefaults() {
	if s.Templates == nil {
		s.Templates = make(map[string]string, len(entity.DefaultNotificationTypes))
		for _, t := range entity.DefaultNotificationTypes {
			s.Templates[t] = ""
		}
	}
	if s.EnabledNotifications == nil {
		s.EnabledNotifications = make(map[string]Flag, len(entity.DefaultNotificationTypes))
		for _, t := range entity.DefaultNotificationTypes {
			s.EnabledNotifications[t] = t != entity.TypeOrderRefunded
		}
	}
	if s.TemplateVariables == nil {
		s.TemplateVariables = make(map[string][]string, len(entity.DefaultNotificationTypes))
		for _, t := range entity.DefaultNotificationTypes {
			s.TemplateVariables[t] = append([]string(nil), defaultLegacyVariables...)
		}
	}
	if s.StatusMapping == nil {
		s.StatusMapping = map[string]string{
			entity.TypeOrderShipped:   "shipped",
			entity.TypeOrderDelivered: "delivered",
		}
	}
	if s.TemplateMessages == nil {
		s.TemplateMessages = make(map[string]string, len(defaultTemplateMessages))
		for k, v := range defaultTemplateMessages {
			s.TemplateMessages[k] = v
		}
	}
	if s.TemplateImages == nil {
		s.TemplateImages = map[string]string{}
	}
	if s.TemplateDelays == nil {
		s.TemplateDelays = map[string]int{}
	}
	if s.TemplateConfig == nil {
		s.TemplateConfig = map[string]TemplateConfig{}
	}
}

// Defaults returns the settings used when no settings file is configured.
func Defaults() *Settings {
	s := scalarDefaults()
	s.applyCollectionDefaults()
	s.rules = Normalize(s)
	return s
}

// LoadSettings reads and normalizes the YAML settings document at path. An
// empty path yields Defaults. Out-of-range values are clamped and reported
// through logger and, when non-nil, metrics.
//
// The path is expected to come from a trusted source (NOTIFY_RULES_FILE).
func LoadSettings(path string, logger *slog.Logger, metrics *pkgconfig.ConfigMetrics) (*Settings, error) {
	if path == "" {
		return Defaults(), nil
	}

	// #nosec G304 -- path is operator supplied configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s, warnings, err := ParseSettings(data)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range warnings {
		logger.Warn("settings value adjusted",
			slog.String("field", w.Field),
			slog.String("detail", w.Message))
		if metrics != nil {
			metrics.RecordValidationError(w.Field)
			metrics.RecordFallback(w.Field, "clamp")
		}
	}
	if metrics != nil {
		metrics.SetFallbackActive("settings", len(warnings) > 0)
		metrics.RecordLoadTimestamp()
	}

	return s, nil
}

// Warning describes one value the sanitize step replaced.
type Warning struct {
	Field   string
	Message string
}

// ParseSettings decodes a YAML settings document, fills defaults, clamps
// invalid values and builds the rule table.
func ParseSettings(data []byte) (*Settings, []Warning, error) {
	s := scalarDefaults()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.applyCollectionDefaults()

	warnings := s.sanitize()
	s.rules = Normalize(s)
	return s, warnings, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// sanitize clamps numeric settings to their documented bounds and resets
// unusable strings to defaults.
func (s *Settings) sanitize() []Warning {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Warning{{Field: "settings", Message: err.Error()}}
	}

	defaults := scalarDefaults()
	warnings := make([]Warning, 0, len(verrs))
	for _, fe := range verrs {
		var replacement any
		switch fe.Field() {
		case "log_retention_days":
			s.LogRetentionDays = clamp(s.LogRetentionDays, MinRetentionDays, MaxRetentionDays)
			replacement = s.LogRetentionDays
		case "retry_attempts":
			s.RetryAttempts = clamp(s.RetryAttempts, MinRetryAttempts, MaxRetryAttempts)
			replacement = s.RetryAttempts
		case "retry_delay":
			s.RetryDelay = clamp(s.RetryDelay, MinRetryDelay, MaxRetryDelay)
			replacement = s.RetryDelay
		case "template_language":
			s.TemplateLanguage = defaults.TemplateLanguage
			replacement = s.TemplateLanguage
		case "template_category":
			s.TemplateCategory = defaults.TemplateCategory
			replacement = s.TemplateCategory
		case "phone_field":
			s.PhoneField = defaults.PhoneField
			replacement = s.PhoneField
		case "country_code":
			s.CountryCode = fixCountryCode(s.CountryCode, defaults.CountryCode)
			replacement = s.CountryCode
		default:
			continue
		}
		warnings = append(warnings, Warning{
			Field:   fe.Field(),
			Message: fmt.Sprintf("value %v failed %q, using %v", fe.Value(), fe.Tag(), replacement),
		})
	}
	return warnings
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fixCountryCode prefixes a bare digit code with "+"; anything else falls
// back to def.
func fixCountryCode(code, def string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return def
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return def
		}
	}
	return "+" + code
}

// Rule returns the normalized rule for a notification type.
func (s *Settings) Rule(notificationType string) (entity.NotificationRule, bool) {
	r, ok := s.rules[notificationType]
	return r, ok
}

// Rules returns a copy of the rule table.
func (s *Settings) Rules() map[string]entity.NotificationRule {
	out := make(map[string]entity.NotificationRule, len(s.rules))
	for k, v := range s.rules {
		out[k] = v
	}
	return out
}

// RetryDelayDuration returns retry_delay as a time.Duration.
func (s *Settings) RetryDelayDuration() time.Duration {
	return time.Duration(s.RetryDelay) * time.Second
}

// TemplateBodyFor finds display text for a template name: a configured
// rule body first, then the legacy template_messages entry.
func (s *Settings) TemplateBodyFor(templateName string) string {
	if templateName == "" {
		return ""
	}
	for _, t := range s.ruleOrder() {
		r := s.rules[t]
		if r.TemplateName == templateName && r.TemplateBody != "" {
			return r.TemplateBody
		}
	}
	return s.TemplateMessages[templateName]
}
