package gateway

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TemplateParams is the template_params object understood by the gateway.
type TemplateParams struct {
	Name            string           `json:"name"`
	Category        string           `json:"category"`
	Language        string           `json:"language"`
	ProcessedParams *ProcessedParams `json:"processed_params,omitempty"`
}

// ProcessedParams carries the values substituted into the template.
type ProcessedParams struct {
	Body    map[string]string `json:"body,omitempty"`
	Header  *MediaHeader      `json:"header,omitempty"`
	Buttons []ButtonParam     `json:"buttons,omitempty"`
}

type MediaHeader struct {
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

type ButtonParam struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter"`
}

const placeholderMissing = "---"

var leftoverPlaceholder = regexp.MustCompile(`\{\{\d+\}\}`)

// BuildTemplateParams encodes req into template_params.
//
// Body values are limited to the first BodyVariableCount params (all when
// zero); the rest are only referenced by buttons. Empty values are skipped
// and the remaining ones are numbered from "1" without gaps.
func (c *Client) BuildTemplateParams(req SendRequest) TemplateParams {
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = c.settings.TemplateLanguage
	}
	out := TemplateParams{
		Name:     req.TemplateName,
		Category: c.settings.TemplateCategory,
		Language: lang,
	}

	var pp ProcessedParams

	count := req.BodyVariableCount
	if count <= 0 || count > len(req.Params) {
		count = len(req.Params)
	}
	for _, v := range req.Params[:count] {
		if v == "" {
			continue
		}
		if pp.Body == nil {
			pp.Body = make(map[string]string)
		}
		pp.Body[strconv.Itoa(len(pp.Body)+1)] = v
	}

	if isMediaURL(req.MediaURL) {
		pp.Header = &MediaHeader{MediaURL: req.MediaURL, MediaType: mediaType(req.MediaURL)}
	}

	for _, b := range req.ButtonVariables {
		typ := b.Type
		if typ == "" {
			typ = "url"
		}
		var value string
		if i := b.PlaceholderIndex - 1; i >= 0 && i < len(req.Params) {
			value = req.Params[i]
		}
		pp.Buttons = append(pp.Buttons, ButtonParam{Type: typ, Parameter: value})
	}

	if pp.Body != nil || pp.Header != nil || len(pp.Buttons) > 0 {
		out.ProcessedParams = &pp
	}
	return out
}

// BuildContent renders the human-readable copy stored on the conversation.
// The body is the explicit one, else the body configured for the template
// name. Without any body a generic "📋 Template Name" line is produced,
// followed by the known values.
func (c *Client) BuildContent(templateName string, params []string, body string) string {
	if body == "" {
		body = c.settings.TemplateBodyFor(templateName)
	}
	if body != "" {
		for i, v := range params {
			if v == "" || v == placeholderMissing {
				continue
			}
			body = strings.ReplaceAll(body, "{{"+strconv.Itoa(i+1)+"}}", v)
		}
		body = leftoverPlaceholder.ReplaceAllString(body, "")
		return strings.TrimSpace(body)
	}

	content := "📋 " + displayName(templateName)
	known := make([]string, 0, len(params))
	for _, v := range params {
		if v != "" && v != placeholderMissing {
			known = append(known, v)
		}
	}
	if len(known) > 0 {
		content += "\n" + strings.Join(known, " | ")
	}
	return content
}

// displayName turns "order_shipped" into "Order Shipped".
func displayName(templateName string) string {
	parts := strings.Split(templateName, "_")
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		if size == 0 {
			continue
		}
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}

func isMediaURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func mediaType(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "document"
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return "image"
	case "mp4", "avi", "mov", "webm":
		return "video"
	}
	return "document"
}
