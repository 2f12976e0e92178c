package sinch

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// CreateTemplate registers a local template definition with the vendor's
// template service. The template host is rate-limited, so the call runs
// through the retry executor like every other outbound call.
func (c *Client) CreateTemplate(ctx context.Context, def models.MessageTemplate) (*TemplateRecord, error) {
	payload := templateFromDefinition(def)

	endpoint := c.templateURL + "/v2/projects/" + c.cfg.ProjectID + "/templates"
	res, err := c.doAuthorized(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, apiErrorFromResult(res)
	}

	var out TemplateRecord
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode template", StatusCode: res.StatusCode}
	}
	return &out, nil
}

// ListTemplates lists the vendor-side templates for the project.
func (c *Client) ListTemplates(ctx context.Context) ([]TemplateRecord, error) {
	endpoint := c.templateURL + "/v2/projects/" + c.cfg.ProjectID + "/templates"
	res, err := c.doAuthorized(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, apiErrorFromResult(res)
	}

	var page struct {
		Templates []TemplateRecord `json:"templates"`
	}
	if err := json.Unmarshal(res.Raw, &page); err != nil {
		return nil, &APIError{Message: "failed to decode template list", StatusCode: res.StatusCode}
	}
	return page.Templates, nil
}

// templateFromDefinition converts a local template definition to the wire
// shape: local `{{ name }}` placeholder syntax becomes the vendor's
// `{{name}}`, and each variable gets a human-readable preview value.
func templateFromDefinition(def models.MessageTemplate) TemplateRecord {
	variables := make([]TemplateVariable, 0, len(def.RequiredVariables))
	for _, name := range def.RequiredVariables {
		variables = append(variables, TemplateVariable{
			Key:          name,
			PreviewValue: previewValue(name),
		})
	}

	return TemplateRecord{
		Description:        def.DisplayName,
		DefaultTranslation: constants.DefaultLanguageCode,
		Translations: []TemplateTranslation{{
			LanguageCode: constants.DefaultLanguageCode,
			Version:      "1",
			Variables:    variables,
			Message: &MessageContent{
				TextMessage: &TextMessage{Text: normalizePlaceholders(def.Body)},
			},
		}},
	}
}

// normalizePlaceholders rewrites `{{ name }}` to the vendor's `{{name}}`.
func normalizePlaceholders(body string) string {
	return placeholderPattern.ReplaceAllString(body, "{{$1}}")
}

// previewValue turns a variable name into a display sample:
// "patient_first_name" -> "Patient First Name".
func previewValue(name string) string {
	words := strings.Split(strings.ReplaceAll(name, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}
