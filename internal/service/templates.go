package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/validation"

	"github.com/sirupsen/logrus"
)

// TemplateStore defines the database operations needed by TemplateService
type TemplateStore interface {
	SaveTemplate(ctx context.Context, tmpl *models.MessageTemplate) error
	GetTemplate(ctx context.Context, key string) (*models.MessageTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]models.MessageTemplate, error)
	SetVendorTemplateID(ctx context.Context, key, vendorTemplateID string) error
}

// VendorTemplateAPI is the slice of the vendor client the sync needs.
type VendorTemplateAPI interface {
	CreateTemplate(ctx context.Context, def models.MessageTemplate) (*sinch.TemplateRecord, error)
	ListTemplates(ctx context.Context) ([]sinch.TemplateRecord, error)
}

// SyncResult reports what a template sync did, keyed by template key.
type SyncResult struct {
	Created []string
	Skipped []string
}

var templatePlaceholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// TemplateService renders local templates and syncs them to the vendor.
type TemplateService struct {
	store  TemplateStore
	api    VendorTemplateAPI
	logger *logrus.Logger
}

func NewTemplateService(store TemplateStore, api VendorTemplateAPI, logger *logrus.Logger) *TemplateService {
	return &TemplateService{
		store:  store,
		api:    api,
		logger: logger,
	}
}

// Render produces the final message body for a template. It fails closed:
// an unknown key, an unapproved or inactive template, or any missing
// required variable is an error, never a message with a hole in it.
func (s *TemplateService) Render(ctx context.Context, key string, variables map[string]string) (string, error) {
	if err := validation.ValidateTemplateKey(key); err != nil {
		return "", err
	}

	tmpl, err := s.store.GetTemplate(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return "", models.ValidationError{Message: fmt.Sprintf("unknown template: %s", key)}
	}
	if !tmpl.Approved {
		return "", models.ValidationError{Message: fmt.Sprintf("template %s is not approved for sending", key)}
	}
	if !tmpl.Active {
		return "", models.ValidationError{Message: fmt.Sprintf("template %s is not active", key)}
	}

	var missing []string
	for _, name := range tmpl.RequiredVariables {
		if value, ok := variables[name]; !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", models.ValidationError{
			Message: fmt.Sprintf("template %s missing required variables: %s", key, strings.Join(missing, ", ")),
		}
	}

	return RenderBody(tmpl.Body, variables), nil
}

// RenderBody substitutes every {{ name }} placeholder the variable map
// covers. Placeholders without a value are left untouched; Render
// guarantees that never happens for required variables.
func RenderBody(body string, variables map[string]string) string {
	return templatePlaceholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := templatePlaceholderPattern.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return value
		}
		return match
	})
}

// Sync pushes approved local templates to the vendor. Vendor templates
// are deduplicated by description text, so re-running a sync is safe:
// templates already present are reported as skipped, not recreated.
func (s *TemplateService) Sync(ctx context.Context) (*SyncResult, error) {
	local, err := s.store.ListTemplates(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list local templates: %w", err)
	}

	remote, err := s.api.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor templates: %w", err)
	}

	remoteByDescription := make(map[string]sinch.TemplateRecord, len(remote))
	for _, rec := range remote {
		remoteByDescription[rec.Description] = rec
	}

	result := &SyncResult{}
	for _, tmpl := range local {
		if !tmpl.Approved {
			continue
		}

		if existing, ok := remoteByDescription[tmpl.DisplayName]; ok {
			result.Skipped = append(result.Skipped, tmpl.Key)
			if tmpl.VendorTemplateID == nil || *tmpl.VendorTemplateID != existing.ID {
				if err := s.store.SetVendorTemplateID(ctx, tmpl.Key, existing.ID); err != nil {
					return nil, fmt.Errorf("failed to record vendor template id: %w", err)
				}
			}
			continue
		}

		created, err := s.api.CreateTemplate(ctx, tmpl)
		if err != nil {
			return nil, fmt.Errorf("failed to create vendor template %s: %w", tmpl.Key, err)
		}
		if err := s.store.SetVendorTemplateID(ctx, tmpl.Key, created.ID); err != nil {
			return nil, fmt.Errorf("failed to record vendor template id: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"template": tmpl.Key,
			"vendorId": created.ID,
		}).Info("Template created on vendor")

		result.Created = append(result.Created, tmpl.Key)
	}

	return result, nil
}
