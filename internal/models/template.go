package models

import "time"

// Template categories. Transactional templates (consent receipts, help
// responses) are exempt from the consent gate; everything else requires a
// validated opt-in before send.
const (
	TemplateCategoryTransactional = "transactional"
	TemplateCategoryReminder      = "reminder"
	TemplateCategoryRecall        = "recall"
	TemplateCategoryMarketing     = "marketing"
)

// Template applicability.
const (
	TemplateApplicabilityIndividual = "individual"
	TemplateApplicabilityBatch      = "batch"
	TemplateApplicabilityBoth       = "both"
)

// MessageTemplate is a pre-approved, variable-parameterized message body.
// Templates are seed/config data, edited rarely. VendorTemplateID is set
// once the template has been synced to the vendor.
type MessageTemplate struct {
	ID                int64     `json:"id"`
	Key               string    `json:"key"`
	DisplayName       string    `json:"display_name"`
	Category          string    `json:"category"`
	Applicability     string    `json:"applicability"`
	Body              string    `json:"body"` // contains {{ variable }} placeholders
	RequiredVariables []string  `json:"required_variables"`
	ComplianceScore   float64   `json:"compliance_score"`
	Approved          bool      `json:"approved"`
	Active            bool      `json:"active"`
	VendorTemplateID  *string   `json:"vendor_template_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
