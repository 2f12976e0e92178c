package models

import "time"

// Consent methods recorded in the audit trail.
const (
	ConsentMethodWebForm    = "web_form"
	ConsentMethodVerbal     = "verbal"
	ConsentMethodWritten    = "written"
	ConsentMethodSMSKeyword = "sms_keyword"
	ConsentMethodStaff      = "staff"
)

// ConsentRecord is the opt-in/opt-out audit trail for one (patient, phone)
// pair. OptedIn is never cleared by an opt-out so that history is
// preserved; eligibility is always computed, never stored.
type ConsentRecord struct {
	ID           int64      `json:"id"`
	PatientID    int64      `json:"patient_id"`
	PhoneNumber  string     `json:"phone_number"` // E.164
	OptedIn      bool       `json:"opted_in"`
	OptInMethod  string     `json:"opt_in_method,omitempty"`
	OptInDate    *time.Time `json:"opt_in_date,omitempty"`
	OptInIP      string     `json:"opt_in_ip,omitempty"`
	OptedOut     bool       `json:"opted_out"`
	OptOutMethod string     `json:"opt_out_method,omitempty"`
	OptOutDate   *time.Time `json:"opt_out_date,omitempty"`
	ConsentText  string     `json:"consent_text,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasConsent reports current messaging eligibility. An opt-out always
// overrides a prior opt-in.
func (r *ConsentRecord) HasConsent() bool {
	return r.OptedIn && !r.OptedOut
}
