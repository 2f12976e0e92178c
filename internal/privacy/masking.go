package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	// Handle + prefix numbers specially
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 { // Just "+"
			return phone
		}
		if len(phone) <= 5 { // "+1234" or shorter
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	// For numbers without + prefix
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskIdentity masks a channel identity. SMS and WhatsApp identities are
// phone numbers in E.164 form; anything else gets generic masking.
func MaskIdentity(identity string) string {
	if identity == "" {
		return ""
	}

	if strings.HasPrefix(identity, "+") || (len(identity) >= 10 && isNumeric(identity)) {
		return MaskPhoneNumber(identity)
	}

	return maskString(identity, 4)
}

// MaskMessageID masks a vendor message ID while preserving the tail for
// log correlation. Example: "01GZ...XY9F" -> "************XY9F"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	return maskString(messageID, 8)
}

// MaskContactID masks a vendor contact identifier similar to phone numbers
func MaskContactID(contactID string) string {
	if contactID == "" {
		return ""
	}

	// If it looks like a phone number, use phone masking
	if strings.HasPrefix(contactID, "+") || (len(contactID) >= 10 && isNumeric(contactID)) {
		return MaskPhoneNumber(contactID)
	}

	// Otherwise use generic masking
	return maskString(contactID, 4)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "phone", "phone_number", "from", "to":
			if s, ok := v.(string); ok {
				masked[k] = MaskPhoneNumber(s)
			} else {
				masked[k] = v
			}
		case "identity", "sender", "recipient":
			if s, ok := v.(string); ok {
				masked[k] = MaskIdentity(s)
			} else {
				masked[k] = v
			}
		case "message_id", "vendor_message_id", "msg_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskMessageID(s)
			} else {
				masked[k] = v
			}
		case "contact_id", "vendor_contact_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskContactID(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
