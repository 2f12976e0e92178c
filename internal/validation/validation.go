package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
)

// ValidatePhoneNumber checks E.164 shape: an optional leading +, then
// digits only, within international length bounds.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return models.ValidationError{Message: "phone number cannot be empty"}
	}

	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < constants.MinPhoneNumberDigits {
		return models.ValidationError{
			Message: fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberDigits),
		}
	}
	if len(digits) > constants.MaxPhoneNumberDigits {
		return models.ValidationError{
			Message: fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberDigits),
		}
	}

	for _, char := range digits {
		if !unicode.IsDigit(char) {
			return models.ValidationError{Message: "phone number must contain only digits"}
		}
	}

	return nil
}

// ValidateTemplateKey checks the identifier used to look templates up.
// Keys are file-name safe: letters, digits, underscores, dashes, dots.
func ValidateTemplateKey(key string) error {
	if key == "" {
		return models.ValidationError{Message: "template key cannot be empty"}
	}
	if len(key) > constants.MaxTemplateKeyLength {
		return models.ValidationError{
			Message: fmt.Sprintf("template key too long (max %d characters)", constants.MaxTemplateKeyLength),
		}
	}

	for _, char := range key {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' {
			return models.ValidationError{
				Message: "template key must contain only letters, numbers, underscores, dashes, and dots",
			}
		}
	}

	return nil
}

// ValidateMessageBody checks a rendered message body before it is handed
// to the vendor.
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return models.ValidationError{Message: "message body cannot be empty"}
	}
	if len(body) > constants.MaxMessageBodyLength {
		return models.ValidationError{
			Message: fmt.Sprintf("message body too long (max %d characters)", constants.MaxMessageBodyLength),
		}
	}
	return nil
}

// ValidateHTTPRequestSize rejects oversized request bodies up front.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return models.ValidationError{Message: "invalid content length"}
	}
	if r.ContentLength > maxSizeBytes {
		return models.ValidationError{
			Message: fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes),
		}
	}
	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	if len(value) < minLength {
		return models.ValidationError{
			Message: fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength),
		}
	}
	if len(value) > maxLength {
		return models.ValidationError{
			Message: fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength),
		}
	}
	return nil
}

// ValidateRetentionDays validates the message retention period
func ValidateRetentionDays(days int) error {
	if days < constants.MinRetentionDays {
		return models.ValidationError{
			Message: fmt.Sprintf("retention days must be at least %d", constants.MinRetentionDays),
		}
	}
	if days > constants.MaxRetentionDays {
		return models.ValidationError{
			Message: fmt.Sprintf("retention days too large (max %d)", constants.MaxRetentionDays),
		}
	}
	return nil
}
