package services

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"golang.org/x/text/cases"
)

const (
	maxNameLength     = 100
	maxTitleLength    = 200
	maxBodyLength     = 5000
	maxAttributes     = 20
	maxAttributeKey   = 64
	maxAttributeValue = 500
	maxEmailLength    = 254
)

// NormalizeEmail trims and case-folds an address. Only bare addresses are
// accepted; display-name forms such as "Bob <bob@x.com>" are rejected.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", validationError("email is required")
	}
	if len(email) > maxEmailLength {
		return "", validationError("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationError("email is invalid")
	}
	// Caser values are stateful, one per call.
	return cases.Fold().String(email), nil
}

func requiredText(field, raw string, max int) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", validationError(field + " is required")
	}
	if utf8.RuneCountInString(value) > max {
		return "", validationError(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return value, nil
}

func optionalText(field, raw string, max int) (string, error) {
	value := strings.TrimSpace(raw)
	if utf8.RuneCountInString(value) > max {
		return "", validationError(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return value, nil
}

func normalizeAttributes(raw map[string]string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) > maxAttributes {
		return nil, validationError(fmt.Sprintf("at most %d attributes are allowed", maxAttributes))
	}
	attrs := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, validationError("attribute names must not be empty")
		}
		if utf8.RuneCountInString(key) > maxAttributeKey {
			return nil, validationError(fmt.Sprintf("attribute name %q is too long", key))
		}
		value, err := optionalText("attribute "+key, v, maxAttributeValue)
		if err != nil {
			return nil, err
		}
		if value == "" {
			continue
		}
		attrs[key] = value
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}
