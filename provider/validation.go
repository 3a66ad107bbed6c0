package provider

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// FieldError names one credential field that failed validation. The
// offending value is never part of the message since it is often a secret.
type FieldError struct {
	Gateway string
	Key     string
	Reason  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Gateway, e.Reason)
}

// ValidateConfigFields checks a credential map against field definitions and
// reports every failing field, joined.
func ValidateConfigFields(gateway string, conf map[string]string, fields []ConfigField) error {
	var errs []error
	for _, field := range fields {
		if reason := checkField(field, conf); reason != "" {
			errs = append(errs, &FieldError{Gateway: gateway, Key: field.Key, Reason: reason})
		}
	}
	return errors.Join(errs...)
}

func checkField(field ConfigField, conf map[string]string) string {
	value, present := conf[field.Key]
	blank := strings.TrimSpace(value) == ""

	switch {
	case blank && !field.Required:
		return ""
	case !present:
		return fmt.Sprintf("required field '%s' is missing", field.Key)
	case blank:
		return fmt.Sprintf("required field '%s' cannot be empty", field.Key)
	}

	if reason := checkType(field, value); reason != "" {
		return reason
	}

	if field.Pattern != "" {
		re, err := regexp.Compile(field.Pattern)
		if err != nil {
			return fmt.Sprintf("invalid pattern for field '%s': %v", field.Key, err)
		}
		if !re.MatchString(value) {
			return fmt.Sprintf("field '%s' does not match required pattern", field.Key)
		}
	}

	if n := len(value); field.MinLength > 0 && n < field.MinLength {
		return fmt.Sprintf("field '%s' must be at least %d characters", field.Key, field.MinLength)
	} else if field.MaxLength > 0 && n > field.MaxLength {
		return fmt.Sprintf("field '%s' must not exceed %d characters", field.Key, field.MaxLength)
	}
	return ""
}

func checkType(field ConfigField, value string) string {
	var ok bool
	var want string

	switch field.Type {
	case "number":
		_, err := strconv.ParseFloat(value, 64)
		ok, want = err == nil, "a number"
	case "url":
		u, err := url.ParseRequestURI(value)
		ok = err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
		want = "an http(s) URL"
	case "email":
		_, err := mail.ParseAddress(value)
		ok, want = err == nil, "an email address"
	case "boolean":
		ok, want = value == "true" || value == "false", "'true' or 'false'"
	default:
		return ""
	}

	if ok {
		return ""
	}
	return fmt.Sprintf("field '%s' must be %s", field.Key, want)
}

// EnvironmentField is the field every gateway receives from NewGateway
var EnvironmentField = ConfigField{
	Key:         "environment",
	Required:    true,
	Type:        "string",
	Description: "Wallet environment the gateway is called for",
	Example:     "test",
	Pattern:     "^(test|production)$",
}
