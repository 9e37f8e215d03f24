package schema

import (
	"net/url"
	"regexp"
	"strings"
)

// FormatValidator is a function that validates a string format
type FormatValidator func(value string) bool

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	uuidPattern  = regexp.MustCompile(`^(?:[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}|00000000-0000-0000-0000-000000000000)$`)
)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	if email == "" {
		return false
	}
	return emailPattern.MatchString(email)
}

// ValidateURL validates an absolute http, https or ftp URL with a host
func ValidateURL(raw string) bool {
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
	default:
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	// bare single-label hosts are only accepted for localhost
	return host == "localhost" || strings.Contains(host, ".") || strings.Contains(host, ":")
}

// ValidateUUID validates UUID format (accepts v1-v5 and the nil UUID)
func ValidateUUID(uuid string) bool {
	if uuid == "" {
		return false
	}
	return uuidPattern.MatchString(strings.ToLower(uuid))
}

var formatValidators = map[string]FormatValidator{
	"email": ValidateEmail,
	"url":   ValidateURL,
	"uuid":  ValidateUUID,
}

// GetFormatValidator returns a format validator by name
func GetFormatValidator(format string) (FormatValidator, bool) {
	validator, exists := formatValidators[format]
	return validator, exists
}
