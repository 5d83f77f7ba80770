package logging

import (
	"fmt"
	"regexp"
)

const (
	// MaxValueLogLength is the maximum length of a field value to log.
	MaxValueLogLength = 80
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Field names whose values are contact or identity data and must not be
	// written to logs verbatim.
	sensitiveFieldPattern = regexp.MustCompile(`(?i)(email|phone|mobile|ssn|tax|passport|birth|dob|iban|account)`)
)

// SanitizeConnectionString removes credentials from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain credentials
// (database errors frequently echo the connection string).
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// FieldValue renders a master-record field value for logging. Values of
// contact/identity fields are redacted entirely; other values are truncated
// to MaxValueLogLength.
func FieldValue(field string, v any) string {
	if sensitiveFieldPattern.MatchString(field) {
		return RedactedText
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > MaxValueLogLength {
		return s[:MaxValueLogLength] + "..."
	}
	return s
}
