// Package validate sanitizes and validates untrusted input: free
// text, email addresses, phone numbers, URLs, filenames, and file
// uploads.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/websentry/websentry/pkg/defaults"
)

var (
	// ErrTooLong means the value exceeds the field length limit.
	ErrTooLong = errors.New("value exceeds maximum length")

	// ErrInvalidEmail means the value is not a plausible address.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrFileTooLarge means the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrFileType means the MIME type is not allowed.
	ErrFileType = errors.New("file type not allowed")

	// ErrFilename means the filename is unsafe or too long.
	ErrFilename = errors.New("invalid filename")
)

// emailPattern is deliberately permissive; deliverability is the mail
// server's problem.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// sqlKeywords are stripped from free text before storage.
var sqlKeywords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE",
	"ALTER", "EXEC", "EXECUTE", "UNION", "SCRIPT", "JAVASCRIPT",
}

var sqlKeywordPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(sqlKeywords, "|") + `)\b`)

// htmlEscaper maps the five characters that change meaning in HTML to
// their entity form.
var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// allowedMIMETypes for file uploads.
var allowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// phonePattern keeps digits and common formatting characters.
var phonePattern = regexp.MustCompile(`[^0-9+\-() ]`)

// filenamePattern removes everything outside a safe character set.
var filenamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// EscapeHTML replaces the five characters that change meaning in HTML.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// StripSQLKeywords removes common SQL keywords, case-insensitively.
func StripSQLKeywords(s string) string {
	return sqlKeywordPattern.ReplaceAllString(s, "")
}

// SanitizeText trims, strips SQL keywords, escapes HTML, and
// truncates to the field length limit.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	s = StripSQLKeywords(s)
	s = EscapeHTML(s)
	if len(s) > defaults.MaxFieldLength {
		s = s[:defaults.MaxFieldLength]
	}
	return s
}

// ValidateText rejects raw input longer than the field limit.
func ValidateText(s string) error {
	if len(s) > defaults.MaxFieldLength {
		return fmt.Errorf("%w (%d > %d)", ErrTooLong, len(s), defaults.MaxFieldLength)
	}
	return nil
}

// ValidateEmail rejects implausible addresses and overlong values.
func ValidateEmail(s string) error {
	if err := ValidateText(s); err != nil {
		return err
	}
	if !emailPattern.MatchString(s) {
		return ErrInvalidEmail
	}
	return nil
}

// Patterns for SanitizeHTML: script and iframe blocks, inline event
// handlers in both quoted and bare form, and dangerous URI schemes.
var (
	scriptBlockPattern   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	iframeBlockPattern   = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe>`)
	quotedHandlerPattern = regexp.MustCompile(`(?i)\s*on\w+\s*=\s*["'][^"']*["']`)
	bareHandlerPattern   = regexp.MustCompile(`(?i)\s*on\w+\s*=\s*[^\s>]*`)
	jsSchemePattern      = regexp.MustCompile(`(?i)javascript:`)
	dataHTMLPattern      = regexp.MustCompile(`(?i)data:text/html`)
)

// SanitizeHTML strips executable content from markup: script and
// iframe blocks, inline event handlers, and javascript: or
// data:text/html URIs. The remaining markup passes through.
func SanitizeHTML(s string) string {
	s = scriptBlockPattern.ReplaceAllString(s, "")
	s = iframeBlockPattern.ReplaceAllString(s, "")
	s = quotedHandlerPattern.ReplaceAllString(s, "")
	s = bareHandlerPattern.ReplaceAllString(s, "")
	s = jsSchemePattern.ReplaceAllString(s, "")
	s = dataHTMLPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// SanitizeSQL doubles single quotes and removes comment markers and
// semicolons. Defense in depth only; use parameterized queries.
func SanitizeSQL(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	s = strings.ReplaceAll(s, "--", "")
	s = strings.ReplaceAll(s, "/*", "")
	s = strings.ReplaceAll(s, "*/", "")
	s = strings.ReplaceAll(s, ";", "")
	return strings.TrimSpace(s)
}

// controlCharPattern matches control characters; whitespace collapse
// handles tabs and newlines afterwards.
var (
	controlCharPattern = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// SanitizeInput removes control characters, collapses runs of
// whitespace to single spaces, and trims.
func SanitizeInput(s string) string {
	s = controlCharPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SanitizePhone keeps digits and common phone formatting characters.
func SanitizePhone(s string) string {
	return phonePattern.ReplaceAllString(strings.TrimSpace(s), "")
}

// SanitizeURL returns the URL if it uses http or https, else "".
func SanitizeURL(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return ""
}

// SanitizeFilename strips path components and unsafe characters and
// truncates to the filename length limit.
func SanitizeFilename(s string) string {
	s = filepath.Base(strings.TrimSpace(s))
	s = filenamePattern.ReplaceAllString(s, "_")
	s = strings.TrimLeft(s, ".")
	if len(s) > defaults.MaxFilenameLength {
		s = s[:defaults.MaxFilenameLength]
	}
	return s
}

// ValidateFile checks an upload's name, size, and declared MIME type.
func ValidateFile(name string, size int64, mimeType string) error {
	if name == "" || len(name) > defaults.MaxFilenameLength || strings.Contains(name, "..") {
		return ErrFilename
	}
	if size > defaults.MaxFileSize {
		return fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, size)
	}
	if !allowedMIMETypes[strings.ToLower(mimeType)] {
		return fmt.Errorf("%w: %s", ErrFileType, mimeType)
	}
	return nil
}

// Input validates and sanitizes a form-style field map. It returns
// the sanitized fields and a map of per-field validation errors;
// fields named like email addresses get the email check.
func Input(fields map[string]string) (map[string]string, map[string]error) {
	sanitized := make(map[string]string, len(fields))
	fieldErrs := make(map[string]error)

	for name, value := range fields {
		if err := ValidateText(value); err != nil {
			fieldErrs[name] = err
			continue
		}
		if strings.Contains(strings.ToLower(name), "email") {
			if err := ValidateEmail(value); err != nil {
				fieldErrs[name] = err
				continue
			}
			sanitized[name] = strings.TrimSpace(value)
			continue
		}
		sanitized[name] = SanitizeText(value)
	}

	return sanitized, fieldErrs
}
