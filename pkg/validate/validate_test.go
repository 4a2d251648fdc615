package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t,
		"&lt;script&gt;alert(&quot;x&quot;)&lt;&#x2F;script&gt; &#x27;",
		EscapeHTML(`<script>alert("x")</script> '`))
	assert.Equal(t, "plain text", EscapeHTML("plain text"))
}

func TestStripSQLKeywords(t *testing.T) {
	assert.Equal(t, " * FROM users", StripSQLKeywords("SELECT * FROM users"))
	assert.Equal(t, " TABLE users", StripSQLKeywords("drop TABLE users"))
	// Keywords inside words survive.
	assert.Equal(t, "unselected", StripSQLKeywords("unselected"))
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText(`  <b>hi</b> UNION all  `)
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "UNION")
	assert.False(t, strings.HasPrefix(got, " "))

	long := strings.Repeat("a", 2000)
	assert.Len(t, SanitizeText(long), 1000)
}

func TestValidateText(t *testing.T) {
	assert.NoError(t, ValidateText(strings.Repeat("a", 1000)))
	assert.ErrorIs(t, ValidateText(strings.Repeat("a", 1001)), ErrTooLong)
}

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last+tag@sub.example.co",
	}
	for _, email := range valid {
		assert.NoError(t, ValidateEmail(email), email)
	}

	invalid := []string{
		"",
		"plain",
		"@example.com",
		"user@",
		"user@nodot",
		"user name@example.com",
	}
	for _, email := range invalid {
		assert.ErrorIs(t, ValidateEmail(email), ErrInvalidEmail, email)
	}
}

func TestSanitizeHTML(t *testing.T) {
	assert.Equal(t, "<p>hello</p>",
		SanitizeHTML(`<p>hello</p><script>alert(1)</script>`))
	assert.Equal(t, "safe",
		SanitizeHTML(`<iframe src="http://evil.test">x</iframe>safe`))
	assert.Equal(t, `<img src=x>`,
		SanitizeHTML(`<img src=x onerror="alert(1)">`))
	assert.Equal(t, `<a href="alert(1)">x</a>`,
		SanitizeHTML(`<a href="javascript:alert(1)">x</a>`))
	assert.Equal(t, "", SanitizeHTML(""))
}

func TestSanitizeSQL(t *testing.T) {
	assert.Equal(t, "O''Brien", SanitizeSQL("O'Brien"))
	assert.Equal(t, "1 OR 1=1", SanitizeSQL("1; OR 1=1--"))
	assert.Equal(t, "x  comment  y", SanitizeSQL("x /* comment */ y"))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeInput("hello\x00\x07 world"))
	assert.Equal(t, "a b c", SanitizeInput("  a\t\tb\n\nc  "))
	assert.Equal(t, "", SanitizeInput("\x01\x02"))
}

func TestSanitizePhone(t *testing.T) {
	assert.Equal(t, "+1 (555) 123-4567", SanitizePhone("+1 (555) 123-4567"))
	assert.Equal(t, "5551234567", SanitizePhone("555<script>1234567"))
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a", SanitizeURL("https://example.com/a"))
	assert.Equal(t, "http://example.com", SanitizeURL(" http://example.com "))
	assert.Equal(t, "", SanitizeURL("javascript:alert(1)"))
	assert.Equal(t, "", SanitizeURL("ftp://example.com"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", SanitizeFilename("report.pdf"))
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "my_file_name.txt", SanitizeFilename("my file:name.txt"))

	long := strings.Repeat("a", 300) + ".txt"
	assert.Len(t, SanitizeFilename(long), 255)
}

func TestValidateFile(t *testing.T) {
	assert.NoError(t, ValidateFile("photo.png", 1024, "image/png"))
	assert.NoError(t, ValidateFile("doc.pdf", 10*1024*1024, "application/pdf"))

	assert.ErrorIs(t, ValidateFile("photo.png", 10*1024*1024+1, "image/png"), ErrFileTooLarge)
	assert.ErrorIs(t, ValidateFile("app.exe", 1024, "application/x-msdownload"), ErrFileType)
	assert.ErrorIs(t, ValidateFile("../../etc/passwd", 10, "text/plain"), ErrFilename)
	assert.ErrorIs(t, ValidateFile("", 10, "text/plain"), ErrFilename)
}

func TestInput(t *testing.T) {
	sanitized, errs := Input(map[string]string{
		"name":    "<b>Alice</b>",
		"email":   "alice@example.com",
		"comment": strings.Repeat("x", 1500),
	})

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs["comment"], ErrTooLong)

	assert.Equal(t, "&lt;b&gt;Alice&lt;&#x2F;b&gt;", sanitized["name"])
	assert.Equal(t, "alice@example.com", sanitized["email"])
	_, present := sanitized["comment"]
	assert.False(t, present)
}

func TestInputBadEmail(t *testing.T) {
	_, errs := Input(map[string]string{"contact_email": "not-an-email"})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs["contact_email"], ErrInvalidEmail)
}
