package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// xssPatterns catches common injection vectors in inbound webhook text and
// ingested document content before either reaches a prompt or a rendered
// reply.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)<iframe[^>]*>.*?</iframe>`),
	regexp.MustCompile(`(?i)<object[^>]*>.*?</object>`),
	regexp.MustCompile(`(?i)<embed[^>]*>.*?</embed>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
	regexp.MustCompile(`(?i)<form[^>]*>.*?</form>`),
	regexp.MustCompile(`(?i)<input[^>]*>`),
	regexp.MustCompile(`(?i)<button[^>]*>.*?</button>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)onload\s*=`),
	regexp.MustCompile(`(?i)onerror\s*=`),
	regexp.MustCompile(`(?i)onclick\s*=`),
	regexp.MustCompile(`(?i)onmouseover\s*=`),
	regexp.MustCompile(`(?i)onfocus\s*=`),
	regexp.MustCompile(`(?i)onblur\s*=`),
}

// SanitizeHTML escapes input that matches a known XSS pattern and otherwise
// returns it unchanged.
func SanitizeHTML(input string) string {
	if input == "" {
		return ""
	}
	if len(input) > 10000 {
		input = input[:10000]
	}
	for _, pattern := range xssPatterns {
		if pattern.MatchString(input) {
			return html.EscapeString(input)
		}
	}
	return input
}

// EscapeHTML escapes HTML special characters unconditionally.
func EscapeHTML(input string) string {
	if input == "" {
		return ""
	}
	return html.EscapeString(input)
}

// ValidateInput rejects control characters, invalid UTF-8 and known XSS
// patterns from a user-supplied message body, returning the trimmed input.
func ValidateInput(input string) (string, bool) {
	if input == "" {
		return "", true
	}

	for _, r := range input {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return "", false
		}
	}

	if !utf8.ValidString(input) {
		return "", false
	}

	for _, pattern := range xssPatterns {
		if pattern.MatchString(input) {
			return "", false
		}
	}

	return strings.TrimSpace(input), true
}

// IsValidURL reports whether url is an http(s) URL free of known attack
// patterns, used to validate attachment URLs before fetching them.
func IsValidURL(url string) bool {
	if url == "" || len(url) > 2048 {
		return false
	}

	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}

	for _, pattern := range xssPatterns {
		if pattern.MatchString(url) {
			return false
		}
	}

	return true
}

// IsValidImageURL reports whether url looks like a fetchable image
// attachment, used by the audio/image ingestion branch of inbound handling.
func IsValidImageURL(url string) bool {
	if !IsValidURL(url) {
		return false
	}

	imageExtensions := []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".ico"}
	lowerURL := strings.ToLower(url)
	for _, ext := range imageExtensions {
		if strings.Contains(lowerURL, ext) {
			return true
		}
	}
	return false
}

// CleanMarkdown strips known XSS patterns out of Markdown destined for a
// generated reply.
func CleanMarkdown(input string) string {
	if input == "" {
		return ""
	}
	cleaned := input
	for _, pattern := range xssPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	return cleaned
}

// SanitizeForDisplay cleans Markdown and then HTML-escapes the result.
func SanitizeForDisplay(input string) string {
	if input == "" {
		return ""
	}
	return html.EscapeString(CleanMarkdown(input))
}

// SanitizeForLog strips newlines, tabs and other control characters from a
// value before it is interpolated into a log line, preventing log-injection
// via forged log entries in inbound webhook payloads.
func SanitizeForLog(input string) string {
	if input == "" {
		return ""
	}

	sanitized := strings.ReplaceAll(input, "\n", " ")
	sanitized = strings.ReplaceAll(sanitized, "\r", " ")
	sanitized = strings.ReplaceAll(sanitized, "\t", " ")

	var builder strings.Builder
	for _, r := range sanitized {
		if r >= 32 || r == ' ' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// SanitizeForLogArray applies SanitizeForLog to every element.
func SanitizeForLogArray(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	sanitized := make([]string, 0, len(input))
	for _, item := range input {
		sanitized = append(sanitized, SanitizeForLog(item))
	}
	return sanitized
}
