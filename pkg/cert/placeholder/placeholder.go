// Package placeholder implements {{token}} substitution for certificate
// text, email subjects, and email messages.
//
// Substitution is best-effort by design: tokens with no matching recipient
// field are left in place so a typo'd placeholder stays visible to the
// operator instead of silently disappearing. ExtractPlaceholders and
// ValidateRecipients provide an opt-in pre-flight check for callers that
// want to catch missing fields before a batch run.
package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/romega/certforge/pkg/cert"
)

// Built-in tokens, replaced case-insensitively.
var (
	nameToken  = regexp.MustCompile(`(?i)\{\{name\}\}`)
	titleToken = regexp.MustCompile(`(?i)\{\{title\}\}`)
	dateToken  = regexp.MustCompile(`(?i)\{\{date\}\}`)

	// anyToken matches any {{...}} occurrence for extraction.
	anyToken = regexp.MustCompile(`\{\{([^}]+)\}\}`)
)

// Substitute replaces every {{name}}, {{title}}, {{date}} token and every
// {{key}} token matching a custom field with the recipient's values. Token
// matching is case-insensitive. Unknown tokens pass through unchanged.
//
// The function is pure and performs a single pass: values containing brace
// sequences are not re-expanded.
func Substitute(text string, r cert.Recipient) string {
	out := nameToken.ReplaceAllLiteralString(text, r.Name)
	out = titleToken.ReplaceAllLiteralString(out, r.Title)
	out = dateToken.ReplaceAllLiteralString(out, r.Date)

	for key, value := range r.CustomFields {
		re, err := regexp.Compile(`(?i)\{\{` + regexp.QuoteMeta(key) + `\}\}`)
		if err != nil {
			continue
		}
		out = re.ReplaceAllLiteralString(out, value)
	}
	return out
}

// Extract returns the distinct placeholder names used in s, in order of
// first appearance.
func Extract(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range anyToken.FindAllStringSubmatch(s, -1) {
		if name := m[1]; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// ExtractFromElements returns the distinct placeholders used across a set of
// text elements, sorted for stable output.
func ExtractFromElements(elements []cert.TextElement) []string {
	seen := make(map[string]bool)
	for _, e := range elements {
		for _, name := range Extract(e.Text) {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationResult reports which recipients are missing required fields.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateRecipients checks that every recipient can fill every required
// placeholder. It is an advisory pre-flight check; Substitute itself never
// fails on missing fields.
func ValidateRecipients(recipients []cert.Recipient, required []string) ValidationResult {
	var errs []string
	for i, r := range recipients {
		for _, name := range required {
			if lookupField(r, name) == "" {
				errs = append(errs, fmt.Sprintf("recipient %d (%s) is missing field: %s", i+1, r.Name, name))
			}
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func lookupField(r cert.Recipient, name string) string {
	switch strings.ToLower(name) {
	case "name":
		return r.Name
	case "title":
		return r.Title
	case "date":
		return r.Date
	}
	// Custom fields fold case the same way Substitute matches tokens.
	for key, value := range r.CustomFields {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
