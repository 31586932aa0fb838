package client

import "strings"

// Redactor replaces known secret values in passthrough output with
// [REDACTED:NAME] placeholders. The launcher builds one over the session
// token so host stdout can be echoed without leaking credentials into
// harness logs.
type Redactor struct {
	replacements map[string]string
}

// NewRedactor builds a Redactor from a name → secret-value mapping. Empty
// values are skipped; they would match everything.
func NewRedactor(secrets map[string]string) *Redactor {
	r := &Redactor{replacements: map[string]string{}}
	for name, value := range secrets {
		if value == "" {
			continue
		}
		r.replacements[value] = "[REDACTED:" + name + "]"
	}
	return r
}

// Redact replaces every occurrence of every known secret. With no secrets
// registered it is a passthrough.
func (r *Redactor) Redact(input string) string {
	if len(r.replacements) == 0 {
		return input
	}
	out := input
	for value, placeholder := range r.replacements {
		out = strings.ReplaceAll(out, value, placeholder)
	}
	return out
}
