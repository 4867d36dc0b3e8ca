// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// PIIFields are the keys scrubbed from every record by default.
var PIIFields = []string{
	"name", "email", "phone", "ssn", "password",
	"new_password", "session_id", "reset_token",
}

// Redaction replaces a scrubbed value.
const Redaction = "***"

// Separator ends a key=value pair inside a free-text message.
const Separator = ";"

// FilterDatum replaces the value of every key=value<separator> pair in
// message whose key is in fields.
func FilterDatum(fields []string, redaction, message, separator string) string {
	return NewRedactor(fields, redaction, separator).Filter(message)
}

// Redactor scrubs PII from log messages and attributes.
type Redactor struct {
	fields    []string
	redaction string
	patterns  []*regexp.Regexp
	repl      []string
}

// NewRedactor compiles the message patterns for fields once.
func NewRedactor(fields []string, redaction, separator string) *Redactor {
	r := &Redactor{
		fields:    slices.Clone(fields),
		redaction: redaction,
	}
	sep := regexp.QuoteMeta(separator)
	for _, f := range fields {
		r.patterns = append(r.patterns, regexp.MustCompile(regexp.QuoteMeta(f)+`=.*?`+sep))
		r.repl = append(r.repl, f+"="+redaction+separator)
	}
	return r
}

// Filter rewrites message.
func (r *Redactor) Filter(message string) string {
	if !strings.Contains(message, "=") {
		return message
	}
	for i, p := range r.patterns {
		message = p.ReplaceAllLiteralString(message, r.repl[i])
	}
	return message
}

// Sensitive reports whether key names a scrubbed field.
func (r *Redactor) Sensitive(key string) bool {
	return slices.Contains(r.fields, strings.ToLower(key))
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr that masks sensitive
// attributes, including keys inside map values such as oops error context.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if r.Sensitive(a.Key) {
		return slog.String(a.Key, r.redaction)
	}
	switch v := a.Value.Any().(type) {
	case map[string]any:
		return slog.Any(a.Key, r.scrubMap(v))
	case string:
		if filtered := r.Filter(v); filtered != v {
			return slog.String(a.Key, filtered)
		}
	}
	return a
}

func (r *Redactor) scrubMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case r.Sensitive(k):
			out[k] = r.redaction
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = r.scrubMap(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}
