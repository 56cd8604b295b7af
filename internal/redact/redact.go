// Package redact scrubs PII from text records before they enter the relay.
package redact

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/splot/internal/luhn"
)

// Pattern is a named PII pattern and its replacement marker.
type Pattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	re          *regexp.Regexp
	validate    func(string) bool // post-match check, e.g. Luhn
}

// Redactor applies its patterns in order. Safe for concurrent use once
// configured.
type Redactor struct {
	patterns []Pattern
	onRedact func(pattern string)
}

var builtin = []Pattern{
	{
		Name:        "credit_card",
		Pattern:     `\b(\d[ -]*?){13,19}\b`,
		Replacement: "[REDACTED:cc]",
	},
	{
		Name:        "email",
		Pattern:     `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		Replacement: "[REDACTED:email]",
	},
	{
		Name:        "jwt",
		Pattern:     `eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`,
		Replacement: "[REDACTED:jwt]",
	},
	{
		Name:        "bearer",
		Pattern:     `(?i)(?:Bearer\s+|Authorization:\s*Bearer\s+)[A-Za-z0-9_\-.]+`,
		Replacement: "[REDACTED:bearer]",
	},
	{
		Name:        "ip_v4",
		Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]\d|\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]\d|\d)\b`,
		Replacement: "[REDACTED:ip]",
	},
}

// New creates a Redactor with the named built-in patterns, or all of them
// when names is empty.
func New(names []string) (*Redactor, error) {
	var selected []Pattern
	if len(names) == 0 {
		selected = append(selected, builtin...)
	} else {
		byName := make(map[string]Pattern, len(builtin))
		for _, p := range builtin {
			byName[p.Name] = p
		}
		for _, n := range names {
			p, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("unknown redaction pattern: %s", n)
			}
			selected = append(selected, p)
		}
	}
	compiled, err := compile(selected)
	if err != nil {
		return nil, err
	}
	return &Redactor{patterns: compiled}, nil
}

// LoadFile appends patterns from a YAML list of {name, pattern, replacement}.
func (r *Redactor) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read patterns file: %w", err)
	}
	var custom []Pattern
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("parse patterns file: %w", err)
	}
	compiled, err := compile(custom)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, compiled...)
	return nil
}

// OnRedact registers a callback invoked with the pattern name on every hit.
func (r *Redactor) OnRedact(fn func(pattern string)) {
	r.onRedact = fn
}

// Redact returns line with every match replaced by its pattern's marker.
func (r *Redactor) Redact(line string) string {
	for _, p := range r.patterns {
		if p.validate != nil {
			line = p.re.ReplaceAllStringFunc(line, func(match string) string {
				if !p.validate(match) {
					return match
				}
				r.hit(p.Name)
				return p.Replacement
			})
			continue
		}
		before := line
		line = p.re.ReplaceAllString(line, p.Replacement)
		if line != before {
			r.hit(p.Name)
		}
	}
	return line
}

// Names returns the active pattern names in application order.
func (r *Redactor) Names() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.Name
	}
	return names
}

// ParseFlag interprets a --redact value: "" disables redaction, "true"
// enables every built-in pattern, "a,b" enables a subset.
func ParseFlag(val string) (enabled bool, names []string) {
	switch val {
	case "":
		return false, nil
	case "true":
		return true, nil
	}
	parts := strings.Split(val, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return true, parts
}

func (r *Redactor) hit(name string) {
	if r.onRedact != nil {
		r.onRedact(name)
	}
}

func compile(patterns []Pattern) ([]Pattern, error) {
	out := make([]Pattern, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %s: %w", p.Name, err)
		}
		out[i] = p
		out[i].re = re
		if p.Name == "credit_card" {
			out[i].validate = luhn.Valid
		}
	}
	return out, nil
}
