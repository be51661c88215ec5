package validation

import (
	"fmt"
	"strings"
)

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// Error lists every violation found by a check, not just the first one.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether a violation was recorded for field.
func (e *Error) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// collector accumulates violations while a rule set runs.
type collector struct {
	violations []Violation
}

func (c *collector) add(field, format string, args ...any) {
	c.violations = append(c.violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) merge(prefix string, err error) {
	if err == nil {
		return
	}
	if verr, ok := err.(*Error); ok {
		for _, v := range verr.Violations {
			field := prefix
			if v.Field != "" {
				field = prefix + "." + v.Field
			}
			c.violations = append(c.violations, Violation{Field: field, Message: v.Message})
		}
		return
	}
	c.add(prefix, "%v", err)
}

func (c *collector) err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return &Error{Violations: c.violations}
}

// NewError builds an *Error with a single violation.
func NewError(field, format string, args ...any) *Error {
	return &Error{Violations: []Violation{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}
