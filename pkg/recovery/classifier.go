package recovery

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"
)

// messageRule maps message substrings to a category. Rules are matched
// in order; the first rule with any matching substring wins.
type messageRule struct {
	substrings []string
	category   ErrorCategory
}

// Classifier maps arbitrary faults to an ErrorCategory and categories
// to their baseline ErrorSeverity. Both tables are built once at
// construction and never mutated, so classification is deterministic
// for the lifetime of the classifier.
type Classifier struct {
	rules      []messageRule
	severities map[ErrorCategory]ErrorSeverity
}

// NewClassifier creates a classifier with the built-in rule tables.
func NewClassifier() *Classifier {
	return &Classifier{
		rules: []messageRule{
			{
				substrings: []string{
					"timeout", "timed out", "connection refused",
					"connection reset", "no such host", "network is unreachable",
					"dns", "dial tcp", "broken pipe",
				},
				category: CategoryNetwork,
			},
			{
				substrings: []string{
					"permission denied", "access denied",
					"operation not permitted", "read-only file system",
				},
				category: CategoryPermission,
			},
			{
				substrings: []string{
					"service unavailable", "not running", "unavailable",
					"no healthy upstream",
				},
				category: CategoryServiceUnavailable,
			},
			{
				substrings: []string{
					"malformed", "invalid value", "cannot parse", "cannot unmarshal",
					"unknown field", "missing required", "bad format", "yaml:",
				},
				category: CategoryConfiguration,
			},
			{
				substrings: []string{"invalid input", "invalid argument", "unsupported choice"},
				category:   CategoryUserInput,
			},
		},
		severities: map[ErrorCategory]ErrorSeverity{
			CategorySystemRequirements: SeverityCritical,
			CategoryPermission:         SeverityHigh,
			CategoryServiceUnavailable: SeverityHigh,
			CategoryNetwork:            SeverityMedium,
			CategoryConfiguration:      SeverityMedium,
			CategoryUserInput:          SeverityLow,
			CategoryUnknown:            SeverityMedium,
		},
	}
}

// Categorize maps a fault to its ErrorCategory. Classification is
// total: any input, including nil, yields a category and never an
// error. Typed faults win over message heuristics.
func (c *Classifier) Categorize(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	// Typed fault family has highest priority.
	var reqErr *RequirementsError
	if errors.As(err, &reqErr) {
		return CategorySystemRequirements
	}
	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return CategoryNetwork
	}
	var permErr *PermissionError
	if errors.As(err, &permErr) {
		return CategoryPermission
	}

	// Well-known platform errors next.
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}
	if errors.Is(err, fs.ErrPermission) {
		return CategoryPermission
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	// Fall back to message heuristics.
	msg := strings.ToLower(err.Error())
	for _, rule := range c.rules {
		for _, sub := range rule.substrings {
			if strings.Contains(msg, sub) {
				return rule.category
			}
		}
	}

	return CategoryUnknown
}

// SeverityFor returns the baseline severity for a category. The
// mapping is a pure function: the same category always yields the
// same severity. Unlisted categories degrade to SeverityMedium.
func (c *Classifier) SeverityFor(category ErrorCategory) ErrorSeverity {
	if sev, ok := c.severities[category]; ok {
		return sev
	}
	return SeverityMedium
}
