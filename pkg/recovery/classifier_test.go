package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeTypedFaults(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{
			name: "requirements error",
			err:  NewRequirementsError("docker", "docker 24 or newer required", nil),
			want: CategorySystemRequirements,
		},
		{
			name: "connectivity error",
			err:  NewConnectivityError("localhost:6333", "qdrant did not answer", nil),
			want: CategoryNetwork,
		},
		{
			name: "permission error",
			err:  NewPermissionError("/var/lib/setforge", "cannot create data directory", nil),
			want: CategoryPermission,
		},
		{
			name: "wrapped requirements error",
			err:  fmt.Errorf("preflight: %w", NewRequirementsError("memory", "8 GiB required", nil)),
			want: CategorySystemRequirements,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorizeHeuristics(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"request timed out after 30s", CategoryNetwork},
		{"dial tcp 127.0.0.1:11434: connection refused", CategoryNetwork},
		{"lookup qdrant.local: no such host", CategoryNetwork},
		{"open /etc/setforge: permission denied", CategoryPermission},
		{"access denied by policy", CategoryPermission},
		{"yaml: line 4: cannot unmarshal !!str into int", CategoryConfiguration},
		{"malformed endpoint value", CategoryConfiguration},
		{"qdrant service unavailable", CategoryServiceUnavailable},
		{"invalid input: port must be numeric", CategoryUserInput},
		{"something nobody anticipated", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := c.Categorize(errors.New(tt.msg)); got != tt.want {
				t.Errorf("Categorize(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestCategorizeTotality(t *testing.T) {
	c := NewClassifier()

	if got := c.Categorize(nil); got != CategoryUnknown {
		t.Errorf("Categorize(nil) = %v, want %v", got, CategoryUnknown)
	}
	if got := c.Categorize(context.DeadlineExceeded); got != CategoryNetwork {
		t.Errorf("Categorize(DeadlineExceeded) = %v, want %v", got, CategoryNetwork)
	}
}

func TestSeverityTable(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		category ErrorCategory
		want     ErrorSeverity
	}{
		{CategorySystemRequirements, SeverityCritical},
		{CategoryPermission, SeverityHigh},
		{CategoryServiceUnavailable, SeverityHigh},
		{CategoryNetwork, SeverityMedium},
		{CategoryConfiguration, SeverityMedium},
		{CategoryUserInput, SeverityLow},
		{CategoryUnknown, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := c.SeverityFor(tt.category); got != tt.want {
				t.Errorf("SeverityFor(%s) = %v, want %v", tt.category, got, tt.want)
			}
			// Determinism: the table never drifts between calls.
			if again := c.SeverityFor(tt.category); again != tt.want {
				t.Errorf("SeverityFor(%s) second call = %v, want %v", tt.category, again, tt.want)
			}
		})
	}

	if got := c.SeverityFor(ErrorCategory("never-registered")); got != SeverityMedium {
		t.Errorf("SeverityFor(unregistered) = %v, want %v", got, SeverityMedium)
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(SeverityLow < SeverityMedium && SeverityMedium < SeverityHigh && SeverityHigh < SeverityCritical) {
		t.Fatal("severity ordering is broken")
	}
}
