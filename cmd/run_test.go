// File: cmd/run_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Verifies the --max-steps flag wins when set and the configured
// agent.max_steps applies otherwise.
func TestResolveMaxSteps(t *testing.T) {
	testCases := []struct {
		name       string
		flagValue  int
		configured int
		expected   int
	}{
		{"flag overrides config", 7, 20, 7},
		{"config applies when flag unset", 0, 5, 5},
		{"zero everywhere defers to engine default", 0, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, resolveMaxSteps(tc.flagValue, tc.configured))
		})
	}
}
