// Package completion decides whether a finished process satisfied its
// success criteria.
package completion

import (
	"fmt"
	"strings"

	"github.com/hydrajobs/hydra/internal/domain"
)

// ReasonSatisfied is the reason recorded on successful runs.
const ReasonSatisfied = "criteria satisfied"

// Evaluate checks criteria in a fixed order and reports the first
// violation: exit code, stdout required, stdout forbidden, stderr
// required, stderr forbidden. Substring matching is case sensitive and a
// nil exit code list accepts only 0.
func Evaluate(c domain.CompletionCriteria, exitCode int, stdout, stderr string) (bool, string) {
	codes := c.ExitCodes
	if len(codes) == 0 {
		codes = []int{0}
	}
	found := false
	for _, code := range codes {
		if exitCode == code {
			found = true
			break
		}
	}
	if !found {
		return false, fmt.Sprintf("exit code %d not in %v", exitCode, codes)
	}

	for _, want := range c.StdoutContains {
		if !strings.Contains(stdout, want) {
			return false, fmt.Sprintf("stdout missing '%s'", want)
		}
	}
	for _, bad := range c.StdoutNotContains {
		if strings.Contains(stdout, bad) {
			return false, fmt.Sprintf("stdout found forbidden '%s'", bad)
		}
	}
	for _, want := range c.StderrContains {
		if !strings.Contains(stderr, want) {
			return false, fmt.Sprintf("stderr missing '%s'", want)
		}
	}
	for _, bad := range c.StderrNotContains {
		if strings.Contains(stderr, bad) {
			return false, fmt.Sprintf("stderr found forbidden '%s'", bad)
		}
	}
	return true, ReasonSatisfied
}
