package jobstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"short message", "boom", "boom"},
		{"exactly 500 characters", strings.Repeat("a", 500), strings.Repeat("a", 500)},
		{"501 characters truncated to 500", strings.Repeat("a", 501), strings.Repeat("a", 500)},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateError(tt.msg)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 500)
		})
	}
}

func TestCoerceJobID(t *testing.T) {
	assert.Equal(t, "12", coerceJobID("12"))
	assert.Equal(t, "12", coerceJobID(" 12 "))
	assert.Equal(t, "12", coerceJobID("0012"))
	assert.Equal(t, "job-abc", coerceJobID("job-abc"))
}

func TestJobStatusConstants(t *testing.T) {
	assert.Equal(t, JobStatus("queued"), StatusQueued)
	assert.Equal(t, JobStatus("running"), StatusRunning)
	assert.Equal(t, JobStatus("succeeded"), StatusSucceeded)
	assert.Equal(t, JobStatus("failed"), StatusFailed)
}

func TestNextFailureState(t *testing.T) {
	tests := []struct {
		name          string
		attemptsPrior int
		maxAttempts   int
		wantNext      int
		wantTerminal  bool
	}{
		{"first failure under bound retries", 0, 2, 1, false},
		{"second failure exhausts bound", 1, 2, 2, true},
		{"default max_attempts=3, first failure retries", 0, 3, 1, false},
		{"default max_attempts=3, third failure terminal", 2, 3, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, terminal := nextFailureState(tt.attemptsPrior, tt.maxAttempts)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantTerminal, terminal)
		})
	}
}

func TestClaimStrategyConstants(t *testing.T) {
	assert.NotEqual(t, PessimisticSkipLocked, OptimisticClaimer)
}

func TestDefaultMaxAttempts(t *testing.T) {
	assert.Equal(t, 3, DefaultMaxAttempts)
}
