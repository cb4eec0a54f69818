package heartbeat

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextBackoffDelay_DoublesAndCaps(t *testing.T) {
	max := 30 * time.Second

	assert.Equal(t, 2*time.Second, nextBackoffDelay(time.Second, max))
	assert.Equal(t, 4*time.Second, nextBackoffDelay(2*time.Second, max))
	assert.Equal(t, max, nextBackoffDelay(20*time.Second, max))
	assert.Equal(t, max, nextBackoffDelay(max, max))
}

func TestJitter_WithinTwentyPercent(t *testing.T) {
	delay := 10 * time.Second
	for i := 0; i < 100; i++ {
		got := jitter(delay)
		assert.GreaterOrEqual(t, got, delay-time.Duration(0.2*float64(delay)))
		assert.LessOrEqual(t, got, delay+time.Duration(0.2*float64(delay))+time.Millisecond)
	}
}

func TestConfig_Defaults(t *testing.T) {
	h := New(nil, Config{WorkerID: "worker-test"}, discardLogger())
	assert.Equal(t, 30*time.Second, h.cfg.Interval)
	assert.Equal(t, time.Second, h.cfg.BaseDelay)
	assert.Equal(t, 30*time.Second, h.cfg.MaxDelay)
}
