package expiration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsExpired(t *testing.T) {
	sent := time.Date(2024, 3, 27, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		hours int
		now   time.Time
		want  bool
	}{
		{name: "just sent", hours: 6, now: sent, want: false},
		{name: "one second before limit", hours: 6, now: sent.Add(6*time.Hour - time.Second), want: false},
		{name: "exactly at limit", hours: 6, now: sent.Add(6 * time.Hour), want: true},
		{name: "long after limit", hours: 6, now: sent.Add(72 * time.Hour), want: true},
		{name: "clock before send date", hours: 6, now: sent.Add(-time.Hour), want: false},
		{name: "zero window", hours: 0, now: sent, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpired(sent, tt.hours, tt.now))
		})
	}
}

func TestRemaining(t *testing.T) {
	sent := time.Date(2024, 3, 27, 10, 0, 0, 0, time.UTC)

	d, ok := Remaining(sent, 6, sent.Add(time.Hour))
	assert.True(t, ok)
	assert.Equal(t, 5*time.Hour, d)

	d, ok = Remaining(sent, 6, sent.Add(-time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 6*time.Hour, d)

	_, ok = Remaining(sent, 6, sent.Add(6*time.Hour))
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "5h 59m 59s", Format(6*time.Hour-time.Second))
	assert.Equal(t, "0h 0m 1s", Format(1500*time.Millisecond))
	assert.Equal(t, "Time limit reached", Format(0))
}
