package liveclass

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Joinable(t *testing.T) {
	now := time.Now()
	window := 10 * time.Minute

	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{name: "live", session: Session{Status: StatusLive, StartsAt: now.Add(time.Hour)}, want: true},
		{name: "within the window", session: Session{Status: StatusScheduled, StartsAt: now.Add(5 * time.Minute)}, want: true},
		{name: "window edge", session: Session{Status: StatusScheduled, StartsAt: now.Add(window)}, want: true},
		{name: "too early", session: Session{Status: StatusScheduled, StartsAt: now.Add(time.Hour)}, want: false},
		{name: "late joiners", session: Session{Status: StatusScheduled, StartsAt: now.Add(-5 * time.Minute)}, want: true},
		{name: "ended", session: Session{Status: StatusEnded, StartsAt: now}, want: false},
		{name: "cancelled", session: Session{Status: StatusCancelled, StartsAt: now}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Joinable(now, window))
		})
	}
}

func TestSession_EndsAt(t *testing.T) {
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	s := Session{StartsAt: start, Duration: 90}
	assert.Equal(t, time.Date(2030, 1, 1, 11, 30, 0, 0, time.UTC), s.EndsAt())
}
