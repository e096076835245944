package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"smarttrain/models"
)

func TestComputeProgress(t *testing.T) {
	start := testEpoch

	tests := []struct {
		name      string
		minutes   int
		now       time.Time
		want      int
		phase     models.TripPhase
		startsInS int64
	}{
		{name: "before departure", minutes: 60, now: start.Add(-5 * time.Minute), want: 0, phase: models.TripScheduled, startsInS: 300},
		{name: "sub-second before departure rounds up", minutes: 60, now: start.Add(-1500 * time.Millisecond), want: 0, phase: models.TripScheduled, startsInS: 2},
		{name: "at departure", minutes: 60, now: start, want: 0, phase: models.TripInProgress},
		{name: "halfway", minutes: 60, now: start.Add(30 * time.Minute), want: 50, phase: models.TripInProgress},
		{name: "rounds down", minutes: 3, now: start.Add(time.Minute), want: 33, phase: models.TripInProgress},
		{name: "rounds up", minutes: 3, now: start.Add(2 * time.Minute), want: 67, phase: models.TripInProgress},
		{name: "half percent rounds up", minutes: 200, now: start.Add(time.Minute), want: 1, phase: models.TripInProgress},
		{name: "at arrival", minutes: 60, now: start.Add(time.Hour), want: 100, phase: models.TripArrived},
		{name: "long after arrival is clamped", minutes: 10, now: start.Add(20 * time.Minute), want: 100, phase: models.TripArrived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &models.Ticket{
				ID:                  "t1",
				FromStation:         "Cairo",
				ToStation:           "Aswan",
				TripStart:           start,
				TripDurationMinutes: tt.minutes,
			}

			p := ComputeProgress(tk, tt.now)
			assert.Equal(t, tt.want, p.Progress)
			assert.Equal(t, tt.phase, p.Phase)
			assert.Equal(t, tt.startsInS, p.StartsInSeconds)
			assert.Equal(t, "t1", p.TicketID)
			assert.Equal(t, "Cairo", p.From)
			assert.Equal(t, "Aswan", p.To)
		})
	}
}
