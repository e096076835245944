package services

import (
	"math"
	"time"

	"smarttrain/models"
)

// ComputeProgress reports how much of t's scheduled trip has elapsed at now,
// rounded to the nearest percent and clamped to [0, 100]. Before departure
// the phase is scheduled and StartsInSeconds counts down to trip_start.
func ComputeProgress(t *models.Ticket, now time.Time) models.TripProgress {
	p := models.TripProgress{
		TicketID: t.ID,
		From:     t.FromStation,
		To:       t.ToStation,
	}

	elapsed := now.Sub(t.TripStart).Milliseconds()
	total := int64(t.TripDurationMinutes) * 60_000

	switch {
	case elapsed < 0:
		p.Phase = models.TripScheduled
		p.StartsInSeconds = int64(math.Ceil(float64(-elapsed) / 1000))
		return p
	case total <= 0 || elapsed >= total:
		p.Phase = models.TripArrived
		p.Progress = 100
		return p
	}

	p.Phase = models.TripInProgress
	p.Progress = int(math.Floor(float64(elapsed)/float64(total)*100 + 0.5))
	if p.Progress > 100 {
		p.Progress = 100
	}
	return p
}
