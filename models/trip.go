package models

type TripPhase string

const (
	TripScheduled  TripPhase = "scheduled"
	TripInProgress TripPhase = "in_progress"
	TripArrived    TripPhase = "arrived"
)

// TripProgress is the on-demand view of how far a ticket's trip has run.
type TripProgress struct {
	TicketID string `json:"ticket_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	// Progress is a percentage in [0, 100].
	Progress int       `json:"progress"`
	Phase    TripPhase `json:"phase"`
	// StartsInSeconds is set while the trip has not departed yet.
	StartsInSeconds int64 `json:"starts_in_seconds,omitempty"`
}
