package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/core"
	"smarttrain/internal/services"
	"smarttrain/models"
)

type TicketService interface {
	CreateListing(ctx context.Context, sellerID string, req services.CreateTicketRequest) ([]string, error)
	Browse(ctx context.Context, from, to string, limit int) ([]*models.Ticket, error)
	Mine(ctx context.Context, userID string) (*services.MyTickets, error)
	TripProgress(ctx context.Context, ticketID string) (models.TripProgress, error)
}

type TicketHandler struct {
	tickets TicketService
	escrow  services.Purchaser
}

func NewTicketHandler(tickets TicketService, escrow services.Purchaser) *TicketHandler {
	return &TicketHandler{tickets: tickets, escrow: escrow}
}

// CreateTickets - POST /api/tickets
func (h *TicketHandler) CreateTickets(e *core.RequestEvent) error {
	sellerID, err := callerID(e)
	if err != nil {
		return respondError(e, err)
	}

	var req services.CreateTicketRequest
	if err := bindJSON(e, &req); err != nil {
		return respondError(e, err)
	}

	ids, err := h.tickets.CreateListing(e.Request.Context(), sellerID, req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]any{
		"ids":   ids,
		"count": len(ids),
	})
}

// Browse - GET /api/tickets?from=&to=&limit=
func (h *TicketHandler) Browse(e *core.RequestEvent) error {
	q := e.Request.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	tickets, err := h.tickets.Browse(e.Request.Context(), q.Get("from"), q.Get("to"), limit)
	if err != nil {
		return respondError(e, err)
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

// Mine - GET /api/tickets/mine
func (h *TicketHandler) Mine(e *core.RequestEvent) error {
	userID, err := callerID(e)
	if err != nil {
		return respondError(e, err)
	}

	mine, err := h.tickets.Mine(e.Request.Context(), userID)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, mine)
}

// Buy - POST /api/buy/{id}
func (h *TicketHandler) Buy(e *core.RequestEvent) error {
	buyerID, err := callerID(e)
	if err != nil {
		return respondError(e, err)
	}

	receipt, err := h.escrow.PurchaseTicket(e.Request.Context(), e.Request.PathValue("id"), buyerID)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, receipt)
}

// Trip - GET /api/trip/{id}
func (h *TicketHandler) Trip(e *core.RequestEvent) error {
	p, err := h.tickets.TripProgress(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, p)
}
