package cmd

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"smarttrain/internal/handlers"
)

func (s *server) registerRoutes(se *core.ServeEvent) {
	accountHandler := handlers.NewAccountHandler(s.accounts)
	ticketHandler := handlers.NewTicketHandler(s.tickets, s.escrow)
	paymentHandler := handlers.NewPaymentHandler(s.payments)
	healthHandler := handlers.NewHealthHandler(s.redis, s.dbPing)

	requireAuth := s.authn.RequireAuth()

	// Account endpoints
	se.Router.POST("/api/register", accountHandler.Register).
		BindFunc(s.limiter.AntiBot())
	se.Router.POST("/api/login", accountHandler.Login).
		BindFunc(s.limiter.AntiBot(), s.limiter.Limit("login", s.cfg.LoginAttemptsPerMinute))
	se.Router.POST("/api/gps-check", accountHandler.GPSCheck).BindFunc(requireAuth)
	se.Router.GET("/api/wallet", accountHandler.Wallet).BindFunc(requireAuth)

	// Ticket endpoints
	se.Router.GET("/api/tickets", ticketHandler.Browse)
	se.Router.POST("/api/tickets", ticketHandler.CreateTickets).BindFunc(requireAuth)
	se.Router.GET("/api/tickets/mine", ticketHandler.Mine).BindFunc(requireAuth)
	se.Router.GET("/api/trip/{id}", ticketHandler.Trip).BindFunc(requireAuth)

	if s.cfg.RequirePayment {
		// Payment endpoints
		se.Router.POST("/api/tickets/{id}/checkout", paymentHandler.Checkout).BindFunc(requireAuth)
		se.Router.GET("/api/payments/{sessionId}", paymentHandler.GetPaymentStatus).BindFunc(requireAuth)
		se.Router.POST("/api/payments/webhook", paymentHandler.Webhook)
	} else {
		se.Router.POST("/api/buy/{id}", ticketHandler.Buy).BindFunc(requireAuth)
	}

	if s.cfg.EnableMetrics {
		se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
	}

	// Health check
	se.Router.GET("/health", healthHandler.Health)
}
