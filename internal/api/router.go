package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stillpoint/booking-service/internal/booking"
	"github.com/stillpoint/booking-service/internal/config"
	"github.com/stillpoint/booking-service/internal/ws"
)

type RouterConfig struct {
	Service *booking.Service
	Hub     *ws.Hub
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Cfg     config.Config
	Version string
}

func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	limiter := NewRateLimiter(rc.Cfg.RateLimitRPS, rc.Cfg.RateLimitBurst)
	r.Use(limiter.Middleware)

	// Health endpoints
	health := NewHealthHandler(rc.PgPool, rc.Redis, rc.Cfg.Env, rc.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public booking endpoints
	r.Get("/slots/available", listAvailableSlotsHandler(rc.Service))
	r.Post("/slots/{id}/reserve", reserveSlotHandler(rc.Service))
	r.Post("/bookings/{id}/reschedule", rescheduleBookingHandler(rc.Service))
	r.Get("/users/{id}/bookings", listUserBookingsHandler(rc.Service))

	// Live slot updates
	r.Get("/ws", rc.Hub.Handle)

	// Admin endpoints
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(AdminAuthMiddleware(rc.Cfg.AdminJWTSecret))
		admin.Post("/slots", adminCreateSlotsHandler(rc.Service))
		admin.Delete("/slots/{id}", adminDeleteSlotHandler(rc.Service))
		admin.Get("/slots", adminListSlotsHandler(rc.Service))
		admin.Get("/bookings", adminListBookingsHandler(rc.Service))
	})

	return r
}
