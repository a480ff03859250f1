package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	availabilityhandler "github.com/serviceyard/marketplace-api/internal/handler/availability"
	bookinghandler "github.com/serviceyard/marketplace-api/internal/handler/booking"
	healthhandler "github.com/serviceyard/marketplace-api/internal/handler/health"
	quotehandler "github.com/serviceyard/marketplace-api/internal/handler/quote"
	requesthandler "github.com/serviceyard/marketplace-api/internal/handler/request"
	"github.com/serviceyard/marketplace-api/internal/middleware"
	"github.com/serviceyard/marketplace-api/pkg/logger"
)

type Config struct {
	JWTSecret      string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

type Handlers struct {
	Health       *healthhandler.Handler
	Request      *requesthandler.Handler
	Quote        *quotehandler.Handler
	Booking      *bookinghandler.Handler
	Availability *availabilityhandler.Handler
}

// New assembles the HTTP surface: public health and metrics endpoints,
// and the authenticated v1 API.
func New(log *logger.Logger, cfg Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	h.Health.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	v1.Use(middleware.Auth(cfg.JWTSecret))

	h.Request.RegisterRoutes(v1)
	h.Quote.RegisterRoutes(v1)
	h.Booking.RegisterRoutes(v1)
	h.Availability.RegisterRoutes(v1)

	return r
}
