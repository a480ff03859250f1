package booking

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/handler"
	"github.com/serviceyard/marketplace-api/internal/middleware"
	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/service/booking"
	"github.com/serviceyard/marketplace-api/pkg/validator"
)

type Handler struct {
	service  *booking.Service
	validate *validator.Validator
}

func NewHandler(service *booking.Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	bookings := rg.Group("/bookings")
	{
		bookings.GET("", h.List)
		bookings.GET("/:id", h.Get)
		bookings.POST("/:id/confirm", h.Confirm)
		bookings.POST("/:id/start", h.Start)
		bookings.POST("/:id/complete", h.Complete)
		bookings.POST("/:id/cancel", h.Cancel)
		bookings.POST("/:id/no-show", h.ReportNoShow)
		bookings.POST("/:id/dispute", h.Dispute)
		bookings.POST("/:id/resolve", h.Resolve)
		bookings.POST("/:id/refund", h.Refund)
	}
}

// transitionHandler adapts the single-argument lifecycle operations.
func (h *Handler) transitionHandler(op func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			handler.BadRequest(c, err)
			return
		}
		b, err := op(c, actor, id)
		if err != nil {
			handler.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transitionHandler(func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
		return h.service.Confirm(c.Request.Context(), actor, id)
	})(c)
}

func (h *Handler) Start(c *gin.Context) {
	h.transitionHandler(func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
		return h.service.Start(c.Request.Context(), actor, id)
	})(c)
}

func (h *Handler) Complete(c *gin.Context) {
	h.transitionHandler(func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
		return h.service.Complete(c.Request.Context(), actor, id)
	})(c)
}

func (h *Handler) ReportNoShow(c *gin.Context) {
	h.transitionHandler(func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
		return h.service.ReportNoShow(c.Request.Context(), actor, id)
	})(c)
}

func (h *Handler) Dispute(c *gin.Context) {
	h.transitionHandler(func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
		return h.service.Dispute(c.Request.Context(), actor, id)
	})(c)
}

func (h *Handler) Refund(c *gin.Context) {
	h.transitionHandler(func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
		return h.service.Refund(c.Request.Context(), actor, id)
	})(c)
}

func (h *Handler) Cancel(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}

	var input model.CancelBookingInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			handler.BadRequest(c, err)
			return
		}
		if err := h.validate.Validate(&input); err != nil {
			handler.BadRequest(c, err)
			return
		}
	}

	b, err := h.service.Cancel(c.Request.Context(), actor, id, &input)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) Resolve(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}

	var body struct {
		Outcome string `json:"outcome" validate:"required,oneof=completed refunded cancelled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		handler.BadRequest(c, err)
		return
	}
	if err := h.validate.Validate(&body); err != nil {
		handler.BadRequest(c, err)
		return
	}

	b, err := h.service.Resolve(c.Request.Context(), actor, id, model.BookingStatus(body.Outcome))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) Get(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}

	b, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	filters := &model.BookingFilters{
		Status: model.BookingStatus(c.Query("status")),
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.BadRequest(c, err)
			return
		}
		filters.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.BadRequest(c, err)
			return
		}
		filters.To = t
	}

	bookings, err := h.service.List(c.Request.Context(), actor, filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}
