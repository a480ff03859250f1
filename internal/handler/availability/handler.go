package availability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/handler"
	"github.com/serviceyard/marketplace-api/internal/middleware"
	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/service/slot"
	"github.com/serviceyard/marketplace-api/pkg/validator"
)

type Handler struct {
	service  *slot.Service
	validate *validator.Validator
}

func NewHandler(service *slot.Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	availabilities := rg.Group("/availabilities")
	{
		availabilities.POST("", h.Create)
		availabilities.PATCH("/:id", h.Update)
		availabilities.DELETE("/:id", h.Delete)
		availabilities.POST("/:id/generate", h.Generate)
	}
	providers := rg.Group("/providers")
	{
		providers.GET("/:id/availabilities", h.ListForProvider)
		providers.GET("/:id/slots", h.ListSlots)
	}
}

type createBody struct {
	model.CreateAvailabilityInput
	// Admins may manage another provider's schedule.
	ProviderID *uuid.UUID `json:"provider_id"`
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		handler.BadRequest(c, err)
		return
	}
	if err := h.validate.Validate(&body.CreateAvailabilityInput); err != nil {
		handler.BadRequest(c, err)
		return
	}

	providerID := actor.ID
	if body.ProviderID != nil {
		providerID = *body.ProviderID
	}

	availability, err := h.service.CreateAvailability(c.Request.Context(), actor, providerID, &body.CreateAvailabilityInput)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, availability)
}

func (h *Handler) Update(c *gin.Context) {
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

	var input model.UpdateAvailabilityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}

	availability, err := h.service.UpdateAvailability(c.Request.Context(), actor, id, &input)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *Handler) Delete(c *gin.Context) {
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

	if err := h.service.DeleteAvailability(c.Request.Context(), actor, id); err != nil {
		handler.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Generate(c *gin.Context) {
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

	if err := h.service.GenerateSlotsForAvailability(c.Request.Context(), actor, id); err != nil {
		handler.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListForProvider(c *gin.Context) {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}
	availabilities, err := h.service.ListAvailabilities(c.Request.Context(), providerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availabilities": availabilities})
}

// ListSlots returns bookable slots for a provider inside a window. The
// window defaults to the coming week.
func (h *Handler) ListSlots(c *gin.Context) {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}

	from := time.Now()
	to := from.AddDate(0, 0, 7)
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			handler.BadRequest(c, err)
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			handler.BadRequest(c, err)
			return
		}
	}

	slots, err := h.service.ListAvailableSlots(c.Request.Context(), providerID, from, to)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}
