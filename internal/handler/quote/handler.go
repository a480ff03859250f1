package quote

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/handler"
	"github.com/serviceyard/marketplace-api/internal/middleware"
	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/service/quote"
	"github.com/serviceyard/marketplace-api/pkg/validator"
)

type Handler struct {
	service  *quote.Service
	validate *validator.Validator
}

func NewHandler(service *quote.Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")
	{
		quotes.POST("", h.Submit)
		quotes.GET("/:id", h.Get)
		quotes.PATCH("/:id", h.Update)
		quotes.POST("/:id/withdraw", h.Withdraw)
		quotes.POST("/:id/accept", h.Accept)
		quotes.POST("/:id/reject", h.Reject)
	}
	rg.GET("/requests/:id/quotes", h.ListForRequest)
}

func (h *Handler) Submit(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var input model.SubmitQuoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}
	if err := h.validate.Validate(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}

	q, err := h.service.Submit(c.Request.Context(), actor, &input)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}
	q, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
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

	var input model.UpdateQuoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}

	q, err := h.service.Update(c.Request.Context(), actor, id, &input)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) Withdraw(c *gin.Context) {
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

	q, err := h.service.Withdraw(c.Request.Context(), actor, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// Accept returns the booking created by the acceptance cascade.
func (h *Handler) Accept(c *gin.Context) {
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

	booking, err := h.service.Accept(c.Request.Context(), actor, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) Reject(c *gin.Context) {
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
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			handler.BadRequest(c, err)
			return
		}
	}

	q, err := h.service.Reject(c.Request.Context(), actor, id, body.Reason)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) ListForRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}
	quotes, err := h.service.ListForRequest(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}
