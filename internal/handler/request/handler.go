package request

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/handler"
	"github.com/serviceyard/marketplace-api/internal/middleware"
	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/service/request"
	"github.com/serviceyard/marketplace-api/pkg/validator"
)

type Handler struct {
	service  *request.Service
	validate *validator.Validator
}

func NewHandler(service *request.Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	requests := rg.Group("/requests")
	{
		requests.POST("", h.Create)
		requests.GET("", h.List)
		requests.GET("/:id", h.Get)
		requests.PATCH("/:id", h.Update)
		requests.POST("/:id/cancel", h.Cancel)
		requests.POST("/:id/reopen", h.Reopen)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var input model.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}
	if err := h.validate.Validate(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}

	req, err := h.service.Create(c.Request.Context(), actor, &input)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.BadRequest(c, err)
		return
	}
	req, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	filters := &model.RequestFilters{
		Status:     model.RequestStatus(c.Query("status")),
		Pagination: parsePagination(c),
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.BadRequest(c, err)
			return
		}
		filters.CategoryID = id
	}
	// Clients only ever see their own requests.
	if actor.IsClient() {
		filters.ClientID = actor.ID
	}

	requests, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
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

	var input model.UpdateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		handler.BadRequest(c, err)
		return
	}

	req, err := h.service.Update(c.Request.Context(), actor, id, &input)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
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

	req, err := h.service.Cancel(c.Request.Context(), actor, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) Reopen(c *gin.Context) {
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

	req, err := h.service.Reopen(c.Request.Context(), actor, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func parsePagination(c *gin.Context) model.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return model.Pagination{Page: page, PageSize: size}
}
