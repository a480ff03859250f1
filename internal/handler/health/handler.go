package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports readiness of a downstream dependency.
type Pinger func() error

type Handler struct {
	pingers map[string]Pinger
}

func NewHandler(pingers map[string]Pinger) *Handler {
	return &Handler{pingers: pingers}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
}

func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Ready(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.pingers))
	for name, ping := range h.pingers {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": checks})
}
