package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	appErrors "github.com/storyboomai/storyboom/pkg/errors"
	"github.com/storyboomai/storyboom/pkg/response"
)

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(requestContext(c))
	}
	if err != nil {
		response.Error(c, appErrors.New("UNHEALTHY", "database unreachable", http.StatusServiceUnavailable).WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
