package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storyboomai/storyboom/internal/services"
	"github.com/storyboomai/storyboom/pkg/response"
)

// CreditHandler exposes the credit ledger status endpoint.
type CreditHandler struct {
	credits *services.CreditService
}

func NewCreditHandler(credits *services.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// Status reports the caller's current credit standing.
func (h *CreditHandler) Status(c *gin.Context) {
	status, err := h.credits.Status(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, status)
}
