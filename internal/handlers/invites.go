package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storyboomai/storyboom/internal/services"
	appErrors "github.com/storyboomai/storyboom/pkg/errors"
	"github.com/storyboomai/storyboom/pkg/response"
)

// InviteHandler exposes company invite management and the public validate endpoint.
type InviteHandler struct {
	invites *services.InviteService
	users   *services.UserService
}

func NewInviteHandler(invites *services.InviteService, users *services.UserService) *InviteHandler {
	return &InviteHandler{invites: invites, users: users}
}

type createInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Create issues a new employee invite. Owner only.
func (h *InviteHandler) Create(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	if !user.IsOwner() || user.CompanyID == nil {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, token, err := h.invites.GenerateInvite(requestContext(c), *user.CompanyID, req.Email, user.ID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	// The plaintext token appears only in this response and the invite email.
	response.Success(c, http.StatusCreated, gin.H{
		"invite": invite,
		"token":  token,
	})
}

// Validate checks an invite token for the public signup page.
func (h *InviteHandler) Validate(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("token is required"))
		return
	}

	info, err := h.invites.ValidateInvite(requestContext(c), token)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"valid":        true,
		"email":        info.Email,
		"company_name": info.CompanyName,
	})
}
