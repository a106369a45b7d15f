package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/storyboomai/storyboom/internal/auth"
	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/services"
	"github.com/storyboomai/storyboom/pkg/response"
)

// AuthHandler exposes signup and login endpoints.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type registerOwnerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	CompanyName string `json:"company_name" validate:"required,min=1,max=200"`
}

type registerEmployeeRequest struct {
	InviteToken string `json:"invite_token" validate:"required"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// RegisterOwner creates a company owner account together with its company.
func (h *AuthHandler) RegisterOwner(c *gin.Context) {
	var req registerOwnerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.RegisterOwner(requestContext(c), services.RegisterOwnerParams{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

// RegisterEmployee redeems an invite token and creates the employee account.
func (h *AuthHandler) RegisterEmployee(c *gin.Context) {
	var req registerEmployeeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.RegisterEmployee(requestContext(c), req.InviteToken, req.Password, req.FirstName, req.LastName)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

// Login authenticates by email and password and issues an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.jwt.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, status, authResponse{Token: token, User: user})
}
