package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/services"
	"github.com/storyboomai/storyboom/pkg/response"
)

// CaseStudyHandler exposes story creation, editing, and submission.
type CaseStudyHandler struct {
	caseStudies *services.CaseStudyService
	users       *services.UserService
}

func NewCaseStudyHandler(caseStudies *services.CaseStudyService, users *services.UserService) *CaseStudyHandler {
	return &CaseStudyHandler{caseStudies: caseStudies, users: users}
}

type createCaseStudyRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=300"`
	Language string `json:"language" validate:"omitempty,min=2,max=10"`
}

type updateCaseStudyRequest struct {
	Title        *string `json:"title" validate:"omitempty,min=1,max=300"`
	FinalSummary *string `json:"final_summary"`
	LinkedInPost *string `json:"linkedin_post"`
	Language     *string `json:"language" validate:"omitempty,min=2,max=10"`
}

// Create charges one story credit and creates the record atomically.
func (h *CaseStudyHandler) Create(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req createCaseStudyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	cs, err := h.caseStudies.Create(requestContext(c), user, req.Title, req.Language)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, cs)
}

// List returns the stories visible to the caller.
func (h *CaseStudyHandler) List(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	items, err := h.caseStudies.List(requestContext(c), user)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Get returns a single story if the caller may view it.
func (h *CaseStudyHandler) Get(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	cs, err := h.caseStudies.Get(requestContext(c), user, c.Param("id"))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, cs)
}

// Update edits story content subject to the access gate.
func (h *CaseStudyHandler) Update(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req updateCaseStudyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.FinalSummary != nil {
		updates["final_summary"] = *req.FinalSummary
	}
	if req.LinkedInPost != nil {
		updates["linked_in_post"] = *req.LinkedInPost
	}
	if req.Language != nil {
		updates["language"] = *req.Language
	}

	cs, err := h.caseStudies.UpdateContent(requestContext(c), user, c.Param("id"), updates)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, cs)
}

// Submit performs the one-way submission transition.
func (h *CaseStudyHandler) Submit(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	cs, err := h.caseStudies.Submit(requestContext(c), user, c.Param("id"))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, cs)
}

func (h *CaseStudyHandler) loadUser(c *gin.Context) (*models.User, bool) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return nil, false
	}
	return user, true
}
