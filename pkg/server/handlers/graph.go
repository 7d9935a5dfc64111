package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kinship"
	"github.com/soundprediction/kinship/pkg/datalog"
	"github.com/soundprediction/kinship/pkg/server/dto"
	"github.com/soundprediction/kinship/pkg/types"
)

// GraphHandler handles person, fact, and rule writes.
type GraphHandler struct {
	kinship kinship.Kinship
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(k kinship.Kinship) *GraphHandler {
	return &GraphHandler{kinship: k}
}

// AddPerson handles POST /api/v1/persons
func (h *GraphHandler) AddPerson(c *gin.Context) {
	var req dto.AddPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	person, err := h.kinship.AddPerson(c.Request.Context(), req.Name, req.Data)
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.Result{Success: true, Data: person})
}

// UpdatePerson handles PATCH /api/v1/persons/:id
func (h *GraphHandler) UpdatePerson(c *gin.Context) {
	var req dto.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	person, err := h.kinship.UpdatePerson(c.Request.Context(), c.Param("id"), req.Data)
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: person})
}

// GetPerson handles GET /api/v1/persons/:id
func (h *GraphHandler) GetPerson(c *gin.Context) {
	person, err := h.kinship.GetPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: person})
}

// AddFact handles POST /api/v1/facts
func (h *GraphHandler) AddFact(c *gin.Context) {
	var req dto.AddFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	fact, err := h.kinship.AddFact(c.Request.Context(), req.From, req.To, req.Type, req.Data)
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.Result{Success: true, Data: fact})
}

// AddRule handles POST /api/v1/rules
func (h *GraphHandler) AddRule(c *gin.Context) {
	var req dto.AddRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.kinship.AddRule(c.Request.Context(), req.Name, req.Body, req.Description); err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.Result{Success: true})
}

// ListRules handles GET /api/v1/rules
func (h *GraphHandler) ListRules(c *gin.Context) {
	rules, err := h.kinship.ListRules(c.Request.Context())
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: rules})
}

// GetRule handles GET /api/v1/rules/:name
func (h *GraphHandler) GetRule(c *gin.Context) {
	rule, err := h.kinship.GetRule(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: rule})
}

// ClearGraph handles DELETE /api/v1/clear
func (h *GraphHandler) ClearGraph(c *gin.Context) {
	if err := h.kinship.ClearGraph(c.Request.Context()); err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true})
}

// abortError writes a structured error response.
func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error:   code,
		Message: err.Error(),
		Code:    status,
	})
}

// abortDomainError maps domain sentinels onto HTTP status codes. Anything
// unrecognized is a 500.
func abortDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, kinship.ErrPersonNotFound), errors.Is(err, kinship.ErrRuleNotFound):
		abortError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, kinship.ErrAmbiguousName):
		abortError(c, http.StatusConflict, "ambiguous_name", err)
	case errors.Is(err, kinship.ErrInvalidJSON):
		abortError(c, http.StatusBadRequest, "invalid_json", err)
	case errors.Is(err, types.ErrEmptyName), errors.Is(err, types.ErrEmptyType),
		errors.Is(err, types.ErrEmptyRule), errors.Is(err, types.ErrEmptyBody),
		errors.Is(err, datalog.ErrEmptyQuery):
		abortError(c, http.StatusBadRequest, "invalid_request", err)
	default:
		abortError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
