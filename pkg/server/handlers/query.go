package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kinship"
	"github.com/soundprediction/kinship/pkg/server/dto"
)

// QueryHandler handles query and schema inspection requests.
type QueryHandler struct {
	kinship kinship.Kinship
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(k kinship.Kinship) *QueryHandler {
	return &QueryHandler{kinship: k}
}

// RunQuery handles POST /api/v1/query
func (h *QueryHandler) RunQuery(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	result, err := h.kinship.RunQuery(c.Request.Context(), req.Query)
	if err != nil {
		// Evaluation failures are caller mistakes (bad syntax, unknown
		// predicates, broken stored rules), not server faults.
		abortError(c, http.StatusUnprocessableEntity, "query_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: result})
}

// RelationTypes handles GET /api/v1/relation-types
func (h *QueryHandler) RelationTypes(c *gin.Context) {
	relationTypes, err := h.kinship.RelationTypes(c.Request.Context())
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: relationTypes})
}

// PersonSchema handles GET /api/v1/person-schema
func (h *QueryHandler) PersonSchema(c *gin.Context) {
	schema, err := h.kinship.PersonSchema(c.Request.Context())
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: schema})
}

// Stats handles GET /api/v1/stats
func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.kinship.Stats(c.Request.Context())
	if err != nil {
		abortDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: stats})
}
