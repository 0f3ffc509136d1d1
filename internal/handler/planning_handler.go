package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
	"github.com/noah-isme/exam-proctor-api/pkg/response"
)

type solvePlanner interface {
	RequestSolve(ctx context.Context, sessionID string, req dto.SolveRequest, actorID string) (*dto.SolveJobResponse, error)
	JobStatus(ctx context.Context, id string) (*dto.SolveJobStatusResponse, error)
	Assignments(ctx context.Context, sessionID string) (*dto.AssignmentsResponse, error)
	EditAssignments(ctx context.Context, sessionID string, req dto.AssignmentEditRequest, actorID string) (*dto.AssignmentsResponse, error)
}

// PlanningHandler exposes solve and assignment endpoints.
type PlanningHandler struct {
	planner solvePlanner
}

// NewPlanningHandler constructs the handler.
func NewPlanningHandler(planner solvePlanner) *PlanningHandler {
	return &PlanningHandler{planner: planner}
}

// Solve godoc
// @Summary Start a solve
// @Description Queue a background solve of the session roster. Body fields override the server defaults.
// @Tags Planning
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SolveRequest false "Engine overrides"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /sessions/{id}/solve [post]
func (h *PlanningHandler) Solve(c *gin.Context) {
	var req dto.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid solve payload"))
		return
	}
	job, err := h.planner.RequestSolve(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job, solveJobLocation(c.Request.URL.Path, job.ID))
}

// solveJobLocation derives /<prefix>/solve-jobs/<id> from the request path of the solve call.
func solveJobLocation(requestPath, jobID string) string {
	prefix, _, found := strings.Cut(requestPath, "/sessions/")
	if !found {
		return ""
	}
	return prefix + "/solve-jobs/" + jobID
}

// JobStatus godoc
// @Summary Solve job status
// @Tags Planning
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /solve-jobs/{id} [get]
func (h *PlanningHandler) JobStatus(c *gin.Context) {
	status, err := h.planner.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Assignments godoc
// @Summary Published assignment
// @Description Duties of every teacher in the session's latest published assignment
// @Tags Planning
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/assignments [get]
func (h *PlanningHandler) Assignments(c *gin.Context) {
	res, err := h.planner.Assignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// EditAssignments godoc
// @Summary Edit the published assignment
// @Description Swap two duties or hand one duty to another teacher. The edited assignment must keep every hard constraint the solve enforced.
// @Tags Planning
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.AssignmentEditRequest true "Edit"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/assignments [patch]
func (h *PlanningHandler) EditAssignments(c *gin.Context) {
	var req dto.AssignmentEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrapf(err, appErrors.ErrValidation, "invalid edit payload"))
		return
	}
	res, err := h.planner.EditAssignments(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
