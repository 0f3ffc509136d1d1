package handler

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/service"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
	"github.com/noah-isme/exam-proctor-api/pkg/response"
)

const maxRosterUpload = 32 << 20

type sessionManager interface {
	Create(ctx context.Context, req dto.CreateSessionRequest, actorID string) (*models.PlanningSession, error)
	Get(ctx context.Context, id string) (*models.PlanningSession, error)
	List(ctx context.Context, query dto.SessionQuery) ([]models.PlanningSession, *models.Pagination, error)
}

type rosterImporter interface {
	Import(ctx context.Context, sessionID string, files service.RosterFiles) (*dto.RosterImportResponse, error)
}

// SessionHandler exposes planning session and roster endpoints.
type SessionHandler struct {
	sessions sessionManager
	rosters  rosterImporter
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionManager, rosters rosterImporter) *SessionHandler {
	return &SessionHandler{sessions: sessions, rosters: rosters}
}

// Create godoc
// @Summary Create planning session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List planning sessions
// @Tags Sessions
// @Produce json
// @Param search query string false "Name search"
// @Param status query string false "DRAFT, IMPORTED or SOLVED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var query dto.SessionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	sessions, pagination, err := h.sessions.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get planning session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// ImportRoster godoc
// @Summary Import session roster
// @Description Upload teachers, slots and optional wishes tables (xlsx, csv or tsv). Replaces the roster and any published assignment.
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param teachers formData file true "Teachers table"
// @Param slots formData file true "Slots table"
// @Param wishes formData file false "Wishes table"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/roster [post]
func (h *SessionHandler) ImportRoster(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRosterUpload)
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}

	var files service.RosterFiles
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for field, dest := range map[string]**service.RosterFile{
		"teachers": &files.Teachers,
		"slots":    &files.Slots,
		"wishes":   &files.Wishes,
	} {
		headers := form.File[field]
		if len(headers) == 0 {
			continue
		}
		src, err := headers[0].Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open "+field+" upload"))
			return
		}
		opened = append(opened, src)
		*dest = &service.RosterFile{Filename: headers[0].Filename, Reader: src}
	}

	res, err := h.rosters.Import(c.Request.Context(), c.Param("id"), files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
