package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/middleware"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/quota"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	"github.com/noah-isme/exam-proctor-api/internal/service"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "planner-1", Email: "planner@example.edu", Role: models.RolePlanner})
	return c, w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type authStub struct {
	pair    *models.TokenPair
	err     error
	req     models.LoginRequest
	revoked string
}

func (a *authStub) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	a.req = req
	return a.pair, a.err
}

func (a *authStub) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	return a.pair, a.err
}

func (a *authStub) Logout(ctx context.Context, req models.RefreshTokenRequest) error {
	a.revoked = req.RefreshToken
	return a.err
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authStub{pair: &models.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}}
	h := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"a@b.c","password":"secret"}`))
	c.Request.Header.Set("User-Agent", "planner-cli")
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "planner-cli", svc.req.UserAgent)
	data := string(decode(t, w).Data)
	assert.Contains(t, data, `"accessToken":"access"`)
	assert.Contains(t, data, `"tokenType":"Bearer"`)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{`))
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.ErrInvalidCredentials
	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"a@b.c","password":"bad"}`))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &authStub{}
	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refreshToken":"tok"}`))
	NewAuthHandler(svc).Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "tok", svc.revoked)
	assert.Empty(t, w.Body.String())
}

func TestAuthHandlerMe(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	NewAuthHandler(&authStub{}).Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"role":"PLANNER"`)
}

type sessionManagerStub struct {
	created  dto.CreateSessionRequest
	actor    string
	sessions []models.PlanningSession
	err      error
}

func (s *sessionManagerStub) Create(ctx context.Context, req dto.CreateSessionRequest, actorID string) (*models.PlanningSession, error) {
	s.created, s.actor = req, actorID
	return &models.PlanningSession{ID: "s-1", Name: req.Name, Status: models.SessionStatusDraft}, s.err
}

func (s *sessionManagerStub) Get(ctx context.Context, id string) (*models.PlanningSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.PlanningSession{ID: id}, nil
}

func (s *sessionManagerStub) List(ctx context.Context, query dto.SessionQuery) ([]models.PlanningSession, *models.Pagination, error) {
	return s.sessions, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(s.sessions)}, s.err
}

type rosterImporterStub struct {
	files    map[string]string
	filename map[string]string
	err      error
}

func (r *rosterImporterStub) Import(ctx context.Context, sessionID string, files service.RosterFiles) (*dto.RosterImportResponse, error) {
	r.files = map[string]string{}
	r.filename = map[string]string{}
	for name, f := range map[string]*service.RosterFile{"teachers": files.Teachers, "slots": files.Slots, "wishes": files.Wishes} {
		if f == nil {
			continue
		}
		body, _ := io.ReadAll(f.Reader)
		r.files[name] = string(body)
		r.filename[name] = f.Filename
	}
	if r.err != nil {
		return nil, r.err
	}
	return &dto.RosterImportResponse{SessionID: sessionID, Teachers: 2, Slots: 1, Demand: 2}, nil
}

func TestSessionHandlerCreateAndGet(t *testing.T) {
	stub := &sessionManagerStub{}
	h := NewSessionHandler(stub, &rosterImporterStub{})

	c, w := newGinContext(http.MethodPost, "/sessions", []byte(`{"name":"Janvier","academicPeriod":"S1"}`))
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "planner-1", stub.actor)
	assert.Equal(t, "Janvier", stub.created.Name)

	c, w = newGinContext(http.MethodGet, "/sessions/s-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	stub.err = appErrors.Clone(appErrors.ErrNotFound, "session not found")
	c, w = newGinContext(http.MethodGet, "/sessions/s-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-9"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandlerList(t *testing.T) {
	h := NewSessionHandler(&sessionManagerStub{sessions: []models.PlanningSession{{ID: "s-1"}}}, nil)
	c, w := newGinContext(http.MethodGet, "/sessions?page=1&pageSize=20", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func multipartRequest(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for field, content := range files {
		part, err := mw.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestSessionHandlerImportRoster(t *testing.T) {
	importer := &rosterImporterStub{}
	h := NewSessionHandler(&sessionManagerStub{}, importer)

	body, contentType := multipartRequest(t, map[string]string{"teachers": "nom_ens\n", "slots": "dateExam\n"})
	c, w := newGinContext(http.MethodPost, "/sessions/s-1/roster", body.Bytes())
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}

	h.ImportRoster(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nom_ens\n", importer.files["teachers"])
	assert.Equal(t, "slots.csv", importer.filename["slots"])
	_, hasWishes := importer.files["wishes"]
	assert.False(t, hasWishes)
}

func TestSessionHandlerImportRosterErrors(t *testing.T) {
	h := NewSessionHandler(&sessionManagerStub{}, &rosterImporterStub{err: appErrors.Clone(appErrors.ErrDataFormat, "teachers: missing columns")})

	c, w := newGinContext(http.MethodPost, "/sessions/s-1/roster", []byte(`{}`))
	h.ImportRoster(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType := multipartRequest(t, map[string]string{"teachers": "x\n", "slots": "y\n"})
	c, w = newGinContext(http.MethodPost, "/sessions/s-1/roster", body.Bytes())
	c.Request.Header.Set("Content-Type", contentType)
	h.ImportRoster(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, appErrors.ErrDataFormat.Code, decode(t, w).Error.Code)
}

type plannerStub struct {
	req    dto.SolveRequest
	edit   dto.AssignmentEditRequest
	actor  string
	err    error
	status *dto.SolveJobStatusResponse
}

func (p *plannerStub) RequestSolve(ctx context.Context, sessionID string, req dto.SolveRequest, actorID string) (*dto.SolveJobResponse, error) {
	p.req, p.actor = req, actorID
	if p.err != nil {
		return nil, p.err
	}
	return &dto.SolveJobResponse{ID: "job-1", SessionID: sessionID, Status: models.SolveStatusQueued}, nil
}

func (p *plannerStub) JobStatus(ctx context.Context, id string) (*dto.SolveJobStatusResponse, error) {
	return p.status, p.err
}

func (p *plannerStub) Assignments(ctx context.Context, sessionID string) (*dto.AssignmentsResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &dto.AssignmentsResponse{SessionID: sessionID, JobID: "job-1"}, nil
}

func (p *plannerStub) EditAssignments(ctx context.Context, sessionID string, req dto.AssignmentEditRequest, actorID string) (*dto.AssignmentsResponse, error) {
	p.edit, p.actor = req, actorID
	if p.err != nil {
		return nil, p.err
	}
	return &dto.AssignmentsResponse{SessionID: sessionID, JobID: "job-1"}, nil
}

func TestPlanningHandlerSolve(t *testing.T) {
	stub := &plannerStub{}
	h := NewPlanningHandler(stub)

	c, w := newGinContext(http.MethodPost, "/api/v1/sessions/s-1/solve", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	h.Solve(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "planner-1", stub.actor)
	assert.Equal(t, "/api/v1/solve-jobs/job-1", w.Header().Get("Location"))

	c, w = newGinContext(http.MethodPost, "/sessions/s-1/solve", []byte(`{"preferenceMode":"soft","seed":11}`))
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	h.Solve(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "soft", stub.req.PreferenceMode)
	require.NotNil(t, stub.req.Seed)
	assert.Equal(t, int64(11), *stub.req.Seed)

	stub.err = appErrors.ErrSolveInProgress
	c, w = newGinContext(http.MethodPost, "/sessions/s-1/solve", nil)
	h.Solve(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPlanningHandlerReads(t *testing.T) {
	objective := int64(-40)
	stub := &plannerStub{status: &dto.SolveJobStatusResponse{ID: "job-1", Status: models.SolveStatusFinished, Progress: 100, Objective: &objective}}
	h := NewPlanningHandler(stub)

	c, w := newGinContext(http.MethodGet, "/solve-jobs/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	h.JobStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"status":"FINISHED"`)

	c, w = newGinContext(http.MethodGet, "/sessions/s-1/assignments", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	h.Assignments(c)
	require.Equal(t, http.StatusOK, w.Code)

	stub.err = appErrors.Clone(appErrors.ErrNotFound, "session has no published assignment")
	c, w = newGinContext(http.MethodGet, "/sessions/s-1/assignments", nil)
	h.Assignments(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlanningHandlerEditAssignments(t *testing.T) {
	stub := &plannerStub{}
	h := NewPlanningHandler(stub)

	body := []byte(`{"op":"swap","teacherId":"T1","slotId":"A","otherTeacherId":"T2","otherSlotId":"B"}`)
	c, w := newGinContext(http.MethodPatch, "/sessions/s-1/assignments", body)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	h.EditAssignments(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.AssignmentEditRequest{Op: "swap", TeacherID: "T1", SlotID: "A", OtherTeacherID: "T2", OtherSlotID: "B"}, stub.edit)
	assert.Equal(t, "planner-1", stub.actor)
	assert.Contains(t, string(decode(t, w).Data), `"jobId":"job-1"`)

	c, w = newGinContext(http.MethodPatch, "/sessions/s-1/assignments", []byte(`{"op":`))
	h.EditAssignments(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = appErrors.ErrAssignmentConflict.WithDetail("violations", []string{"teacher T2 assigned to excluded slot A"})
	c, w = newGinContext(http.MethodPatch, "/sessions/s-1/assignments", body)
	h.EditAssignments(c)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.Equal(t, appErrors.ErrAssignmentConflict.Code, env.Error.Code)
	assert.Equal(t, []interface{}{"teacher T2 assigned to excluded slot A"}, env.Error.Details["violations"])
}

type advisorStub struct {
	rate   float64
	quotas exam.GradeQuotas
}

func (a *advisorStub) Recommend(ctx context.Context, sessionID string, rate float64) (*quota.Recommendation, error) {
	a.rate = rate
	return &quota.Recommendation{Demand: 10, Rate: rate}, nil
}

func (a *advisorStub) Analyze(ctx context.Context, sessionID string, quotas exam.GradeQuotas) (*quota.FeasibilityReport, error) {
	a.quotas = quotas
	return &quota.FeasibilityReport{Score: 90, Status: "feasible"}, nil
}

type reporterStub struct{}

func (reporterStub) Report(ctx context.Context, sessionID string) (*satisfaction.Report, error) {
	report := satisfaction.NewReport([]satisfaction.Record{{TeacherID: "T1", Score: 80}})
	return &report, nil
}

func TestAnalysisHandler(t *testing.T) {
	advisor := &advisorStub{}
	h := NewAnalysisHandler(advisor, reporterStub{})

	c, w := newGinContext(http.MethodGet, "/sessions/s-1/quota-recommendation?rate=1.25", nil)
	h.QuotaRecommendation(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.25, advisor.rate)

	c, w = newGinContext(http.MethodGet, "/sessions/s-1/quota-recommendation?rate=lots", nil)
	h.QuotaRecommendation(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/sessions/s-1/feasibility?quotas=pr=4,MA=7", nil)
	h.Feasibility(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, exam.GradeQuotas{"PR": 4, "MA": 7}, advisor.quotas)

	c, w = newGinContext(http.MethodGet, "/sessions/s-1/feasibility?quotas=PR", nil)
	h.Feasibility(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/sessions/s-1/satisfaction", nil)
	h.Satisfaction(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Contains(t, string(env.Data), `"teacherId":"T1"`)
	assert.Contains(t, env.Meta, "summary")
}

type exporterStub struct {
	req      dto.ExportRequest
	download *service.ExportDownload
	err      error
}

func (e *exporterStub) Generate(ctx context.Context, sessionID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	e.req = req
	return &dto.ExportResponse{URL: "/api/v1/exports/tok", Format: req.Format, ExpiresAt: time.Now().Add(time.Hour)}, e.err
}

func (e *exporterStub) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	return e.download, e.err
}

func TestExportHandlerCreate(t *testing.T) {
	stub := &exporterStub{}
	h := NewExportHandler(stub)

	c, w := newGinContext(http.MethodPost, "/sessions/s-1/exports", []byte(`{"kind":"assignments","format":"xlsx"}`))
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ExportFormatXLSX, stub.req.Format)
	assert.Contains(t, string(decode(t, w).Data), "/api/v1/exports/tok")
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assignments.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Day\n"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	h := NewExportHandler(&exporterStub{download: &service.ExportDownload{
		File:        file,
		Filename:    "assignments.csv",
		ContentType: "text/csv",
		ExpiresAt:   time.Now().Add(time.Hour),
	}})
	c, w := newGinContext(http.MethodGet, "/exports/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Date,Day\n", w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=assignments.csv`, w.Header().Get("Content-Disposition"))

	denied := NewExportHandler(&exporterStub{err: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})
	c, w = newGinContext(http.MethodGet, "/exports/bad", nil)
	denied.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsHandlerProbes(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return appErrors.New("DOWN", http.StatusServiceUnavailable, "connection refused") }

	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{"database": ok, "redis": ok})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]ReadinessCheck{"database": ok, "redis": down})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/health", nil)
	h.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
