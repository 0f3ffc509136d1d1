package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/quota"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	"github.com/noah-isme/exam-proctor-api/internal/service"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
	"github.com/noah-isme/exam-proctor-api/pkg/response"
)

type quotaAdvisor interface {
	Recommend(ctx context.Context, sessionID string, rate float64) (*quota.Recommendation, error)
	Analyze(ctx context.Context, sessionID string, quotas exam.GradeQuotas) (*quota.FeasibilityReport, error)
}

type satisfactionReporter interface {
	Report(ctx context.Context, sessionID string) (*satisfaction.Report, error)
}

// AnalysisHandler exposes the advisory quota tools and the satisfaction report.
type AnalysisHandler struct {
	quotas       quotaAdvisor
	satisfaction satisfactionReporter
}

// NewAnalysisHandler constructs the handler.
func NewAnalysisHandler(quotas quotaAdvisor, reports satisfactionReporter) *AnalysisHandler {
	return &AnalysisHandler{quotas: quotas, satisfaction: reports}
}

// Feasibility godoc
// @Summary Pre-solve feasibility analysis
// @Tags Analysis
// @Produce json
// @Param id path string true "Session ID"
// @Param quotas query string false "Quota table to test, e.g. PR=4,MA=7"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/feasibility [get]
func (h *AnalysisHandler) Feasibility(c *gin.Context) {
	quotas, err := service.ParseQuotaQuery(c.Query("quotas"))
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.quotas.Analyze(c.Request.Context(), c.Param("id"), quotas)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// QuotaRecommendation godoc
// @Summary Recommend per-grade quotas
// @Tags Analysis
// @Produce json
// @Param id path string true "Session ID"
// @Param rate query number false "Overprovisioning rate, default from configuration"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/quota-recommendation [get]
func (h *AnalysisHandler) QuotaRecommendation(c *gin.Context) {
	rate := 0.0
	if raw := c.Query("rate"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rate must be a number"))
			return
		}
		rate = parsed
	}
	rec, err := h.quotas.Recommend(c.Request.Context(), c.Param("id"), rate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Satisfaction godoc
// @Summary Teacher satisfaction report
// @Description Per-teacher satisfaction of the published assignment, worst first
// @Tags Analysis
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/satisfaction [get]
func (h *AnalysisHandler) Satisfaction(c *gin.Context) {
	report, err := h.satisfaction.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report.Records, nil, map[string]interface{}{"summary": report.Summary})
}
