package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/exam-proctor-api/internal/models"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.seen = token
	return v.claims, v.err
}

func protectedRouter(validator TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(validator), RequireRoles(roles...), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})
	return r
}

func serve(r http.Handler, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRoles(t *testing.T) {
	planner := &models.JWTClaims{UserID: "u-1", Role: models.RolePlanner}
	viewer := &models.JWTClaims{UserID: "u-2", Role: models.RoleViewer}

	cases := []struct {
		name      string
		validator *validatorStub
		header    string
		want      int
	}{
		{"missing header", &validatorStub{claims: planner}, "", http.StatusUnauthorized},
		{"wrong scheme", &validatorStub{claims: planner}, "Basic abc", http.StatusUnauthorized},
		{"invalid token", &validatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}, "Bearer abc", http.StatusUnauthorized},
		{"role not allowed", &validatorStub{claims: viewer}, "Bearer abc", http.StatusForbidden},
		{"allowed", &validatorStub{claims: planner}, "bearer  abc ", http.StatusOK},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := serve(protectedRouter(tc.validator, WriteRoles...), tc.header)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	v := &validatorStub{claims: planner}
	w := serve(protectedRouter(v, WriteRoles...), "Bearer tok")
	assert.Equal(t, "u-1", w.Body.String())
	assert.Equal(t, "tok", v.seen)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireRoles(ReadRoles...), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := serve(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type observation struct {
	method, path string
	status       int
}

type observerStub struct {
	seen []observation
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.seen = append(o.seen, observation{method, path, status})
}

func TestMetricsUsesRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs, "/metrics"))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { _ = c.AbortWithError(http.StatusInternalServerError, errors.New("boom")) })

	for _, p := range []string{"/sessions/s-1", "/metrics", "/missing", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, []observation{
		{http.MethodGet, "/sessions/:id", http.StatusOK},
		{http.MethodGet, "unmatched", http.StatusNotFound},
		{http.MethodGet, "/boom", http.StatusInternalServerError},
	}, obs.seen)
}
