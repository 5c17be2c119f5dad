package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		critical   bool
		wantOK     bool
		wantDetail string
	}{
		{name: "critical failure", critical: true, wantOK: false, wantDetail: "down"},
		{name: "degraded", critical: false, wantOK: true, wantDetail: "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService()
			s.Register("database", ok, true)
			s.Register("dependency", func(context.Context) error { return errors.New("down") }, tt.critical)

			report := s.Status(context.Background())
			assert.Equal(t, tt.wantOK, report.OK)
			assert.Equal(t, "ok", report.Components["database"])
			assert.Equal(t, tt.wantDetail, report.Components["dependency"])
		})
	}
}

func TestReadyRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewService()
	s.Register("catalog", func(context.Context) error { return errors.New("catalog unavailable") }, true)
	r := gin.New()
	s.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.OK)
	assert.Equal(t, "catalog unavailable", report.Components["catalog"])
}
