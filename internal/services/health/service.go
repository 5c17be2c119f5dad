package health

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/server/respond"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type component struct {
	name     string
	check    Check
	critical bool
}

// Service aggregates readiness checks.
type Service struct {
	mu         sync.RWMutex
	components []component
}

// Report is the readiness payload.
type Report struct {
	OK         bool              `json:"ok"`
	Components map[string]string `json:"components"`
}

// NewService constructs a health service with no checks.
func NewService() *Service {
	return &Service{}
}

// Register adds a check. A failing non-critical check is reported but keeps
// the service ready.
func (s *Service) Register(name string, check Check, critical bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, component{name: name, check: check, critical: critical})
}

// Status runs every check in registration order.
func (s *Service) Status(ctx context.Context) Report {
	s.mu.RLock()
	components := append([]component(nil), s.components...)
	s.mu.RUnlock()

	report := Report{OK: true, Components: make(map[string]string, len(components))}
	for _, c := range components {
		if err := c.check(ctx); err != nil {
			report.Components[c.name] = err.Error()
			if c.critical {
				report.OK = false
			}
			continue
		}
		report.Components[c.name] = "ok"
	}
	return report
}

// RegisterRoutes exposes the readiness report.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/v1/health/ready", func(c *gin.Context) {
		report := s.Status(c.Request.Context())
		code := http.StatusOK
		if !report.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, report)
	})
}
