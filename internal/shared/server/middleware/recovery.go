package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/server/respond"
	"resume-pipeline/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 envelope. Pipeline stages
// recover their own panics; this only catches faults in the HTTP layer.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
			}
			if runID := c.GetString(RunIDKey); runID != "" {
				fields["run_id"] = runID
			}
			telemetry.Error("request.panic", fields)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}
