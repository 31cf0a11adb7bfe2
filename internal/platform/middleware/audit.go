package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/platform/auth"
)

// AuditEntry records one state-changing API call made by a staff member.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	Role       string
	Resource   string // rooms, bills, patients, ...
	ResourceID string
	Action     string // create, update, delete, or a sub-action such as assign
	Method     string
	Path       string
	IPAddress  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

const apiPrefix = "/api/v1/"

// Audit logs every POST, PUT, PATCH and DELETE under /api/v1 after it has
// run, to the recorders given or else to logger. Reads and the login call
// are not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			ctx := req.Context()
			rid, _ := c.Get("request_id").(string)
			resource, id, action := classify(req.Method, req.URL.Path)
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				RequestID:  rid,
				UserID:     auth.UserIDFromContext(ctx),
				Role:       auth.RoleFromContext(ctx),
				Resource:   resource,
				ResourceID: id,
				Action:     action,
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				StatusCode: status,
			}

			if len(recorders) == 0 {
				logAudit(logger, entry)
			}
			for _, r := range recorders {
				if rerr := r.RecordAccess(entry); rerr != nil {
					logger.Error().Err(rerr).Str("request_id", rid).Msg("audit record failed")
				}
			}
			return err
		}
	}
}

func isAuditable(method, path string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	return strings.HasPrefix(path, apiPrefix) && !auth.IsPublicPath(path)
}

// classify splits /api/v1/<resource>[/<id>[/<sub-action>]] into its parts.
func classify(method, path string) (resource, id, action string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	resource = parts[0]
	if len(parts) > 1 {
		id = parts[1]
	}
	switch {
	case len(parts) > 2:
		action = parts[2]
	case method == http.MethodPost:
		action = "create"
	case method == http.MethodDelete:
		action = "delete"
	default:
		action = "update"
	}
	return resource, id, action
}

func logAudit(logger zerolog.Logger, e AuditEntry) {
	logger.Info().
		Str("audit", e.Action).
		Str("request_id", e.RequestID).
		Str("user_id", e.UserID).
		Str("role", e.Role).
		Str("resource", e.Resource).
		Str("resource_id", e.ResourceID).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("remote_ip", e.IPAddress).
		Int("status", e.StatusCode).
		Msg("audit")
}
