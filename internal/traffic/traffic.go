// Package traffic records one row per API request for the admin traffic
// log. The middleware hands each entry to an Enqueuer synchronously, after
// the handler has finished. In production that is one River job insert and
// the traffic_logs write happens in the worker; with background jobs
// disabled the Storage inserts the row itself.
package traffic

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/licensehub/pkg/models"
)

// Enqueuer accepts a finished request for persistence
type Enqueuer interface {
	EnqueueTraffic(ctx context.Context, entry models.TrafficLog) error
}

// UserIDFunc extracts the authenticated user, if any, from a request
type UserIDFunc func(c echo.Context) *int64

// Prefixes of the request paths that are recorded
var trackedPrefixes = []string{"/api", "/license"}

func tracked(path string) bool {
	for _, p := range trackedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware records every /api and /license request. Handler errors are
// rendered through c.Error first so the final status is known.
func Middleware(enq Enqueuer, userID UserIDFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !tracked(req.URL.Path) {
				return next(c)
			}

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			entry := models.TrafficLog{
				RequestID: res.Header().Get(echo.HeaderXRequestID),
				Method:    req.Method,
				Path:      req.URL.Path,
				Status:    res.Status,
				LatencyMS: time.Since(start).Milliseconds(),
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
			}
			if entry.RequestID == "" {
				entry.RequestID = req.Header.Get(echo.HeaderXRequestID)
			}
			if userID != nil {
				entry.UserID = userID(c)
			}

			// the request context is cancelled once the response is flushed
			if err := enq.EnqueueTraffic(context.WithoutCancel(req.Context()), entry); err != nil {
				log.Warn().Err(err).Str("path", entry.Path).Msg("failed to record traffic")
			}
			return nil
		}
	}
}
