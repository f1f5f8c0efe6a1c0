package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/auth"
	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/metrics"
	"github.com/theexperiencecompany/gaia-sub002/internal/rbac"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    metrics.Metrics
	log        logrus.FieldLogger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		metrics:    service.metrics,
		log:        service.log.WithField("component", "http"),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
		return
	}

	principal, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tools" {
		tools, err := s.service.Tools(r.Context(), principal)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "integrations" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	parts = parts[2:]

	switch {
	case len(parts) == 0:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		query := r.URL.Query()
		result, err := s.service.ListIntegrations(r.Context(), principal, ListQuery{
			Query:    query.Get("q"),
			Category: query.Get("category"),
			Order:    query.Get("order"),
		})
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 1 && parts[0] == "categories":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		categories, err := s.service.Categories(r.Context(), principal)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})

	case parts[0] == "custom":
		s.handleCustom(w, r, principal, parts[1:])

	case len(parts) == 1:
		s.handleIntegration(w, r, principal, parts[0])

	case len(parts) == 2:
		s.handleIntegrationAction(w, r, principal, parts[0], parts[1])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleIntegration(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	switch r.Method {
	case http.MethodGet:
		item, err := s.service.GetIntegration(r.Context(), p, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)

	case http.MethodDelete:
		if !s.service.Can(p.Role, rbac.ActionConnect) {
			forbid(w)
			return
		}
		ctx, notes := withNotifications(r.Context())
		if err := s.service.Disconnect(ctx, p, id); err != nil {
			s.failWithNotes(w, err, notes)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "notifications": notes.list()})

	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleIntegrationAction(w http.ResponseWriter, r *http.Request, p auth.Principal, id, action string) {
	switch {
	case action == "bundle" && r.Method == http.MethodGet:
		view, err := s.service.Bundle(r.Context(), p, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case action == "state" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": s.service.ConnectionState(p, id)})

	case action == "events" && r.Method == http.MethodGet:
		if !s.service.Can(p.Role, rbac.ActionViewEvents) {
			forbid(w)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := s.service.Events(r.Context(), p, id, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})

	case action == "connect" && r.Method == http.MethodPost:
		if !s.service.Can(p.Role, rbac.ActionConnect) {
			forbid(w)
			return
		}
		var body struct {
			BearerToken string `json:"bearerToken"`
			ReturnPath  string `json:"returnPath"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ctx, notes := withNotifications(r.Context())
		result, err := s.service.Connect(ctx, p, connection.ConnectRequest{
			ID:          id,
			BearerToken: body.BearerToken,
			ReturnPath:  body.ReturnPath,
		})
		if err != nil {
			s.failWithNotes(w, err, notes)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result, "notifications": notes.list()})

	case action == "connect-all" && r.Method == http.MethodPost:
		if !s.service.Can(p.Role, rbac.ActionConnect) {
			forbid(w)
			return
		}
		var body struct {
			ReturnPath string `json:"returnPath"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ctx, notes := withNotifications(r.Context())
		result, err := s.service.ConnectBundle(ctx, p, id, body.ReturnPath)
		if err != nil {
			s.failWithNotes(w, err, notes)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result, "notifications": notes.list()})

	case action == "bundle" || action == "state" || action == "events" || action == "connect" || action == "connect-all":
		methodNotAllowed(w)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCustom(w http.ResponseWriter, r *http.Request, p auth.Principal, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(p.Role, rbac.ActionCreateCustom) {
			forbid(w)
			return
		}
		var body connection.CreateRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ctx, notes := withNotifications(r.Context())
		result, err := s.service.CreateCustom(ctx, p, body)
		if err != nil {
			s.failWithNotes(w, err, notes)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"result": result, "notifications": notes.list()})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		ctx, notes := withNotifications(r.Context())
		if err := s.service.DeleteCustom(ctx, p, parts[0]); err != nil {
			s.failWithNotes(w, err, notes)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": parts[0], "notifications": notes.list()})

	case len(parts) == 2 && parts[1] == "publish" && (r.Method == http.MethodPost || r.Method == http.MethodDelete):
		ctx, notes := withNotifications(r.Context())
		var err error
		if r.Method == http.MethodPost {
			err = s.service.Publish(ctx, p, parts[0])
		} else {
			err = s.service.Unpublish(ctx, p, parts[0])
		}
		if err != nil {
			s.failWithNotes(w, err, notes)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":            true,
			"id":            parts[0],
			"isPublic":      r.Method == http.MethodPost,
			"notifications": notes.list(),
		})

	case len(parts) <= 2:
		methodNotAllowed(w)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return auth.Principal{}, false
	}
	principal, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return auth.Principal{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return auth.Principal{}, false
	}
	return principal, true
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("code", code).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) failWithNotes(w http.ResponseWriter, err error, notes *notificationCollector) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("code", code).Error("request failed")
	}
	response := map[string]any{
		"code":          code,
		"error":         message,
		"notifications": notes.list(),
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.metrics.IncrementHTTPRequests()
		if writer.status >= http.StatusInternalServerError {
			s.metrics.IncrementHTTPErrors()
		}
		s.metrics.ObserveAPIEndpointDuration(routeLabel(r.URL.Path), r.Method, strconv.Itoa(writer.status), elapsed.Seconds())

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routeLabel collapses integration ids so metric cardinality stays bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "integrations" {
		switch {
		case parts[2] == "categories":
		case parts[2] == "custom":
			if len(parts) >= 4 {
				parts[3] = "{id}"
			}
		default:
			parts[2] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func forbid(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
