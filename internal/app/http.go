package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"atrium/api/internal/auth"
	"atrium/api/internal/authpw"
	"atrium/api/internal/export"
	"atrium/api/internal/rbac"
)

type Handler struct {
	service    *Service
	corsOrigin string
}

func NewHandler(service *Service, corsOrigin string) http.Handler {
	h := &Handler{service: service, corsOrigin: corsOrigin}
	return h.withMiddleware(http.HandlerFunc(h.handle))
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path == "/api/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if r.URL.Path == "/api/ready" && r.Method == http.MethodGet {
		h.handleReady(w, r)
		return
	}
	if r.URL.Path == "/api/orgs" && r.Method == http.MethodGet {
		items, err := h.service.PortalOrganizations(r.Context())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organizations": items})
		return
	}
	if r.URL.Path == "/api/session" && r.Method == http.MethodGet {
		session, ok := h.requireSession(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session, false))
		return
	}
	if r.URL.Path == "/api/session/refresh" && r.Method == http.MethodPost {
		h.handleRefresh(w, r)
		return
	}
	if r.URL.Path == "/api/session/logout" && r.Method == http.MethodPost {
		h.handleLogout(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	// Everything below lives under /api/orgs/{org}/...
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "orgs" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
		return
	}
	orgID := parts[2]
	rest := parts[3:]

	if len(rest) == 1 && rest[0] == "login" && r.Method == http.MethodPost {
		h.handleLogin(w, r, orgID)
		return
	}

	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if session.OrgID != orgID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "session does not belong to this organization", nil)
		return
	}

	switch {
	case len(rest) >= 1 && rest[0] == "employees":
		h.handleEmployees(w, r, session, rest[1:])
	case len(rest) >= 1 && rest[0] == "projects":
		h.handleProjects(w, r, session, rest[1:])
	case len(rest) >= 1 && rest[0] == "notifications":
		h.handleNotifications(w, r, session, rest[1:])
	case len(rest) == 1 && rest[0] == "summary" && r.Method == http.MethodGet:
		if !h.requireAction(w, session, rbac.ActionManage) {
			return
		}
		payload, err := h.service.Summary(r.Context(), session.OrgID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet:
		if !h.requireAction(w, session, rbac.ActionWrite) {
			return
		}
		h.handleSearch(w, r, session)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
	}
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{}
	ready := true
	if err := h.service.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		ready = false
	} else {
		checks["database"] = "ok"
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{"ready": ready, "checks": checks})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request, orgID string) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	session, err := h.service.Login(r.Context(), orgID, body.Email, body.Password, body.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session, true))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "refreshToken is required", nil)
		return
	}
	session, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session, true))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleEmployees(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if !h.requireAction(w, session, rbac.ActionManage) {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := h.service.ListEmployees(r.Context(), session.OrgID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"employees": items})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var input CreateEmployeeInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.CreateEmployee(r.Context(), session.OrgID, input)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var input UpdateEmployeeInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.UpdateEmployee(r.Context(), session.OrgID, rest[0], input)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := h.service.DeleteEmployee(r.Context(), session.OrgID, rest[0]); err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
	}
}

func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := h.service.ListProjects(r.Context(), session)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": items})
	case len(rest) == 0 && r.Method == http.MethodPost:
		if !h.requireAction(w, session, rbac.ActionManage) {
			return
		}
		var input CreateProjectInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.CreateProject(r.Context(), session.OrgID, input)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	case len(rest) == 1 && r.Method == http.MethodGet:
		payload, err := h.service.GetProject(r.Context(), session, rest[0])
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 2 && rest[1] == "complete" && r.Method == http.MethodPost:
		if !h.requireAction(w, session, rbac.ActionManage) {
			return
		}
		var body struct {
			Confirm bool `json:"confirm"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.CompleteProject(r.Context(), session.OrgID, rest[0], body.Confirm)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 2 && rest[1] == "cancel" && r.Method == http.MethodPost:
		if !h.requireAction(w, session, rbac.ActionManage) {
			return
		}
		payload, err := h.service.CancelProject(r.Context(), session.OrgID, rest[0])
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) >= 2 && rest[1] == "tasks":
		h.handleTasks(w, r, session, rest[0], rest[2:])
	case len(rest) >= 2 && rest[1] == "messages":
		h.handleMessages(w, r, session, rest[0], rest[2:])
	case len(rest) == 2 && rest[1] == "report" && r.Method == http.MethodGet:
		h.handleReport(w, r, session, rest[0])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
	}
}

func (h *Handler) handleTasks(w http.ResponseWriter, r *http.Request, session Session, projectID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := h.service.ListTasks(r.Context(), session, projectID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
	case len(rest) == 0 && r.Method == http.MethodPost:
		if !h.requireAction(w, session, rbac.ActionWrite) {
			return
		}
		var input TaskInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.CreateTask(r.Context(), session, projectID, input)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	case len(rest) == 1 && r.Method == http.MethodPut:
		if !h.requireAction(w, session, rbac.ActionWrite) {
			return
		}
		var input TaskInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.UpdateTask(r.Context(), session, projectID, rest[0], input)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if !h.requireAction(w, session, rbac.ActionWrite) {
			return
		}
		if err := h.service.DeleteTask(r.Context(), session, projectID, rest[0]); err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
	}
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request, session Session, projectID string, rest []string) {
	if !h.requireAction(w, session, rbac.ActionChat) {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := h.service.ListMessages(r.Context(), session, projectID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": items})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var input SendMessageInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		payload, err := h.service.SendMessage(r.Context(), session, projectID, input)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
	}
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := h.service.Notifications(r.Context(), session)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
	case len(rest) == 1 && rest[0] == "ack" && r.Method == http.MethodPost:
		var body struct {
			ID string `json:"id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		if err := h.service.AckNotification(r.Context(), session, body.ID); err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 1 && rest[0] == "ack-all" && r.Method == http.MethodPost:
		count, err := h.service.AckAllNotifications(r.Context(), session)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "acked": count})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown route", nil)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	payload, err := h.service.Search(r.Context(), session.OrgID, query, r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request, session Session, projectID string) {
	format := export.FormatPDF
	if raw := r.URL.Query().Get("format"); raw != "" {
		format = export.Format(raw)
	}
	result, err := h.service.ExportReport(r.Context(), session, projectID, format)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is not available on this host", nil)
			return
		}
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html or pdf", nil)
			return
		}
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
		return Session{}, false
	}
	session, err := h.service.SessionFromToken(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, err)
		return Session{}, false
	}
	return session, true
}

func (h *Handler) requireAction(w http.ResponseWriter, session Session, action rbac.Action) bool {
	if !h.service.Can(session.Role, action) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "role does not allow this action", nil)
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	statusCode, code, message, details := mapError(err)
	writeError(w, statusCode, code, message, details)
}

func mapError(err error) (int, string, string, any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "resource not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil
	case errors.Is(err, authpw.ErrInvalidCredential):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "email or password is incorrect", nil
	case errors.Is(err, authpw.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many failed attempts, try again later", nil
	case errors.Is(err, authpw.ErrEmailInUse):
		return http.StatusConflict, "EMAIL_IN_USE", "an account with that email already exists", nil
	case errors.Is(err, authpw.ErrWeakCredential):
		return http.StatusUnprocessableEntity, "WEAK_CREDENTIAL", "password does not meet requirements", nil
	case errors.Is(err, authpw.ErrProvisionTimeout):
		return http.StatusGatewayTimeout, "TIMEOUT", "account provisioning timed out", nil
	default:
		log.Printf("internal error: %v", err)
		return http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil
	}
}

func sessionPayload(session Session, withTokens bool) map[string]any {
	payload := map[string]any{
		"userId":    session.UserID,
		"name":      session.UserName,
		"email":     session.Email,
		"role":      session.Role,
		"orgId":     session.OrgID,
		"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if withTokens {
		payload["token"] = session.Token
		payload["refreshToken"] = session.RefreshToken
	}
	return payload
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string, details any) {
	writeJSON(w, statusCode, map[string]any{
		"code":    code,
		"error":   message,
		"details": details,
	})
}

type requestIDKey struct{}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		w.Header().Set("X-Request-ID", requestID)
		h.setCORSHeaders(w)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		log.Printf(`{"requestId":%q,"method":%q,"path":%q,"status":%d,"durationMs":%d}`,
			requestID, r.Method, r.URL.Path, recorder.status, time.Since(start).Milliseconds())
	})
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	origin := h.corsOrigin
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	w.Header().Set("Cache-Control", "no-store")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func randomRequestID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}
