// Package httpapi exposes the dispatcher to the storefront as a JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/shineum/artmarket-mailer/internal/dispatch"
	"github.com/shineum/artmarket-mailer/internal/email"
	"github.com/shineum/artmarket-mailer/internal/parser"
	"github.com/shineum/artmarket-mailer/internal/ratelimit"
	"github.com/shineum/artmarket-mailer/internal/store"
	"github.com/shineum/artmarket-mailer/internal/template"
)

// maxBodySize caps request bodies at 25 MB, enough for a few attachments.
const maxBodySize = 25 << 20

// Mailer is the dispatcher surface the API needs.
type Mailer interface {
	Send(ctx context.Context, msg *email.Message) email.Result
	SendTemplated(ctx context.Context, key template.Key, to []email.Recipient, vars map[string]any, subject string) email.Result
	SendBulk(ctx context.Context, to []email.Recipient, subject, html, text string) []email.Result
	Stats() ratelimit.Stats
	ProviderName() string
	Templates() *template.Registry
}

// LogReader reads the dispatch log.
type LogReader interface {
	Recent(ctx context.Context, limit int) ([]store.Entry, error)
}

// TemplateRequest is the body of POST /api/send/template.
type TemplateRequest struct {
	Template  template.Key      `json:"template"`
	To        []email.Recipient `json:"to"`
	Variables map[string]any    `json:"variables,omitempty"`
	Subject   string            `json:"subject,omitempty"`
}

// BulkRequest is the body of POST /api/send/bulk.
type BulkRequest struct {
	Recipients []email.Recipient `json:"recipients"`
	Subject    string            `json:"subject"`
	HTML       string            `json:"html"`
	Text       string            `json:"text,omitempty"`
}

// BulkResponse is the data of a bulk send.
type BulkResponse struct {
	Sent    int            `json:"sent"`
	Failed  int            `json:"failed"`
	Results []email.Result `json:"results"`
}

type handler struct {
	mailer Mailer
	logs   LogReader
}

// NewHandler builds the API router. logs may be nil when no dispatch log is
// configured; auth may be nil to disable authentication.
func NewHandler(m Mailer, logs LogReader, auth *Authenticator) http.Handler {
	h := &handler{mailer: m, logs: logs}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)
	api.HandleFunc("/send", h.send).Methods(http.MethodPost)
	api.HandleFunc("/send/template", h.sendTemplate).Methods(http.MethodPost)
	api.HandleFunc("/send/bulk", h.sendBulk).Methods(http.MethodPost)
	api.HandleFunc("/send/raw", h.sendRaw).Methods(http.MethodPost)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/templates", h.templates).Methods(http.MethodGet)
	api.HandleFunc("/logs", h.recentLogs).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errorResponse(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	successResponse(w, "ok", map[string]string{"provider": h.mailer.ProviderName()})
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	var msg email.Message
	if !decodeJSON(w, r, &msg) {
		return
	}
	writeResult(w, h.mailer.Send(r.Context(), &msg))
}

func (h *handler) sendTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Template == "" {
		errorResponse(w, http.StatusBadRequest, "Field 'template' is required.", nil)
		return
	}
	writeResult(w, h.mailer.SendTemplated(r.Context(), req.Template, req.To, req.Variables, req.Subject))
}

func (h *handler) sendBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Recipients) == 0 {
		errorResponse(w, http.StatusBadRequest, "Field 'recipients' must not be empty.", nil)
		return
	}

	results := h.mailer.SendBulk(r.Context(), req.Recipients, req.Subject, req.HTML, req.Text)
	resp := BulkResponse{Results: results}
	for _, res := range results {
		if res.Success {
			resp.Sent++
		} else {
			resp.Failed++
		}
	}
	successResponse(w, "Bulk send finished", resp)
}

func (h *handler) sendRaw(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		errorResponse(w, http.StatusRequestEntityTooLarge, "Message too large", nil)
		return
	}
	msg, err := parser.Parse(raw)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid message: "+err.Error(), nil)
		return
	}
	// Transports assign their own ids.
	msg.MessageID = ""
	writeResult(w, h.mailer.Send(r.Context(), msg))
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	successResponse(w, "Email statistics", h.mailer.Stats())
}

func (h *handler) templates(w http.ResponseWriter, _ *http.Request) {
	successResponse(w, "Available templates", h.mailer.Templates().Keys())
}

func (h *handler) recentLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		errorResponse(w, http.StatusNotFound, "Dispatch log is not configured", nil)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errorResponse(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer.", nil)
			return
		}
		limit = n
	}

	entries, err := h.logs.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("failed to read dispatch log", "error", err)
		errorResponse(w, http.StatusInternalServerError, "Internal server error fetching logs", nil)
		return
	}
	successResponse(w, "Dispatch log retrieved", entries)
}

// decodeJSON reads a size-limited JSON body into dst, writing a 400 or 413
// and returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return false
		}
		errorResponse(w, http.StatusBadRequest, "Invalid request payload", nil)
		return false
	}
	return true
}

// writeResult maps a dispatch result to a response.
func writeResult(w http.ResponseWriter, res email.Result) {
	if res.Success {
		successResponse(w, "Email sent successfully", res)
		return
	}
	errorResponse(w, statusFor(res.Err), res.Error, res)
}

// statusFor maps a dispatch failure to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrValidation), errors.Is(err, dispatch.ErrTemplateNotFound):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs every request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
