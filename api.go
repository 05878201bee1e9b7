package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperkishore/home-internet/logger"
	"github.com/hyperkishore/home-internet/monitor"
	"github.com/hyperkishore/home-internet/storage"
)

// Transport-level error codes. Service-level codes come from monitor.
const (
	codePayloadTooLarge = "payload_too_large"
	codeRateLimited     = "rate_limited"
	codeInternal        = "internal_error"
)

const defaultLogLimit = 200

type ctxKey int

const requestIDKey ctxKey = iota

// apiServer translates HTTP requests into monitor.Service calls.
type apiServer struct {
	svc     *monitor.Service
	cfg     *Config
	logs    *logger.Logger
	live    http.Handler
	limiter *IPRateLimiter
}

func (a *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/results", a.handleSubmitResult)
	mux.HandleFunc("GET /api/results", a.handleListResults)
	mux.HandleFunc("GET /api/results/{device_id}", a.handleDeviceResults)
	mux.HandleFunc("GET /api/stats", a.handleOverallStats)
	mux.HandleFunc("GET /api/stats/wifi", a.handleWifiStats)
	mux.HandleFunc("GET /api/stats/vpn", a.handleVPNStats)
	mux.HandleFunc("GET /api/stats/jitter", a.handleJitterStats)
	mux.HandleFunc("GET /api/devices/{device_id}/health", a.handleDeviceHealth)
	mux.HandleFunc("GET /api/logs", a.handleLogs)
	if a.live != nil {
		mux.Handle("GET /api/live", a.live)
	}
	mux.HandleFunc("GET /health", a.handleHealth)

	var h http.Handler = mux
	if a.limiter != nil {
		limited := a.limiter.Middleware(a.cfg.Server.BehindProxy, mux)
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				limited.ServeHTTP(w, r)
				return
			}
			mux.ServeHTTP(w, r)
		})
	}
	h = a.cors(h)
	return a.requestLogging(h)
}

// Middleware

// requestLogging tags every request with an X-Request-ID and logs its outcome.
func (a *apiServer) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logDebug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id)
	})
}

func (a *apiServer) cors(next http.Handler) http.Handler {
	origin := a.cfg.Server.CORSAllowOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status. It forwards Hijack so the
// live feed can upgrade through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Handlers

func (a *apiServer) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logWarn("Submission rejected", "code", codePayloadTooLarge, "limit", tooLarge.Limit, "request_id", requestID(r))
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, monitor.CodeInvalidPayload, "failed to read request body")
		return
	}

	res, err := a.svc.SubmitRecord(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *apiServer) handleListResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.RecordFilter{
		DeviceID:  q.Get("device_id"),
		SSID:      q.Get("ssid"),
		VPNStatus: q.Get("vpn_status"),
	}
	recs, err := a.svc.ListRecords(r.Context(), filter, queryInt(q.Get("limit")), queryInt(q.Get("offset")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *apiServer) handleDeviceResults(w http.ResponseWriter, r *http.Request) {
	recs, err := a.svc.ListDeviceRecords(r.Context(), r.PathValue("device_id"), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *apiServer) handleOverallStats(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetOverallStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *apiServer) handleWifiStats(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetWifiStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *apiServer) handleVPNStats(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetVpnStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *apiServer) handleJitterStats(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetJitterStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *apiServer) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetDeviceHealth(r.Context(), r.PathValue("device_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLogs returns the most recent buffered log entries, oldest first.
func (a *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := []logger.LogEntry{}
	if a.logs != nil {
		entries = a.logs.GetBuffer()
	}
	limit := queryInt(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := a.svc.GetServiceStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Helpers

// queryInt parses a query parameter, returning 0 (the store default) for
// absent or malformed values.
func queryInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logWarn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps a monitor error code onto an HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := monitor.AsError(err)
	if !ok {
		logError("Unclassified service error", "error", err, "request_id", requestID(r))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case e.IsValidation():
		status = http.StatusBadRequest
	case e.Code == monitor.CodeTimeout:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, e.Code, e.Message)
}
