package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/anisync/internal/httpjson"
	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpjson.WriteErrorBody(w, http.StatusBadRequest, httpjson.ErrorBody{Error: "invalid json", Code: "invalid_request"})
		return false
	}
	return true
}

var statusByCode = map[string]int{
	"invalid_request":      http.StatusBadRequest,
	"not_found":            http.StatusNotFound,
	"conflict":             http.StatusConflict,
	"sync_in_progress":     http.StatusConflict,
	"offline":              http.StatusServiceUnavailable,
	"state_mismatch":       http.StatusBadRequest,
	"exchange_failed":      http.StatusBadGateway,
	"reauth_required":      http.StatusUnauthorized,
	"rate_limited":         http.StatusTooManyRequests,
	"upstream_unavailable": http.StatusBadGateway,
	"cache_corrupt":        http.StatusInternalServerError,
	"cache_io":             http.StatusServiceUnavailable,
}

// writeErr traduit err en réponse JSON avec un code stable.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := app.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := httpjson.ErrorBody{Error: err.Error(), Code: code}
	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("code", code).Msg("request failed")
	}
	httpjson.WriteErrorBody(w, status, body)
}
