// Package httpapi holds the JSON response helpers shared by the module handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// InsufficientDataResponse is returned with 200 when a computation lacks inputs
type InsufficientDataResponse struct {
	OK               bool   `json:"ok"`
	InsufficientData bool   `json:"insufficient_data"`
	Detail           string `json:"detail"`
}

// WriteJSON writes data with the given status
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// StatusFor maps a domain error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInconsistentState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusOK
	case errors.Is(err, domain.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status StatusFor picks. Insufficient data
// is not a failure: it is reported with 200 and a flag.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusFor(err)
	if errors.Is(err, domain.ErrInsufficientData) {
		WriteJSON(w, log, status, InsufficientDataResponse{OK: true, InsufficientData: true, Detail: err.Error()})
		return
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		msg = "internal error"
	}
	WriteJSON(w, log, status, ErrorResponse{Error: msg})
}

// Decode decodes the request body into dst
func Decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domain.InvalidInput("invalid request body: %v", err)
	}
	return nil
}

// DecodeJSON decodes the request body into dst and runs struct validation
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := Decode(r, dst); err != nil {
		return err
	}
	return domain.ValidateStruct(dst)
}

// QueryFloat parses an optional finite float query parameter
func QueryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, domain.InvalidInput("%s must be a number", name)
	}
	return &v, nil
}

// QueryInt parses an optional integer query parameter clamped to [lo, hi]
func QueryInt(r *http.Request, name string, def, lo, hi int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return max(lo, min(hi, v))
}

// QueryAmounts parses an optional JSON object of asset id to amount.
// Every entry must be a finite, non-negative number or numeric string.
func QueryAmounts(r *http.Request, name string) (map[string]float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.InvalidInput("invalid %s", name)
	}
	return Amounts(name, parsed)
}

// Amounts converts a decoded JSON object of asset id to amount. Every entry
// must be a finite, non-negative number or numeric string; name labels the
// error.
func Amounts(name string, raw map[string]interface{}) (map[string]float64, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		id := strings.TrimSpace(k)
		if id == "" {
			return nil, domain.InvalidInput("invalid %s: empty asset id", name)
		}
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, domain.InvalidInput("invalid %s: %q", name, id)
			}
			f = parsed
		default:
			return nil, domain.InvalidInput("invalid %s: %q", name, id)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return nil, domain.InvalidInput("invalid %s: %q", name, id)
		}
		out[id] = f
	}
	return out, nil
}

// Required returns an InvalidInput error when v is nil
func Required(v *float64, name string) (float64, error) {
	if v == nil {
		return 0, domain.InvalidInput("%s is required", name)
	}
	return *v, nil
}
