package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

type rateLimitBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// writeError maps err onto a status code and JSON body.
//
// Upstream 401s become 401 and throttling becomes 429 with Retry-After. Any other upstream failure is a
// 502 carrying the upstream message; 403 stays reserved for a missing token. Validation errors become 400.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	var (
		rle *shared.RateLimitError
		ue  *shared.UpstreamError
	)

	switch {
	case errors.As(err, &rle):
		secs := int(math.Ceil(rle.RetryAfter.Seconds()))
		if secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeJSON(w, http.StatusTooManyRequests, rateLimitBody{Error: "Rate limit exceeded", RetryAfter: secs})
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
	case errors.As(err, &ue):
		logger.Warn("upstream request failed", "status", ue.Status, "error", ue.Message)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: ue.Message})
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingSeeds),
		errors.Is(err, shared.ErrSeedLimit),
		errors.Is(err, shared.ErrMissingArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, shared.ErrServiceUnavailable):
		logger.Warn("upstream unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "Upstream service unavailable"})
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
	}
}
