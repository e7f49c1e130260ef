package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"shardgen/internal/manager"
	"shardgen/internal/runtime"
	"shardgen/pkg/types"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var he *runtime.HTTPError
	switch {
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsNotReady(err), manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case manager.IsNotMaterialized(err):
		return http.StatusConflict
	case errors.As(err, &he):
		if he.Status >= 400 && he.Status < 500 {
			return he.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
