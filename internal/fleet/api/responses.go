package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/pkg/api"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess[T any](w http.ResponseWriter, data T) error {
	return WriteJSON(w, http.StatusOK, api.OK(data))
}

// WriteError writes a JSON error response with the given status and code.
func WriteError(w http.ResponseWriter, statusCode int, code, message, requestID string) error {
	return WriteJSON(w, statusCode, api.Fail(code, message, requestID))
}

// WriteErrorResponse logs the error and translates the domain error taxonomy
// into the correct HTTP response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := GetLogger(ctx)
	requestID := GetRequestID(ctx)

	logger.ErrorCtx(ctx, "API request failed", err)

	statusCode, code, message := mapErrorToHTTP(err)
	_ = WriteError(w, statusCode, code, message, requestID)
}

// mapErrorToHTTP maps domain errors to HTTP status codes, stable error codes
// and user-facing messages.
func mapErrorToHTTP(err error) (int, string, string) {
	var (
		transferErr *apperrors.TransferError
		remoteErr   *apperrors.RemoteError
	)

	switch {
	// Typed errors first: they wrap sentinels and would otherwise be
	// shadowed by the Is checks below.
	case errors.As(err, &transferErr):
		return http.StatusConflict, "transfer_failed",
			"Account transfer failed: " + transferErr.Error()

	case apperrors.IsAuthExpired(err):
		return http.StatusServiceUnavailable, "auth_expired",
			"The serving account's credentials expired mid-request. Please retry."

	case apperrors.IsTargetBlocked(err):
		return http.StatusForbidden, "target_blocked",
			"The target has blocked the serving account."

	case errors.As(err, &remoteErr):
		return http.StatusBadGateway, "remote_node_error",
			"A remote node failed to serve the request: " + remoteErr.Error()

	case errors.Is(err, apperrors.ErrPoolEmpty):
		return http.StatusServiceUnavailable, "pool_empty",
			"No active account is available on this node. Please try again later."

	case errors.Is(err, apperrors.ErrNoNodeAvailable):
		return http.StatusServiceUnavailable, "no_node_available",
			"No eligible node is available to serve the request."

	case errors.Is(err, apperrors.ErrIdentityNotFound):
		return http.StatusNotFound, "identity_not_found",
			"The requested identity could not be resolved: " + err.Error()

	case errors.Is(err, apperrors.ErrNodeNotFound):
		return http.StatusNotFound, "node_not_found",
			"Unknown node: " + err.Error()

	case errors.Is(err, apperrors.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found",
			"Unknown account: " + err.Error()

	default:
		return http.StatusInternalServerError, "internal_error",
			"An internal server error occurred"
	}
}
