package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/asimaranov/telestory-backend/pkg/api"
)

const maxFetchLimit = 100

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve ValidationErrors) Error() string {
	var messages []string
	for _, err := range ve.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// ValidateFetchRequest validates a fetch request
func ValidateFetchRequest(req *api.FetchRequest) error {
	var errors []ValidationError

	if strings.TrimSpace(req.Identity) == "" {
		errors = append(errors, ValidationError{
			Field:   "identity",
			Message: "identity is required and cannot be empty",
		})
	}

	if req.Limit < 0 {
		errors = append(errors, ValidationError{
			Field:   "limit",
			Message: "limit cannot be negative",
		})
	}

	if req.Limit > maxFetchLimit {
		errors = append(errors, ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("limit cannot exceed %d", maxFetchLimit),
		})
	}

	if len(errors) > 0 {
		return ValidationErrors{Errors: errors}
	}

	return nil
}

// ValidateTransferRequest validates an account transfer request
func ValidateTransferRequest(req *api.TransferRequest) error {
	var errors []ValidationError

	if strings.TrimSpace(req.AccountID) == "" {
		errors = append(errors, ValidationError{
			Field:   "account_id",
			Message: "account_id is required and cannot be empty",
		})
	}

	if strings.TrimSpace(req.TargetNode) == "" {
		errors = append(errors, ValidationError{
			Field:   "target_node",
			Message: "target_node is required and cannot be empty",
		})
	}

	if len(errors) > 0 {
		return ValidationErrors{Errors: errors}
	}

	return nil
}

// WriteValidationError writes a validation error response
func WriteValidationError(w http.ResponseWriter, err error, requestID string) error {
	return WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
}

// ParseJSONRequest parses and validates a JSON request body
func ParseJSONRequest[T any](r *http.Request, target *T) error {
	if r.Header.Get("Content-Type") != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
