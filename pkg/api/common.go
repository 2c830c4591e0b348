package api

// Response is the envelope every endpoint returns. Data and Error are
// mutually exclusive: a successful response carries Data, a failed one
// carries Error and Success=false.
type Response[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request. Code is a stable machine-readable
// token (e.g. "pool_empty", "transfer_failed"); Message is for humans.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// OK wraps data in a success envelope.
func OK[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

// Fail builds a failure envelope.
func Fail(code, message, requestID string) Response[any] {
	return Response[any]{
		Error: &ErrorBody{Code: code, Message: message, RequestID: requestID},
	}
}
