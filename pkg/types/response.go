package types

// SuccessEnvelope wraps every non-list 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ListEnvelope carries one page of results plus the cursor for the next page.
type ListEnvelope struct {
	Data       any    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
