package models

// APIResponse is the envelope returned by every endpoint.
type APIResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Error      any    `json:"error,omitempty"`
}

// OK wraps data in a success envelope.
func OK(statusCode int, message string, data any) APIResponse {
	return APIResponse{
		Success:    true,
		Message:    message,
		StatusCode: statusCode,
		Data:       data,
	}
}

// Fail wraps an error payload in a failure envelope.
func Fail(statusCode int, message string, errPayload any) APIResponse {
	return APIResponse{
		Success:    false,
		Message:    message,
		StatusCode: statusCode,
		Error:      errPayload,
	}
}

// DuplicateGroup is one duplicate-name group summary.
type DuplicateGroup struct {
	Name           string `json:"name"`
	DuplicateCount int    `json:"duplicateCount"`
}

// Pagination describes the page window applied to a listing.
type Pagination struct {
	Limit  int `json:"limit"`
	Page   int `json:"page"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// DuplicateGroupsResponse is the payload for the typed duplicate-name
// listing.
type DuplicateGroupsResponse struct {
	DuplicateGroups []DuplicateGroup `json:"duplicateGroups"`
	Pagination      Pagination       `json:"pagination"`
}
