package handler

// Generic HTTP error messages for client responses.
// These messages intentionally do not expose internal error details.
// Both handlers and tests should reference these constants.
const (
	ErrMsgInvalidRequest        = "Invalid request body"
	ErrMsgInvalidRequestSummary = "Invalid request"

	ErrMsgMissingQueryParam = "Missing %s query parameter"
)

// Success messages for API responses
const (
	MsgDisconnectedSuccess = "Provider disconnected"
	MsgRefreshSuccess      = "Tokens refreshed"
	MsgEventAccepted       = "Event accepted"
)
