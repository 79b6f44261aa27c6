package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Session errors
	ErrAuth             = fmt.Errorf("authentication error")
	ErrConnection       = fmt.Errorf("connection error")
	ErrNotConnected     = fmt.Errorf("not connected")
	ErrRetriesExhausted = fmt.Errorf("reconnection attempts exhausted")
	ErrClosed           = fmt.Errorf("session closed")
	ErrProtocol         = fmt.Errorf("protocol error")

	// Run errors
	ErrRun = fmt.Errorf("analysis run failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrAnalysisNotFound   = fmt.Errorf("analysis not found")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation error")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
