package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNotRefreshable = fmt.Errorf("token is not refreshable")

	// Provider outcomes
	ErrNotFound    = fmt.Errorf("not found")
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrTimeout     = fmt.Errorf("operation timed out")
	ErrNotEntitled = fmt.Errorf("not entitled")
	ErrTransient   = fmt.Errorf("transient failure")
	ErrPlugin      = fmt.Errorf("plugin error")

	// Orchestration and merge errors
	ErrInvalidQuery = fmt.Errorf("invalid query")
	ErrNoProviders  = fmt.Errorf("no providers available")
	ErrNoMetadata   = fmt.Errorf("no metadata found")
	ErrUnsupported  = fmt.Errorf("capability not supported")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
