package catalog

import "errors"

var (
	// ErrProfileNotFound is returned when a profile id is unknown
	ErrProfileNotFound = errors.New("profile not found")
	// ErrCredentialsMissing is returned when a profile has no usable credentials
	ErrCredentialsMissing = errors.New("credentials missing")
	// ErrAlreadyActive is returned when a sync is already running for a profile
	ErrAlreadyActive = errors.New("sync already active")
	// ErrNotActive is returned when cancelling a profile without a running sync
	ErrNotActive = errors.New("sync not active")
	// ErrNetwork wraps transient failures talking to the provider
	ErrNetwork = errors.New("network error")
	// ErrRemoteAuth is returned when the provider rejects the credentials
	ErrRemoteAuth = errors.New("remote authentication failed")
	// ErrStorage wraps failures of the local cache
	ErrStorage = errors.New("storage error")
	// ErrInvalidSettings is returned for settings outside the accepted ranges
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrItemNotFound is returned when a catalog item is not cached
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidQuery is returned for malformed filters, sorts or content types
	ErrInvalidQuery = errors.New("invalid query")
)
