package live

import (
	"errors"
	"strings"
)

var (
	// ErrCredentialMissing means no usable access credential could be obtained
	ErrCredentialMissing = errors.New("credential missing")
	// ErrConnection is a transport-level failure of the realtime connection
	ErrConnection = errors.New("connection failed")
	// ErrMediaAcquisition means audio devices or capture could not be opened
	ErrMediaAcquisition = errors.New("media acquisition failed")
	// ErrDesynchronized means a tool call arrived but the connection could not be resolved
	ErrDesynchronized = errors.New("session desynchronized")
	// ErrAuth marks a connection rejected because of the credential
	ErrAuth = errors.New("authentication rejected")
)

const (
	credentialMissingMessage = "API key not selected. Live session cannot start."
	authFailureMessage       = "Live session connection failed due to API key. Please re-select your API key."
	unknownErrorMessage      = "Unknown live session error"
)

var authErrorFragments = []string{
	"Requested entity was not found.",
	"API key not valid.",
}

// IsAuthError reports whether err was caused by a rejected credential
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return true
	}
	msg := err.Error()
	for _, fragment := range authErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
