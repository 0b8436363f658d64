package feishu

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// InvalidLinkError is returned when a URL does not point at a recognised document
type InvalidLinkError struct {
	URL    string
	Reason string
}

func (e *InvalidLinkError) Error() string {
	msg := "invalid feishu document link"
	if e.URL != "" {
		msg += fmt.Sprintf(" '%s'", e.URL)
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(": %s", e.Reason)
	}
	return msg
}

// AuthenticationError represents a failed tenant access token exchange
type AuthenticationError struct {
	Msg string
	Err error
}

func (e *AuthenticationError) Error() string {
	msg := "failed to obtain tenant access token"
	if e.Msg != "" {
		msg += fmt.Sprintf(": %s", e.Msg)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// NetworkError represents a transport-level failure talking to the platform
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	msg := "network error"
	if e.URL != "" {
		msg += fmt.Sprintf(" accessing %s", e.URL)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status: %d %s)", e.Status, http.StatusText(e.Status))
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteFetchError is a non-zero answer from the document API
type RemoteFetchError struct {
	Operation string
	Code      int
	Msg       string
	Err       error
}

func (e *RemoteFetchError) Error() string {
	msg := fmt.Sprintf("remote fetch failed during %s", e.Operation)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code: %d)", e.Code)
	}
	if e.Msg != "" {
		msg += fmt.Sprintf(": %s", e.Msg)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// RequiredScopes lists the app scopes that unlock document reads
var RequiredScopes = []string{
	"docx:document:readonly",
	"docs:document:readonly",
	"drive:drive:readonly",
}

// PermissionError is returned when the app lacks access to a document
type PermissionError struct {
	Operation string
	Code      int
	Msg       string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied during %s", e.Operation)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code: %d)", e.Code)
	}
	if e.Msg != "" {
		msg += fmt.Sprintf(": %s", e.Msg)
	}
	return msg
}

// Guidance returns a human-readable hint on how to grant access
func (e *PermissionError) Guidance() string {
	return fmt.Sprintf("grant the app one of the scopes %s in the developer console and add the app as a collaborator on the document",
		strings.Join(RequiredScopes, ", "))
}

// ExportTimeoutError is returned when an export task does not finish within the poll bound.
// Elapsed is set when the wall-clock bound fired before the attempt bound.
type ExportTimeoutError struct {
	TaskID   string
	Attempts int
	Elapsed  time.Duration
}

func (e *ExportTimeoutError) Error() string {
	if e.Elapsed > 0 {
		return fmt.Sprintf("export task %s did not finish within %s (%d polls)", e.TaskID, e.Elapsed.Round(time.Millisecond), e.Attempts)
	}
	return fmt.Sprintf("export task %s did not finish after %d polls", e.TaskID, e.Attempts)
}

// ExportFailedError is returned when the remote reports a failed export task
type ExportFailedError struct {
	TaskID string
	Status string
	Msg    string
}

func (e *ExportFailedError) Error() string {
	msg := fmt.Sprintf("export task %s failed", e.TaskID)
	if e.Status != "" {
		msg += fmt.Sprintf(" (status: %s)", e.Status)
	}
	if e.Msg != "" {
		msg += fmt.Sprintf(": %s", e.Msg)
	}
	return msg
}

// UnsupportedKindError is returned for document kinds the pipeline cannot ingest
type UnsupportedKindError struct {
	Kind Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported document kind: %s", e.Kind)
}

// AssetResolutionError is a block-local failure to produce a displayable asset URL
type AssetResolutionError struct {
	Token  string
	Reason string
	Err    error
}

func (e *AssetResolutionError) Error() string {
	msg := "asset resolution failed"
	if e.Token != "" {
		msg += fmt.Sprintf(" for %s", e.Token)
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(": %s", e.Reason)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *AssetResolutionError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is worth another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		// Retry on 5xx errors, rate limiting or transport failures
		return netErr.Status >= 500 || netErr.Status == http.StatusTooManyRequests || netErr.Status == 0
	}

	return false
}

// IsPermission reports whether err carries a PermissionError
func IsPermission(err error) bool {
	var permErr *PermissionError
	return errors.As(err, &permErr)
}

// IsAuthentication reports whether err carries an AuthenticationError
func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// permissionCode is the platform code for "no permission to access the document"
const permissionCode = 11304

var permissionMarkers = []string{"permission", "access denied", "forbidden", "scope"}

// isPermissionAnswer classifies a remote (code, msg) pair
func isPermissionAnswer(code int, msg string) bool {
	if code == permissionCode {
		return true
	}
	lower := strings.ToLower(msg)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
