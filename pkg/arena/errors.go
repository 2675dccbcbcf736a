package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// FaultKind identifies one member of the closed error taxonomy
type FaultKind string

const (
	FaultResourceDisabled FaultKind = "RESOURCE_DISABLED"
	FaultBadRequest       FaultKind = "BAD_REQUEST"
	FaultAuthFailure      FaultKind = "AUTH_FAILURE"
	FaultPaymentRequired  FaultKind = "PAYMENT_REQUIRED"
	FaultResourceNotFound FaultKind = "RESOURCE_NOT_FOUND"
	FaultInvalidOperation FaultKind = "INVALID_OPERATION"
	FaultServicePaused    FaultKind = "SERVICE_PAUSED"
	FaultTransportFault   FaultKind = "TRANSPORT_FAULT"
	FaultConnectionFault  FaultKind = "CONNECTION_FAULT"

	// Raised by the state machine and the claim bridge, never by classify
	FaultCancelled      FaultKind = "CANCELLED"
	FaultMatchTimeout   FaultKind = "MATCH_TIMEOUT"
	FaultNothingToClaim FaultKind = "NOTHING_TO_CLAIM"
	FaultClaimReverted  FaultKind = "CLAIM_REVERTED"
)

// ErrUnchanged is the sentinel returned by state reads when the service
// reports 304 Not Modified. It is not a fault and is never classified.
var ErrUnchanged = errors.New("session state unchanged")

const (
	defaultRetryAfter     = 5 * time.Second
	maintenanceRetryAfter = 30 * time.Second
)

// APIFault is a classified service error. All fields are set once at
// classification time and must not be mutated afterwards. Callers branch
// on Kind and Retriable, never on message text.
type APIFault struct {
	Kind         FaultKind
	Retriable    bool
	RetryAfter   time.Duration
	Status       int
	Message      string
	ResourceID   string
	Alternatives []string        // enabled alternatives, RESOURCE_DISABLED only
	ValidOps     []string        // currently valid operations, INVALID_OPERATION only
	Cause        json.RawMessage // raw response body
}

func (e *APIFault) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsFault reports whether err is an *APIFault of the given kind
func IsFault(err error, kind FaultKind) bool {
	var f *APIFault
	return errors.As(err, &f) && f.Kind == kind
}

// errorBody is the JSON error envelope used by the service
type errorBody struct {
	Error struct {
		Code         string   `json:"code"`
		Message      string   `json:"message"`
		Transient    bool     `json:"transient"`
		Alternatives []string `json:"alternatives,omitempty"`
		ValidActions []string `json:"validActions,omitempty"`
	} `json:"error"`
}

// classify maps a non-2xx response to its typed fault. The mapping is
// closed: every status lands on exactly one kind with a fixed retriable
// flag, so callers never inspect raw wire details.
func classify(status int, body []byte, header http.Header, resourceID string) *APIFault {
	var eb errorBody
	json.Unmarshal(body, &eb) // best effort; an unparseable body still classifies

	f := &APIFault{
		Status:     status,
		Message:    eb.Error.Message,
		ResourceID: resourceID,
		Cause:      append(json.RawMessage(nil), body...),
		RetryAfter: parseRetryAfter(header.Get("Retry-After"), defaultRetryAfter),
	}
	if f.Message == "" {
		f.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusBadRequest && len(eb.Error.Alternatives) > 0:
		f.Kind = FaultResourceDisabled
		f.Alternatives = eb.Error.Alternatives
	case status == http.StatusBadRequest:
		f.Kind = FaultBadRequest
	case status == http.StatusUnauthorized:
		// Clock skew, wrong key or stale timestamp. The skew window is
		// server-defined and unobservable, so this never retries.
		f.Kind = FaultAuthFailure
	case status == http.StatusPaymentRequired:
		f.Kind = FaultPaymentRequired
	case status == http.StatusNotFound:
		f.Kind = FaultResourceNotFound
	case status == http.StatusUnprocessableEntity:
		f.Kind = FaultInvalidOperation
		f.ValidOps = eb.Error.ValidActions
	case status == http.StatusServiceUnavailable:
		f.Kind = FaultServicePaused
		if eb.Error.Transient {
			// Short settlement delay; the same request may succeed shortly.
			f.Retriable = true
		} else {
			// Planned maintenance. Backoff happens at orchestration level,
			// not inside the request loop.
			f.RetryAfter = parseRetryAfter(header.Get("Retry-After"), maintenanceRetryAfter)
		}
	case status >= 500:
		f.Kind = FaultTransportFault
		f.Retriable = true
	default:
		f.Kind = FaultTransportFault
	}

	return f
}

// connectionFault wraps a transport-level failure (dial, TLS, read) that
// never produced a response
func connectionFault(err error) *APIFault {
	return &APIFault{
		Kind:      FaultConnectionFault,
		Retriable: true,
		Message:   err.Error(),
	}
}

// parseRetryAfter reads a Retry-After value as integer seconds or an
// HTTP-date, falling back to def when absent or unparseable
func parseRetryAfter(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return def
}
