package arena

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Phase represents the lifecycle phase of a session as seen by the client.
// Phases only move forward, except the explicit queued -> idle edge when
// the agent leaves the queue before a match is made.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseQueued   Phase = "queued"
	PhaseMatched  Phase = "matched"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Agent phases reported by the status endpoint
const (
	AgentIdle   = "idle"
	AgentQueued = "queued"
	AgentActive = "active"
)

// Outcome represents a terminal session result from this client's side
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Common move actions. Action strings are defined by the service; these
// cover the ones every session kind supports.
const (
	ActionCheck = "check"
	ActionCall  = "call"
	ActionFold  = "fold"
	ActionRaise = "raise"
)

// Move is a single action submitted to an active session. The body is
// canonicalized before signing, so field order here never matters.
type Move struct {
	Action string `json:"action"`
	Amount int64  `json:"amount,omitempty"`
}

// JoinResult is the result of a successful join submission
type JoinResult struct {
	Kind          string `json:"kind"`
	QueuePosition int    `json:"queuePosition"`
}

// AgentStatus is the matchmaking view of one agent
type AgentStatus struct {
	Phase          string   `json:"phase"`
	ActiveSessions []string `json:"activeSessions"`
	QueuePosition  int      `json:"queuePosition"`
	Paused         bool     `json:"paused"`
}

// stateResponse is the wire form of a session state read
type stateResponse struct {
	SessionID    string          `json:"sessionId"`
	Phase        Phase           `json:"phase"`
	Turn         string          `json:"turn"`
	Opponent     string          `json:"opponent"`
	Pot          int64           `json:"pot"`
	Stake        int64           `json:"stake"`
	ToCall       int64           `json:"toCall"`
	LegalActions []string        `json:"legalActions"`
	Hand         json.RawMessage `json:"hand,omitempty"`
	Board        json.RawMessage `json:"board,omitempty"`
	Winner       string          `json:"winner,omitempty"`
	Draw         bool            `json:"draw,omitempty"`
}

// StateSnapshot is a normalized, immutable view of a session at one poll.
// Derived fields (OurTurn, PotOdds, Result) are computed once when the
// snapshot is built and never recomputed on access.
type StateSnapshot struct {
	SessionID    string
	Phase        Phase
	Turn         string
	OurTurn      bool
	Opponent     string
	Pot          int64
	Stake        int64
	ToCall       int64
	PotOdds      float64
	LegalActions []string
	Hand         json.RawMessage
	Board        json.RawMessage
	Result       Outcome
}

// Terminal reports whether the snapshot describes a settled session
func (s *StateSnapshot) Terminal() bool {
	return s.Phase == PhaseFinished
}

// ResultRecord is the historical terminal record of a session. It remains
// available after the live session is purged. Proof, when present, is a
// service-signed token over the record.
type ResultRecord struct {
	SessionID  string    `json:"sessionId"`
	Winner     string    `json:"winner,omitempty"`
	Draw       bool      `json:"draw,omitempty"`
	Pot        int64     `json:"pot"`
	FinishedAt time.Time `json:"finishedAt"`
	Proof      string    `json:"proof,omitempty"`
}

// OutcomeFor resolves the record into an outcome for the given identity
func (r *ResultRecord) OutcomeFor(identity string) Outcome {
	if r.Draw {
		return OutcomeDraw
	}
	if strings.EqualFold(r.Winner, identity) {
		return OutcomeWin
	}
	return OutcomeLoss
}

// Lifecycle events emitted through the EventRecorder
const (
	EventJoined        = "session_joined"
	EventMatched       = "session_matched"
	EventMoveSubmitted = "move_submitted"
	EventFinished      = "session_finished"
	EventClaimStarted  = "claim_started"
	EventClaimSettled  = "claim_settled"
)

// EventRecorder receives session lifecycle events. Implementations must be
// best-effort: recording never blocks or fails an operation.
type EventRecorder interface {
	Record(ctx context.Context, event, sessionID string, data interface{})
}

// ClientConfig holds the configuration for the arena client
type ClientConfig struct {
	BaseURL      string
	SignerKey    string // hex-encoded key material, with or without 0x prefix
	SharedSecret string // verifies result proof tokens when set
	Timeout      time.Duration
	RetryCount   int           // extra attempts after the first, for retriable faults
	BackoffBase  time.Duration // first retry sleep, doubled per attempt
	BackoffCap   time.Duration // ceiling for the exponential term
	RequestRate  float64       // requests per second, 0 = unlimited
}

// DefaultConfig returns a default client configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:     30 * time.Second,
		RetryCount:  3,
		BackoffBase: 500 * time.Millisecond,
		BackoffCap:  10 * time.Second,
	}
}
