package arena

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DecideFunc is the caller-supplied decision function. It is invoked on
// every changed, non-terminal snapshot; returning a nil move means no
// action this tick. It may suspend, and any hard deadline on it (with a
// safe fallback move) is the caller's responsibility.
type DecideFunc func(ctx context.Context, state *StateSnapshot) (*Move, error)

type joinRequest struct {
	Kind  string `json:"kind"`
	Agent string `json:"agent"`
}

// Join submits a payment-aware join for the given session kind. Success
// means the agent is queued. Fails with PAYMENT_REQUIRED when the stake
// cannot be funded, RESOURCE_DISABLED when the kind is disabled (the
// fault carries the enabled alternatives), or SERVICE_PAUSED during
// maintenance.
func (c *Client) Join(ctx context.Context, kind string) (*JoinResult, error) {
	var out JoinResult
	path := "/v1/sessions/join?kind=" + url.QueryEscape(kind)
	err := c.do(ctx, http.MethodPost, path, joinRequest{Kind: kind, Agent: c.signer.Identity()}, requestOptions{
		signed:         true,
		resourceID:     c.signer.Identity(),
		payment:        c.payment,
		idempotencyKey: uuid.New().String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	c.record(ctx, EventJoined, "", &out)
	return &out, nil
}

// AgentStatus reads the matchmaking view of this client's agent
func (c *Client) AgentStatus(ctx context.Context) (*AgentStatus, error) {
	var out AgentStatus
	path := "/v1/agent/" + c.signer.Identity() + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, requestOptions{resourceID: c.signer.Identity()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AwaitMatch polls agent status on a fixed interval until a match is made,
// returning the session id. The wall-clock deadline is checked before each
// poll, never as a per-request timeout; once it elapses no further poll is
// issued and the call fails with MATCH_TIMEOUT. Going idle while queued
// fails with CANCELLED; a maintenance pause fails with a retriable
// SERVICE_PAUSED so the caller can back off and re-invoke.
func (c *Client) AwaitMatch(ctx context.Context, timeout, pollInterval time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if !time.Now().Before(deadline) {
			return "", &APIFault{
				Kind:    FaultMatchTimeout,
				Message: fmt.Sprintf("no match within %s", timeout),
			}
		}

		status, err := c.AgentStatus(ctx)
		if err != nil {
			return "", err
		}

		switch {
		case status.Paused:
			return "", &APIFault{
				Kind:       FaultServicePaused,
				Retriable:  true,
				RetryAfter: maintenanceRetryAfter,
				Message:    "matchmaking paused",
			}
		case status.Phase == AgentActive && len(status.ActiveSessions) > 0:
			id := status.ActiveSessions[0]
			c.record(ctx, EventMatched, id, status)
			return id, nil
		case status.Phase == AgentIdle:
			return "", &APIFault{
				Kind:    FaultCancelled,
				Message: "agent left the queue before a match was made",
			}
		}

		sleep := pollInterval
		if remaining := time.Until(deadline); remaining < sleep {
			sleep = remaining
		}
		if err := sleepContext(ctx, sleep); err != nil {
			return "", err
		}
	}
}

// ReadState performs a signed, conditional read of the session state.
// Returns ErrUnchanged when the service reports no change since the last
// read.
func (c *Client) ReadState(ctx context.Context, sessionID string) (*StateSnapshot, error) {
	var out stateResponse
	path := "/v1/sessions/" + sessionID + "/state"
	err := c.do(ctx, http.MethodGet, path, nil, requestOptions{
		signed:     true,
		resourceID: sessionID,
		etagKey:    sessionID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return c.normalize(&out), nil
}

// SubmitMove submits a signed move and returns the updated snapshot
func (c *Client) SubmitMove(ctx context.Context, sessionID string, move *Move) (*StateSnapshot, error) {
	var out stateResponse
	path := "/v1/sessions/" + sessionID + "/action"
	err := c.do(ctx, http.MethodPost, path, move, requestOptions{
		signed:         true,
		resourceID:     sessionID,
		idempotencyKey: uuid.New().String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	c.record(ctx, EventMoveSubmitted, sessionID, move)
	return c.normalize(&out), nil
}

// PlayLoop drives a matched session to settlement: it polls state, hands
// every changed non-terminal snapshot to decide, submits the returned
// move when there is one, and returns the terminal snapshot.
//
// When a state read fails with RESOURCE_NOT_FOUND mid-loop the session
// finished and was purged between polls; the loop recovers through the
// historical result and synthesizes the terminal snapshot instead of
// surfacing the miss.
func (c *Client) PlayLoop(ctx context.Context, sessionID string, decide DecideFunc, pollInterval time.Duration) (*StateSnapshot, error) {
	for {
		state, err := c.ReadState(ctx, sessionID)
		switch {
		case errors.Is(err, ErrUnchanged):
			if err := sleepContext(ctx, pollInterval); err != nil {
				return nil, err
			}
			continue
		case IsFault(err, FaultResourceNotFound):
			return c.reconcileFinished(ctx, sessionID)
		case err != nil:
			return nil, err
		}

		if state.Terminal() {
			c.record(ctx, EventFinished, sessionID, state)
			return state, nil
		}

		move, err := decide(ctx, state)
		if err != nil {
			return nil, err
		}
		if move != nil {
			if _, err := c.SubmitMove(ctx, sessionID, move); err != nil {
				return nil, err
			}
		}

		if err := sleepContext(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// Result fetches the historical terminal record for a session. The record
// outlives the live session. When the record carries a proof token and a
// shared secret is configured, the proof is verified before the record is
// returned.
func (c *Client) Result(ctx context.Context, sessionID string) (*ResultRecord, error) {
	var out ResultRecord
	path := "/v1/sessions/" + sessionID + "/result"
	if err := c.do(ctx, http.MethodGet, path, nil, requestOptions{resourceID: sessionID}, &out); err != nil {
		return nil, err
	}
	if out.Proof != "" && c.config.SharedSecret != "" {
		if err := c.verifyProof(&out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// reconcileFinished rebuilds a terminal snapshot from the historical
// record after a stale-finish miss
func (c *Client) reconcileFinished(ctx context.Context, sessionID string) (*StateSnapshot, error) {
	record, err := c.Result(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := &StateSnapshot{
		SessionID: sessionID,
		Phase:     PhaseFinished,
		Pot:       record.Pot,
		Result:    record.OutcomeFor(c.signer.Identity()),
	}
	c.record(ctx, EventFinished, sessionID, snap)
	return snap, nil
}

// verifyProof validates the service-signed result proof token
func (c *Client) verifyProof(record *ResultRecord) error {
	token, err := jwt.Parse(record.Proof, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(c.config.SharedSecret), nil
	})
	if err != nil || !token.Valid {
		return &APIFault{
			Kind:       FaultAuthFailure,
			Message:    "result proof verification failed",
			ResourceID: record.SessionID,
		}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return &APIFault{
			Kind:       FaultAuthFailure,
			Message:    "result proof carries no claims",
			ResourceID: record.SessionID,
		}
	}
	if id, _ := claims["sessionId"].(string); id != record.SessionID {
		return &APIFault{
			Kind:       FaultAuthFailure,
			Message:    "result proof does not match session",
			ResourceID: record.SessionID,
		}
	}
	return nil
}

// normalize converts a wire state into an immutable snapshot, computing
// derived fields exactly once
func (c *Client) normalize(w *stateResponse) *StateSnapshot {
	snap := &StateSnapshot{
		SessionID:    w.SessionID,
		Phase:        w.Phase,
		Turn:         w.Turn,
		OurTurn:      w.Turn != "" && strings.EqualFold(w.Turn, c.signer.Identity()),
		Opponent:     w.Opponent,
		Pot:          w.Pot,
		Stake:        w.Stake,
		ToCall:       w.ToCall,
		LegalActions: w.LegalActions,
		Hand:         w.Hand,
		Board:        w.Board,
	}
	if w.ToCall > 0 {
		snap.PotOdds = float64(w.ToCall) / float64(w.Pot+w.ToCall)
	}
	if w.Phase == PhaseFinished {
		switch {
		case w.Draw:
			snap.Result = OutcomeDraw
		case strings.EqualFold(w.Winner, c.signer.Identity()):
			snap.Result = OutcomeWin
		default:
			snap.Result = OutcomeLoss
		}
	}
	return snap
}
