package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAwaitMatch_ResolvesAfterQueuedPolls(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls <= 3 {
			w.Write([]byte(`{"phase":"queued","queuePosition":1}`))
			return
		}
		w.Write([]byte(`{"phase":"active","activeSessions":["s-42"]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	start := time.Now()
	id, err := client.AwaitMatch(context.Background(), 5*time.Second, 100*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id != "s-42" {
		t.Errorf("Expected session s-42, got %s", id)
	}
	if calls != 4 {
		t.Errorf("Expected exactly 4 status calls, got %d", calls)
	}
	if elapsed < 300*time.Millisecond || elapsed > 450*time.Millisecond {
		t.Errorf("Expected resolution ~300-400ms after 3 sleeps, took %v", elapsed)
	}
}

func TestAwaitMatch_TimesOutAtDeadline(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"phase":"queued","queuePosition":3}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	start := time.Now()
	_, err := client.AwaitMatch(context.Background(), 500*time.Millisecond, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !IsFault(err, FaultMatchTimeout) {
		t.Fatalf("Expected MATCH_TIMEOUT, got %v", err)
	}
	if elapsed < 500*time.Millisecond {
		t.Errorf("Timed out before the deadline: %v", elapsed)
	}
	if elapsed > 700*time.Millisecond {
		t.Errorf("Timed out long past the deadline: %v", elapsed)
	}
	// No extra poll once the deadline elapsed: polls land at 0, 100, ..., 400.
	if calls > 5 {
		t.Errorf("Expected at most 5 status calls, got %d", calls)
	}
}

func TestAwaitMatch_Paused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"phase":"queued","paused":true}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.AwaitMatch(context.Background(), time.Second, 10*time.Millisecond)

	if !IsFault(err, FaultServicePaused) {
		t.Fatalf("Expected SERVICE_PAUSED, got %v", err)
	}
	var fault *APIFault
	errors.As(err, &fault)
	if !fault.Retriable {
		t.Error("A pause during matchmaking must be retriable at orchestration level")
	}
}

func TestAwaitMatch_CancelledWhenIdle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"phase":"idle"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.AwaitMatch(context.Background(), time.Second, 10*time.Millisecond)

	if !IsFault(err, FaultCancelled) {
		t.Fatalf("Expected CANCELLED, got %v", err)
	}
	var fault *APIFault
	errors.As(err, &fault)
	if fault.Retriable {
		t.Error("Cancellation must not be retriable")
	}
}

func TestPlayLoop_PlaysToTerminal(t *testing.T) {
	client := newTestClient(t, "")
	reads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/s-1/state", func(w http.ResponseWriter, r *http.Request) {
		reads++
		verifySignature(t, r, "s-1", nil)
		w.Header().Set("Content-Type", "application/json")
		if reads == 1 {
			fmt.Fprintf(w, `{"sessionId":"s-1","phase":"playing","turn":"%s","pot":150,"toCall":50,"legalActions":["call","fold"]}`, client.Identity())
			return
		}
		fmt.Fprintf(w, `{"sessionId":"s-1","phase":"finished","pot":300,"winner":"%s"}`, client.Identity())
	})
	moves := 0
	mux.HandleFunc("/v1/sessions/s-1/action", func(w http.ResponseWriter, r *http.Request) {
		moves++
		body := readBody(t, r)
		verifySignature(t, r, "s-1", body)
		if string(body) != `{"action":"call"}` {
			t.Errorf("Expected canonical move body, got %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s-1","phase":"playing","pot":200}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	client.config.BaseURL = server.URL

	decisions := 0
	decide := func(_ context.Context, state *StateSnapshot) (*Move, error) {
		decisions++
		if !state.OurTurn {
			return nil, nil
		}
		if state.PotOdds != 0.25 {
			t.Errorf("Expected precomputed pot odds 0.25, got %v", state.PotOdds)
		}
		return &Move{Action: ActionCall}, nil
	}

	final, err := client.PlayLoop(context.Background(), "s-1", decide, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !final.Terminal() || final.Result != OutcomeWin {
		t.Errorf("Expected terminal win snapshot, got phase=%s result=%s", final.Phase, final.Result)
	}
	if decisions != 1 {
		t.Errorf("Expected decide called once, got %d", decisions)
	}
	if moves != 1 {
		t.Errorf("Expected exactly one submitted move, got %d", moves)
	}
}

func TestPlayLoop_UnchangedSleepsAndRetries(t *testing.T) {
	client := newTestClient(t, "")
	reads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/s-2/state", func(w http.ResponseWriter, r *http.Request) {
		reads++
		if reads == 1 {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s-2","phase":"finished","draw":true}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	client.config.BaseURL = server.URL

	start := time.Now()
	final, err := client.PlayLoop(context.Background(), "s-2", neverDecide(t), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if final.Result != OutcomeDraw {
		t.Errorf("Expected draw, got %s", final.Result)
	}
	if reads != 2 {
		t.Errorf("Expected 2 reads, got %d", reads)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected a poll-interval sleep after 304, loop took %v", elapsed)
	}
}

func TestPlayLoop_StaleFinishReconciliation(t *testing.T) {
	client := newTestClient(t, "")
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/s-3/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"SESSION_NOT_FOUND","message":"purged"}}`))
	})
	results := 0
	mux.HandleFunc("/v1/sessions/s-3/result", func(w http.ResponseWriter, r *http.Request) {
		results++
		if r.Header.Get("x-signature") != "" {
			t.Error("Result reads must be unsigned")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"sessionId":"s-3","winner":"%s","pot":500,"finishedAt":"2026-08-30T12:00:00Z"}`, client.Identity())
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	client.config.BaseURL = server.URL

	final, err := client.PlayLoop(context.Background(), "s-3", neverDecide(t), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NOT_FOUND must never surface for a session being played, got %v", err)
	}
	if final.Result != OutcomeWin {
		t.Errorf("Expected synthesized win, got %s", final.Result)
	}
	if final.Phase != PhaseFinished {
		t.Errorf("Expected finished phase, got %s", final.Phase)
	}
	if final.Pot != 500 {
		t.Errorf("Expected pot carried from the record, got %d", final.Pot)
	}
	if results != 1 {
		t.Errorf("Expected one result lookup, got %d", results)
	}
}

func TestPlayLoop_StaleFinishLoss(t *testing.T) {
	client := newTestClient(t, "")
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/s-4/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"SESSION_NOT_FOUND"}}`))
	})
	mux.HandleFunc("/v1/sessions/s-4/result", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s-4","winner":"0x1111111111111111111111111111111111111111","pot":80,"finishedAt":"2026-08-30T12:00:00Z"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	client.config.BaseURL = server.URL

	final, err := client.PlayLoop(context.Background(), "s-4", neverDecide(t), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if final.Result != OutcomeLoss {
		t.Errorf("Expected synthesized loss, got %s", final.Result)
	}
}

func TestResult_ProofVerified(t *testing.T) {
	proof := signTestProof(t, testSharedSecret, "s-5")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ResultRecord{
			SessionID:  "s-5",
			Draw:       true,
			FinishedAt: time.Now().UTC(),
			Proof:      proof,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	record, err := client.Result(context.Background(), "s-5")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if record.OutcomeFor(client.Identity()) != OutcomeDraw {
		t.Errorf("Expected draw outcome, got %s", record.OutcomeFor(client.Identity()))
	}
}

func TestResult_ProofRejected(t *testing.T) {
	cases := []struct {
		name  string
		proof string
	}{
		{"wrong secret", signTestProof(t, "attacker-secret", "s-6")},
		{"wrong session", signTestProof(t, testSharedSecret, "s-999")},
		{"garbage", "not-a-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"sessionId":"s-6","pot":10,"finishedAt":"2026-08-30T12:00:00Z","proof":"%s"}`, tc.proof)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Result(context.Background(), "s-6")
			if !IsFault(err, FaultAuthFailure) {
				t.Fatalf("Expected AUTH_FAILURE for a bad proof, got %v", err)
			}
		})
	}
}

func TestResult_NoProofNoSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s-7","pot":60,"finishedAt":"2026-08-30T12:00:00Z"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Result(context.Background(), "s-7"); err != nil {
		t.Fatalf("A record without proof must pass through, got %v", err)
	}
}

// neverDecide fails the test if the decision function is ever invoked
func neverDecide(t *testing.T) DecideFunc {
	return func(context.Context, *StateSnapshot) (*Move, error) {
		t.Error("decide must not be invoked")
		return nil, nil
	}
}

// signTestProof issues an HS256 result proof the way the service does
func signTestProof(t *testing.T, secret, sessionID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sessionId": sessionID,
		"iat":       time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign proof: %v", err)
	}
	return signed
}
