// Package arena provides a client for the Arena heads-up match service.
//
// The client orchestrates the full life cycle of a matched two-party
// turn-based session over HTTP: joining the queue, waiting for a match,
// polling and submitting moves, and terminal settlement. It absorbs the
// unreliability of the service behind a closed typed-error taxonomy with
// bounded retries, and signs every privileged request.
//
// # Authentication
//
// Privileged requests carry three headers:
//   - x-signature: HMAC-SHA256 over "{resourceId}:{canonicalPayload}:{timestamp}"
//   - x-timestamp: wall-clock milliseconds at send time
//   - x-signer: the identity derived from the client's key material
//
// Payloads are canonicalized (sorted keys, compact encoding) before
// signing so the signed bytes match the service's own encoding.
//
// # Basic Usage
//
//	client, err := arena.NewClient(&arena.ClientConfig{
//	    BaseURL:   "https://play.arena.example",
//	    SignerKey: os.Getenv("ARENA_SIGNER_KEY"),
//	})
//
//	if _, err := client.Join(ctx, "headsup-100"); err != nil { ... }
//	sessionID, err := client.AwaitMatch(ctx, 5*time.Minute, 2*time.Second)
//	final, err := client.PlayLoop(ctx, sessionID, decide, 2*time.Second)
//
// # Error Handling
//
// Failures surface as *APIFault values with a closed Kind set and
// explicit Retriable/RetryAfter metadata:
//
//	_, err := client.Join(ctx, kind)
//	if arena.IsFault(err, arena.FaultPaymentRequired) {
//	    // fund the stake, then re-join
//	}
//
// Retriable faults are retried inside the request engine up to its
// budget; once exhausted they still surface, and callers retry at
// session level (re-join) rather than per call.
package arena
