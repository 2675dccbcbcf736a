package arena

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"
)

// Request headers used by the service
const (
	headerSignature      = "x-signature"
	headerTimestamp      = "x-timestamp"
	headerSigner         = "x-signer"
	headerRequestID      = "x-request-id"
	headerPayment        = "x-payment"
	headerPaymentScheme  = "x-payment-scheme"
	headerPaymentNetwork = "x-payment-network"
)

// PaymentSigner produces the payment authorization attached to
// payment-aware calls. Implementations sign for their configured network;
// a nil amount means the signer's own limit applies.
type PaymentSigner interface {
	// Scheme returns the payment scheme identifier (e.g. "exact").
	Scheme() string

	// Network returns the network identifier (e.g. "eip155:8453").
	Network() string

	// Sign creates the encoded payment payload for the given resource.
	Sign(resource string, amount *big.Int) (string, error)
}

// requestOptions select per-call transport behavior. The payment strategy
// is injected per call site, never via a module-level override.
type requestOptions struct {
	signed         bool
	resourceID     string
	payment        PaymentSigner
	etagKey        string
	idempotencyKey string
}

// do executes one logical request with the bounded retry loop. Retries
// cover connection faults and faults the classifier marked retriable, up
// to RetryCount extra attempts; everything else surfaces immediately.
// The loop never touches session state.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, opts requestOptions, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = CanonicalJSON(body); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := c.attempt(ctx, method, path, payload, opts, result)
		if err == nil || errors.Is(err, ErrUnchanged) {
			return err
		}

		var fault *APIFault
		if !errors.As(err, &fault) {
			return err
		}
		if !fault.Retriable || attempt >= c.retryCount() {
			return fault
		}
		if err := sleepContext(ctx, c.backoff(attempt, fault.RetryAfter)); err != nil {
			return err
		}
	}
}

func (c *Client) retryCount() int {
	if c.config.RetryCount > 0 {
		return c.config.RetryCount
	}
	return DefaultConfig().RetryCount
}

// backoff computes the sleep before retry number attempt+1. The
// exponential term is capped; an explicit server hint is authoritative
// and wins when longer.
func (c *Client) backoff(attempt int, hint time.Duration) time.Duration {
	d := c.config.BackoffBase << uint(attempt)
	if d > c.config.BackoffCap {
		d = c.config.BackoffCap
	}
	if hint > d {
		d = hint
	}
	return d
}

// attempt performs a single HTTP round trip. Signatures use the wall
// clock at send time, so each retry signs fresh bytes and the service's
// clock-skew check sees a current timestamp.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, opts requestOptions, result interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if opts.signed {
		now := time.Now().UTC()
		req.Header.Set(headerSignature, c.signer.Sign(opts.resourceID, payload, now))
		req.Header.Set(headerTimestamp, strconv.FormatInt(now.UnixMilli(), 10))
		req.Header.Set(headerSigner, c.signer.Identity())
	}
	if opts.idempotencyKey != "" {
		req.Header.Set(headerRequestID, opts.idempotencyKey)
	}
	if opts.payment != nil {
		authorization, err := opts.payment.Sign(opts.resourceID, nil)
		if err != nil {
			return fmt.Errorf("failed to sign payment: %w", err)
		}
		req.Header.Set(headerPayment, authorization)
		req.Header.Set(headerPaymentScheme, opts.payment.Scheme())
		req.Header.Set(headerPaymentNetwork, opts.payment.Network())
	}
	if opts.etagKey != "" {
		if tag := c.etag(opts.etagKey); tag != "" {
			req.Header.Set("If-None-Match", tag)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connectionFault(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return connectionFault(err)
	}

	// 304 short-circuits before any error classification
	if resp.StatusCode == http.StatusNotModified {
		return ErrUnchanged
	}
	if resp.StatusCode >= 400 {
		return classify(resp.StatusCode, respBody, resp.Header, opts.resourceID)
	}

	if opts.etagKey != "" {
		if tag := resp.Header.Get("ETag"); tag != "" {
			c.setEtag(opts.etagKey, tag)
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// sleepContext sleeps for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
