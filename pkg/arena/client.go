package arena

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Client is an Arena match service API client. One client holds one signer
// identity; a single session is driven by a single logical thread of
// control, but independent clients may run concurrently.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	signer     *Signer
	limiter    *rate.Limiter
	payment    PaymentSigner
	recorder   EventRecorder

	mu    sync.Mutex
	etags map[string]string
}

// NewClient creates a new arena client. It fails only when the configured
// key material is invalid.
func NewClient(config *ClientConfig) (*Client, error) {
	return NewClientWithHTTPClient(config, nil)
}

// NewClientWithHTTPClient creates a client with a custom HTTP client
func NewClientWithHTTPClient(config *ClientConfig, httpClient *http.Client) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = DefaultConfig().BackoffBase
	}
	if config.BackoffCap == 0 {
		config.BackoffCap = DefaultConfig().BackoffCap
	}

	signer, err := NewSigner(config.SignerKey)
	if err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	var limiter *rate.Limiter
	if config.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestRate), 1)
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		signer:     signer,
		limiter:    limiter,
		etags:      make(map[string]string),
	}, nil
}

// Identity returns the client's signer identity
func (c *Client) Identity() string {
	return c.signer.Identity()
}

// WithPayment attaches a payment signer used by payment-aware calls
func (c *Client) WithPayment(p PaymentSigner) *Client {
	c.payment = p
	return c
}

// WithRecorder attaches a lifecycle event recorder
func (c *Client) WithRecorder(r EventRecorder) *Client {
	c.recorder = r
	return c
}

func (c *Client) record(ctx context.Context, event, sessionID string, data interface{}) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(ctx, event, sessionID, data)
}

func (c *Client) etag(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.etags[key]
}

func (c *Client) setEtag(key, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.etags[key] = tag
}
