package arena

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

const minKeyBytes = 16

// Signer produces request signatures from fixed key material. It is built
// once per client; construction is the only place key problems surface,
// signing itself never fails. The derived identity is stable for the
// signer's lifetime.
type Signer struct {
	key      []byte
	identity string
}

// NewSigner creates a signer from hex-encoded key material
func NewSigner(keyMaterial string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(keyMaterial, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid key material: %w", err)
	}
	if len(raw) < minKeyBytes {
		return nil, errors.New("key material too short")
	}

	// Identity is the low 20 bytes of keccak-256 over the key material,
	// rendered in Ethereum address form. The service addresses agents by it.
	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	sum := h.Sum(nil)

	return &Signer{
		key:      raw,
		identity: "0x" + hex.EncodeToString(sum[12:]),
	}, nil
}

// Identity returns the derived signer identity
func (s *Signer) Identity() string {
	return s.identity
}

// Sign computes the signature for one privileged request. The signed
// message is "{resourceID}:{canonicalPayload}:{timestamp}"; the payload
// must already be canonical so the bytes match the service's independent
// encoding. Deterministic for identical inputs.
func (s *Signer) Sign(resourceID string, canonicalPayload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s:%s:%d", resourceID, canonicalPayload, ts.UnixMilli())
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalJSON encodes v with lexicographically sorted keys and no
// extraneous whitespace. The round trip through a generic tree drops the
// caller's struct field order; json.Number keeps numerics byte-stable.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return canonical, nil
}
