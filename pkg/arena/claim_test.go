package arena

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

// stubChain implements ChainClient with scripted responses
type stubChain struct {
	balance    *big.Int
	balanceErr error
	receipt    *ClaimReceipt
	submitErr  error

	balanceCalls int
	submitCalls  int
}

func (c *stubChain) ClaimableBalance(ctx context.Context, address string) (*big.Int, error) {
	c.balanceCalls++
	return c.balance, c.balanceErr
}

func (c *stubChain) SubmitClaim(ctx context.Context, address string) (*ClaimReceipt, error) {
	c.submitCalls++
	return c.receipt, c.submitErr
}

func TestClaim_NothingToClaim(t *testing.T) {
	chain := &stubChain{balance: big.NewInt(0)}
	bridge := NewClaimBridge(chain, "0xabc", nil)

	_, err := bridge.Claim(context.Background())
	if !IsFault(err, FaultNothingToClaim) {
		t.Fatalf("Expected NOTHING_TO_CLAIM, got %v", err)
	}
	var fault *APIFault
	errors.As(err, &fault)
	if fault.Retriable {
		t.Error("NOTHING_TO_CLAIM must not be retriable")
	}
	if chain.submitCalls != 0 {
		t.Errorf("Zero balance must never submit a transaction, got %d submissions", chain.submitCalls)
	}
}

func TestClaim_SubmitsOnceAndSettles(t *testing.T) {
	chain := &stubChain{
		balance: big.NewInt(1500),
		receipt: &ClaimReceipt{TxHash: "0xdead", Confirmed: true, Amount: big.NewInt(1500)},
	}
	bridge := NewClaimBridge(chain, "0xabc", nil)

	receipt, err := bridge.Claim(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if receipt.TxHash != "0xdead" {
		t.Errorf("Expected receipt tx hash 0xdead, got %s", receipt.TxHash)
	}
	if chain.balanceCalls != 1 || chain.submitCalls != 1 {
		t.Errorf("Expected one balance read and one submission, got %d/%d",
			chain.balanceCalls, chain.submitCalls)
	}
}

func TestClaim_Reverted(t *testing.T) {
	chain := &stubChain{
		balance: big.NewInt(900),
		receipt: &ClaimReceipt{TxHash: "0xbeef", Confirmed: false},
	}
	bridge := NewClaimBridge(chain, "0xabc", nil)

	_, err := bridge.Claim(context.Background())
	if !IsFault(err, FaultClaimReverted) {
		t.Fatalf("Expected CLAIM_REVERTED, got %v", err)
	}
	var fault *APIFault
	errors.As(err, &fault)
	if !fault.Retriable {
		t.Error("CLAIM_REVERTED must be retriable: a later attempt may succeed")
	}
	if chain.submitCalls != 1 {
		t.Errorf("Expected exactly one submission, got %d", chain.submitCalls)
	}
}

func TestClaim_BalanceReadFailure(t *testing.T) {
	chain := &stubChain{balanceErr: errors.New("rpc unavailable")}
	bridge := NewClaimBridge(chain, "0xabc", nil)

	_, err := bridge.Claim(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if chain.submitCalls != 0 {
		t.Error("A failed balance read must not submit a transaction")
	}
}

func TestClaimable(t *testing.T) {
	chain := &stubChain{balance: big.NewInt(42)}
	bridge := NewClaimBridge(chain, "0xabc", nil)

	balance, err := bridge.Claimable(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("Expected balance 42, got %s", balance)
	}
	if chain.submitCalls != 0 {
		t.Error("Claimable is read-only")
	}
}
