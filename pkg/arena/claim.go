package arena

import (
	"context"
	"fmt"
	"math/big"
)

// ChainClient abstracts the two claim-contract calls. The caller supplies
// an implementation wrapping whatever chain stack it uses; beyond the
// balance-read and submit-and-confirm contract below the calls are black
// boxes.
type ChainClient interface {
	// ClaimableBalance reads the claimable balance for an address.
	ClaimableBalance(ctx context.Context, address string) (*big.Int, error)

	// SubmitClaim submits the withdrawal transaction and waits for
	// confirmation.
	SubmitClaim(ctx context.Context, address string) (*ClaimReceipt, error)
}

// ClaimReceipt reports the outcome of a submitted claim transaction
type ClaimReceipt struct {
	TxHash    string
	Confirmed bool
	Amount    *big.Int
}

// ClaimBridge wraps the claim contract with the check-then-act order that
// keeps guaranteed-empty claims from spending gas.
type ClaimBridge struct {
	chain    ChainClient
	address  string
	recorder EventRecorder
}

// NewClaimBridge creates a claim bridge for the given claim address
func NewClaimBridge(chain ChainClient, address string, recorder EventRecorder) *ClaimBridge {
	return &ClaimBridge{chain: chain, address: address, recorder: recorder}
}

// Claimable reads the current claimable balance
func (b *ClaimBridge) Claimable(ctx context.Context) (*big.Int, error) {
	balance, err := b.chain.ClaimableBalance(ctx, b.address)
	if err != nil {
		return nil, fmt.Errorf("failed to read claimable balance: %w", err)
	}
	return balance, nil
}

// Claim withdraws the claimable balance. A zero balance fails with
// NOTHING_TO_CLAIM before any transaction is submitted. A submitted
// transaction whose confirmation reports failure fails with a retriable
// CLAIM_REVERTED; a later attempt may succeed.
func (b *ClaimBridge) Claim(ctx context.Context) (*ClaimReceipt, error) {
	balance, err := b.Claimable(ctx)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, &APIFault{
			Kind:       FaultNothingToClaim,
			Message:    "no claimable balance",
			ResourceID: b.address,
		}
	}

	b.record(ctx, EventClaimStarted, balance)
	receipt, err := b.chain.SubmitClaim(ctx, b.address)
	if err != nil {
		return nil, fmt.Errorf("failed to submit claim: %w", err)
	}
	if !receipt.Confirmed {
		return nil, &APIFault{
			Kind:       FaultClaimReverted,
			Retriable:  true,
			Message:    "claim transaction reverted",
			ResourceID: receipt.TxHash,
		}
	}

	b.record(ctx, EventClaimSettled, receipt)
	return receipt, nil
}

func (b *ClaimBridge) record(ctx context.Context, event string, data interface{}) {
	if b.recorder == nil {
		return
	}
	b.recorder.Record(ctx, event, b.address, data)
}
