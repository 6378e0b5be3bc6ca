// Package attest is the boundary to the external attestation authority that
// registers a dataset and hands back a transaction reference.
package attest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
)

// Request carries what the authority needs to register a dataset.
type Request struct {
	DatasetID int64
	FileHash  string
	StorageID string
}

// Receipt is the authority's answer.
type Receipt struct {
	TxHash  string
	Network string
	At      time.Time
}

// Registrar registers datasets with an attestation authority.
type Registrar interface {
	Register(ctx context.Context, req Request) (Receipt, error)
}

// Simulated mimics the DataHaven testnet: it returns a random 0x-prefixed
// transaction hash after an optional delay. No chain is contacted.
type Simulated struct {
	Network string
	Delay   time.Duration
}

// NewSimulated returns a simulated registrar for network.
func NewSimulated(network string) *Simulated {
	return &Simulated{Network: network}
}

func (s *Simulated) Register(ctx context.Context, req Request) (Receipt, error) {
	if req.FileHash == "" {
		return Receipt{}, errors.New("attest: file hash required")
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("attest: register dataset %d: %w", req.DatasetID, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("attest: register dataset %d: %w", req.DatasetID, err)
	}
	return Receipt{
		TxHash:  "0x" + hasher.RandomID(32),
		Network: s.Network,
		At:      time.Now().UTC(),
	}, nil
}

// Func adapts a plain function to Registrar.
type Func func(ctx context.Context, req Request) (Receipt, error)

func (f Func) Register(ctx context.Context, req Request) (Receipt, error) {
	return f(ctx, req)
}
