package attest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSimulatedRegister(t *testing.T) {
	s := NewSimulated("DataHaven Testnet")
	r, err := s.Register(context.Background(), Request{DatasetID: 1, FileHash: "abc"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.HasPrefix(r.TxHash, "0x") || len(r.TxHash) != 66 {
		t.Errorf("TxHash = %q, want 0x + 64 hex chars", r.TxHash)
	}
	if r.Network != "DataHaven Testnet" {
		t.Errorf("Network = %q", r.Network)
	}
}

func TestSimulatedRegisterRequiresHash(t *testing.T) {
	if _, err := NewSimulated("n").Register(context.Background(), Request{DatasetID: 1}); err == nil {
		t.Fatal("expected error for missing file hash")
	}
}

func TestSimulatedRegisterHonorsDeadline(t *testing.T) {
	s := &Simulated{Network: "n", Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Register(ctx, Request{DatasetID: 1, FileHash: "abc"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
