package provenance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/attest"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/lifecycle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/oracle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/proof"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "trust-ledger-provenance-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// setupService returns a Service over a fresh SQLite store.
func setupService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), tempDir(t))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc, err := New(store, nil, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func createDataset(t *testing.T, svc *Service, name string) *models.Dataset {
	t.Helper()
	d, err := svc.CreateDataset(context.Background(), CreateDatasetInput{
		Name:        name,
		Description: "quarterly sales",
		OwnerWallet: "0xabc",
		ContentHash: hasher.HashString(name + " content"),
		Filename:    name + ".csv",
	})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	return d
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCreateDataset(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "sales")

	if !approx(d.TrustScore, 69.25) {
		t.Errorf("TrustScore = %v, want 69.25", d.TrustScore)
	}
	if d.Version != 1 {
		t.Errorf("Version = %d, want 1", d.Version)
	}
	if d.AIReportHash != PendingReport {
		t.Errorf("AIReportHash = %q, want %q", d.AIReportHash, PendingReport)
	}
	if len(d.StorageID) != len("datahaven://")+32 {
		t.Errorf("StorageID = %q", d.StorageID)
	}
	if len(d.MetadataHash) != 64 {
		t.Errorf("MetadataHash = %q, want 64 hex chars", d.MetadataHash)
	}

	versions, err := svc.GetVersions(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || versions[0].VersionNumber != 1 || versions[0].ParentVersion != nil {
		t.Errorf("versions = %+v, want single root version", versions)
	}

	timeline, _ := svc.GetTimeline(ctx, d.ID, storage.Ascending)
	if len(timeline) != 1 || timeline[0].EventType != models.LifecycleUpload {
		t.Fatalf("timeline = %+v, want one UPLOAD", timeline)
	}
	if timeline[0].Metadata["filename"] != "sales.csv" {
		t.Errorf("UPLOAD metadata = %v", timeline[0].Metadata)
	}

	audit, _ := svc.GetAuditLog(ctx, d.ID, storage.Ascending)
	if len(audit) != 1 || audit[0].EventType != models.AuditDatasetCreated {
		t.Fatalf("audit = %+v, want one DATASET_CREATED", audit)
	}
	if audit[0].Actor != "0xabc" {
		t.Errorf("Actor = %q, want owner", audit[0].Actor)
	}

	b, err := svc.GetTrustBreakdown(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Completeness != 80 || b.Freshness != 70 || b.Consistency != 75 || b.Schema != 85 || b.Verification != 0 {
		t.Errorf("breakdown = %+v", b)
	}
	if b.Weights["completeness"] != 0.30 || b.Weights["verification"] != 0.10 {
		t.Errorf("weights = %v", b.Weights)
	}
}

func TestCreateDatasetValidation(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	tests := []struct {
		name string
		in   CreateDatasetInput
	}{
		{"missing name", CreateDatasetInput{OwnerWallet: "w", ContentHash: "h"}},
		{"missing owner", CreateDatasetInput{Name: "n", ContentHash: "h"}},
		{"missing hash", CreateDatasetInput{Name: "n", OwnerWallet: "w"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDataset(context.Background(), tt.in)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("err = %v, want InvalidInput", err)
			}
		})
	}
	list, _ := svc.ListDatasets(context.Background())
	if len(list) != 0 {
		t.Errorf("Expected no datasets after invalid input, got %d", len(list))
	}
}

func TestRecordAnalysis(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "analysis")

	e, err := svc.RecordAnalysis(ctx, d.ID, "Sales peak in December", 0.9)
	if err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}
	if e.DatasetVersion != 1 || !e.Verified {
		t.Errorf("entry = %+v", e)
	}
	if e.InsightHash != hasher.HashString("Sales peak in December") {
		t.Errorf("InsightHash = %q", e.InsightHash)
	}

	got, _ := svc.GetDataset(ctx, d.ID)
	if got.AIReportHash == PendingReport {
		t.Error("AIReportHash should be updated after analysis")
	}
	stage, _ := svc.Stage(ctx, d.ID)
	if stage != lifecycle.StageAnalyzed {
		t.Errorf("Stage = %v, want ANALYZED", stage)
	}

	audit, _ := svc.GetAuditLog(ctx, d.ID, storage.Descending)
	if audit[0].EventType != models.AuditAnalysisRun || audit[0].Actor != models.SystemActor {
		t.Errorf("latest audit = %+v", audit[0])
	}
}

func TestRecordAnalysisDuplicateText(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "dup")

	svc.RecordAnalysis(ctx, d.ID, "same", 0.5)
	svc.RecordAnalysis(ctx, d.ID, "same", 0.5)

	entries, err := svc.GetLedger(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].InsightHash != entries[1].InsightHash {
		t.Error("Identical text should hash identically")
	}
}

func TestRecordAnalysisEmptyText(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	d := createDataset(t, svc, "empty")
	_, err := svc.RecordAnalysis(context.Background(), d.ID, "", 0.5)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}

func TestAnalyzeUsesOracle(t *testing.T) {
	svc := setupService(t, DefaultConfig(), WithAnalyzer(oracle.NewStatic(
		oracle.Insight{Text: "first", Confidence: 0.8},
		oracle.Insight{Text: "second", Confidence: 0.6},
	)))
	ctx := context.Background()
	d := createDataset(t, svc, "oracle")

	entries, err := svc.Analyze(ctx, d.ID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	timeline, _ := svc.GetTimeline(ctx, d.ID, storage.Ascending)
	if len(timeline) != 2 {
		t.Errorf("Expected UPLOAD and one ANALYZED, got %d events", len(timeline))
	}
}

func TestAnalyzeOracleFailureWritesNothing(t *testing.T) {
	svc := setupService(t, DefaultConfig(), WithAnalyzer(oracle.Func(func(ctx context.Context, req oracle.Request) ([]oracle.Insight, error) {
		return nil, errors.New("model unavailable")
	})))
	ctx := context.Background()
	d := createDataset(t, svc, "fail")

	if _, err := svc.Analyze(ctx, d.ID); !errors.Is(err, apperr.ErrInternal) {
		t.Fatalf("err = %v, want Internal", err)
	}
	entries, _ := svc.GetLedger(ctx, d.ID)
	if len(entries) != 0 {
		t.Errorf("Expected empty ledger, got %d", len(entries))
	}
}

func TestRegisterAttestationBumpsAndClamps(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "register")

	v := 60.0
	if _, err := svc.UpdateSubScores(ctx, d.ID, ScoreUpdate{Verification: &v}, "tester"); err != nil {
		t.Fatal(err)
	}

	reg, err := svc.RegisterAttestation(ctx, d.ID, "0xabc")
	if err != nil {
		t.Fatalf("RegisterAttestation: %v", err)
	}
	if reg.VerificationScore != 100 {
		t.Errorf("VerificationScore = %v, want 100", reg.VerificationScore)
	}
	if reg.Status != StatusRegistered || reg.Network != proof.DefaultNetwork {
		t.Errorf("registration = %+v", reg)
	}
	if len(reg.ProofRef) != 66 || reg.ProofRef[:2] != "0x" {
		t.Errorf("ProofRef = %q, want 0x + 64 hex", reg.ProofRef)
	}
	if !approx(reg.TrustScore, 69.25+10) {
		t.Errorf("TrustScore = %v, want 79.25", reg.TrustScore)
	}

	reg2, err := svc.RegisterAttestation(ctx, d.ID, "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if reg2.VerificationScore != 100 {
		t.Errorf("second VerificationScore = %v, want 100", reg2.VerificationScore)
	}
	if reg2.ProofRef == reg.ProofRef {
		t.Error("each registration should get a fresh proof reference")
	}

	timeline, _ := svc.GetTimeline(ctx, d.ID, storage.Ascending)
	var verified, registered int
	for _, e := range timeline {
		switch e.EventType {
		case models.LifecycleVerified:
			verified++
		case models.LifecycleBlockchainRegistered:
			registered++
		}
	}
	if verified != 2 || registered != 2 {
		t.Errorf("VERIFIED=%d BLOCKCHAIN_REGISTERED=%d, want 2 each", verified, registered)
	}

	got, _ := svc.GetDataset(ctx, d.ID)
	if !approx(got.TrustScore, svc.Engine().Compute(subScoresOf(got))) {
		t.Errorf("stored trust %v does not match its sub-scores", got.TrustScore)
	}
}

func TestRegisterAttestationFailureLeavesStateUntouched(t *testing.T) {
	svc := setupService(t, DefaultConfig(), WithRegistrar(attest.Func(func(ctx context.Context, req attest.Request) (attest.Receipt, error) {
		return attest.Receipt{}, errors.New("network unreachable")
	})))
	ctx := context.Background()
	d := createDataset(t, svc, "fails")

	if _, err := svc.RegisterAttestation(ctx, d.ID, "0xabc"); err == nil {
		t.Fatal("Expected registration error")
	}
	got, _ := svc.GetDataset(ctx, d.ID)
	if got.VerificationScore != 0 || !approx(got.TrustScore, 69.25) {
		t.Errorf("scores changed on failure: %+v", got)
	}
	timeline, _ := svc.GetTimeline(ctx, d.ID, storage.Ascending)
	if len(timeline) != 1 {
		t.Errorf("Expected only UPLOAD, got %d events", len(timeline))
	}
	audit, _ := svc.GetAuditLog(ctx, d.ID, storage.Descending)
	if audit[0].EventType != models.AuditRegistrationFailed {
		t.Errorf("latest audit = %q, want %q", audit[0].EventType, models.AuditRegistrationFailed)
	}
}

func TestRegisterAttestationTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttestationTimeout = 20 * time.Millisecond
	cfg.RecordFailedRegistrations = false
	slow := &attest.Simulated{Network: "slow", Delay: time.Second}
	svc := setupService(t, cfg, WithRegistrar(slow))
	d := createDataset(t, svc, "slow")

	_, err := svc.RegisterAttestation(context.Background(), d.ID, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	audit, _ := svc.GetAuditLog(context.Background(), d.ID, storage.Ascending)
	if len(audit) != 1 {
		t.Errorf("Expected no failure audit when disabled, got %d events", len(audit))
	}
}

func TestEnforcedLifecycleRejectsSkippingAnalysis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceLifecycle = true
	svc := setupService(t, cfg)
	ctx := context.Background()
	d := createDataset(t, svc, "strict")

	if _, err := svc.RegisterAttestation(ctx, d.ID, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	got, _ := svc.GetDataset(ctx, d.ID)
	if got.VerificationScore != 0 {
		t.Errorf("VerificationScore = %v, want unchanged 0", got.VerificationScore)
	}

	if _, err := svc.RecordAnalysis(ctx, d.ID, "looks fine", 0.9); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RegisterAttestation(ctx, d.ID, ""); err != nil {
		t.Fatalf("register after analysis: %v", err)
	}
}

func TestAdvisoryLifecycleAllowsSkippingAnalysis(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	d := createDataset(t, svc, "lenient")
	if _, err := svc.RegisterAttestation(context.Background(), d.ID, ""); err != nil {
		t.Fatalf("advisory mode should allow registration before analysis: %v", err)
	}
}

func TestEnforcedLifecycleDoesNotContactAuthority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceLifecycle = true
	var calls atomic.Int32
	svc := setupService(t, cfg, WithRegistrar(attest.Func(func(ctx context.Context, req attest.Request) (attest.Receipt, error) {
		calls.Add(1)
		return attest.Receipt{TxHash: "0xissued"}, nil
	})))
	ctx := context.Background()
	d := createDataset(t, svc, "unanalyzed")

	if _, err := svc.RegisterAttestation(ctx, d.ID, "0xabc"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("authority called %d times, want 0", n)
	}
	audit, _ := svc.GetAuditLog(ctx, d.ID, storage.Descending)
	if audit[0].EventType != models.AuditRegistrationFailed || audit[0].Actor != "0xabc" {
		t.Errorf("latest audit = %+v, want a failed registration by 0xabc", audit[0])
	}
	if audit[0].Metadata["error"] == nil {
		t.Error("failed registration should record the rejection reason")
	}
}

func TestRegistrationKeepsIssuedTxWhenCommitFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The caller goes away after the authority answered but before the commit.
	svc := setupService(t, DefaultConfig(), WithRegistrar(attest.Func(func(context.Context, attest.Request) (attest.Receipt, error) {
		cancel()
		return attest.Receipt{TxHash: "0xorphan", Network: "testnet"}, nil
	})))
	d := createDataset(t, svc, "orphan")

	if _, err := svc.RegisterAttestation(ctx, d.ID, ""); err == nil {
		t.Fatal("Expected registration error")
	}
	bg := context.Background()
	got, _ := svc.GetDataset(bg, d.ID)
	if got.VerificationScore != 0 {
		t.Errorf("VerificationScore = %v, want 0", got.VerificationScore)
	}
	audit, _ := svc.GetAuditLog(bg, d.ID, storage.Descending)
	if audit[0].EventType != models.AuditRegistrationFailed {
		t.Fatalf("latest audit = %q, want %q", audit[0].EventType, models.AuditRegistrationFailed)
	}
	if audit[0].Metadata["txHash"] != "0xorphan" {
		t.Errorf("metadata = %v, want the issued txHash", audit[0].Metadata)
	}
}

func TestCreateVersion(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "versions")

	v2, err := svc.CreateVersion(ctx, d.ID, "hash-v2", 1, "0xabc")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if v2.VersionNumber != 2 || *v2.ParentVersion != 1 {
		t.Errorf("v2 = %+v", v2)
	}
	got, _ := svc.GetDataset(ctx, d.ID)
	if got.Version != 2 || got.FileHash != "hash-v2" {
		t.Errorf("dataset not moved to new head: version=%d hash=%q", got.Version, got.FileHash)
	}

	// Ledger entries recorded now belong to version 2.
	e, _ := svc.RecordAnalysis(ctx, d.ID, "after upgrade", 0.7)
	if e.DatasetVersion != 2 {
		t.Errorf("DatasetVersion = %d, want 2", e.DatasetVersion)
	}

	_, err = svc.CreateVersion(ctx, d.ID, "hash-fork", 1, "0xabc")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale parent err = %v, want Conflict", err)
	}
	versions, _ := svc.GetVersions(ctx, d.ID)
	if len(versions) != 2 {
		t.Errorf("Expected 2 versions after conflict, got %d", len(versions))
	}
}

func TestUpdateSubScoresClampsAndRecomputes(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "scores")

	over, under := 150.0, -5.0
	b, err := svc.UpdateSubScores(ctx, d.ID, ScoreUpdate{Completeness: &over, Freshness: &under}, "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Completeness != 100 || b.Freshness != 0 {
		t.Errorf("clamped = %v, %v", b.Completeness, b.Freshness)
	}
	want := 0.30*100 + 0.25*0 + 0.20*75 + 0.15*85 + 0.10*0
	if !approx(b.Total, want) {
		t.Errorf("Total = %v, want %v", b.Total, want)
	}

	if _, err := svc.UpdateSubScores(ctx, d.ID, ScoreUpdate{}, ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty update err = %v, want InvalidInput", err)
	}
}

func TestRecompute(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "recompute")

	score, err := svc.Recompute(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(score, 69.25) {
		t.Errorf("score = %v, want 69.25", score)
	}
	if _, err := svc.Recompute(ctx, 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestUnknownDatasetIsNotFound(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	const missing = 9999

	checks := map[string]error{}
	_, checks["GetTrustBreakdown"] = svc.GetTrustBreakdown(ctx, missing)
	_, checks["GetTimeline"] = svc.GetTimeline(ctx, missing, storage.Ascending)
	_, checks["GetAuditLog"] = svc.GetAuditLog(ctx, missing, storage.Ascending)
	_, checks["GetLedger"] = svc.GetLedger(ctx, missing)
	_, checks["GetVersions"] = svc.GetVersions(ctx, missing)
	_, checks["GetStorageProof"] = svc.GetStorageProof(ctx, missing)
	_, checks["RecordAnalysis"] = svc.RecordAnalysis(ctx, missing, "x", 1)
	_, checks["RegisterAttestation"] = svc.RegisterAttestation(ctx, missing, "")
	_, checks["CreateVersion"] = svc.CreateVersion(ctx, missing, "h", 1, "")
	checks["DeleteDataset"] = svc.DeleteDataset(ctx, missing, "")

	for name, err := range checks {
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s: err = %v, want NotFound", name, err)
		}
	}
	if _, err := svc.GetDataset(ctx, 0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("id 0 err = %v, want InvalidInput", err)
	}
}

func TestStorageProofVerifies(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "proof")

	p1, err := svc.GetStorageProof(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := svc.GetStorageProof(ctx, d.ID)
	if p1.ProofID == p2.ProofID {
		t.Error("proofs should be regenerated on every call")
	}
	if !p1.Verified || !proof.Verify(*p1, d.FileHash) {
		t.Error("proof should verify against the dataset hash")
	}
	if proof.Verify(*p1, "other") {
		t.Error("proof should not verify against another hash")
	}

	p3, err := svc.GenerateStorageProof(ctx, d.ID, "explicit")
	if err != nil {
		t.Fatal(err)
	}
	if !proof.Verify(*p3, "explicit") {
		t.Error("explicit proof should verify")
	}
}

func TestVerifyHash(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "verify")
	e, _ := svc.RecordAnalysis(ctx, d.ID, "noted", 0.5)

	res, err := svc.VerifyHash(ctx, d.FileHash)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Verified {
		t.Errorf("file hash should verify: %+v", res)
	}
	res, _ = svc.VerifyHash(ctx, e.InsightHash)
	if !res.Verified || len(res.Matches) != 1 || res.Matches[0] != "insight:1" {
		t.Errorf("insight hash result = %+v", res)
	}
	res, _ = svc.VerifyHash(ctx, hasher.HashString("never stored"))
	if res.Verified {
		t.Error("unknown hash should not verify")
	}
	if _, err := svc.VerifyHash(ctx, " "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty hash err = %v, want InvalidInput", err)
	}
}

func TestDeleteDataset(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "delete")
	svc.RecordAnalysis(ctx, d.ID, "bye", 0.5)

	if err := svc.DeleteDataset(ctx, d.ID, "0xabc"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetLedger(ctx, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestConcurrentMutationsKeepScoreConsistent(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "race")

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := svc.RegisterAttestation(ctx, d.ID, "")
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			v := float64(i * 10)
			_, err := svc.UpdateSubScores(ctx, d.ID, ScoreUpdate{Schema: &v}, "")
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := svc.RecordAnalysis(ctx, d.ID, "concurrent insight", 0.5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent op: %v", err)
		}
	}

	got, err := svc.GetDataset(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got.TrustScore, svc.Engine().Compute(subScoresOf(got))) {
		t.Errorf("trust %v inconsistent with sub-scores %+v", got.TrustScore, subScoresOf(got))
	}
	if got.VerificationScore != 100 {
		t.Errorf("VerificationScore = %v, want 100", got.VerificationScore)
	}
	if got.Revision != 30 {
		t.Errorf("Revision = %d, want 30 serialized writes", got.Revision)
	}
	entries, _ := svc.GetLedger(ctx, d.ID)
	if len(entries) != 10 {
		t.Errorf("Expected 10 ledger entries, got %d", len(entries))
	}
}

func TestConcurrentCreateVersionAllowsOneChild(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "fork-race")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateVersion(ctx, d.ID, hasher.HashString(fmt.Sprintf("child %d", i)), 1, "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("ok = %d, conflicts = %d, want 1 and %d", ok, conflicts, n-1)
	}

	versions, err := svc.GetVersions(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 || versions[0].VersionNumber != 1 || versions[1].VersionNumber != 2 {
		t.Errorf("versions = %+v, want [1 2]", versions)
	}
	got, _ := svc.GetDataset(ctx, d.ID)
	if got.Version != 2 {
		t.Errorf("dataset version = %d, want 2", got.Version)
	}
}

func TestGetReport(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	ctx := context.Background()
	d := createDataset(t, svc, "report")

	empty, err := svc.GetReport(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if empty.InsightCount != 0 || empty.Insights == nil || empty.LastAnalyzedAt != nil || empty.AIReportHash != PendingReport {
		t.Errorf("report before analysis = %+v", empty)
	}

	svc.RecordAnalysis(ctx, d.ID, "Revenue peaks in Q4", 0.9)
	svc.RecordAnalysis(ctx, d.ID, "Two regions miss values", 0.5)

	report, err := svc.GetReport(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.InsightCount != 2 || len(report.Insights) != 2 {
		t.Fatalf("report = %+v, want 2 insights", report)
	}
	if report.Insights[0].Confidence != 0.9 || report.Insights[1].Confidence != 0.5 {
		t.Errorf("confidences = %v, %v", report.Insights[0].Confidence, report.Insights[1].Confidence)
	}
	if !approx(report.AverageConfidence, 0.7) {
		t.Errorf("AverageConfidence = %v, want 0.7", report.AverageConfidence)
	}
	if report.LastAnalyzedAt == nil || !report.LastAnalyzedAt.Equal(report.Insights[1].CreatedAt) {
		t.Errorf("LastAnalyzedAt = %v", report.LastAnalyzedAt)
	}

	if _, err := svc.GetReport(ctx, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestRecordAnalysisRejectsConfidenceOutOfRange(t *testing.T) {
	svc := setupService(t, DefaultConfig())
	d := createDataset(t, svc, "confidence")
	for _, c := range []float64{-0.1, 1.5, math.NaN()} {
		if _, err := svc.RecordAnalysis(context.Background(), d.ID, "insight", c); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("confidence %v: err = %v, want InvalidInput", c, err)
		}
	}
}
