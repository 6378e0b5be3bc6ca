// Package provenance orchestrates the ledger: it ties the dataset record,
// version chain, insight ledger, event timeline and trust engine together and
// guarantees that every mutation of one dataset commits all of its side
// effects or none of them.
//
// Mutations take a per-dataset lock and run inside a single store transaction.
// The dataset row additionally carries a revision that the store checks on
// write, so a writer that bypasses the lock (another process sharing a MySQL
// backend) fails with Conflict instead of losing an update. Reads take no lock.
package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/attest"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/lifecycle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/locks"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/metrics"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/oracle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/proof"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/trust"
)

const tracerName = "github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"

// Config holds the tunables of the service.
type Config struct {
	DefaultScores             trust.SubScores
	VerificationBump          float64
	EnforceLifecycle          bool
	RecordFailedRegistrations bool
	AttestationTimeout        time.Duration
	AnalysisTimeout           time.Duration
	Network                   string
}

// DefaultConfig matches the behavior of the hosted ledger.
func DefaultConfig() Config {
	return Config{
		DefaultScores:             trust.DefaultSubScores(),
		VerificationBump:          50,
		RecordFailedRegistrations: true,
		AttestationTimeout:        10 * time.Second,
		AnalysisTimeout:           30 * time.Second,
		Network:                   proof.DefaultNetwork,
	}
}

// Service is safe for concurrent use.
type Service struct {
	store     *storage.Store
	engine    *trust.Engine
	proofs    *proof.Generator
	registrar attest.Registrar
	analyzer  oracle.Analyzer
	locks     *locks.Keyed
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRegistrar replaces the simulated attestation authority.
func WithRegistrar(r attest.Registrar) Option {
	return func(s *Service) { s.registrar = r }
}

// WithAnalyzer replaces the static analysis oracle.
func WithAnalyzer(a oracle.Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithProofGenerator replaces the storage proof generator.
func WithProofGenerator(g *proof.Generator) Option {
	return func(s *Service) { s.proofs = g }
}

// WithTracerProvider sets where spans go. The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// New builds a Service over store.
func New(store *storage.Store, engine *trust.Engine, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("provenance: store is required: %w", apperr.ErrInvalidInput)
	}
	if engine == nil {
		var err error
		if engine, err = trust.NewEngine(trust.DefaultWeights()); err != nil {
			return nil, err
		}
	}
	if !cfg.DefaultScores.InRange() {
		return nil, fmt.Errorf("provenance: default scores must be within [0,100]: %w", apperr.ErrInvalidInput)
	}
	if cfg.Network == "" {
		cfg.Network = proof.DefaultNetwork
	}
	s := &Service{
		store:     store,
		engine:    engine,
		proofs:    proof.NewGenerator(cfg.Network),
		registrar: attest.NewSimulated(cfg.Network),
		analyzer:  oracle.NewStatic(),
		locks:     locks.New(),
		cfg:       cfg,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Backend names the storage dialect in use.
func (s *Service) Backend() string {
	return string(s.store.Dialect())
}

// Engine exposes the trust engine in use.
func (s *Service) Engine() *trust.Engine {
	return s.engine
}

// begin opens a span and returns the function that closes it and records metrics.
func (s *Service) begin(ctx context.Context, op string, datasetID int64) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, "provenance."+op,
		trace.WithAttributes(attribute.Int64("dataset.id", datasetID)))
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ObserveOperation(op, apperr.Kind(err), time.Since(start))
	}
}

// mutate runs fn under the dataset's lock inside one transaction.
func (s *Service) mutate(ctx context.Context, datasetID int64, fn func(q *storage.Queries) error) error {
	unlock, err := s.locks.Lock(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("lock dataset %d: %w", datasetID, err)
	}
	defer unlock()
	return s.store.InTx(ctx, fn)
}

// appendLifecycle applies the ordering guard before writing the event. With
// enforcement off an out-of-order event is logged and written anyway.
func (s *Service) appendLifecycle(ctx context.Context, q *storage.Queries, datasetID int64, eventType string, metadata map[string]any) error {
	events, err := q.ListLifecycle(ctx, datasetID, storage.Ascending)
	if err != nil {
		return err
	}
	current := lifecycle.Derive(events)
	if err := lifecycle.Check(current, eventType); err != nil {
		if s.cfg.EnforceLifecycle {
			return err
		}
		metrics.RecordLifecycleWarning(eventType)
		s.logger.WarnContext(ctx, "lifecycle event out of order",
			"dataset_id", datasetID, "event_type", eventType, "stage", current.String())
	}
	_, err = q.AppendLifecycle(ctx, datasetID, eventType, metadata)
	return err
}

// rescore recomputes d's trust score from its sub-scores.
func (s *Service) rescore(d *models.Dataset) {
	d.TrustScore = s.engine.Compute(subScoresOf(d))
	metrics.ObserveTrustScore(d.TrustScore)
}

func requireID(datasetID int64) error {
	if datasetID <= 0 {
		return fmt.Errorf("dataset id must be positive: %w", apperr.ErrInvalidInput)
	}
	return nil
}
