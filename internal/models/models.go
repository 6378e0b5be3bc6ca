package models

import "time"

// Lifecycle event types. The set is open; these are the stages the service itself emits.
const (
	LifecycleUpload               = "UPLOAD"
	LifecycleVersioned            = "VERSIONED"
	LifecycleAnalyzed             = "ANALYZED"
	LifecycleVerified             = "VERIFIED"
	LifecycleBlockchainRegistered = "BLOCKCHAIN_REGISTERED"
)

// Audit event types.
const (
	AuditDatasetCreated       = "DATASET_CREATED"
	AuditVersionCreated       = "VERSION_CREATED"
	AuditAnalysisRun          = "ANALYSIS_RUN"
	AuditScoresUpdated        = "SCORES_UPDATED"
	AuditTrustRecomputed      = "TRUST_RECOMPUTED"
	AuditBlockchainRegistered = "BLOCKCHAIN_REGISTERED"
	AuditRegistrationFailed   = "BLOCKCHAIN_REGISTRATION_FAILED"
)

// SystemActor is recorded on audit events triggered by automation.
const SystemActor = "system"

// Dataset is the aggregate root: current scores, version and content hashes.
type Dataset struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	OwnerWallet       string    `json:"owner_wallet"`
	StorageID         string    `json:"storage_id"`
	FileHash          string    `json:"file_hash"`
	MetadataHash      string    `json:"metadata_hash"`
	AIReportHash      string    `json:"ai_report_hash"`
	CompletenessScore float64   `json:"completeness_score"`
	FreshnessScore    float64   `json:"freshness_score"`
	ConsistencyScore  float64   `json:"consistency_score"`
	SchemaScore       float64   `json:"schema_score"`
	VerificationScore float64   `json:"verification_score"`
	TrustScore        float64   `json:"trust_score"`
	Version           int       `json:"version"`
	Revision          int64     `json:"revision"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DatasetVersion is one point in a dataset's content lineage.
type DatasetVersion struct {
	ID            int64     `json:"id"`
	DatasetID     int64     `json:"dataset_id"`
	VersionNumber int       `json:"version_number"`
	ParentVersion *int      `json:"parent_version"`
	FileHash      string    `json:"file_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerEntry is an immutable, hash-addressed insight tied to a dataset version.
type LedgerEntry struct {
	ID             int64     `json:"id"`
	DatasetID      int64     `json:"dataset_id"`
	InsightText    string    `json:"insight_text"`
	InsightHash    string    `json:"insight_hash"`
	Confidence     float64   `json:"confidence"`
	DatasetVersion int       `json:"dataset_version"`
	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnalysisReport summarizes every insight recorded for a dataset.
type AnalysisReport struct {
	DatasetID         int64         `json:"dataset_id"`
	Version           int           `json:"version"`
	AIReportHash      string        `json:"ai_report_hash"`
	InsightCount      int           `json:"insight_count"`
	AverageConfidence float64       `json:"average_confidence"`
	LastAnalyzedAt    *time.Time    `json:"last_analyzed_at,omitempty"`
	Insights          []LedgerEntry `json:"insights"`
}

// LifecycleEvent marks where a dataset is in its verification pipeline.
type LifecycleEvent struct {
	ID        int64          `json:"id"`
	DatasetID int64          `json:"dataset_id"`
	EventType string         `json:"event_type"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditEvent attributes an action to an actor.
type AuditEvent struct {
	ID        int64          `json:"id"`
	DatasetID int64          `json:"dataset_id"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// StorageProof is a simulated storage attestation. It is never persisted.
type StorageProof struct {
	ProofID      string    `json:"proof_id"`
	DatasetID    int64     `json:"dataset_id"`
	StorageNodes []string  `json:"storage_nodes"`
	MerkleRoot   string    `json:"merkle_root"`
	Timestamp    time.Time `json:"timestamp"`
	Network      string    `json:"network"`
	Verified     bool      `json:"verified"`
}

// TrustBreakdown exposes the five sub-scores, the derived total and the weights used.
type TrustBreakdown struct {
	DatasetID    int64              `json:"dataset_id"`
	Completeness float64            `json:"completeness"`
	Freshness    float64            `json:"freshness"`
	Consistency  float64            `json:"consistency"`
	Schema       float64            `json:"schema"`
	Verification float64            `json:"verification"`
	Total        float64            `json:"total"`
	Weights      map[string]float64 `json:"weights"`
}

// Registration is the outcome of registerAttestation.
type Registration struct {
	DatasetID         int64   `json:"dataset_id"`
	ProofRef          string  `json:"proof_ref"`
	Status            string  `json:"status"`
	Network           string  `json:"network"`
	VerificationScore float64 `json:"verification_score"`
	TrustScore        float64 `json:"trust_score"`
}

// HashVerification reports whether a hash is known to the ledger.
type HashVerification struct {
	Hash      string    `json:"hash"`
	Verified  bool      `json:"verified"`
	Matches   []string  `json:"matches,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
