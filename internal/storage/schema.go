package storage

// SQLiteSchema creates the ledger tables for the embedded SQLite backend.
// AUTOINCREMENT keeps ids strictly monotonic, which retrieval relies on to
// break timestamp ties.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    name               TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    owner_wallet       TEXT NOT NULL,
    storage_id         TEXT NOT NULL,
    file_hash          TEXT NOT NULL,
    metadata_hash      TEXT NOT NULL,
    ai_report_hash     TEXT NOT NULL,
    completeness_score REAL NOT NULL DEFAULT 0,
    freshness_score    REAL NOT NULL DEFAULT 0,
    consistency_score  REAL NOT NULL DEFAULT 0,
    schema_score       REAL NOT NULL DEFAULT 0,
    verification_score REAL NOT NULL DEFAULT 0,
    trust_score        REAL NOT NULL,
    version            INTEGER NOT NULL DEFAULT 1 CHECK(version >= 1),
    revision           INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_datasets_file_hash ON datasets(file_hash)`,

	`CREATE TABLE IF NOT EXISTS dataset_versions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset_id     INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    version_number INTEGER NOT NULL CHECK(version_number >= 1),
    parent_version INTEGER NULL,
    file_hash      TEXT NOT NULL,
    created_at     TEXT NOT NULL,
    UNIQUE(dataset_id, version_number)
)`,
	`CREATE INDEX IF NOT EXISTS idx_versions_file_hash ON dataset_versions(file_hash)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset_id      INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    insight_text    TEXT NOT NULL,
    insight_hash    TEXT NOT NULL,
    confidence      REAL NOT NULL DEFAULT 0,
    dataset_version INTEGER NOT NULL,
    verified        INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_dataset ON ledger_entries(dataset_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_hash ON ledger_entries(insight_hash)`,

	`CREATE TABLE IF NOT EXISTS lifecycle_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL CHECK(event_type <> ''),
    metadata   TEXT NULL,
    created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_lifecycle_dataset ON lifecycle_events(dataset_id, created_at, id)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL CHECK(event_type <> ''),
    actor      TEXT NOT NULL,
    metadata   TEXT NULL,
    created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_dataset ON audit_events(dataset_id, created_at, id)`,

	// Trigram index over insight text, kept in sync by triggers. ledger_fts
	// was the earlier word-token index.
	`DROP TRIGGER IF EXISTS ledger_entries_ai`,
	`DROP TRIGGER IF EXISTS ledger_entries_ad`,
	`DROP TABLE IF EXISTS ledger_fts`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS ledger_trigram USING fts5(
    insight_text,
    content='ledger_entries',
    content_rowid='id',
    tokenize='trigram'
)`,
	`CREATE TRIGGER IF NOT EXISTS ledger_trigram_ai AFTER INSERT ON ledger_entries BEGIN
    INSERT INTO ledger_trigram(rowid, insight_text) VALUES (new.id, new.insight_text);
END`,
	`CREATE TRIGGER IF NOT EXISTS ledger_trigram_ad AFTER DELETE ON ledger_entries BEGIN
    INSERT INTO ledger_trigram(ledger_trigram, rowid, insight_text) VALUES('delete', old.id, old.insight_text);
END`,
	// Index rows written before the trigram table existed.
	`INSERT INTO ledger_trigram(ledger_trigram) SELECT 'rebuild'
    WHERE (SELECT COUNT(*) FROM ledger_trigram_docsize) <> (SELECT COUNT(*) FROM ledger_entries)`,
}

// MySQLSchema is the equivalent schema for a MySQL/MariaDB server.
var MySQLSchema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
    id                 BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    name               VARCHAR(255) NOT NULL,
    description        TEXT NOT NULL,
    owner_wallet       VARCHAR(255) NOT NULL,
    storage_id         VARCHAR(255) NOT NULL,
    file_hash          VARCHAR(128) NOT NULL,
    metadata_hash      VARCHAR(128) NOT NULL,
    ai_report_hash     VARCHAR(128) NOT NULL,
    completeness_score DOUBLE NOT NULL DEFAULT 0,
    freshness_score    DOUBLE NOT NULL DEFAULT 0,
    consistency_score  DOUBLE NOT NULL DEFAULT 0,
    schema_score       DOUBLE NOT NULL DEFAULT 0,
    verification_score DOUBLE NOT NULL DEFAULT 0,
    trust_score        DOUBLE NOT NULL,
    version            INT NOT NULL DEFAULT 1,
    revision           BIGINT NOT NULL DEFAULT 0,
    created_at         VARCHAR(40) NOT NULL,
    updated_at         VARCHAR(40) NOT NULL,
    INDEX idx_datasets_file_hash (file_hash)
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS dataset_versions (
    id             BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    dataset_id     BIGINT NOT NULL,
    version_number INT NOT NULL,
    parent_version INT NULL,
    file_hash      VARCHAR(128) NOT NULL,
    created_at     VARCHAR(40) NOT NULL,
    UNIQUE KEY uq_versions_dataset_number (dataset_id, version_number),
    INDEX idx_versions_file_hash (file_hash),
    FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
    id              BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    dataset_id      BIGINT NOT NULL,
    insight_text    TEXT NOT NULL,
    insight_hash    VARCHAR(128) NOT NULL,
    confidence      DOUBLE NOT NULL DEFAULT 0,
    dataset_version INT NOT NULL,
    verified        TINYINT(1) NOT NULL DEFAULT 0,
    created_at      VARCHAR(40) NOT NULL,
    INDEX idx_ledger_dataset (dataset_id, created_at, id),
    INDEX idx_ledger_hash (insight_hash),
    FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS lifecycle_events (
    id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    dataset_id BIGINT NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    metadata   TEXT NULL,
    created_at VARCHAR(40) NOT NULL,
    INDEX idx_lifecycle_dataset (dataset_id, created_at, id),
    FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS audit_events (
    id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    dataset_id BIGINT NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    actor      VARCHAR(255) NOT NULL,
    metadata   TEXT NULL,
    created_at VARCHAR(40) NOT NULL,
    INDEX idx_audit_dataset (dataset_id, created_at, id),
    FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
) ENGINE=InnoDB`,
}

// columnMigration adds a column that older databases were created without.
type columnMigration struct {
	table, column string
	sqliteDef     string
	mysqlDef      string
}

var columnMigrations = []columnMigration{
	{table: "ledger_entries", column: "confidence", sqliteDef: "REAL NOT NULL DEFAULT 0", mysqlDef: "DOUBLE NOT NULL DEFAULT 0"},
}

// sqlitePragmas is appended to SQLite file DSNs.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)"
