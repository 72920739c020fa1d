package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/quietdesk/nudged/internal/domain"
)

// EncryptedJournal implements domain.Journal using a SQLCipher
// encrypted SQLite database. The journal holds what was said to the
// user and the scene that triggered it, so it is encrypted at rest.
type EncryptedJournal struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedJournal opens (or creates) the journal database at
// dbPath. The key is applied as the SQLCipher passphrase via DSN
// pragma.
func NewEncryptedJournal(dbPath string, key []byte) (*EncryptedJournal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	keyHex := hex.EncodeToString(key)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// A wrong key surfaces here, not at Open.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	j := &EncryptedJournal{db: db, dbPath: dbPath}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *EncryptedJournal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interventions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		suggestion TEXT NOT NULL,
		confidence REAL NOT NULL,
		scene TEXT NOT NULL,
		delivered_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interventions_delivered
		ON interventions(delivered_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends one delivered intervention.
func (j *EncryptedJournal) Record(ctx context.Context, rec domain.InterventionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO interventions (run_id, intent, suggestion, confidence, scene, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Intent, rec.Suggestion, rec.Confidence, rec.Scene, rec.DeliveredAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert intervention: %w", err)
	}
	return nil
}

// Recent returns up to limit interventions, newest first.
func (j *EncryptedJournal) Recent(ctx context.Context, limit int) ([]domain.InterventionRecord, error) {
	if limit < 1 {
		limit = 1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, intent, suggestion, confidence, scene, delivered_at
		FROM interventions
		ORDER BY delivered_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interventions: %w", err)
	}
	defer rows.Close()

	var records []domain.InterventionRecord
	for rows.Next() {
		var rec domain.InterventionRecord
		var deliveredAt int64
		if err := rows.Scan(&rec.RunID, &rec.Intent, &rec.Suggestion, &rec.Confidence, &rec.Scene, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan intervention: %w", err)
		}
		rec.DeliveredAt = time.Unix(deliveredAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interventions: %w", err)
	}
	return records, nil
}

// Count returns the total number of recorded interventions.
func (j *EncryptedJournal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interventions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count interventions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (j *EncryptedJournal) Close() error {
	return j.db.Close()
}

// Ensure EncryptedJournal implements domain.Journal.
var _ domain.Journal = (*EncryptedJournal)(nil)
