package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dualarm/internal/calibration"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("calibration snapshot not found")

// SnapshotSummary is one row of List.
type SnapshotSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	HasGeometry bool      `json:"has_geometry"`
	HasCamera   bool      `json:"has_camera"`
	IssueCount  int       `json:"issue_count"`
	Note        string    `json:"note,omitempty"`
}

// SnapshotStore provides persistence for published calibration snapshots.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore wraps a database opened with Open.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func marshalOptional(v interface{}, present bool) (interface{}, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Save persists snap. A missing ID is filled with a new UUID. Saving an ID
// that already exists replaces the stored row.
func (s *SnapshotStore) Save(snap *calibration.Snapshot, note string) error {
	if snap == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	geometry, err := marshalOptional(snap.Block, snap.Block != nil)
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}
	camera, err := marshalOptional(snap.Camera, snap.Camera != nil)
	if err != nil {
		return fmt.Errorf("encode camera: %w", err)
	}
	diagnostics, err := json.Marshal(snap.Diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO calibration_snapshots (
				snapshot_id, created_at_ns, geometry_json, camera_json,
				diagnostics_json, issue_count, note
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.CreatedAt.UnixNano(), geometry, camera,
			string(diagnostics), len(snap.Diagnostics.Issues), note,
		)
		return err
	})
}

const selectSnapshot = `
	SELECT snapshot_id, created_at_ns, geometry_json, camera_json, diagnostics_json
	FROM calibration_snapshots`

func scanSnapshot(row *sql.Row) (*calibration.Snapshot, error) {
	var (
		snap                   calibration.Snapshot
		createdNs              int64
		geometryStr, cameraStr sql.NullString
		diagnosticsStr         string
	)
	if err := row.Scan(&snap.ID, &createdNs, &geometryStr, &cameraStr, &diagnosticsStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(0, createdNs).UTC()

	if geometryStr.Valid {
		snap.Block = &calibration.Block{}
		if err := json.Unmarshal([]byte(geometryStr.String), snap.Block); err != nil {
			return nil, fmt.Errorf("decode geometry of %s: %w", snap.ID, err)
		}
	}
	if cameraStr.Valid {
		snap.Camera = &calibration.Camera{}
		if err := json.Unmarshal([]byte(cameraStr.String), snap.Camera); err != nil {
			return nil, fmt.Errorf("decode camera of %s: %w", snap.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(diagnosticsStr), &snap.Diagnostics); err != nil {
		return nil, fmt.Errorf("decode diagnostics of %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// Get returns the snapshot with the given ID.
func (s *SnapshotStore) Get(id string) (*calibration.Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRow(selectSnapshot+` WHERE snapshot_id = ?`, id))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snap, err
}

// Latest returns the most recently created snapshot.
func (s *SnapshotStore) Latest() (*calibration.Snapshot, error) {
	return scanSnapshot(s.db.QueryRow(selectSnapshot + ` ORDER BY created_at_ns DESC, rowid DESC LIMIT 1`))
}

// List returns up to limit snapshot summaries, newest first. A limit of
// zero or less lists everything.
func (s *SnapshotStore) List(limit int) ([]SnapshotSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT snapshot_id, created_at_ns, geometry_json IS NOT NULL, camera_json IS NOT NULL,
		       issue_count, note
		FROM calibration_snapshots
		ORDER BY created_at_ns DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotSummary
	for rows.Next() {
		var (
			sum       SnapshotSummary
			createdNs int64
		)
		if err := rows.Scan(&sum.ID, &createdNs, &sum.HasGeometry, &sum.HasCamera, &sum.IssueCount, &sum.Note); err != nil {
			return nil, fmt.Errorf("scan snapshot summary: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots and returns how many rows
// were removed.
func (s *SnapshotStore) Prune(keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune: keep must be non-negative, got %d", keep)
	}
	var removed int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`
			DELETE FROM calibration_snapshots
			WHERE snapshot_id NOT IN (
				SELECT snapshot_id FROM calibration_snapshots
				ORDER BY created_at_ns DESC, rowid DESC
				LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}
