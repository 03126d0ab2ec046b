package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const recordColumns = `id, sequence, isrc, payload, created_at, updated_at, deleted_at`

// RecordRepository implements models.Repository[*models.PersistedRecord] and [models.Sink] for canonical track records.
//
// Records are stored as JSON payloads indexed by ISRC, with one record_service_ids row per provider identifier.
// Accepting a record that shares an ISRC or a service identifier with a stored one replaces the stored payload.
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a new RecordRepository with the given database connection
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Accept stores rec, replacing the stored record it matches by ISRC or service identifier.
func (r *RecordRepository) Accept(ctx context.Context, rec *models.CanonicalTrackRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", shared.ErrInvalidArgument)
	}

	existing, err := r.match(ctx, rec)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return r.create(ctx, models.NewPersistedRecord(0, rec))
	case err != nil:
		return err
	}

	existing.SetRecord(rec)
	return r.update(ctx, existing)
}

// match finds the stored record sharing rec's ISRC, falling back to its service identifiers in service order.
func (r *RecordRepository) match(ctx context.Context, rec *models.CanonicalTrackRecord) (*models.PersistedRecord, error) {
	if isrc := strings.TrimSpace(rec.ISRC); isrc != "" {
		p, err := r.getBy(ctx, "isrc = ?", strings.ToUpper(isrc))
		if !errors.Is(err, shared.ErrNotFound) {
			return p, err
		}
	}

	services := make([]string, 0, len(rec.ServiceIDs))
	for s := range rec.ServiceIDs {
		services = append(services, s)
	}
	sort.Strings(services)
	for _, s := range services {
		p, err := r.getByServiceID(ctx, s, rec.ServiceIDs[s])
		if !errors.Is(err, shared.ErrNotFound) {
			return p, err
		}
	}
	return nil, shared.ErrNotFound
}

// Create inserts a new [models.PersistedRecord] into the database with generated ID and sequence
func (r *RecordRepository) Create(p *models.PersistedRecord) error {
	return r.create(context.Background(), p)
}

func (r *RecordRepository) create(ctx context.Context, p *models.PersistedRecord) error {
	sequence, err := NextSequence(r.db, "track_records")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	p.SetID(shared.GenerateID())
	p.SetSequence(sequence)
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := json.Marshal(p.Record())
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO track_records (id, sequence, isrc, title, artist, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		p.ID(),
		p.Sequence(),
		nullable(p.ISRC()),
		p.Record().Title,
		p.Record().PrimaryArtist(),
		string(payload),
		p.CreatedAt(),
		p.UpdatedAt(),
	); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	if err := replaceServiceIDs(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// Get retrieves a record by ID, excluding soft-deleted records
func (r *RecordRepository) Get(id string) (*models.PersistedRecord, error) {
	return r.getBy(context.Background(), "id = ?", id)
}

// GetByISRC retrieves the record carrying the given ISRC
func (r *RecordRepository) GetByISRC(isrc string) (*models.PersistedRecord, error) {
	return r.getBy(context.Background(), "isrc = ?", strings.ToUpper(strings.TrimSpace(isrc)))
}

// GetByServiceID retrieves the record a provider identifier belongs to
func (r *RecordRepository) GetByServiceID(service, serviceID string) (*models.PersistedRecord, error) {
	return r.getByServiceID(context.Background(), service, serviceID)
}

func (r *RecordRepository) getByServiceID(ctx context.Context, service, serviceID string) (*models.PersistedRecord, error) {
	return r.getBy(ctx, "id = (SELECT record_id FROM record_service_ids WHERE service = ? AND service_id = ?)", service, serviceID)
}

func (r *RecordRepository) getBy(ctx context.Context, where string, args ...any) (*models.PersistedRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM track_records WHERE ` + where + ` AND deleted_at IS NULL ORDER BY sequence DESC LIMIT 1`
	return scanRecord(r.db.QueryRowContext(ctx, query, args...))
}

// Update replaces the payload of an existing record
func (r *RecordRepository) Update(p *models.PersistedRecord) error {
	return r.update(context.Background(), p)
}

func (r *RecordRepository) update(ctx context.Context, p *models.PersistedRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := json.Marshal(p.Record())
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	now := time.Now().UTC()
	p.SetUpdatedAt(now)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE track_records
		SET isrc = ?, title = ?, artist = ?, payload = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query,
		nullable(p.ISRC()),
		p.Record().Title,
		p.Record().PrimaryArtist(),
		string(payload),
		now,
		p.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: record %s", shared.ErrNotFound, p.ID())
	}

	if err := replaceServiceIDs(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete soft-deletes a record by ID and releases its service identifiers
func (r *RecordRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE track_records SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: record %s", shared.ErrNotFound, id)
	}

	if _, err := tx.Exec(`DELETE FROM record_service_ids WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("failed to release service ids: %w", err)
	}
	return tx.Commit()
}

// List retrieves records matching the given criteria, newest first.
//
// Supported criteria: "isrc", "artist" and "service" (string) and "limit" (int).
func (r *RecordRepository) List(criteria map[string]any) ([]*models.PersistedRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM track_records WHERE deleted_at IS NULL`
	args := []any{}

	if isrc, ok := criteria["isrc"].(string); ok && isrc != "" {
		query += " AND isrc = ?"
		args = append(args, strings.ToUpper(isrc))
	}

	if artist, ok := criteria["artist"].(string); ok && artist != "" {
		query += " AND artist = ? COLLATE NOCASE"
		args = append(args, artist)
	}

	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND id IN (SELECT record_id FROM record_service_ids WHERE service = ?)"
		args = append(args, service)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.PersistedRecord
	for rows.Next() {
		p, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// replaceServiceIDs points every service identifier of p at p, taking identifiers over from other records.
func replaceServiceIDs(ctx context.Context, tx *sql.Tx, p *models.PersistedRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_service_ids WHERE record_id = ?`, p.ID()); err != nil {
		return fmt.Errorf("failed to clear service ids: %w", err)
	}
	for service, id := range p.Record().ServiceIDs {
		if service == "" || id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO record_service_ids (record_id, service, service_id) VALUES (?, ?, ?)`,
			p.ID(), service, id,
		); err != nil {
			return fmt.Errorf("failed to insert service id %s: %w", service, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a [sql.Row] or the current row of [sql.Rows] into a [models.PersistedRecord]
func scanRecord(s scanner) (*models.PersistedRecord, error) {
	var (
		id        string
		sequence  int
		isrc      sql.NullString
		payload   string
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := s.Scan(&id, &sequence, &isrc, &payload, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: record", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	var rec models.CanonicalTrackRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}

	p := models.NewPersistedRecord(sequence, &rec)
	p.SetID(id)
	p.SetCreatedAt(createdAt)
	p.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		p.SetDeletedAt(&deletedAt.Time)
	}
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
