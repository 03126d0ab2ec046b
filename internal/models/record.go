package models

import (
	"fmt"
	"strings"
	"time"
)

// PersistedRecord is a [CanonicalTrackRecord] accepted by the record sink.
type PersistedRecord struct {
	id        string
	sequence  int
	record    *CanonicalTrackRecord
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewPersistedRecord wraps rec with fresh timestamps. The ID is assigned by the repository.
func NewPersistedRecord(sequence int, rec *CanonicalTrackRecord) *PersistedRecord {
	now := time.Now().UTC()
	return &PersistedRecord{sequence: sequence, record: rec, createdAt: now, updatedAt: now}
}

func (p *PersistedRecord) ID() string                    { return p.id }
func (p *PersistedRecord) Sequence() int                 { return p.sequence }
func (p *PersistedRecord) Record() *CanonicalTrackRecord { return p.record }
func (p *PersistedRecord) CreatedAt() time.Time          { return p.createdAt }
func (p *PersistedRecord) UpdatedAt() time.Time          { return p.updatedAt }
func (p *PersistedRecord) DeletedAt() *time.Time         { return p.deletedAt }

func (p *PersistedRecord) SetID(id string)                     { p.id = id }
func (p *PersistedRecord) SetSequence(n int)                   { p.sequence = n }
func (p *PersistedRecord) SetRecord(rec *CanonicalTrackRecord) { p.record = rec }
func (p *PersistedRecord) SetCreatedAt(t time.Time)            { p.createdAt = t }
func (p *PersistedRecord) SetUpdatedAt(t time.Time)            { p.updatedAt = t }
func (p *PersistedRecord) SetDeletedAt(t *time.Time)           { p.deletedAt = t }

// ISRC returns the record's ISRC, uppercased.
func (p *PersistedRecord) ISRC() string {
	if p.record == nil {
		return ""
	}
	return strings.ToUpper(p.record.ISRC)
}

// Validate checks the record still satisfies the canonical schema's required fields.
func (p *PersistedRecord) Validate() error {
	if p.id == "" {
		return fmt.Errorf("record ID is required")
	}
	if p.record == nil {
		return fmt.Errorf("record payload is required")
	}
	if strings.TrimSpace(p.record.Title) == "" {
		return fmt.Errorf("record title is required")
	}
	if len(p.record.Artists) == 0 {
		return fmt.Errorf("record artists are required")
	}
	return nil
}
