// Package repositories implements SQLite persistence for canonical records.
//
// [RecordRepository] is both a models.Repository[*models.PersistedRecord] and the [models.Sink] the
// command line hands merged records to. Records carry a sequence number for stable, human-readable
// ordering independent of UUIDs; [NextSequence] atomically increments per-table counters kept in
// dedicated sequence tables. Deletes are soft via deleted_at timestamps and deleted records are
// excluded from queries.
package repositories
