// Package stats provides process-lifetime counters for registry writes.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// UpsertStats counts registry writes since process start.
// All operations are safe for concurrent use.
type UpsertStats struct {
	inserted atomic.Int64
	updated  atomic.Int64
	selected atomic.Int64
	missed   atomic.Int64
	failed   atomic.Int64
}

// NewUpsertStats creates a zeroed UpsertStats.
func NewUpsertStats() *UpsertStats {
	return &UpsertStats{}
}

// RecordInsert counts an upsert that created a record.
func (s *UpsertStats) RecordInsert() { s.inserted.Add(1) }

// RecordUpdate counts an upsert that replaced a record.
func (s *UpsertStats) RecordUpdate() { s.updated.Add(1) }

// RecordSelection counts a selection that matched a record.
func (s *UpsertStats) RecordSelection() { s.selected.Add(1) }

// RecordSelectionMiss counts a selection for an unknown id.
func (s *UpsertStats) RecordSelectionMiss() { s.missed.Add(1) }

// RecordFailure counts a write that could not be persisted.
func (s *UpsertStats) RecordFailure() { s.failed.Add(1) }

// Inserted returns the number of inserts.
func (s *UpsertStats) Inserted() int64 { return s.inserted.Load() }

// Updated returns the number of updates.
func (s *UpsertStats) Updated() int64 { return s.updated.Load() }

// Selected returns the number of matched selections.
func (s *UpsertStats) Selected() int64 { return s.selected.Load() }

// SelectionMisses returns the number of selections for unknown ids.
func (s *UpsertStats) SelectionMisses() int64 { return s.missed.Load() }

// Failures returns the number of failed writes.
func (s *UpsertStats) Failures() int64 { return s.failed.Load() }

// Upserts returns inserts plus updates.
func (s *UpsertStats) Upserts() int64 {
	return s.Inserted() + s.Updated()
}

// Reset zeroes every counter.
func (s *UpsertStats) Reset() {
	s.inserted.Store(0)
	s.updated.Store(0)
	s.selected.Store(0)
	s.missed.Store(0)
	s.failed.Store(0)
}

// String returns a one-line summary.
func (s *UpsertStats) String() string {
	return fmt.Sprintf("inserted=%d updated=%d selected=%d missed=%d failed=%d",
		s.Inserted(), s.Updated(), s.Selected(), s.SelectionMisses(), s.Failures())
}

// LogSummary logs the counters at INFO level.
func (s *UpsertStats) LogSummary(logger *slog.Logger, entity string) {
	logger.Info("registry write statistics",
		"entity", entity,
		"inserted", s.Inserted(),
		"updated", s.Updated(),
		"selected", s.Selected(),
		"selection_misses", s.SelectionMisses(),
		"failed", s.Failures(),
	)
}
