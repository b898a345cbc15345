package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/domu/internal/geo"
	"github.com/onnwee/domu/internal/kvstore"
	"github.com/onnwee/domu/internal/stats"
)

// DefaultKey is the storage key holding the registry document.
const DefaultKey = "domu.communityMaps"

// Errors returned by registry writes.
var (
	// ErrStorageRead means the current registry could not be loaded, so the
	// write was not attempted.
	ErrStorageRead = errors.New("community registry: storage read failed")

	// ErrStorageWrite means the merged registry could not be persisted.
	ErrStorageWrite = errors.New("community registry: storage write failed")
)

// Stats aggregates the registry.
type Stats struct {
	TotalCommunities  int     `json:"totalCommunities"`
	MappedCommunities int     `json:"mappedCommunities"`
	EstimatedUsers    float64 `json:"estimatedUsers"`
	TotalSelections   int     `json:"totalSelections"`
	TotalSubmissions  int     `json:"totalSubmissions"`
}

// Marker is a mapped community for map display.
type Marker struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Geohash   string  `json:"geohash"`
}

// Registry is the community registry cache. Each write is one
// read-modify-write of the whole document; writes within a process are
// serialized, writers in other processes are last-write-wins.
type Registry struct {
	store   kvstore.Store
	key     string
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
	counts  *stats.UpsertStats

	mu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(r *Registry) {
		if key != "" {
			r.key = key
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithUpsertStats attaches process-lifetime write counters.
func WithUpsertStats(s *stats.UpsertStats) Option {
	return func(r *Registry) {
		if s != nil {
			r.counts = s
		}
	}
}

// NewRegistry creates a registry over store. A nil store behaves as
// kvstore.Unavailable.
func NewRegistry(store kvstore.Store, opts ...Option) *Registry {
	if store == nil {
		store = kvstore.Unavailable{}
	}
	r := &Registry{
		store:  store,
		key:    DefaultKey,
		now:    time.Now,
		logger: slog.Default(),
		counts: stats.NewUpsertStats(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the storage key.
func (r *Registry) Key() string {
	return r.key
}

// UpsertStats returns the write counters.
func (r *Registry) UpsertStats() *stats.UpsertStats {
	return r.counts
}

// load reads and decodes the registry. Corrupt payloads read as empty with a
// nil error; only backend failures are returned.
func (r *Registry) load(ctx context.Context) ([]Record, error) {
	payload, found, err := r.store.Get(ctx, r.key)
	if err != nil {
		r.metrics.incStorageError("read")
		r.logger.ErrorContext(ctx, "failed to read community registry", "key", r.key, "error", err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	records, err := decodeRegistry(payload)
	if err != nil {
		r.metrics.incCorruptRead()
		r.logger.WarnContext(ctx, "community registry payload is corrupt, treating as empty", "key", r.key, "error", err)
		return nil, nil
	}
	return records, nil
}

func (r *Registry) save(ctx context.Context, records []Record) error {
	payload, err := encodeRegistry(records)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStorageWrite, err)
	}
	if err := r.store.Set(ctx, r.key, payload); err != nil {
		r.metrics.incStorageError("write")
		r.logger.ErrorContext(ctx, "failed to persist community registry", "key", r.key, "error", err)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	r.metrics.setSize(len(records))
	return nil
}

// List returns every record, most recently updated first.
func (r *Registry) List(ctx context.Context) []Record {
	records, _ := r.load(ctx)
	sortRecords(records)
	return records
}

// GetByID returns the record whose id equals the trimmed id.
func (r *Registry) GetByID(ctx context.Context, id string) (Record, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, false
	}
	records, _ := r.load(ctx)
	if i := indexOf(records, id); i >= 0 {
		return records[i], true
	}
	return Record{}, false
}

// RegisterCommunity upserts in. The id is in.ID when present or derived from
// name, address and coordinates. Present fields overwrite, absent fields fall
// back to the stored record and then to defaults. The merged record is
// returned even when persisting it fails.
func (r *Registry) RegisterCommunity(ctx context.Context, in Input) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		r.counts.RecordFailure()
		return Record{}, fmt.Errorf("%w: %v", ErrStorageRead, err)
	}

	id := DeriveID(in)
	idx := indexOf(records, id)
	var prev *Record
	if idx >= 0 {
		prev = &records[idx]
	}

	merged := merge(prev, in, id, formatTimestamp(r.now()))
	if idx >= 0 {
		records[idx] = merged
	} else {
		records = append(records, merged)
	}

	if err := r.save(ctx, records); err != nil {
		r.counts.RecordFailure()
		return merged.clone(), err
	}

	if prev != nil {
		r.counts.RecordUpdate()
		r.metrics.incRegistration("updated")
	} else {
		r.counts.RecordInsert()
		r.metrics.incRegistration("inserted")
		r.logger.DebugContext(ctx, "community registered", "id", id)
	}
	return merged.clone(), nil
}

// RegisterSelection counts a selection of id. It reports false, without
// writing, when id is empty or unknown.
func (r *Registry) RegisterSelection(ctx context.Context, id string) (Record, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		r.counts.RecordSelectionMiss()
		r.metrics.incSelection("miss")
		return Record{}, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		r.counts.RecordFailure()
		return Record{}, false, fmt.Errorf("%w: %v", ErrStorageRead, err)
	}
	idx := indexOf(records, id)
	if idx < 0 {
		r.counts.RecordSelectionMiss()
		r.metrics.incSelection("miss")
		return Record{}, false, nil
	}

	ts := formatTimestamp(r.now())
	rec := records[idx]
	rec.SelectionCount = addCount(rec.SelectionCount, 1)
	rec.UpdatedAt = ts
	rec.LastSelectedAt = &ts
	records[idx] = rec

	if err := r.save(ctx, records); err != nil {
		r.counts.RecordFailure()
		return rec.clone(), true, err
	}
	r.counts.RecordSelection()
	r.metrics.incSelection("hit")
	return rec.clone(), true, nil
}

// Stats aggregates counts over every record.
func (r *Registry) Stats(ctx context.Context) Stats {
	records, _ := r.load(ctx)
	var s Stats
	s.TotalCommunities = len(records)
	for _, rec := range records {
		if rec.Mapped() {
			s.MappedCommunities++
		}
		if rec.UnitsCount != nil {
			s.EstimatedUsers += *rec.UnitsCount
		}
		s.TotalSelections = addCount(s.TotalSelections, rec.SelectionCount)
		s.TotalSubmissions = addCount(s.TotalSubmissions, rec.Submissions)
	}
	return s
}

// MapMarkers returns every mapped record in List order with a geohash of the
// given precision (geo.DefaultPrecision when precision < 1).
func (r *Registry) MapMarkers(ctx context.Context, precision int) []Marker {
	precision = geo.ClampPrecision(precision)
	markers := []Marker{}
	for _, rec := range r.List(ctx) {
		if !rec.Mapped() || !geo.ValidCoordinates(*rec.Latitude, *rec.Longitude) {
			continue
		}
		markers = append(markers, Marker{
			ID:        rec.ID,
			Name:      rec.Name,
			Latitude:  *rec.Latitude,
			Longitude: *rec.Longitude,
			Geohash:   geo.Encode(*rec.Latitude, *rec.Longitude, precision),
		})
	}
	return markers
}

// merge builds the record written by an upsert of in over prev (nil for a
// new record).
func merge(prev *Record, in Input, id, now string) Record {
	var base Record
	if prev != nil {
		base = prev.clone()
	} else {
		base = Record{Source: DefaultSource, Status: DefaultStatus}
	}

	out := Record{
		ID:         id,
		Name:       pickString(in.Name, base.Name),
		Address:    pickString(in.Address, base.Address),
		Commune:    pickString(in.Commune, base.Commune),
		City:       pickString(in.City, base.City),
		PostalCode: pickString(in.PostalCode, base.PostalCode),
		TowerLabel: pickString(in.TowerLabel, base.TowerLabel),
		Latitude:   pickNumber(in.Latitude, base.Latitude),
		Longitude:  pickNumber(in.Longitude, base.Longitude),
		Floors:     pickNumber(in.Floors, base.Floors),
		UnitsCount: pickNumber(in.UnitsCount, base.UnitsCount),
		Source:     pickNonEmpty(in.Source, base.Source),
		Status:     pickString(in.Status, base.Status),

		Submissions:    max(1, addCount(base.Submissions, 1)),
		SelectionCount: base.SelectionCount,

		CreatedAt:      base.CreatedAt,
		UpdatedAt:      now,
		LastSelectedAt: base.LastSelectedAt,
	}
	if out.CreatedAt == "" {
		out.CreatedAt = now
	}
	return out
}

func pickString(in *string, fallback string) string {
	if in == nil {
		return fallback
	}
	return strings.TrimSpace(*in)
}

// pickNonEmpty is pickString where a blank input also keeps the fallback.
func pickNonEmpty(in *string, fallback string) string {
	if v := pickString(in, fallback); v != "" {
		return v
	}
	return fallback
}

func pickNumber(in Number, fallback *float64) *float64 {
	if !in.Present {
		return fallback
	}
	if in.Value == nil {
		return nil
	}
	return finite(*in.Value)
}

func indexOf(records []Record, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].sortTime().After(records[j].sortTime())
	})
}
