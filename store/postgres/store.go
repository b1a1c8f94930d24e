// Package postgres implements types.CoordinationStore on a PostgreSQL table.
//
// All partition items live in one table keyed by (source_identifier,
// partition_key). Every write bumps a version column and updates are
// conditional on the version the caller read. Acquisition is a single
// UPDATE whose target row is picked by a FOR UPDATE SKIP LOCKED sub-select,
// so concurrent acquirers never receive the same row and never block each
// other.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "sourcecoord_partition_items"

// DB is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements types.CoordinationStore on PostgreSQL.
type Store struct {
	db      DB
	table   string
	reclaim bool
	now     func() time.Time
	logger  types.Logger

	qGet     string
	qAcquire string
	qUpdate  string
	qCreate  string
	qQuery   string
}

// Compile-time assertion that Store implements CoordinationStore.
var _ types.CoordinationStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTable sets the table name.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// WithClock overrides the time source used for lease deadlines and eligibility.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLeaseReclaim enables or disables reclaiming expired ASSIGNED items.
func WithLeaseReclaim(enabled bool) Option {
	return func(s *Store) {
		s.reclaim = enabled
	}
}

// NewStore returns a store on db. Call Migrate once before first use.
//
// Example:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	_ = postgres.Migrate(ctx, pool, "")
//	store := postgres.NewStore(pool)
func NewStore(db DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		table:   DefaultTable,
		reclaim: true,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prepareQueries()

	return s
}

const itemColumns = `source_identifier, partition_key, status, owner, ownership_timeout,
	progress_state, closed_count, reopen_at, priority_timestamp, version`

func (s *Store) prepareQueries() {
	t := pgx.Identifier{s.table}.Sanitize()

	s.qGet = fmt.Sprintf(`SELECT %s FROM %s WHERE source_identifier = $1 AND partition_key = $2`, itemColumns, t)

	// $1 source, $2 owner, $3 lease deadline, $4 now, $5 reclaim expired leases
	s.qAcquire = fmt.Sprintf(`UPDATE %[1]s SET status = 'ASSIGNED', owner = $2, ownership_timeout = $3, version = version + 1
WHERE (source_identifier, partition_key) = (
	SELECT source_identifier, partition_key FROM %[1]s
	WHERE source_identifier = $1 AND NOT is_global_state AND (
		status = 'UNASSIGNED'
		OR (status = 'CLOSED' AND (reopen_at IS NULL OR reopen_at <= $4))
		OR ($5 AND status = 'ASSIGNED' AND ownership_timeout IS NOT NULL AND ownership_timeout <= $4)
	)
	ORDER BY CASE
		WHEN status = 'UNASSIGNED' THEN NULL
		WHEN status = 'CLOSED' THEN reopen_at
		ELSE ownership_timeout
	END ASC NULLS FIRST, created_at, partition_key
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING %[2]s`, t, itemColumns)

	s.qUpdate = fmt.Sprintf(`UPDATE %s SET status = $3, owner = $4, ownership_timeout = $5, progress_state = $6,
	closed_count = $7, reopen_at = $8, priority_timestamp = $9, version = version + 1
WHERE source_identifier = $1 AND partition_key = $2 AND version = $10
RETURNING version`, t)

	s.qCreate = fmt.Sprintf(`INSERT INTO %s (source_identifier, partition_key, status, closed_count, progress_state, is_global_state)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_identifier, partition_key) DO NOTHING`, t)

	s.qQuery = fmt.Sprintf(`SELECT %s FROM %s
WHERE source_identifier = $1 AND status = $2 AND ($3::timestamptz IS NULL OR priority_timestamp >= $3)
ORDER BY priority_timestamp NULLS FIRST, partition_key`, itemColumns, t)
}

// itemRow mirrors itemColumns for pgx.RowToStructByName.
type itemRow struct {
	SourceIdentifier  string     `db:"source_identifier"`
	PartitionKey      string     `db:"partition_key"`
	Status            string     `db:"status"`
	Owner             *string    `db:"owner"`
	OwnershipTimeout  *time.Time `db:"ownership_timeout"`
	ProgressState     []byte     `db:"progress_state"`
	ClosedCount       int64      `db:"closed_count"`
	ReopenAt          *time.Time `db:"reopen_at"`
	PriorityTimestamp *time.Time `db:"priority_timestamp"`
	Version           int64      `db:"version"`
}

func (r itemRow) toItem() types.PartitionItem {
	item := types.PartitionItem{
		SourceIdentifier:  r.SourceIdentifier,
		PartitionKey:      r.PartitionKey,
		Status:            types.Status(r.Status),
		ProgressState:     r.ProgressState,
		ClosedCount:       r.ClosedCount,
		OwnershipTimeout:  fromNullTime(r.OwnershipTimeout),
		ReopenAt:          fromNullTime(r.ReopenAt),
		PriorityTimestamp: fromNullTime(r.PriorityTimestamp),
		Version:           uint64(r.Version), //nolint:gosec // version starts at 1 and only grows
	}
	if r.Owner != nil {
		item.Owner = *r.Owner
	}

	return item
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return t.UTC()
}

func toNullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()

	return &u
}

func toNullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func (s *Store) queryOne(ctx context.Context, sql string, args ...any) (types.PartitionItem, bool, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return types.PartitionItem{}, false, err
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[itemRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PartitionItem{}, false, nil
		}

		return types.PartitionItem{}, false, err
	}

	return row.toItem(), true, nil
}

// GetSourcePartitionItem returns the item stored under (sourceIdentifier, partitionKey).
func (s *Store) GetSourcePartitionItem(ctx context.Context, sourceIdentifier, partitionKey string) (types.PartitionItem, bool, error) {
	item, ok, err := s.queryOne(ctx, s.qGet, sourceIdentifier, partitionKey)
	if err != nil {
		return types.PartitionItem{}, false, fmt.Errorf("get partition item: %w", err)
	}

	return item, ok, nil
}

// TryAcquireAvailablePartition leases the next eligible item of sourceIdentifier
// in one statement.
func (s *Store) TryAcquireAvailablePartition(
	ctx context.Context,
	sourceIdentifier, ownerID string,
	ownershipTimeout time.Duration,
) (types.PartitionItem, bool, error) {
	now := s.now().UTC()

	item, ok, err := s.queryOne(ctx, s.qAcquire, sourceIdentifier, ownerID, now.Add(ownershipTimeout), now, s.reclaim)
	if err != nil {
		return types.PartitionItem{}, false, fmt.Errorf("acquire partition item: %w", err)
	}
	if ok {
		s.logger.Debug("acquired partition", "source_identifier", sourceIdentifier, "partition_key", item.PartitionKey, "owner", ownerID)
	}

	return item, ok, nil
}

// TryUpdateSourcePartitionItem persists item if its row still has version item.Version.
func (s *Store) TryUpdateSourcePartitionItem(ctx context.Context, item *types.PartitionItem) (bool, error) {
	rows, err := s.db.Query(ctx, s.qUpdate,
		item.SourceIdentifier,
		item.PartitionKey,
		string(item.Status),
		toNullString(item.Owner),
		toNullTime(item.OwnershipTimeout),
		item.ProgressState,
		item.ClosedCount,
		toNullTime(item.ReopenAt),
		toNullTime(item.PriorityTimestamp),
		int64(item.Version), //nolint:gosec // versions fit in BIGINT
	)
	if err != nil {
		return false, fmt.Errorf("update partition item: %w", err)
	}

	version, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("update partition item: %w", err)
	}
	item.Version = uint64(version) //nolint:gosec // version starts at 1 and only grows

	return true, nil
}

// TryCreatePartitionItem creates a new item unless the key already exists.
func (s *Store) TryCreatePartitionItem(
	ctx context.Context,
	sourceIdentifier, partitionKey string,
	status types.Status,
	closedCount int64,
	progressState []byte,
	isGlobalState bool,
) (bool, error) {
	if isGlobalState != types.IsGlobalStateIdentifier(sourceIdentifier) {
		return false, fmt.Errorf("%w: global-state flag does not match identifier %q",
			types.ErrInvalidPartitionType, sourceIdentifier)
	}

	tag, err := s.db.Exec(ctx, s.qCreate, sourceIdentifier, partitionKey, string(status), closedCount, progressState, isGlobalState)
	if err != nil {
		return false, fmt.Errorf("create partition item: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// QuerySourcePartitionItemsByStatus returns items of sourceIdentifier in status
// whose PriorityTimestamp is at or after since, ordered by PriorityTimestamp.
func (s *Store) QuerySourcePartitionItemsByStatus(
	ctx context.Context,
	sourceIdentifier string,
	status types.Status,
	since time.Time,
) ([]types.PartitionItem, error) {
	rows, err := s.db.Query(ctx, s.qQuery, sourceIdentifier, string(status), toNullTime(since))
	if err != nil {
		return nil, fmt.Errorf("query partition items: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[itemRow])
	if err != nil {
		return nil, fmt.Errorf("query partition items: %w", err)
	}

	items := make([]types.PartitionItem, 0, len(collected))
	for _, row := range collected {
		items = append(items, row.toItem())
	}

	return items, nil
}
