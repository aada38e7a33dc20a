// Package tablestore implements the table-actor storage mapping from spec
// §4.G: a partitioned key-value persistence wrapper that gives each actor's
// rows a canonical base entry plus a set of secondary-index entries kept in
// sync with it, searchable by a compiled sort-key range and residual
// filter predicate.
package tablestore

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"

	"github.com/arborfield/actorcore/internal/lock"
)

// ErrTableError is raised when a StoreBatch reports unprocessed items; spec
// §4.G step 5: "failure with any unprocessedItems raises TABLE_ERROR —
// caller retries."
var ErrTableError = errors.New("tablestore: TABLE_ERROR")

// PartitionKey and SortKey are the ordered string segments the underlying
// Persistence addresses rows by.
type PartitionKey []string
type SortKey []string

// Mutation is one write in a StoreBatch call: either an upsert (Delete
// false, Value set) or a tombstone (Delete true).
type Mutation struct {
	Partition PartitionKey
	Sort      SortKey
	Value     any
	Delete    bool
}

// Item is one row surfaced by Query.
type Item struct {
	Sort  SortKey
	Value any
}

// QueryRange is the compiled sort-key bound a Search produces from its
// leading key conditions (spec §4.G's sort-key phase table).
type QueryRange struct {
	From   SortKey
	To     SortKey
	Strict bool // false = loose/prefix match mode
}

// QueryInput is the full argument bundle a Persistence.Query call takes.
type QueryInput struct {
	Partition          PartitionKey
	Range              QueryRange
	Filter             FilterExpr
	Projection         []string
	ContinuationToken  string
	MaxItems           int
}

// QueryResult is one page of a Query call.
type QueryResult struct {
	Items             []Item
	ContinuationToken string
}

// Persistence is the partitioned KV backend a Store wraps (spec §4.G's
// "partitioned KV persistence service").
type Persistence interface {
	Load(ctx context.Context, partition PartitionKey, sort SortKey, projection []string) (any, bool, error)
	StoreBatch(ctx context.Context, mutations []Mutation) error
	Query(ctx context.Context, input QueryInput) (QueryResult, error)
}

// BaseRow is the value stored at a row's base sort key: the caller's data
// plus the baseline index-entry hashes used to diff the next Put (spec
// §4.G steps 1-3).
type BaseRow struct {
	Data     map[string]any
	Baseline map[string]string // index-entry key (joined) -> content hash
}

// IndexSpec is one secondary index a Put call should maintain, named and
// keyed by a subset of the row's fields (spec §4.G: "['index', indexName,
// …indexKeys, rowIdJSON, contentHash]").
type IndexSpec struct {
	Name string
	Keys []string // field names read from Data, in key order
}

// Store is one table-actor's storage mapping: a Persistence backend plus
// one table-wide lock and a fixed shard count (spec §5: "table actions use the
// shared-lock mode, so multiple reads/writes coexist; exclusive upgrades
// are reserved for compaction").
type Store struct {
	ActorType  string
	ID         []string
	Persist    Persistence
	ShardCount int
	lock       *lock.Lock
}

// New returns a Store for one actor's table, locked independently of every
// other actor's Store (per spec §5's per-object serialization guarantee).
func New(actorType string, id []string, persist Persistence, shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = 1
	}
	return &Store{
		ActorType:  actorType,
		ID:         id,
		Persist:    persist,
		ShardCount: shardCount,
		lock:       lock.New(lock.PriorityShared),
	}
}

// shardFor buckets a row id deterministically across ShardCount shards.
func (s *Store) shardFor(rowID string) int {
	if s.ShardCount <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(rowID))
	return int(h.Sum32() % uint32(s.ShardCount))
}

// partitionFor builds the fixed partition spec §4.G names: ['Table',
// len(id), …id, shard].
func (s *Store) partitionFor(shard int) PartitionKey {
	pk := make(PartitionKey, 0, 3+len(s.ID))
	pk = append(pk, "Table", strconv.Itoa(len(s.ID)))
	pk = append(pk, s.ID...)
	pk = append(pk, strconv.Itoa(shard))
	return pk
}

func baseSortKey(rowID string) SortKey {
	return SortKey{"base", rowID}
}

func indexSortKey(indexName string, indexKeys []string, rowIDJSON, contentHash string) SortKey {
	sk := make(SortKey, 0, 3+len(indexKeys))
	sk = append(sk, "index", indexName)
	sk = append(sk, indexKeys...)
	sk = append(sk, rowIDJSON, contentHash)
	return sk
}
