// Package sqlitekv is a tablestore.Persistence backend over a single
// cgo-free SQLite file (github.com/ncruces/go-sqlite3), serializing row
// values through the wire package and guarding storeBatch writers across
// processes sharing the file with an advisory flock (the same idiom the
// teacher's sync path uses around its own critical section).
package sqlitekv

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofrs/flock"

	"github.com/arborfield/actorcore/internal/tablestore"
	"github.com/arborfield/actorcore/internal/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	partition TEXT NOT NULL,
	sortkey   TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (partition, sortkey)
);
`

const keySeparator = "\x00"

// Store is a sqlitekv-backed tablestore.Persistence.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// Open opens (creating if needed) a SQLite file at path and ensures its
// schema exists. path+".lock" is used for the advisory write lock.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, lock: flock.New(path + ".lock")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func joinPartition(pk tablestore.PartitionKey) string {
	return strings.Join(pk, keySeparator)
}

func joinSort(sk tablestore.SortKey) string {
	return strings.Join(sk, keySeparator)
}

func (s *Store) Load(ctx context.Context, partition tablestore.PartitionKey, sortKey tablestore.SortKey, projection []string) (any, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE partition = ? AND sortkey = ?`,
		joinPartition(partition), joinSort(sortKey),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeValue(blob)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// StoreBatch applies every mutation inside one transaction, serializing
// concurrent writers across processes with an advisory file lock — spec
// §4.G step 5's "single storeBatch call carries all mutations" translated
// to a single SQL transaction.
func (s *Store) StoreBatch(ctx context.Context, mutations []tablestore.Mutation) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("%w: acquiring write lock: %w", tablestore.ErrTableError, err)
	}
	defer s.lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", tablestore.ErrTableError, err)
	}
	defer tx.Rollback()

	for _, m := range mutations {
		if m.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE partition = ? AND sortkey = ?`,
				joinPartition(m.Partition), joinSort(m.Sort)); err != nil {
				return fmt.Errorf("%w: %w", tablestore.ErrTableError, err)
			}
			continue
		}
		blob, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("%w: %w", tablestore.ErrTableError, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (partition, sortkey, value) VALUES (?, ?, ?)
			 ON CONFLICT(partition, sortkey) DO UPDATE SET value = excluded.value`,
			joinPartition(m.Partition), joinSort(m.Sort), blob); err != nil {
			return fmt.Errorf("%w: %w", tablestore.ErrTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", tablestore.ErrTableError, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, input tablestore.QueryInput) (tablestore.QueryResult, error) {
	partition := joinPartition(input.Partition)
	from := joinSort(input.Range.From)

	var rows *sql.Rows
	var err error
	if input.Range.Strict {
		to := joinSort(input.Range.To)
		rows, err = s.db.QueryContext(ctx,
			`SELECT sortkey, value FROM kv WHERE partition = ? AND sortkey >= ? AND sortkey <= ? ORDER BY sortkey`,
			partition, from, to)
	} else {
		upper := from + "\xff"
		rows, err = s.db.QueryContext(ctx,
			`SELECT sortkey, value FROM kv WHERE partition = ? AND sortkey >= ? AND sortkey < ? ORDER BY sortkey`,
			partition, from, upper)
	}
	if err != nil {
		return tablestore.QueryResult{}, err
	}
	defer rows.Close()

	maxItems := input.MaxItems
	if maxItems <= 0 {
		maxItems = 100
	}

	started := input.ContinuationToken == ""
	var items []tablestore.Item
	var lastSortKey string
	for rows.Next() {
		var sortkey string
		var blob []byte
		if err := rows.Scan(&sortkey, &blob); err != nil {
			return tablestore.QueryResult{}, err
		}
		if !started {
			if sortkey == input.ContinuationToken {
				started = true
			}
			continue
		}
		v, err := decodeValue(blob)
		if err != nil {
			return tablestore.QueryResult{}, err
		}
		data := dataOf(v)
		if input.Filter != nil && !input.Filter(data) {
			continue
		}
		if len(items) >= maxItems {
			return tablestore.QueryResult{Items: items, ContinuationToken: lastSortKey}, nil
		}
		items = append(items, tablestore.Item{Sort: strings.Split(sortkey, keySeparator), Value: v})
		lastSortKey = sortkey
	}
	if err := rows.Err(); err != nil {
		return tablestore.QueryResult{}, err
	}
	return tablestore.QueryResult{Items: items}, nil
}

func dataOf(v any) map[string]any {
	row, ok := v.(tablestore.BaseRow)
	if ok {
		return row.Data
	}
	return nil
}

// encodeValue/decodeValue bridge tablestore's stored value shapes (a
// BaseRow for base rows, a bare row-id string for index rows) to the wire
// package's {undefined, bool, number, string, bytes, list, map} universe.
func encodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case tablestore.BaseRow:
		baseline := make(map[string]any, len(x.Baseline))
		for k, hash := range x.Baseline {
			baseline[k] = hash
		}
		data := make(map[string]any, len(x.Data))
		for k, fv := range x.Data {
			data[k] = fv
		}
		return wire.Serialize(map[string]any{"kind": "base", "data": data, "baseline": baseline})
	case string:
		return wire.Serialize(map[string]any{"kind": "index", "rowID": x})
	default:
		return nil, fmt.Errorf("sqlitekv: unsupported value type %T", v)
	}
}

func decodeValue(blob []byte) (any, error) {
	v, err := wire.Deserialize(blob)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sqlitekv: corrupt value envelope")
	}
	switch m["kind"] {
	case "base":
		data, _ := m["data"].(map[string]any)
		baselineRaw, _ := m["baseline"].(map[string]any)
		baseline := make(map[string]string, len(baselineRaw))
		for k, hv := range baselineRaw {
			if s, ok := hv.(string); ok {
				baseline[k] = s
			}
		}
		return tablestore.BaseRow{Data: data, Baseline: baseline}, nil
	case "index":
		rowID, _ := m["rowID"].(string)
		return rowID, nil
	default:
		return nil, fmt.Errorf("sqlitekv: unknown stored value kind %v", m["kind"])
	}
}
