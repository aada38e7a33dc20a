package tablestore

import (
	"context"
	"encoding/json"

	"github.com/arborfield/actorcore/internal/lock"
	"github.com/google/uuid"
)

// Compact re-derives every row's baseline from the index entries actually
// present in storage, reconciling orphans a crash between Put's StoreBatch
// and a prior baseline can leave behind (spec §4.G: "a crash mid-batch
// leaves orphan index rows, corrected on next baseline reconciliation").
// It takes the table's lock over to exclusive mode and finalizes it when
// done: this is a one-time maintenance pass the caller runs when the table
// is otherwise quiesced, not something meant to interleave with ordinary
// traffic (spec §5: "exclusive upgrades are reserved for compaction").
func (s *Store) Compact(ctx context.Context) error {
	token := lock.Token(uuid.NewString())
	if err := s.lock.TakeOver(ctx, token); err != nil {
		return err
	}
	defer s.lock.Finalize()

	for shard := 0; shard < s.ShardCount; shard++ {
		if err := s.compactShard(ctx, shard); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) compactShard(ctx context.Context, shard int) error {
	partition := s.partitionFor(shard)

	baseRange := QueryRange{From: SortKey{"base"}, To: SortKey{"base" + "\xff"}, Strict: false}
	baseRes, err := s.Persist.Query(ctx, QueryInput{Partition: partition, Range: baseRange})
	if err != nil {
		return err
	}

	indexRange := QueryRange{From: SortKey{"index"}, To: SortKey{"index" + "\xff"}, Strict: false}
	indexRes, err := s.Persist.Query(ctx, QueryInput{Partition: partition, Range: indexRange})
	if err != nil {
		return err
	}

	actual := map[string]map[string]string{} // rowID -> entryKey -> hash
	for _, it := range indexRes.Items {
		if len(it.Sort) < 4 {
			continue
		}
		indexName := it.Sort[1]
		rowIDJSON := it.Sort[len(it.Sort)-2]
		hash := it.Sort[len(it.Sort)-1]
		keys := it.Sort[2 : len(it.Sort)-2]

		var rowID string
		if err := json.Unmarshal([]byte(rowIDJSON), &rowID); err != nil {
			continue
		}
		entryKey := indexName
		for _, k := range keys {
			entryKey += "\x1f" + k
		}
		if actual[rowID] == nil {
			actual[rowID] = map[string]string{}
		}
		actual[rowID][entryKey] = hash
	}

	var mutations []Mutation
	for _, it := range baseRes.Items {
		row, ok := it.Value.(BaseRow)
		if !ok || len(it.Sort) < 2 {
			continue
		}
		rowID := it.Sort[len(it.Sort)-1]
		reconciled := actual[rowID]
		if reconciled == nil {
			reconciled = map[string]string{}
		}
		if baselineEqual(row.Baseline, reconciled) {
			continue
		}
		mutations = append(mutations, Mutation{
			Partition: partition,
			Sort:      it.Sort,
			Value:     BaseRow{Data: row.Data, Baseline: reconciled},
		})
	}

	if len(mutations) == 0 {
		return nil
	}
	return s.Persist.StoreBatch(ctx, mutations)
}

func baselineEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
