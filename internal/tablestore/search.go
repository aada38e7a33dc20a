package tablestore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/arborfield/actorcore/internal/lock"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// SearchInput describes a Search call over one table actor's rows (spec
// §4.G's Search algorithm). IndexName empty means "search the base
// namespace directly"; set it (with IndexKeys matching the index's
// declared key order) to search a secondary index instead, in which case
// hits are resolved back to primary rows.
type SearchInput struct {
	IndexName         string
	IndexKeys         []string
	Conditions        []Condition
	Projection        []string
	ContinuationToken string
	MaxItems          int
}

// SearchResult is one page of matching rows, each already projected.
type SearchResult struct {
	Rows              []map[string]any
	ContinuationToken string
}

// maxConcurrentResolves bounds how many secondary-index hits are resolved
// back to their primary row concurrently (spec §4.G: "at most 5
// in-flight").
const maxConcurrentResolves = 5

// Search compiles in.Conditions into a sort-key range plus residual
// filter, queries every shard, and — when searching a secondary index —
// resolves each hit's row id back to its primary row with bounded
// concurrency, then applies projection rewriting to every result.
func (s *Store) Search(ctx context.Context, in SearchInput) (SearchResult, error) {
	token := lock.Token(uuid.NewString())
	if err := s.lock.BeginShared(ctx, token, nil); err != nil {
		return SearchResult{}, err
	}
	defer s.lock.EndShared(token)

	keyFields := in.IndexKeys
	if in.IndexName == "" {
		keyFields = []string{"id"}
	}
	rng, filter, err := CompileSearch(namespacePrefix(in.IndexName), keyFields, in.Conditions)
	if err != nil {
		return SearchResult{}, err
	}

	shard, innerToken := splitContinuationToken(in.ContinuationToken)
	maxItems := in.MaxItems
	if maxItems <= 0 {
		maxItems = 100
	}

	var rows []map[string]any
	nextToken := ""

	for ; shard < s.ShardCount; shard++ {
		partition := s.partitionFor(shard)
		q := QueryInput{
			Partition:         partition,
			Range:             rng,
			Filter:            filter,
			Projection:        rewriteProjection(in.Projection),
			ContinuationToken: innerToken,
			MaxItems:          maxItems - len(rows),
		}
		res, err := s.Persist.Query(ctx, q)
		if err != nil {
			return SearchResult{}, err
		}
		innerToken = ""

		pageRows, err := s.materialize(ctx, in.IndexName, res.Items)
		if err != nil {
			return SearchResult{}, err
		}
		rows = append(rows, pageRows...)

		if res.ContinuationToken != "" {
			nextToken = joinContinuationToken(shard, res.ContinuationToken)
			break
		}
		if len(rows) >= maxItems {
			if shard+1 < s.ShardCount {
				nextToken = joinContinuationToken(shard+1, "")
			}
			break
		}
	}

	return SearchResult{Rows: applyProjectionAll(rows, in.Projection), ContinuationToken: nextToken}, nil
}

// namespacePrefix returns the fixed leading sort-key segments for a
// search's namespace (spec §4.G: base rows live under ['base', …rowId],
// index rows under ['index', indexName, …indexKeys, …]).
func namespacePrefix(indexName string) []string {
	if indexName == "" {
		return []string{"base"}
	}
	return []string{"index", indexName}
}

// materialize turns raw query hits into row documents: for a base-
// namespace search, the hit value already is the row's BaseRow; for an
// index search, each hit only carries a row id, which must be resolved
// back to its primary row, bounded to maxConcurrentResolves in flight.
func (s *Store) materialize(ctx context.Context, indexName string, items []Item) ([]map[string]any, error) {
	if indexName == "" {
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			row, ok := it.Value.(BaseRow)
			if !ok {
				continue
			}
			out = append(out, row.Data)
		}
		return out, nil
	}

	results := make([]map[string]any, len(items))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(maxConcurrentResolves)
	for i, it := range items {
		i, it := i, it
		p.Go(func(ctx context.Context) error {
			rowID, ok := it.Value.(string)
			if !ok {
				return nil
			}
			shard := s.shardFor(rowID)
			partition := s.partitionFor(shard)
			v, found, err := s.Persist.Load(ctx, partition, baseSortKey(rowID), nil)
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			row, ok := v.(BaseRow)
			if !ok {
				return nil
			}
			results[i] = row.Data
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func splitContinuationToken(token string) (shard int, inner string) {
	if token == "" {
		return 0, ""
	}
	parts := strings.SplitN(token, ":", 2)
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ""
	}
	if len(parts) == 2 {
		return n, parts[1]
	}
	return n, ""
}

func joinContinuationToken(shard int, inner string) string {
	return fmt.Sprintf("%d:%s", shard, inner)
}

func applyProjectionAll(rows []map[string]any, projection []string) []map[string]any {
	if len(projection) == 0 {
		return rows
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = applyProjection(r, projection)
	}
	return out
}
