package tablestore

import (
	"fmt"
	"strings"

	"github.com/arborfield/actorcore/internal/sortenc"
)

// Op is one of the key-condition operators spec §4.G's search table names.
type Op string

const (
	OpEq         Op = "eq"
	OpPrefix     Op = "prefix"
	OpGte        Op = "gte"
	OpLte        Op = "lte"
	OpBetween    Op = "between"
	OpContains   Op = "contains"
	OpContainsNI Op = "containsni"
)

// Condition is one ordered key condition a Search call supplies (spec
// §4.G: "ordered key conditions {field op value [value2]}").
type Condition struct {
	Field  string
	Op     Op
	Value  any
	Value2 any
}

// FilterExpr evaluates the residual filter phase against a row's decoded
// data (spec §4.G: "a predicate expression (and cond…) evaluated by the
// persistence layer against the decoded value").
type FilterExpr func(data map[string]any) bool

// isSortKeyOp reports whether op can restrict a sort-key prefix (spec
// §4.G's sort-key phase table).
func isSortKeyOp(op Op) bool {
	switch op {
	case OpEq, OpGte, OpLte, OpBetween, OpPrefix:
		return true
	default:
		return false
	}
}

// CompileSearch splits an ordered condition list into a sort-key range and
// a residual filter predicate, per spec §4.G: leading conditions whose
// Field matches the namespace's next sort-key segment in order (keyFields
// — a row id for a base search, or an index's declared Keys for an index
// search) are eligible to restrict the sort key; the first one that
// doesn't match the expected field, or whose op can't restrict a sort-key
// prefix at all, closes the sort-key phase — everything from there on,
// including any contains/containsni, becomes the filter phase. base is
// the namespace's own fixed prefix ("base", or "index"+indexName) so
// truncateOneSegment always operates on a fully-qualified key and never
// needs to special-case an empty preceding segment.
func CompileSearch(base []string, keyFields []string, conditions []Condition) (QueryRange, FilterExpr, error) {
	prefix := append([]string(nil), base...)
	var rest []Condition

	var rng QueryRange
	closed := false
	keyIdx := 0

	for i, c := range conditions {
		if closed {
			rest = append(rest, conditions[i:]...)
			break
		}
		var expected string
		if keyIdx < len(keyFields) {
			expected = keyFields[keyIdx]
		}
		if expected == "" || c.Field != expected {
			rest = append(rest, conditions[i:]...)
			closed = true
			continue
		}
		if c.Op == OpEq {
			seg, err := encodeKeySegment(c.Value)
			if err != nil {
				return QueryRange{}, nil, err
			}
			prefix = append(prefix, seg)
			keyIdx++
			continue
		}
		if !isSortKeyOp(c.Op) {
			rest = append(rest, conditions[i:]...)
			closed = true
			continue
		}

		switch c.Op {
		case OpBetween:
			v1, err := encodeKeySegment(c.Value)
			if err != nil {
				return QueryRange{}, nil, err
			}
			v2, err := encodeKeySegment(c.Value2)
			if err != nil {
				return QueryRange{}, nil, err
			}
			rng.From = append(append(SortKey(nil), prefix...), v1)
			rng.To = append(append(SortKey(nil), prefix...), v2)
			rng.Strict = true
		case OpGte:
			v, err := encodeKeySegment(c.Value)
			if err != nil {
				return QueryRange{}, nil, err
			}
			key := append(append(SortKey(nil), prefix...), v)
			rng.From = key
			rng.To = truncateOneSegment(key)
			rng.Strict = true
		case OpLte:
			v, err := encodeKeySegment(c.Value)
			if err != nil {
				return QueryRange{}, nil, err
			}
			key := append(append(SortKey(nil), prefix...), v)
			rng.From = truncateOneSegment(key)
			rng.To = key
			rng.Strict = true
		case OpPrefix:
			v, err := encodeKeySegment(c.Value)
			if err != nil {
				return QueryRange{}, nil, err
			}
			key := append(append(SortKey(nil), prefix...), v)
			rng.From = key
			rng.To = key
			rng.Strict = false
		}
		closed = true
	}

	if rng.From == nil && rng.To == nil {
		// Every condition consumed was eq, or the phase closed on a
		// condition with no range of its own (contains/containsni):
		// either way no explicit bound was produced, so fall back to the
		// accumulated prefix as a loose match. Real rows carry further
		// implicit segments the caller didn't (and can't) supply — the
		// row id, content hash, etc. — so this can never be a tight
		// exact-length equality.
		rng.From = append(SortKey(nil), prefix...)
		rng.To = append(SortKey(nil), prefix...)
		rng.Strict = false
	}

	filter, err := compileFilter(rest)
	if err != nil {
		return QueryRange{}, nil, err
	}
	return rng, filter, nil
}

// truncateOneSegment implements spec §4.G's "truncate-one-segment(key)":
// drop the key's last segment and increment the new last segment, so the
// resulting bound covers every deeper value nested under the dropped
// segment's parent (the Open Question resolution recorded in DESIGN.md).
func truncateOneSegment(key SortKey) SortKey {
	if len(key) == 0 {
		return SortKey{}
	}
	out := append(SortKey(nil), key[:len(key)-1]...)
	if len(out) == 0 {
		return SortKey{}
	}
	out[len(out)-1] = incrementSegment(out[len(out)-1])
	return out
}

// incrementSegment returns s with a 0xff byte appended, which sorts after s
// and after every extension of s whose next byte is below 0xff.
func incrementSegment(s string) string {
	return s + "\xff"
}

// encodeKeySegment turns a condition value into the sortable string a
// Persistence backend stores sort-key segments as.
func encodeKeySegment(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return sortenc.Int(int64(x)), nil
	case int64:
		return sortenc.Int(x), nil
	case float64:
		return sortenc.Float(x, 6), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("tablestore: unsupported key segment type %T", v)
	}
}

func compileFilter(conditions []Condition) (FilterExpr, error) {
	if len(conditions) == 0 {
		return func(map[string]any) bool { return true }, nil
	}
	evals := make([]func(map[string]any) bool, 0, len(conditions))
	for _, c := range conditions {
		eval, err := compileCondition(c)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}
	return func(data map[string]any) bool {
		for _, eval := range evals {
			if !eval(data) {
				return false
			}
		}
		return true
	}, nil
}

func compileCondition(c Condition) (func(map[string]any) bool, error) {
	field := c.Field
	switch c.Op {
	case OpEq:
		return func(data map[string]any) bool {
			return fmt.Sprint(resolveField(data, field)) == fmt.Sprint(c.Value)
		}, nil
	case OpContains:
		s, _ := c.Value.(string)
		return func(data map[string]any) bool {
			v, _ := resolveField(data, field).(string)
			return strings.Contains(v, s)
		}, nil
	case OpContainsNI:
		s, _ := c.Value.(string)
		return func(data map[string]any) bool {
			v, _ := resolveField(data, field).(string)
			return strings.Contains(strings.ToLower(v), strings.ToLower(s))
		}, nil
	case OpPrefix:
		s, _ := c.Value.(string)
		return func(data map[string]any) bool {
			v, _ := resolveField(data, field).(string)
			return strings.HasPrefix(v, s)
		}, nil
	case OpGte, OpLte, OpBetween:
		return func(data map[string]any) bool {
			return compareOrdered(resolveField(data, field), c) == 0
		}, nil
	default:
		return nil, fmt.Errorf("tablestore: unsupported filter op %q", c.Op)
	}
}

// compareOrdered resolves a gte/lte/between filter condition to a [-1,0,1]
// style combined check: returns 0 when within bounds, -1 when below the
// lower bound, 1 when above the upper bound. Only string and float64
// comparisons are supported, matching the value kinds §4.A's wire universe
// actually stores.
func compareOrdered(v any, c Condition) int {
	lo, hi := c.Value, c.Value2
	switch c.Op {
	case OpGte:
		hi = nil
	case OpLte:
		lo = nil
	}
	if lo != nil && less(v, lo) {
		return -1
	}
	if hi != nil && less(hi, v) {
		return 1
	}
	return 0
}

func less(a, b any) bool {
	if af, aok := a.(float64); aok {
		if bf, bok := b.(float64); bok {
			return af < bf
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func resolveField(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
