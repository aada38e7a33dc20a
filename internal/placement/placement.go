// Package placement implements the placement registry from spec §4.E: the
// mapping from an actor identity to a set of hosting node candidates, plus a
// monotonically-numbered change stream consumers can wait on.
package placement

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

// Mapping is one (type, node, version) entry. BindIdx, when non-nil, says
// "this entry only matches ids whose segment at this index equals the
// caller-supplied one"; entries without a BindIdx are always retained as
// fallback candidates within their version group (spec §4.E step 3).
type Mapping struct {
	Type    string
	Node    string
	Version string
	BindIdx *int
}

func (m Mapping) key() string {
	return m.Type + "\x00" + m.Node + "\x00" + m.Version
}

// Registry is the shared, mutex-guarded mapping store (spec §5: "The
// placement registry and every lock are shared mutable state; they must be
// guarded").
type Registry struct {
	mu      sync.Mutex
	byType  map[string][]Mapping
	seq     uint64
	waiters []chan struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byType: make(map[string][]Mapping)}
}

// AddMapping inserts or updates a mapping, idempotent by (type, node,
// version).
func (r *Registry) AddMapping(m Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byType[m.Type]
	for i, existing := range list {
		if existing.key() == m.key() {
			list[i] = m
			r.bump()
			return
		}
	}
	r.byType[m.Type] = append(list, m)
	r.bump()
}

// RemoveMapping deletes every mapping entry for (type, node), across all
// versions.
func (r *Registry) RemoveMapping(actorType, node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byType[actorType]
	out := list[:0:0]
	removed := false
	for _, m := range list {
		if m.Node == node {
			removed = true
			continue
		}
		out = append(out, m)
	}
	if !removed {
		return
	}
	if len(out) == 0 {
		delete(r.byType, actorType)
	} else {
		r.byType[actorType] = out
	}
	r.bump()
}

// bump increments the change sequence and wakes every pending WaitForChange call.
// Must be called with r.mu held.
func (r *Registry) bump() {
	r.seq++
	for _, ch := range r.waiters {
		close(ch)
	}
	r.waiters = nil
}

// removeExact deletes exactly the (type, node, version) entry matching m's
// key, leaving any other version mapped to the same node untouched — used
// by FileLoader's reconciliation, which tracks individual version entries
// rather than whole nodes.
func (r *Registry) removeExact(m Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byType[m.Type]
	out := list[:0:0]
	removed := false
	for _, existing := range list {
		if existing.key() == m.key() {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		return
	}
	if len(out) == 0 {
		delete(r.byType, m.Type)
	} else {
		r.byType[m.Type] = out
	}
	r.bump()
}

// Seq reports the current change sequence number.
func (r *Registry) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// WaitForChange blocks until the registry's sequence advances past after,
// ctx is done, or it is already past after when called (spec §4.E: watch()
// "produces a monotonically-numbered event each time any mapping is added
// or removed; consumers can wait for any change after seq X with a
// timeout"). It returns the sequence observed.
func (r *Registry) WaitForChange(ctx context.Context, after uint64) (uint64, error) {
	r.mu.Lock()
	if r.seq > after {
		seq := r.seq
		r.mu.Unlock()
		return seq, nil
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
		return r.Seq(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Resolve returns the ordered host-candidate list for (type, id), following
// spec §4.E's resolution algorithm: highest version group first, each
// group's entries bind-filtered per filterByBindIdx, groups concatenated in
// priority order rather than the first non-empty group winning outright —
// a caller (the invocation engine) walks the whole list, so a high-version
// group whose only entry fails to match by bindIdx still surfaces as a
// first attempt before version-1 fallbacks are tried (spec §8's bindIdx
// scenario: a version-2 entry is attempted before falling back to a
// bind-matched version-1 entry). An unknown type returns nil: callers
// treat that as "not registered yet".
func (r *Registry) Resolve(actorType string, id []string) []string {
	r.mu.Lock()
	list := append([]Mapping(nil), r.byType[actorType]...)
	r.mu.Unlock()

	if len(list) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, g := range groupByVersion(list) {
		for _, node := range sortedNodes(filterByBindIdx(g.mappings, id)) {
			if !seen[node] {
				seen[node] = true
				out = append(out, node)
			}
		}
	}
	return out
}

type versionGroup struct {
	version  string
	mappings []Mapping
}

// groupByVersion buckets mappings by version and orders the buckets highest
// version first — real semver compare when the version string parses as
// one, otherwise lexicographic string compare (spec §9 Open Question,
// resolved: "the source uses string comparison; document the choice" — a
// target with a real semver library available should prefer it when the
// data supports it, falling back to the source's string behavior
// otherwise, so that non-semver version tags like "canary" still sort
// deterministically instead of being rejected).
func groupByVersion(list []Mapping) []versionGroup {
	byVersion := make(map[string][]Mapping)
	var order []string
	for _, m := range list {
		if _, seen := byVersion[m.Version]; !seen {
			order = append(order, m.Version)
		}
		byVersion[m.Version] = append(byVersion[m.Version], m)
	}
	sort.Slice(order, func(i, j int) bool {
		return versionLess(order[j], order[i]) // descending: highest first
	})
	groups := make([]versionGroup, len(order))
	for i, v := range order {
		groups[i] = versionGroup{version: v, mappings: byVersion[v]}
	}
	return groups
}

func versionLess(a, b string) bool {
	sa, sb := normalizeSemver(a), normalizeSemver(b)
	if sa != "" && sb != "" {
		return semver.Compare(sa, sb) < 0
	}
	return a < b
}

// normalizeSemver returns a canonical "vX.Y.Z" form if v parses as semver
// (golang.org/x/mod/semver requires the "v" prefix), or "" if it doesn't.
func normalizeSemver(v string) string {
	candidate := v
	if !strings.HasPrefix(candidate, "v") {
		candidate = "v" + candidate
	}
	if !semver.IsValid(candidate) {
		return ""
	}
	return candidate
}

// filterByBindIdx implements spec §4.E step 3: if any mapping in the group
// declares a BindIdx, prefer entries whose id[bindIdx] matches the
// corresponding segment of the caller's id; entries with no BindIdx are
// always retained as fallback.
func filterByBindIdx(mappings []Mapping, id []string) []Mapping {
	var bound []Mapping
	var fallback []Mapping
	for _, m := range mappings {
		if m.BindIdx == nil {
			fallback = append(fallback, m)
			continue
		}
		idx := *m.BindIdx
		if idx >= 0 && idx < len(id) {
			bound = append(bound, m)
		}
	}
	var matched []Mapping
	for _, m := range bound {
		if id[*m.BindIdx] == m.Node {
			matched = append(matched, m)
		}
	}
	if len(matched) > 0 {
		return append(matched, fallback...)
	}
	if len(fallback) > 0 {
		return fallback
	}
	return bound
}

func sortedNodes(mappings []Mapping) []string {
	seen := make(map[string]bool, len(mappings))
	var nodes []string
	for _, m := range mappings {
		if !seen[m.Node] {
			seen[m.Node] = true
			nodes = append(nodes, m.Node)
		}
	}
	sort.Strings(nodes)
	return nodes
}

// ParseBindIdx is a small convenience for config/file loaders that carry
// bindIdx as a string ("" meaning unset).
func ParseBindIdx(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
