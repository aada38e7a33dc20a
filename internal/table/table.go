// Package table implements the columnar tabular store from spec §4.B: rows
// are appended one column buffer at a time so a scan over a single column,
// or a filtered scan over a handful of columns, never touches the others.
package table

import (
	"fmt"
	"strings"
)

// Kind identifies how a column's values are encoded into its buffer.
type Kind int

const (
	Text Kind = iota
	Int
	Fixed
	Float
	Boolean
	JSON
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Int:
		return "int"
	case Fixed:
		return "fixed"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// ColumnDescriptor describes one column: its name, storage kind, and (for
// Fixed) the decimal precision used by the sortable encoding.
type ColumnDescriptor struct {
	Name        string
	Kind        Kind
	Precision   int
	Compression string
}

// OnMissingColumn is invoked by addRecord for a row field whose key path
// does not match any known column. Returning ok=true with a descriptor
// adds that column to the table on the fly; returning false drops the
// field silently.
type OnMissingColumn func(path string, value any) (ColumnDescriptor, bool)

// AddRecordOptions configures a single addRecord call.
type AddRecordOptions struct {
	OnMissingColumn OnMissingColumn
	// RecursionLevel controls how many levels of nested map[string]any
	// fields are flattened into dotted key paths before column lookup.
	// Zero selects the default of 1; a negative value disables flattening,
	// so a nested map is looked up as one value under its top-level key.
	RecursionLevel int
}

type columnBuffer struct {
	desc    ColumnDescriptor
	buf     []byte
	written int
}

// Table is an in-memory columnar store: one buffer per declared column,
// plus a logical row count shared by all of them.
type Table struct {
	order   []string
	columns map[string]*columnBuffer
	n       int
}

// New creates an empty table with the given column descriptors.
func New(descriptors []ColumnDescriptor) *Table {
	t := &Table{columns: make(map[string]*columnBuffer, len(descriptors))}
	for _, d := range descriptors {
		t.addColumn(d)
	}
	return t
}

func (t *Table) addColumn(d ColumnDescriptor) {
	if _, exists := t.columns[d.Name]; exists {
		return
	}
	t.order = append(t.order, d.Name)
	t.columns[d.Name] = &columnBuffer{desc: d}
}

// Descriptors returns the table's column descriptors in declaration order.
func (t *Table) Descriptors() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(t.order))
	for i, name := range t.order {
		out[i] = t.columns[name].desc
	}
	return out
}

// Len reports the number of rows added so far.
func (t *Table) Len() int { return t.n }

// AddRecord extracts a value for each known column from row (following
// dotted key paths up to RecursionLevel levels of nesting) and appends it;
// columns the row doesn't mention fall behind and read back as undefined
// until they next receive a real value, at which point the gap is
// backfilled with explicit undefined sentinels (spec §4.B).
func (t *Table) AddRecord(row map[string]any, opts AddRecordOptions) error {
	level := opts.RecursionLevel
	if level == 0 {
		level = 1
	}
	flat := flatten(row, level)

	rowIndex := t.n
	seen := make(map[string]bool, len(t.order))
	for path, value := range flat {
		col, ok := t.columns[path]
		if !ok {
			if opts.OnMissingColumn == nil {
				continue
			}
			desc, ok := opts.OnMissingColumn(path, value)
			if !ok {
				continue
			}
			t.addColumn(desc)
			col = t.columns[path]
		}
		if err := t.appendValue(col, rowIndex, value); err != nil {
			return fmt.Errorf("table: column %q: %w", path, err)
		}
		seen[path] = true
	}
	t.n++
	return nil
}

func (t *Table) appendValue(col *columnBuffer, rowIndex int, value any) error {
	for col.written < rowIndex {
		col.buf = append(col.buf, undefinedToken()...)
		col.written++
	}
	tok, err := encodeToken(col.desc, value)
	if err != nil {
		return err
	}
	col.buf = append(col.buf, tok...)
	col.written++
	return nil
}

// flatten dot-joins nested map[string]any fields up to `level` levels deep.
// Lists and non-map leaves are never descended into.
func flatten(row map[string]any, level int) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", row, level)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any, level int) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && level > 0 {
			flattenInto(out, path, nested, level-1)
			continue
		}
		out[path] = v
	}
}

// Cursor yields exactly Len() values for one column, padding any trailing
// gap with undefined (nil) without touching the underlying buffer.
type Cursor struct {
	col     *columnBuffer
	total   int
	emitted int
	offset  int // this cursor's read position in col.buf
}

// GetCursor returns a cursor over col starting after skip values have
// already been consumed.
func (t *Table) GetCursor(col string, skip int) (*Cursor, error) {
	c, ok := t.columns[col]
	if !ok {
		return nil, fmt.Errorf("table: unknown column %q", col)
	}
	cur := &Cursor{col: c, total: t.n}
	for i := 0; i < skip; i++ {
		if _, _, err := cur.next(); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Next returns the next value and whether the cursor is exhausted.
func (c *Cursor) Next() (any, bool, error) {
	return c.next()
}

func (c *Cursor) next() (any, bool, error) {
	if c.emitted >= c.total {
		return nil, false, nil
	}
	var v any
	if c.emitted < c.col.written {
		dv, n, err := decodeToken(c.col.desc, c.col.buf[c.offset:])
		if err != nil {
			return nil, false, fmt.Errorf("table: decoding column %q: %w", c.col.desc.Name, err)
		}
		c.offset += n
		v = dv
	}
	c.emitted++
	return v, true, nil
}

// Row is one record's projection onto a requested set of columns.
type Row struct {
	Values []any
}

// GetMultiCursor pulls rows from the first column in cols; any row whose
// value fails filter is skipped on every column (keeping them aligned)
// without being returned. filter may be nil to accept every row.
func (t *Table) GetMultiCursor(cols []string, filter func(first any) bool) ([]Row, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("table: GetMultiCursor requires at least one column")
	}
	cursors := make([]*Cursor, len(cols))
	for i, name := range cols {
		c, err := t.GetCursor(name, 0)
		if err != nil {
			return nil, err
		}
		cursors[i] = c
	}

	var rows []Row
	for {
		first, ok, err := cursors[0].Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rest := make([]any, len(cols)-1)
		for i := 1; i < len(cols); i++ {
			v, _, err := cursors[i].Next()
			if err != nil {
				return nil, err
			}
			rest[i-1] = v
		}
		if filter != nil && !filter(first) {
			continue
		}
		values := append([]any{first}, rest...)
		rows = append(rows, Row{Values: values})
	}
	return rows, nil
}

// Snapshot is a frozen, serializable view of a table's columns.
type Snapshot struct {
	Descriptors []ColumnDescriptor
	Columns     map[string][]byte
	Written     map[string]int
	N           int
}

// Export freezes the table's current column buffers and descriptors.
func (t *Table) Export() Snapshot {
	snap := Snapshot{
		Descriptors: t.Descriptors(),
		Columns:     make(map[string][]byte, len(t.order)),
		Written:     make(map[string]int, len(t.order)),
		N:           t.n,
	}
	for _, name := range t.order {
		col := t.columns[name]
		buf := make([]byte, len(col.buf))
		copy(buf, col.buf)
		snap.Columns[name] = buf
		snap.Written[name] = col.written
	}
	return snap
}

// Import appends another snapshot's rows after the table's current ones.
// Columns present in the snapshot but not yet known to the table are
// created on the fly; columns known to the table but absent from the
// snapshot simply don't advance (read back as undefined for the imported
// rows, same as any other missing-column gap).
func (t *Table) Import(snap Snapshot) error {
	for _, d := range snap.Descriptors {
		t.addColumn(d)
	}

	base := t.n
	for _, d := range snap.Descriptors {
		col := t.columns[d.Name]
		src := &Cursor{col: &columnBuffer{desc: d, buf: snap.Columns[d.Name], written: snap.Written[d.Name]}, total: snap.N}
		for i := 0; i < snap.N; i++ {
			v, ok, err := src.next()
			if err != nil {
				return fmt.Errorf("table: importing column %q: %w", d.Name, err)
			}
			if !ok {
				break
			}
			if v == nil && i >= snap.Written[d.Name] {
				continue // true tail gap in the source: leave it implicit here too
			}
			if err := t.appendValue(col, base+i, v); err != nil {
				return fmt.Errorf("table: importing column %q row %d: %w", d.Name, i, err)
			}
		}
	}
	t.n = base + snap.N
	return nil
}

// KeyPath joins dotted path segments the way AddRecord's flattening does,
// for callers constructing column lookups programmatically.
func KeyPath(segments ...string) string {
	return strings.Join(segments, ".")
}
