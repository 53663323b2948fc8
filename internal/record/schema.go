package record

type ColumnType uint8

const (
	ColInt32 ColumnType = iota
	ColInt64
	ColBool
	ColFloat64
	ColText  // UTF-8, always stored as a fixed-size overflow reference
	ColBytes // opaque bytes, always stored as a fixed-size overflow reference
)

// FieldSize returns the fixed on-page width of a column's type. TEXT and
// BYTES are never stored inline: every row is a uniform width per schema,
// so variable-length values are always redirected through the table's
// OverflowManager and the slot only holds an 8-byte reference (4-byte
// first page id + 4-byte length).
func FieldSize(t ColumnType) int {
	switch t {
	case ColInt32:
		return 4
	case ColInt64:
		return 8
	case ColBool:
		return 1
	case ColFloat64:
		return 8
	case ColText, ColBytes:
		return 8
	default:
		return 0
	}
}

// Column is one field of a schema: a name, a type, and whether it may hold
// SQL NULL. Per-field storage size is derived from Type via FieldSize, not
// stored redundantly on the column itself.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is an ordered list of columns, optionally bound to an owning
// table. A Schema is immutable once bound: BindTableID returns a copy
// rather than mutating in place.
type Schema struct {
	TableID uint32
	Cols    []Column
}

func (s Schema) NumCols() int { return len(s.Cols) }

// NullMapSize is the number of bytes needed for one null bit per column.
func (s Schema) NullMapSize() int {
	return (len(s.Cols) + 7) / 8
}

// RecordSize is the total fixed width of one record's payload, excluding
// the null bitmap: the sum of each column's FieldSize.
func (s Schema) RecordSize() int {
	total := 0
	for _, c := range s.Cols {
		total += FieldSize(c.Type)
	}
	return total
}

// FieldOffset returns the byte offset of column i within the payload
// (i.e. after the null bitmap), derived by summing the widths of the
// preceding columns.
func (s Schema) FieldOffset(i int) int {
	off := 0
	for j := 0; j < i; j++ {
		off += FieldSize(s.Cols[j].Type)
	}
	return off
}

// BindTableID returns a copy of s carrying tableID as its owning table.
// Schemas are immutable once bound, so this never mutates s in place.
func (s Schema) BindTableID(tableID uint32) Schema {
	cols := make([]Column, len(s.Cols))
	copy(cols, s.Cols)
	return Schema{TableID: tableID, Cols: cols}
}

// ColPos returns the index of the column named name, or -1.
func (s Schema) ColPos(name string) int {
	for i, c := range s.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Project returns the sub-schema containing only the named columns, in the
// order requested.
func (s Schema) Project(names []string) (Schema, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		pos := s.ColPos(name)
		if pos < 0 {
			return Schema{}, ErrUnknownColumn
		}
		cols = append(cols, s.Cols[pos])
	}
	return Schema{TableID: s.TableID, Cols: cols}, nil
}

// Concat returns a schema whose columns are a's followed by b's, carrying
// a's table id.
func Concat(a, b Schema) Schema {
	cols := make([]Column, 0, len(a.Cols)+len(b.Cols))
	cols = append(cols, a.Cols...)
	cols = append(cols, b.Cols...)
	return Schema{TableID: a.TableID, Cols: cols}
}
