package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/rid"
)

func fixedSchema() Schema {
	return Schema{
		TableID: 7,
		Cols: []Column{
			{Name: "id", Type: ColInt64, Nullable: false},
			{Name: "score", Type: ColInt32, Nullable: true},
			{Name: "active", Type: ColBool, Nullable: false},
		},
	}
}

func TestRecord_RoundTripAndEqual(t *testing.T) {
	s := fixedSchema()

	r1, err := NewRecord(s, []any{int64(1), int32(5), true}, rid.New(3, 0), nil)
	require.NoError(t, err)
	require.Equal(t, rid.New(3, 0), r1.RID)

	vals, err := r1.Values(nil)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), int32(5), true}, vals)

	// Same content at a different slot is still equal: RID is identity,
	// not content.
	r2 := NewRecordFromBytes(s, r1.Nullmap, r1.Payload, rid.New(9, 4))
	require.True(t, r1.Equal(r2))

	r3, err := NewRecord(s, []any{int64(2), int32(5), true}, rid.Invalid, nil)
	require.NoError(t, err)
	require.False(t, r1.Equal(r3))
	require.False(t, r1.Equal(nil))
}

func TestRecord_NullmapAndHash(t *testing.T) {
	s := fixedSchema()

	withNull, err := NewRecord(s, []any{int64(1), nil, true}, rid.Invalid, nil)
	require.NoError(t, err)
	require.False(t, withNull.IsNull(0))
	require.True(t, withNull.IsNull(1))

	noNull, err := NewRecord(s, []any{int64(1), int32(0), true}, rid.Invalid, nil)
	require.NoError(t, err)

	// A NULL field contributes nothing to the hash; a zero-valued field
	// does, so the two digests differ.
	require.NotEqual(t, withNull.Hash(), noNull.Hash())

	same, err := NewRecord(s, []any{int64(1), nil, true}, rid.New(5, 5), nil)
	require.NoError(t, err)
	require.Equal(t, withNull.Hash(), same.Hash())
}

func TestRecord_Project(t *testing.T) {
	s := fixedSchema()
	r, err := NewRecord(s, []any{int64(42), nil, true}, rid.New(1, 1), nil)
	require.NoError(t, err)

	p, err := r.Project([]string{"active", "score"})
	require.NoError(t, err)
	require.Equal(t, rid.Invalid, p.RID)

	vals, err := p.Values(nil)
	require.NoError(t, err)
	require.Equal(t, []any{true, nil}, vals)

	_, err = r.Project([]string{"nope"})
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestRecord_Concat(t *testing.T) {
	left := Schema{TableID: 1, Cols: []Column{
		{Name: "a", Type: ColInt64, Nullable: false},
	}}
	right := Schema{TableID: 2, Cols: []Column{
		{Name: "b", Type: ColBool, Nullable: true},
		{Name: "c", Type: ColInt32, Nullable: true},
	}}

	ra, err := NewRecord(left, []any{int64(10)}, rid.New(1, 0), nil)
	require.NoError(t, err)
	rb, err := NewRecord(right, []any{nil, int32(3)}, rid.New(2, 0), nil)
	require.NoError(t, err)

	joined := ConcatRecords(ra, rb)
	require.Equal(t, 3, joined.Schema.NumCols())
	require.Equal(t, rid.Invalid, joined.RID)

	vals, err := joined.Values(nil)
	require.NoError(t, err)
	require.Equal(t, []any{int64(10), nil, int32(3)}, vals)
}
