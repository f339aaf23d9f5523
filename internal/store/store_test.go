package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzobigazzi0/app/internal/order"
)

func TestApply_InsertsAtFront(t *testing.T) {
	s := New()

	out, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)

	out, err = s.Apply(testOrder("B", false))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"B", "A"}, orderIDs(s.All()))
}

func TestApply_ReplacesInPlace(t *testing.T) {
	s := New()
	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Apply(testOrder(id, false))
		require.NoError(t, err)
	}

	out, err := s.Apply(testOrder("B", true))
	require.NoError(t, err)
	assert.Equal(t, Replaced, out)

	assert.Equal(t, 3, s.Len(), "size unchanged on known id")
	assert.Equal(t, []string{"C", "B", "A"}, orderIDs(s.All()), "position kept")

	got, ok := s.Get("B")
	require.True(t, ok)
	assert.Equal(t, order.StatusDone, order.Derive(got))
}

func TestApply_Idempotent(t *testing.T) {
	s := New()
	x := testOrder("A", true, false)

	_, err := s.Apply(x)
	require.NoError(t, err)
	once := s.All()

	out, err := s.Apply(x)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, once, s.All())
	assert.Equal(t, 1, s.Len())
}

func TestApply_ReencodedTextReplaces(t *testing.T) {
	s := New()
	decomposed := testOrder("A", false)
	decomposed.Items[0].Name = "Caffe\u0300 corretto"
	_, err := s.Apply(decomposed)
	require.NoError(t, err)

	composed := decomposed.Clone()
	composed.Items[0].Name = "Caff\u00e8 corretto"
	out, err := s.Apply(composed)
	require.NoError(t, err)
	assert.Equal(t, Replaced, out, "the server's bytes always win")

	got, _ := s.Get("A")
	assert.Equal(t, "Caff\u00e8 corretto", got.Items[0].Name)
}

func TestApply_RejectsInvalid(t *testing.T) {
	s := New()
	_, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)

	bad := testOrder("A", true)
	bad.Table = 0
	_, err = s.Apply(bad)
	require.Error(t, err)

	got, _ := s.Get("A")
	assert.Equal(t, 3, got.Table, "stored order untouched")
}

func TestGet_Missing(t *testing.T) {
	_, ok := New().Get("nope")
	assert.False(t, ok)
}

func TestAll_ReturnsCopies(t *testing.T) {
	s := New()
	_, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)

	all := s.All()
	all[0].Items[0].Done = true
	all[0].Table = 42

	got, _ := s.Get("A")
	assert.False(t, got.Items[0].Done)
	assert.Equal(t, 3, got.Table)

	got.Items[0].Done = true
	again, _ := s.Get("A")
	assert.False(t, again.Items[0].Done)
}

func TestApply_CopiesInput(t *testing.T) {
	s := New()
	o := testOrder("A", false)
	_, err := s.Apply(o)
	require.NoError(t, err)

	o.Items[0].Done = true

	got, _ := s.Get("A")
	assert.False(t, got.Items[0].Done)
}

func TestReplaceAll(t *testing.T) {
	s := New()
	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Apply(testOrder(id, false))
		require.NoError(t, err)
	}

	sum, err := s.ReplaceAll([]order.Order{
		testOrder("D", false),
		testOrder("B", true),
		testOrder("A", false),
	})
	require.NoError(t, err)

	assert.Equal(t, Summary{Inserted: 1, Replaced: 1, Unchanged: 1, Removed: 1}, sum)
	assert.Equal(t, []string{"D", "B", "A"}, orderIDs(s.All()), "snapshot order adopted")
	_, ok := s.Get("C")
	assert.False(t, ok, "orders absent from the snapshot are dropped")
}

func TestReplaceAll_DuplicateKeepsFirst(t *testing.T) {
	s := New()
	_, err := s.ReplaceAll([]order.Order{
		testOrder("A", true),
		testOrder("A", false),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Len())
	got, _ := s.Get("A")
	assert.True(t, got.Items[0].Done)
}

func TestReplaceAll_InvalidLeavesStoreUntouched(t *testing.T) {
	s := New()
	_, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)

	bad := testOrder("B", false)
	bad.ID = ""
	_, err = s.ReplaceAll([]order.Order{testOrder("C", false), bad})
	require.Error(t, err)

	assert.Equal(t, []string{"A"}, orderIDs(s.All()))
}

func TestReplaceAll_Empty(t *testing.T) {
	s := New()
	_, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)

	sum, err := s.ReplaceAll(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, 0, s.Len())
	assert.NotNil(t, s.All())
}

func TestSubscribe(t *testing.T) {
	s := New()
	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })

	_, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)
	_, err = s.Apply(testOrder("A", false))
	require.NoError(t, err)
	_, err = s.Apply(testOrder("A", true))
	require.NoError(t, err)
	_, err = s.ReplaceAll(nil)
	require.NoError(t, err)

	require.Len(t, got, 3, "unchanged applies are silent")

	assert.Equal(t, ChangeInserted, got[0].Kind)
	assert.Nil(t, got[0].Before)
	assert.Equal(t, "A", got[0].After.ID)

	assert.Equal(t, ChangeReplaced, got[1].Kind)
	assert.Equal(t, order.StatusNew, order.Derive(*got[1].Before))
	assert.Equal(t, order.StatusDone, order.Derive(*got[1].After))

	assert.Equal(t, ChangeRemoved, got[2].Kind)
	assert.Nil(t, got[2].After)
}

func TestSubscribe_MayReadStore(t *testing.T) {
	s := New()
	var sizes []int
	s.Subscribe(func(Change) { sizes = append(sizes, s.Len()) })

	_, err := s.Apply(testOrder("A", false))
	require.NoError(t, err)

	assert.Equal(t, []int{1}, sizes, "subscribers run after the lock is released")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "replaced", Replaced.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "outcome(0)", Outcome(0).String())
}
