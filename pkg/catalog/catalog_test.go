package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchbot/batchbot/pkg/record"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	store, err := record.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return New(store)
}

// requireIndexInvariant asserts the 1:1 mapping between tokens and order.
func requireIndexInvariant(t *testing.T, idx record.Index) {
	t.Helper()
	require.Len(t, idx.Order, len(idx.Tokens))
	byFilename := map[string]int{}
	for _, name := range idx.Tokens {
		byFilename[name]++
	}
	for _, name := range idx.Order {
		require.Equalf(t, 1, byFilename[name], "order entry %q must map to exactly one token", name)
	}
}

func TestCreateAndResolve(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	created, err := cat.Create(ctx, "tok123", "my_batch", "My Batch", 7)
	require.NoError(t, err)
	assert.Equal(t, "My Batch", created.DisplayName)

	got, err := cat.Resolve(ctx, "tok123")
	require.NoError(t, err)
	assert.Equal(t, "my_batch", got.Filename)
	assert.Equal(t, int64(7), got.OwnerID)

	requireIndexInvariant(t, cat.Store().ReadIndex(ctx))
}

func TestResolveUnknownToken(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := cat.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestDeleteRemovesRecordAndIndexEntry(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Create(ctx, "tok1", "one", "One", 1)
	require.NoError(t, err)
	_, err = cat.Create(ctx, "tok2", "two", "Two", 1)
	require.NoError(t, err)

	require.NoError(t, cat.Delete(ctx, "tok1"))

	_, err = cat.Resolve(ctx, "tok1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.False(t, cat.Store().BatchExists(ctx, "one"))

	idx := cat.Store().ReadIndex(ctx)
	assert.Equal(t, []string{"two"}, idx.Order)
	requireIndexInvariant(t, idx)
}

func TestDeleteUnknownToken(t *testing.T) {
	cat := newTestCatalog(t)
	assert.ErrorIs(t, cat.Delete(context.Background(), "missing"), ErrTokenNotFound)
}

func TestAppendItemAndEditCaption(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Create(ctx, "tok1", "one", "One", 1)
	require.NoError(t, err)
	require.NoError(t, cat.AppendItem(ctx, "one", record.Item{Kind: record.KindDocument, Caption: "first"}))
	require.NoError(t, cat.AppendItem(ctx, "one", record.Item{Kind: record.KindVideo, Caption: "second"}))

	require.NoError(t, cat.EditCaption(ctx, "tok1", 1, "renamed"))

	got, err := cat.Resolve(ctx, "tok1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "renamed", got.Items[1].Caption)

	assert.ErrorIs(t, cat.EditCaption(ctx, "tok1", 5, "x"), ErrItemIndex)
}

func TestReorderItemSwapsNeighbors(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Create(ctx, "tok1", "one", "One", 1)
	require.NoError(t, err)
	require.NoError(t, cat.AppendItem(ctx, "one", record.Item{Kind: record.KindDocument, Caption: "a"}))
	require.NoError(t, cat.AppendItem(ctx, "one", record.Item{Kind: record.KindDocument, Caption: "b"}))

	require.NoError(t, cat.ReorderItem(ctx, "tok1", 0, DirectionDown))

	got, err := cat.Resolve(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Items[0].Caption)
	assert.Equal(t, "a", got.Items[1].Caption)

	assert.ErrorIs(t, cat.ReorderItem(ctx, "tok1", 0, DirectionUp), ErrItemIndex)
	assert.ErrorIs(t, cat.ReorderItem(ctx, "tok1", 1, DirectionDown), ErrItemIndex)
}

func TestRenameDisambiguatesOccupiedKeys(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Create(ctx, "tok1", "Foo", "Foo", 1)
	require.NoError(t, err)
	_, err = cat.Create(ctx, "tok2", "batch_tok2", "batch_tok2", 1)
	require.NoError(t, err)

	// The target key "Foo" is taken, so the rename lands on "Foo_2".
	newName, err := cat.Rename(ctx, "tok2", "batch_tok2", "Foo", "Foo The Display")
	require.NoError(t, err)
	assert.Equal(t, "Foo_2", newName)

	got, err := cat.Resolve(ctx, "tok2")
	require.NoError(t, err)
	assert.Equal(t, "Foo_2", got.Filename)
	assert.Equal(t, "Foo The Display", got.DisplayName)
	assert.False(t, cat.Store().BatchExists(ctx, "batch_tok2"))

	idx := cat.Store().ReadIndex(ctx)
	assert.Equal(t, []string{"Foo", "Foo_2"}, idx.Order)
	requireIndexInvariant(t, idx)
}

func TestRatingUpsert(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Create(ctx, "tok1", "one", "One", 1)
	require.NoError(t, err)

	require.NoError(t, cat.Rate(ctx, "tok1", 42, 6))
	require.NoError(t, cat.Rate(ctx, "tok1", 42, 9))

	got, err := cat.Resolve(ctx, "tok1")
	require.NoError(t, err)
	require.Len(t, got.Ratings, 1)
	assert.Equal(t, 9, got.Ratings[42].Score)

	assert.ErrorIs(t, cat.Rate(ctx, "tok1", 42, 0), ErrScore)
	assert.ErrorIs(t, cat.Rate(ctx, "tok1", 42, 11), ErrScore)
}

func TestIndexInvariantAfterOperationSequence(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Create(ctx, "t1", "a", "A", 1)
	require.NoError(t, err)
	_, err = cat.Create(ctx, "t2", "b", "B", 1)
	require.NoError(t, err)
	require.NoError(t, cat.AppendItem(ctx, "a", record.Item{Kind: record.KindText}))
	_, err = cat.Rename(ctx, "t1", "a", "a_named", "A Named")
	require.NoError(t, err)
	require.NoError(t, cat.Delete(ctx, "t2"))
	_, err = cat.Create(ctx, "t3", "c", "C", 1)
	require.NoError(t, err)

	idx := cat.Store().ReadIndex(ctx)
	assert.Equal(t, []string{"a_named", "c"}, idx.Order)
	requireIndexInvariant(t, idx)
}

func TestCreateDisambiguatesOccupiedFilename(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	first, err := cat.Create(ctx, "tok1", "Shared Name", "Shared Name", 7)
	require.NoError(t, err)
	require.NoError(t, cat.AppendItem(ctx, first.Filename, record.Item{Kind: record.KindDocument, ContentRef: "doc1"}))

	second, err := cat.Create(ctx, "tok2", "Shared Name", "Shared Name", 8)
	require.NoError(t, err)
	assert.Equal(t, "Shared Name", first.Filename)
	assert.Equal(t, "Shared Name_2", second.Filename)

	// The first batch survives untouched under its own token.
	got, err := cat.Resolve(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.OwnerID)
	require.Len(t, got.Items, 1)

	idx := cat.Store().ReadIndex(ctx)
	assert.Equal(t, []string{"Shared Name", "Shared Name_2"}, idx.Order)
	requireIndexInvariant(t, idx)
}
