package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
	"github.com/walletbase/ledgercore/store/memstore"
)

func TestInsertIfAbsentAndGet(t *testing.T) {
	db := memstore.New()
	db.Register("widget", "uid")
	ctx := context.Background()
	uid := id.New()

	applied, err := db.InsertIfAbsent(ctx, "widget", store.Row{"uid": uid, "count": int64(1)})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = db.InsertIfAbsent(ctx, "widget", store.Row{"uid": uid, "count": int64(99)})
	require.NoError(t, err)
	require.False(t, applied, "second insert for the same key must be a no-op")

	row, err := db.Get(ctx, "widget", store.Row{"uid": uid}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), row["count"])
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	db := memstore.New()
	db.Register("widget", "uid")
	_, err := db.Get(context.Background(), "widget", store.Row{"uid": id.New()}, nil)
	require.Equal(t, ledgererr.NotFound, ledgererr.Of(err))
}

func TestUpdateIfHonorsPredicate(t *testing.T) {
	db := memstore.New()
	db.Register("widget", "uid")
	ctx := context.Background()
	uid := id.New()
	_, err := db.InsertIfAbsent(ctx, "widget", store.Row{"uid": uid, "count": int64(1)})
	require.NoError(t, err)

	ok, err := db.UpdateIf(ctx, "widget", store.Row{"uid": uid}, store.Row{"count": int64(2)},
		store.Predicate{Column: "count", Equals: int64(0)})
	require.NoError(t, err)
	require.False(t, ok, "predicate mismatch must not apply")

	ok, err = db.UpdateIf(ctx, "widget", store.Row{"uid": uid}, store.Row{"count": int64(2)},
		store.Predicate{Column: "count", Equals: int64(1)})
	require.NoError(t, err)
	require.True(t, ok)

	row, err := db.Get(ctx, "widget", store.Row{"uid": uid}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), row["count"])
}

func TestDeleteIfHonorsPredicate(t *testing.T) {
	db := memstore.New()
	db.Register("widget", "uid")
	ctx := context.Background()
	uid := id.New()
	_, err := db.InsertIfAbsent(ctx, "widget", store.Row{"uid": uid, "count": int64(1)})
	require.NoError(t, err)

	ok, err := db.DeleteIf(ctx, "widget", store.Row{"uid": uid}, store.Predicate{Column: "count", Equals: int64(0)})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = db.DeleteIf(ctx, "widget", store.Row{"uid": uid}, store.Predicate{Column: "count", Equals: int64(1)})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = db.Get(ctx, "widget", store.Row{"uid": uid}, nil)
	require.Equal(t, ledgererr.NotFound, ledgererr.Of(err))
}

func TestRangePagesNewestFirst(t *testing.T) {
	db := memstore.New()
	db.Register("event", "owner", "id")
	ctx := context.Background()
	owner := id.New()

	var ids []id.ID
	for i := 0; i < 5; i++ {
		eid := id.New()
		ids = append(ids, eid)
		_, err := db.InsertIfAbsent(ctx, "event", store.Row{"owner": owner, "id": eid, "n": int64(i)})
		require.NoError(t, err)
	}

	page, err := db.Range(ctx, "event", store.Row{"owner": owner}, "id", id.Max, 3, nil)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, ids[4], page[0]["id"], "newest id must come first")
	require.Equal(t, ids[3], page[1]["id"])
	require.Equal(t, ids[2], page[2]["id"])

	next, err := db.Range(ctx, "event", store.Row{"owner": owner}, "id", page[2]["id"].(id.ID), 3, nil)
	require.NoError(t, err)
	require.Len(t, next, 2)
	require.Equal(t, ids[1], next[0]["id"])
	require.Equal(t, ids[0], next[1]["id"])
}

func TestRangeAppliesSecondaryPredicate(t *testing.T) {
	db := memstore.New()
	db.Register("event", "owner", "id")
	ctx := context.Background()
	owner := id.New()

	for i := 0; i < 4; i++ {
		_, err := db.InsertIfAbsent(ctx, "event", store.Row{"owner": owner, "id": id.New(), "kind": []string{"a", "b"}[i%2]})
		require.NoError(t, err)
	}

	onlyA, err := db.Range(ctx, "event", store.Row{"owner": owner}, "id", id.Max, 10, func(r store.Row) bool {
		return r["kind"] == "a"
	})
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
}
