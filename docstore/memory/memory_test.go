package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/coc-engine/docstore"
	"github.com/govhr/coc-engine/docstore/memory"
)

func TestCreateGetUpdate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "things", "a", docstore.Fields{
		"name": "first", "count": int64(1),
	}))
	assert.ErrorIs(t, store.Create(ctx, "things", "a", docstore.Fields{"name": "dup"}),
		docstore.ErrExists)

	require.NoError(t, store.Update(ctx, "things", "a", docstore.Fields{"count": int64(2)}))
	assert.ErrorIs(t, store.Update(ctx, "things", "missing", docstore.Fields{}),
		docstore.ErrNotFound)

	doc, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "first", doc.Fields["name"], "patch must not clobber other fields")
	assert.Equal(t, int64(2), doc.Fields["count"])

	_, err = store.Get(ctx, "things", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "things", "a", docstore.Fields{"name": "original"}))

	doc, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	doc.Fields["name"] = "mutated"

	again, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Fields["name"])
}

func TestWhereOperators(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for id, score := range map[string]int64{"a": 10, "b": 20, "c": 30} {
		require.NoError(t, store.Create(ctx, "scores", id, docstore.Fields{"score": score}))
	}

	cases := []struct {
		op   docstore.Op
		want int
	}{
		{docstore.OpEq, 1},
		{docstore.OpNeq, 2},
		{docstore.OpLt, 1},
		{docstore.OpLte, 2},
		{docstore.OpGt, 1},
		{docstore.OpGte, 2},
	}
	for _, tc := range cases {
		docs, err := store.Where(ctx, "scores", "score", tc.op, int64(20))
		require.NoError(t, err)
		assert.Len(t, docs, tc.want, "op %s", tc.op)
	}
}

func TestWhereComparesNumbersAcrossTypes(t *testing.T) {
	// A float64 query value must match an int64 stored value.
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "scores", "a", docstore.Fields{"score": int64(20)}))

	docs, err := store.Where(ctx, "scores", "score", docstore.OpEq, float64(20))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestWhereStringsOrderLexicographically(t *testing.T) {
	// ISO dates as strings: lexicographic >= is date >=.
	store := memory.New()
	ctx := context.Background()
	for id, date := range map[string]string{"a": "2025-03-10", "b": "2025-03-15", "c": "2025-04-01"} {
		require.NoError(t, store.Create(ctx, "logs", id, docstore.Fields{"date": date}))
	}

	docs, err := store.Where(ctx, "logs", "date", docstore.OpGte, "2025-03-15")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMatchIsConjunctive(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "logs", "a",
		docstore.Fields{"employeeId": "E1", "month": "March", "year": int64(2025)}))
	require.NoError(t, store.Create(ctx, "logs", "b",
		docstore.Fields{"employeeId": "E1", "month": "April", "year": int64(2025)}))
	require.NoError(t, store.Create(ctx, "logs", "c",
		docstore.Fields{"employeeId": "E2", "month": "March", "year": int64(2025)}))

	docs, err := store.Match(ctx, "logs", docstore.Fields{
		"employeeId": "E1", "month": "March", "year": int64(2025),
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestUpdateIfCompareAndSet(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "locks", "employee/E1",
		docstore.Fields{"token": "t-1", "owner": "w1"}))

	// Wrong expectation: no change.
	err := store.UpdateIf(ctx, "locks", "employee/E1",
		docstore.Fields{"token": "t-2"}, docstore.Fields{"token": "stale"})
	assert.ErrorIs(t, err, docstore.ErrCASMismatch)

	// Right expectation: patch applies.
	require.NoError(t, store.UpdateIf(ctx, "locks", "employee/E1",
		docstore.Fields{"token": "t-2", "owner": "w2"}, docstore.Fields{"token": "t-1"}))

	doc, err := store.Get(ctx, "locks", "employee/E1")
	require.NoError(t, err)
	assert.Equal(t, "t-2", doc.Fields["token"])
	assert.Equal(t, "w2", doc.Fields["owner"])

	err = store.UpdateIf(ctx, "locks", "missing", docstore.Fields{}, docstore.Fields{})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMaxID(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	max, err := store.MaxID(ctx, "logs", "logId")
	require.NoError(t, err)
	assert.Equal(t, int64(0), max, "empty collection")

	for i, id := range []string{"LOG-1", "LOG-2", "LOG-7"} {
		n := []int64{1, 2, 7}[i]
		require.NoError(t, store.Create(ctx, "logs", id, docstore.Fields{"logId": n}))
	}
	max, err = store.MaxID(ctx, "logs", "logId")
	require.NoError(t, err)
	assert.Equal(t, int64(7), max)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "things", "a", docstore.Fields{}))
	require.NoError(t, store.Delete(ctx, "things", "a"))
	require.NoError(t, store.Delete(ctx, "things", "a"))

	require.NoError(t, store.Create(ctx, "things", "b", docstore.Fields{}))
	require.NoError(t, store.Create(ctx, "things", "c", docstore.Fields{}))
	require.NoError(t, store.DeleteMany(ctx, "things", []string{"b", "c", "never-existed"}))

	docs, err := store.GetAll(ctx, "things", 100)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestBatchWriteAtomicRollback(t *testing.T) {
	// GIVEN: a batch whose last write collides with an existing id
	// WHEN: applying it
	// THEN: the earlier writes in the batch are rolled back too

	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "things", "taken", docstore.Fields{"keep": true}))

	err := store.BatchWrite(ctx, []docstore.Write{
		{Kind: docstore.WriteCreate, Collection: "things", ID: "new-1", Fields: docstore.Fields{}},
		{Kind: docstore.WriteUpdate, Collection: "things", ID: "taken", Fields: docstore.Fields{"keep": false}},
		{Kind: docstore.WriteCreate, Collection: "things", ID: "taken", Fields: docstore.Fields{}},
	})
	require.ErrorIs(t, err, docstore.ErrExists)

	_, err = store.Get(ctx, "things", "new-1")
	assert.ErrorIs(t, err, docstore.ErrNotFound, "first write rolled back")

	doc, err := store.Get(ctx, "things", "taken")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Fields["keep"], "update rolled back")
}

func TestBatchWriteMixedKinds(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "things", "upd", docstore.Fields{"v": int64(1)}))
	require.NoError(t, store.Create(ctx, "things", "del", docstore.Fields{}))

	require.NoError(t, store.BatchWrite(ctx, []docstore.Write{
		{Kind: docstore.WriteCreate, Collection: "things", ID: "new", Fields: docstore.Fields{"v": int64(0)}},
		{Kind: docstore.WriteUpdate, Collection: "things", ID: "upd", Fields: docstore.Fields{"v": int64(2)}},
		{Kind: docstore.WriteUpsert, Collection: "things", ID: "ups", Fields: docstore.Fields{"v": int64(3)}},
		{Kind: docstore.WriteDelete, Collection: "things", ID: "del"},
	}))

	doc, err := store.Get(ctx, "things", "upd")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Fields["v"])
	_, err = store.Get(ctx, "things", "del")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = store.Get(ctx, "things", "new")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "things", "ups")
	assert.NoError(t, err)
}

func TestTimeValuesCompareAsInstants(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	base := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, "locks", "a", docstore.Fields{"expiresAt": base}))

	docs, err := store.Where(ctx, "locks", "expiresAt", docstore.OpLt, base.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
