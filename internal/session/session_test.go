package session

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/kvdb/internal/kvstore"
)

// fakeStore is a trivial in-memory BoundStore for session tests; it
// never touches disk or the WAL, isolating the session state machine
// from its collaborators.
type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Get(key []byte) ([]byte, bool, error) {
	v, ok := f.data[string(key)]
	return v, ok, nil
}

func (f *fakeStore) Write(ops []kvstore.KV) error {
	for _, op := range ops {
		f.data[string(op.Key)] = op.Value
	}
	return nil
}

func TestSetDBBindsSession(t *testing.T) {
	s := New("127.0.0.1:1111")
	assert.Equal(t, s.State(), StateInit)

	s.SetDB("test", newFakeStore())
	assert.Equal(t, s.State(), StateBound)
	assert.Equal(t, s.CurrentDB(), "test")
}

func TestPutGetRoundTripBound(t *testing.T) {
	s := New("peer:1")
	s.SetDB("test", newFakeStore())

	assert.NilError(t, s.Put([]kvstore.KV{{Key: []byte("k"), Value: []byte("v")}}))

	results, err := s.Get([][]byte{[]byte("k")})
	assert.NilError(t, err)
	assert.Equal(t, string(results[0]), "v")
}

func TestBatchIsolationNotVisibleUntilCommit(t *testing.T) {
	store := newFakeStore()
	a := New("a")
	a.SetDB("test", store)
	b := New("b")
	b.SetDB("test", store)

	assert.NilError(t, a.BatchBegin())
	assert.NilError(t, a.Put([]kvstore.KV{{Key: []byte("k1"), Value: []byte("v1")}}))

	// Session a reads its own write.
	resA, err := a.Get([][]byte{[]byte("k1")})
	assert.NilError(t, err)
	assert.Equal(t, string(resA[0]), "v1")

	// Session b does not see it yet.
	resB, err := b.Get([][]byte{[]byte("k1")})
	assert.NilError(t, err)
	assert.Assert(t, resB[0] == nil)

	assert.NilError(t, a.BatchCommit(1))

	resB2, err := b.Get([][]byte{[]byte("k1")})
	assert.NilError(t, err)
	assert.Equal(t, string(resB2[0]), "v1")
}

func TestBatchCommitSizeMismatchStaysInBatching(t *testing.T) {
	s := New("a")
	s.SetDB("test", newFakeStore())
	assert.NilError(t, s.BatchBegin())
	assert.NilError(t, s.Put([]kvstore.KV{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}))

	err := s.BatchCommit(1)
	assert.ErrorContains(t, err, "expected 1")
	assert.Equal(t, s.State(), StateBatching)

	assert.NilError(t, s.BatchCommit(2))
	assert.Equal(t, s.State(), StateBound)
}

func TestBatchCommitWithoutBeginFails(t *testing.T) {
	s := New("a")
	s.SetDB("test", newFakeStore())
	err := s.BatchCommit(0)
	assert.ErrorContains(t, err, "BATCH_BEGIN")
}

func TestBatchAbortIsIdempotentAndClearsBuffer(t *testing.T) {
	s := New("a")
	s.SetDB("test", newFakeStore())
	assert.NilError(t, s.BatchBegin())
	assert.NilError(t, s.Put([]kvstore.KV{{Key: []byte("k"), Value: []byte("v")}}))

	assert.NilError(t, s.BatchAbort())
	assert.Equal(t, s.State(), StateBound)
	assert.NilError(t, s.BatchAbort())
	assert.Equal(t, s.State(), StateBound)

	assert.NilError(t, s.BatchBegin())
	res, err := s.Get([][]byte{[]byte("k")})
	assert.NilError(t, err)
	assert.Assert(t, res[0] == nil)
}

func TestPutLastWriteWinsWithinBatch(t *testing.T) {
	s := New("a")
	s.SetDB("test", newFakeStore())
	assert.NilError(t, s.BatchBegin())
	assert.NilError(t, s.Put([]kvstore.KV{{Key: []byte("k"), Value: []byte("first")}}))
	assert.NilError(t, s.Put([]kvstore.KV{{Key: []byte("k"), Value: []byte("second")}}))

	assert.NilError(t, s.BatchCommit(1))

	res, err := s.Get([][]byte{[]byte("k")})
	assert.NilError(t, err)
	assert.Equal(t, string(res[0]), "second")
}

func TestExistsReflectsBatchAndEngine(t *testing.T) {
	store := newFakeStore()
	store.data["already-there"] = []byte("x")
	s := New("a")
	s.SetDB("test", store)

	res, err := s.Exists([][]byte{[]byte("already-there"), []byte("missing")})
	assert.NilError(t, err)
	assert.Assert(t, res[0])
	assert.Assert(t, !res[1])
}
