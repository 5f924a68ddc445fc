package wal

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestAppendAssignsMonotonicLSNs(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	assert.NilError(t, err)
	defer w.Close()

	lsn1, err := w.Append("test", []KV{{Key: []byte("a"), Value: []byte("1")}})
	assert.NilError(t, err)
	lsn2, err := w.Append("test", []KV{{Key: []byte("b"), Value: []byte("2")}})
	assert.NilError(t, err)

	assert.Equal(t, lsn1, uint64(1))
	assert.Equal(t, lsn2, uint64(2))
}

func TestUpdateMetaIsNonDecreasing(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	assert.NilError(t, err)
	defer w.Close()

	assert.NilError(t, w.UpdateMeta(5))
	assert.Equal(t, w.LastMetaLSN(), uint64(5))

	assert.NilError(t, w.UpdateMeta(2))
	assert.Equal(t, w.LastMetaLSN(), uint64(5))

	assert.NilError(t, w.UpdateMeta(9))
	assert.Equal(t, w.LastMetaLSN(), uint64(9))
}

func TestReopenResumesLSNSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	assert.NilError(t, err)
	lsn, err := w.Append("test", []KV{{Key: []byte("a"), Value: []byte("1")}})
	assert.NilError(t, err)
	assert.Equal(t, lsn, uint64(1))
	assert.NilError(t, w.Close())

	w2, err := Open(dir)
	assert.NilError(t, err)
	defer w2.Close()
	assert.Equal(t, w2.NextLSN(), uint64(2))
}
