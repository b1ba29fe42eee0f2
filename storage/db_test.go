package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemDBGetReturnsCopy(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("abc")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	got[0] = 'x'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestMemDBIteratePrefix(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("sale/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("sale/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("acct/a"), []byte("3")))

	var keys []string
	require.NoError(t, db.IteratePrefix([]byte("sale/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"sale/a", "sale/b"}, keys)

	// Early stop.
	count := 0
	require.NoError(t, db.IteratePrefix([]byte("sale/"), func(key, value []byte) bool {
		count++
		return false
	}))
	require.Equal(t, 1, count)
}
