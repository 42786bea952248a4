package filestore

import (
	"io/ioutil"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/extpq/block"
)

func TestWriteReadRoundTrip(t *testing.T) {
	tempDir, err := ioutil.TempDir("", "filestore")
	require.NoError(t, err, "unexpected error creating temp dir")
	defer os.RemoveAll(tempDir)

	s, err := New[int64](&Config{Path: tempDir})
	require.NoError(t, err, "unexpected error creating store")

	ids, err := s.NewBlocks(block.Monotonic{}, 3)
	require.NoError(t, err, "unexpected error allocating blocks")
	assert.Equal(t, 3, s.Live())

	want := make([]int64, 16)
	for i := range want {
		want[i] = rand.Int63()
	}

	buf := block.New[int64](ids[0], len(want))
	copy(buf.Data, want)
	require.NoError(t, s.WriteBlock(ids[0], buf))

	got := block.New[int64](ids[0], len(want))
	require.NoError(t, s.ReadBlock(ids[0], got))
	assert.Equal(t, want, got.Data)

	s.DeleteBlock(ids[0])
	assert.Equal(t, 2, s.Live())
	assert.NoFileExists(t, s.blockPath(ids[0]))
}

func TestDeleteBlocksIsIdempotentOnMissingFiles(t *testing.T) {
	tempDir, err := ioutil.TempDir("", "filestore")
	require.NoError(t, err, "unexpected error creating temp dir")
	defer os.RemoveAll(tempDir)

	s, err := New[string](&Config{Path: tempDir})
	require.NoError(t, err)

	ids, err := s.NewBlocks(nil, 2)
	require.NoError(t, err)

	s.DeleteBlocks(ids)
	assert.Equal(t, 0, s.Live())
	s.DeleteBlocks(ids) // already gone; must not panic or error
	assert.Equal(t, 0, s.Live())
}
