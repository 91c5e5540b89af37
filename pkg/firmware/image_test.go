package firmware

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsOversizedImage(t *testing.T) {
	t.Parallel()

	// 65536 blocks of 8 bytes do not fit the 2-byte block number.
	_, err := New("digicap.dav", make([]byte, 8*65536), 8)

	assert.ErrorIs(t, err, utils.ErrImageTooLarge)
}

func TestTotalBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		size   int
		blocks int
	}{
		{name: "shorter than one block", size: 100, blocks: 1},
		{name: "one byte over a block", size: 513, blocks: 2},
		// Exact multiples still need a trailing zero-length block: a
		// short payload is the only end-of-transfer signal.
		{name: "exactly one block", size: 512, blocks: 2},
		{name: "exactly three blocks", size: 1536, blocks: 4},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			img, err := New("digicap.dav", make([]byte, tc.size), 512)
			require.NoError(t, err)

			assert.Equal(t, tc.blocks, img.TotalBlocks())
		})
	}
}

func TestBlock(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xaa}, 512+10)

	img, err := New("digicap.dav", data, 512)
	require.NoError(t, err)
	require.Equal(t, 2, img.TotalBlocks())

	b1, err := img.Block(1)
	require.NoError(t, err)
	assert.Len(t, b1, 512)
	assert.False(t, img.Terminal(1))

	b2, err := img.Block(2)
	require.NoError(t, err)
	assert.Len(t, b2, 10)
	assert.True(t, img.Terminal(2))

	assert.Equal(t, data, append(append([]byte{}, b1...), b2...))
}

func TestBlockTrailingEmpty(t *testing.T) {
	t.Parallel()

	img, err := New("digicap.dav", make([]byte, 1024), 512)
	require.NoError(t, err)
	require.Equal(t, 3, img.TotalBlocks())

	last, err := img.Block(3)
	require.NoError(t, err)
	assert.Empty(t, last)
	assert.True(t, img.Terminal(3))
}

func TestBlockOutOfRange(t *testing.T) {
	t.Parallel()

	img, err := New("digicap.dav", make([]byte, 100), 512)
	require.NoError(t, err)

	for _, n := range []int{0, -1, 2} {
		_, err := img.Block(n)
		assert.ErrorIs(t, err, utils.ErrBlockOutOfRange)
	}
}

func TestWithBlockSize(t *testing.T) {
	t.Parallel()

	img, err := New("digicap.dav", make([]byte, 2048), 512)
	require.NoError(t, err)

	resliced, err := img.WithBlockSize(1024)
	require.NoError(t, err)
	assert.Equal(t, 3, resliced.TotalBlocks())
	assert.Equal(t, 1024, resliced.BlockSize())

	// Reslicing below the viable size must fail, not wrap the counter.
	big, err := New("digicap.dav", make([]byte, 9*65535), 512)
	require.NoError(t, err)

	_, err = big.WithBlockSize(8)
	assert.ErrorIs(t, err, utils.ErrImageTooLarge)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	path := filepath.Join(dir, "digicap.dav")
	require.NoError(t, os.WriteFile(path, []byte("firmware-bytes"), 0o644))

	img, err := Load(path, 512)
	require.NoError(t, err)
	assert.Equal(t, "digicap.dav", img.Name())
	assert.Equal(t, len("firmware-bytes"), img.Size())

	empty := filepath.Join(dir, "empty.dav")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	_, err = Load(empty, 512)
	assert.ErrorIs(t, err, utils.ErrEmptyImage)

	_, err = Load(filepath.Join(dir, "missing.dav"), 512)
	assert.Error(t, err)
}
