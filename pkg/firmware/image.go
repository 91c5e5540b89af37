// Package firmware presents a firmware image as a finite sequence of
// fixed-size blocks, numbered from 1. The whole file is read into memory
// at load time: recovery images are small and retransmission needs
// random re-access to earlier blocks.
package firmware

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Wa4h1h/unbrickd/pkg/types"
	"github.com/Wa4h1h/unbrickd/pkg/utils"
)

type Image struct {
	name      string
	data      []byte
	blockSize int
}

// Load reads the image at path into memory, segmented into blockSize
// byte blocks. Empty files are rejected: serving a zero-byte image would
// flash nothing and leave the device bricked.
func Load(path string, blockSize int) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error while reading firmware image: %w", err)
	}

	if len(data) == 0 {
		return nil, utils.ErrEmptyImage
	}

	return New(filepath.Base(path), data, blockSize)
}

func New(name string, data []byte, blockSize int) (*Image, error) {
	i := &Image{name: name, data: data, blockSize: blockSize}

	if i.TotalBlocks() > types.MaxBlocks {
		return nil, fmt.Errorf("%w: %d bytes need more than %d blocks of %d bytes",
			utils.ErrImageTooLarge, len(data), types.MaxBlocks, blockSize)
	}

	return i, nil
}

func (i *Image) Name() string { return i.name }

func (i *Image) Size() int { return len(i.data) }

func (i *Image) BlockSize() int { return i.blockSize }

// TotalBlocks counts the blocks of the transfer, including the terminal
// one. A length that is an exact multiple of the block size yields one
// trailing zero-length block, since a short payload is the only
// end-of-transfer signal the protocol has.
func (i *Image) TotalBlocks() int {
	if len(i.data)%i.blockSize == 0 {
		return len(i.data)/i.blockSize + 1
	}

	return (len(i.data) + i.blockSize - 1) / i.blockSize
}

// Block returns the payload of block n, 1-based. The terminal block is
// the only one shorter than the block size and may be empty.
func (i *Image) Block(n int) ([]byte, error) {
	if n < 1 || n > i.TotalBlocks() {
		return nil, fmt.Errorf("%w: block %d, image has %d blocks", utils.ErrBlockOutOfRange, n, i.TotalBlocks())
	}

	start := (n - 1) * i.blockSize

	end := start + i.blockSize
	if end > len(i.data) {
		end = len(i.data)
	}

	return i.data[start:end], nil
}

// Terminal reports whether block n closes the transfer.
func (i *Image) Terminal(n int) bool {
	return n == i.TotalBlocks()
}

// WithBlockSize reslices the image for a negotiated block size, sharing
// the underlying data. Fails if the smaller size overflows the block
// number space.
func (i *Image) WithBlockSize(blockSize int) (*Image, error) {
	return New(i.name, i.data, blockSize)
}
