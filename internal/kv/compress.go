package kv

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use; one pair serves
// every compressed store.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("kv: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("kv: zstd decoder initialization failed: " + err.Error())
	}
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type compressedStore struct {
	Store
}

// Compressed wraps s so values are zstd frames at rest. Values written before
// compression was enabled are still readable: anything without the zstd
// magic number is returned as is.
func Compressed(s Store) Store {
	return &compressedStore{Store: s}
}

func (c *compressedStore) Get(ctx context.Context, name string) ([]byte, error) {
	raw, err := c.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		return raw, nil
	}
	out, err := zstdDecoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: zstd decompress %s: %w", name, err)
	}
	return out, nil
}

func (c *compressedStore) Put(ctx context.Context, name string, value []byte) error {
	return c.Store.Put(ctx, name, zstdEncoder.EncodeAll(value, nil))
}
