// Package chunkcodec is the on-disk encoding shared by the chunk backends
// and the world's global files: zstd-compressed JSON.
package chunkcodec

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"voxelhost.ai/internal/terrain"
)

// A single-threaded encoder keeps the output byte-stable for equal input.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(256<<20))
)

// Marshal encodes any JSON-serialisable value.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func Unmarshal(b []byte, v any) error {
	raw, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return fmt.Errorf("zstd decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}

func EncodeChunk(key terrain.ChunkKey, c *terrain.Chunk) ([]byte, error) {
	return Marshal(c.Record(key))
}

// DecodeChunk decodes a chunk and checks it was stored under want.
func DecodeChunk(want terrain.ChunkKey, b []byte) (*terrain.Chunk, error) {
	var rec terrain.Record
	if err := Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	if rec.Key != want {
		return nil, fmt.Errorf("chunk %s stored as %s", want, rec.Key)
	}
	return rec.Chunk()
}
