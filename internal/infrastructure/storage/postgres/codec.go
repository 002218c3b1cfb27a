package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionAlgo names how a large JSON payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 4 * 1024

// JSONCodec stores JSON documents inline and moves documents above a size
// threshold into a zstd-compressed column.
type JSONCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// NewJSONCodec creates a codec. threshold <= 0 selects 4KB.
func NewJSONCodec(threshold int) (*JSONCodec, error) {
	if threshold <= 0 {
		threshold = defaultCompressThreshold
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &JSONCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// Encoded is a document ready for insertion. Exactly one of Inline and
// Compressed is set.
type Encoded struct {
	Inline     json.RawMessage
	Compressed []byte
	Algo       CompressionAlgo
}

// Encode marshals v and compresses it when it exceeds the threshold.
func (c *JSONCodec) Encode(v any) (Encoded, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Encoded{}, fmt.Errorf("marshal document: %w", err)
	}
	if len(raw) <= c.threshold {
		return Encoded{Inline: raw, Algo: CompressionNone}, nil
	}
	return Encoded{Compressed: c.encoder.EncodeAll(raw, nil), Algo: CompressionZstd}, nil
}

// Decode restores a document into out.
func (c *JSONCodec) Decode(inline json.RawMessage, compressed []byte, algo CompressionAlgo, out any) error {
	raw := []byte(inline)
	if algo == CompressionZstd && len(compressed) > 0 {
		var err error
		raw, err = c.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return fmt.Errorf("decompress document: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
