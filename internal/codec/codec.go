// Package codec turns a raw screenshot byte blob into a compressed,
// base64-encoded wire payload, and back. Quality is baked into the raster
// step upstream; this package only compresses whatever bytes it is given.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/loool999/browser-test-2/internal/apperr"
)

// Level is the fixed DEFLATE compression level used for every frame.
// Moderate (zlib-equivalent level 6): fast enough to keep pace with a
// 30-60fps producer loop without leaving obvious size on the table.
const Level = 6

// Format names a raster format a payload can be produced from. Encode does
// not take a Format and Payload does not record one; the compressed bytes
// themselves are format-agnostic.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Payload is the result of Encode: a base64 string ready to go on the wire,
// and the byte length of the compressed (pre-base64) blob.
type Payload struct {
	Data      string
	ByteLen   int
}

// Encode DEFLATE-compresses raw and base64-encodes the result. Encode never
// fails for well-formed input; flate.NewWriter at a fixed valid level and
// writes to an in-memory buffer cannot themselves error.
func Encode(raw []byte) Payload {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, Level)
	if err != nil {
		// Level is a package constant we control; this can only fail if
		// that constant is out of flate's accepted range, which is a
		// programmer error, not a runtime condition callers should handle.
		panic(fmt.Sprintf("codec: invalid flate level %d: %v", Level, err))
	}
	if _, err := w.Write(raw); err != nil {
		panic(fmt.Sprintf("codec: in-memory flate write failed: %v", err))
	}
	if err := w.Close(); err != nil {
		panic(fmt.Sprintf("codec: in-memory flate close failed: %v", err))
	}

	compressed := buf.Bytes()
	return Payload{
		Data:    base64.StdEncoding.EncodeToString(compressed),
		ByteLen: len(compressed),
	}
}

// Decode reverses Encode: base64-decode then INFLATE. Provided for
// symmetry and round-trip tests; the production path only ever calls
// Encode, since decompression happens client-side.
func Decode(data string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Codec, "codec.Decode", fmt.Errorf("base64 decode: %w", err))
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.Codec, "codec.Decode", fmt.Errorf("inflate: %w", err))
	}
	return raw, nil
}
