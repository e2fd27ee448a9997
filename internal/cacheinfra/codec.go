package cacheinfra

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-memo/cache"
	"github.com/vmihailenco/msgpack/v5"
)

// Frame layout of a persisted entry:
//
//	magic (4) | version (1) | storedAt unix nanos (8) | xxhash64 (8) | payload
//
// The checksum covers the timestamp and the payload.
const (
	frameVersion    byte = 2
	frameStampAt         = 4 + 1
	frameSumAt           = frameStampAt + 8
	frameHeaderSize      = frameSumAt + 8
)

var frameMagic = [4]byte{'M', 'E', 'M', 'O'}

var (
	errShortFrame = errors.New("cacheinfra: frame shorter than header")
	errBadMagic   = errors.New("cacheinfra: not a memo frame")
	errBadVersion = errors.New("cacheinfra: unsupported frame version")
	errChecksum   = errors.New("cacheinfra: checksum mismatch")
)

// Codec converts memoized values to blobs and back using msgpack.
// Maps are encoded with sorted keys so equal values produce equal blobs.
type Codec struct{}

// Encode serializes v.
func (Codec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrUnserializableValue, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into dst, which must be a pointer.
// Every call produces a fresh value, independent of previous reads.
func (Codec) Decode(data []byte, dst any) error {
	if err := msgpack.Unmarshal(data, dst); err != nil {
		return &cache.ReadError{Err: err}
	}
	return nil
}

// Frame encodes an entry with a header carrying its timestamp and checksum.
func Frame(entry cache.Entry) []byte {
	out := make([]byte, frameHeaderSize, frameHeaderSize+len(entry.Blob))
	copy(out, frameMagic[:])
	out[4] = frameVersion
	binary.BigEndian.PutUint64(out[frameStampAt:frameSumAt], uint64(entry.StoredAt.UnixNano()))
	out = append(out, entry.Blob...)
	binary.BigEndian.PutUint64(out[frameSumAt:frameHeaderSize], frameChecksum(out))
	return out
}

// Unframe validates a frame and returns the entry it carries.
func Unframe(data []byte) (cache.Entry, error) {
	if len(data) < frameHeaderSize {
		return cache.Entry{}, errShortFrame
	}
	if !bytes.Equal(data[:4], frameMagic[:]) {
		return cache.Entry{}, errBadMagic
	}
	if data[4] != frameVersion {
		return cache.Entry{}, errBadVersion
	}
	if binary.BigEndian.Uint64(data[frameSumAt:frameHeaderSize]) != frameChecksum(data) {
		return cache.Entry{}, errChecksum
	}
	return cache.Entry{
		Blob:     data[frameHeaderSize:],
		StoredAt: time.Unix(0, int64(binary.BigEndian.Uint64(data[frameStampAt:frameSumAt]))),
	}, nil
}

func frameChecksum(frame []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(frame[frameStampAt:frameSumAt])
	_, _ = d.Write(frame[frameHeaderSize:])
	return d.Sum64()
}
