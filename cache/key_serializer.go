package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	hex "github.com/tmthrgd/go-hex"
)

// KeyVersion is mixed into every digest so a change of the canonical
// encoding never aliases keys persisted by an older release.
const KeyVersion = 1

// Value tags of the canonical encoding. Every value is written as
// tag, then a fixed width or length prefixed payload.
const (
	tagNil byte = iota + 1
	tagBool
	tagInt
	tagUint
	tagFloat
	tagComplex
	tagString
	tagBytes
	tagSlice
	tagArray
	tagMap
	tagStruct
	tagBinary
	tagIdentity
)

var binaryMarshalerType = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()

// defaultKeyBuilder implements KeyBuilder using reflection-based serialization.
// Every argument goes through the same canonical encoding (no separate path for
// hashable values) and the result is hashed with SHA-256.
type defaultKeyBuilder struct{}

// NewDefaultKeyBuilder creates a new instance of the default key builder.
func NewDefaultKeyBuilder() KeyBuilder {
	return &defaultKeyBuilder{}
}

// BuildKey builds a cache key from the function identity and its args.
func (b *defaultKeyBuilder) BuildKey(identity string, args ...any) (Key, error) {
	data, err := Canonicalize(identity, args...)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return Key(hex.EncodeToString(sum[:])), nil
}

// Canonicalize returns the canonical byte encoding hashed by the default key builder.
func Canonicalize(identity string, args ...any) ([]byte, error) {
	enc := &keyEncoder{visited: make(map[visitKey]struct{})}
	enc.buf.WriteByte(KeyVersion)
	enc.writeTag(tagIdentity)
	enc.writeString(identity)
	enc.writeLen(len(args))

	for i, arg := range args {
		enc.position = i
		if err := enc.encode(reflect.ValueOf(arg), "args["+strconv.Itoa(i)+"]"); err != nil {
			return nil, err
		}
	}
	return enc.buf.Bytes(), nil
}

type keyEncoder struct {
	buf      bytes.Buffer
	position int
	// visited holds the references on the current descent path, so cycles fail
	// instead of recursing forever.
	visited map[visitKey]struct{}
}

// visitKey identifies a pointer, map or slice. Slices sharing a backing array
// are told apart by length.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

// enter records rv on the descent path. The returned func removes it again.
func (e *keyEncoder) enter(rv reflect.Value, path string) (func(), error) {
	k := visitKey{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		k.n = rv.Len()
	}
	if _, seen := e.visited[k]; seen {
		return nil, e.unserializable(path, rv.Kind(), "cyclic reference")
	}
	e.visited[k] = struct{}{}
	return func() { delete(e.visited, k) }, nil
}

func (e *keyEncoder) writeTag(tag byte) { e.buf.WriteByte(tag) }

func (e *keyEncoder) writeLen(n int) {
	e.buf.Write(binary.AppendUvarint(nil, uint64(n)))
}

func (e *keyEncoder) writeString(s string) {
	e.writeLen(len(s))
	e.buf.WriteString(s)
}

func (e *keyEncoder) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *keyEncoder) unserializable(path string, kind reflect.Kind, reason string) error {
	return &UnserializableArgumentError{Position: e.position, Path: path, Kind: kind, Reason: reason}
}

// encode handles individual value serialization based on kind.
func (e *keyEncoder) encode(rv reflect.Value, path string) error {
	if !rv.IsValid() {
		e.writeTag(tagNil)
		return nil
	}

	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return e.unserializable(path, rv.Kind(), "")
	case reflect.Interface:
		if rv.IsNil() {
			e.writeTag(tagNil)
			return nil
		}
		return e.encode(rv.Elem(), path)
	case reflect.Ptr:
		if rv.IsNil() {
			e.writeTag(tagNil)
			return nil
		}
	}

	// Types with their own binary form (time.Time and friends) are encoded
	// through it, which drops process local state such as monotonic readings.
	if rv.CanInterface() && rv.Type().Implements(binaryMarshalerType) {
		data, err := rv.Interface().(encoding.BinaryMarshaler).MarshalBinary()
		if err != nil {
			return e.unserializable(path, rv.Kind(), err.Error())
		}
		e.writeTag(tagBinary)
		e.writeString(rv.Type().String())
		e.writeLen(len(data))
		e.buf.Write(data)
		return nil
	}

	switch rv.Kind() {
	case reflect.Ptr:
		leave, err := e.enter(rv, path)
		if err != nil {
			return err
		}
		defer leave()
		return e.encode(rv.Elem(), path)

	case reflect.Bool:
		e.writeTag(tagBool)
		if rv.Bool() {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.writeTag(tagInt)
		e.writeString(rv.Type().String())
		e.writeUint64(uint64(rv.Int()))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.writeTag(tagUint)
		e.writeString(rv.Type().String())
		e.writeUint64(rv.Uint())

	case reflect.Float32, reflect.Float64:
		e.writeTag(tagFloat)
		e.writeString(rv.Type().String())
		e.writeUint64(math.Float64bits(rv.Float()))

	case reflect.Complex64, reflect.Complex128:
		e.writeTag(tagComplex)
		e.writeString(rv.Type().String())
		c := rv.Complex()
		e.writeUint64(math.Float64bits(real(c)))
		e.writeUint64(math.Float64bits(imag(c)))

	case reflect.String:
		e.writeTag(tagString)
		e.writeString(rv.Type().String())
		e.writeString(rv.String())

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			e.writeTag(tagBytes)
			e.writeString(rv.Type().String())
			e.writeLen(rv.Len())
			e.buf.Write(rv.Bytes())
			return nil
		}
		if rv.Len() > 0 {
			leave, err := e.enter(rv, path)
			if err != nil {
				return err
			}
			defer leave()
		}
		e.writeTag(tagSlice)
		return e.encodeSequence(rv, path)

	case reflect.Array:
		e.writeTag(tagArray)
		return e.encodeSequence(rv, path)

	case reflect.Map:
		if !rv.IsNil() {
			leave, err := e.enter(rv, path)
			if err != nil {
				return err
			}
			defer leave()
		}
		e.writeTag(tagMap)
		return e.encodeMap(rv, path)

	case reflect.Struct:
		e.writeTag(tagStruct)
		return e.encodeStruct(rv, path)

	default:
		return e.unserializable(path, rv.Kind(), "")
	}

	return nil
}

// encodeSequence handles slice and array serialization recursively
func (e *keyEncoder) encodeSequence(rv reflect.Value, path string) error {
	e.writeString(rv.Type().String())
	length := rv.Len()
	e.writeLen(length)

	for i := 0; i < length; i++ {
		if err := e.encode(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap handles map serialization with entries sorted by their encoded key for determinism
func (e *keyEncoder) encodeMap(rv reflect.Value, path string) error {
	type pair struct {
		key   []byte
		value []byte
	}

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keyBytes, err := e.sub(iter.Key(), path+"{key}")
		if err != nil {
			return err
		}
		valueBytes, err := e.sub(iter.Value(), fmt.Sprintf("%s[%x]", path, keyBytes))
		if err != nil {
			return err
		}
		pairs = append(pairs, pair{key: keyBytes, value: valueBytes})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].key, pairs[j].key) < 0
	})

	e.writeString(rv.Type().String())
	e.writeLen(len(pairs))
	for _, p := range pairs {
		e.writeLen(len(p.key))
		e.buf.Write(p.key)
		e.writeLen(len(p.value))
		e.buf.Write(p.value)
	}
	return nil
}

// encodeStruct handles struct serialization with field names.
// Unexported fields are read through reflection too: two values that only
// differ in private state are different arguments.
func (e *keyEncoder) encodeStruct(rv reflect.Value, path string) error {
	rt := rv.Type()
	e.writeString(rt.String())
	e.writeLen(rt.NumField())

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		e.writeString(field.Name)
		if err := e.encode(rv.Field(i), path+"."+field.Name); err != nil {
			return err
		}
	}
	return nil
}

// sub encodes a value into a standalone buffer sharing the cycle tracking state.
func (e *keyEncoder) sub(rv reflect.Value, path string) ([]byte, error) {
	child := &keyEncoder{position: e.position, visited: e.visited}
	if err := child.encode(rv, path); err != nil {
		return nil, err
	}
	return child.buf.Bytes(), nil
}
