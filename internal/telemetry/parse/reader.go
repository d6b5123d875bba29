package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned when a field would be read past the end of the
// buffer. It only ever invalidates the record being read.
var ErrOutOfBounds = errors.New("field out of bounds")

// ErrKindMismatch is returned when a typed reader is used on a field of a
// different kind.
var ErrKindMismatch = errors.New("field kind mismatch")

// ErrNonFinite is returned by slot reads of a float field holding NaN or an
// infinity. Like ErrOutOfBounds it invalidates only the record being read.
var ErrNonFinite = errors.New("non-finite float field")

// fieldBytes returns the bytes of f within the record starting at base.
func fieldBytes(buf []byte, base int, f Field) ([]byte, error) {
	start := base + f.Offset
	end := start + f.Width()
	if base < 0 || start < 0 || end < start || end > len(buf) {
		return nil, fmt.Errorf("%w: %s needs [%d:%d), packet has %d bytes",
			ErrOutOfBounds, f.Name, start, end, len(buf))
	}
	return buf[start:end], nil
}

func checkKind(f Field, want FieldKind) error {
	if f.Kind != want {
		return fmt.Errorf("%w: %s is %s, read as %s", ErrKindMismatch, f.Name, f.Kind, want)
	}
	return nil
}

// ReadUint8 reads an unsigned byte field.
func ReadUint8(buf []byte, base int, f Field) (uint8, error) {
	if err := checkKind(f, KindUint8); err != nil {
		return 0, err
	}
	b, err := fieldBytes(buf, base, f)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads a signed byte field.
func ReadInt8(buf []byte, base int, f Field) (int8, error) {
	if err := checkKind(f, KindInt8); err != nil {
		return 0, err
	}
	b, err := fieldBytes(buf, base, f)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// ReadUint16 reads a little-endian uint16 field.
func ReadUint16(buf []byte, base int, f Field) (uint16, error) {
	if err := checkKind(f, KindUint16); err != nil {
		return 0, err
	}
	b, err := fieldBytes(buf, base, f)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32 field.
func ReadUint32(buf []byte, base int, f Field) (uint32, error) {
	if err := checkKind(f, KindUint32); err != nil {
		return 0, err
	}
	b, err := fieldBytes(buf, base, f)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadFloat32 reads a little-endian IEEE-754 float field.
func ReadFloat32(buf []byte, base int, f Field) (float32, error) {
	if err := checkKind(f, KindFloat32); err != nil {
		return 0, err
	}
	b, err := fieldBytes(buf, base, f)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadBytes returns the raw bytes of a fixed-width byte field. The result
// aliases buf.
func ReadBytes(buf []byte, base int, f Field) ([]byte, error) {
	if err := checkKind(f, KindBytes); err != nil {
		return nil, err
	}
	return fieldBytes(buf, base, f)
}

// slotReader reads several fields of one record and keeps the first error,
// so a decoder can read a whole slot and check once.
type slotReader struct {
	buf  []byte
	base int
	err  error
}

func (r *slotReader) u8(f Field) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := ReadUint8(r.buf, r.base, f)
	r.err = err
	return v
}

func (r *slotReader) i8(f Field) int8 {
	if r.err != nil {
		return 0
	}
	v, err := ReadInt8(r.buf, r.base, f)
	r.err = err
	return v
}

func (r *slotReader) u16(f Field) uint16 {
	if r.err != nil {
		return 0
	}
	v, err := ReadUint16(r.buf, r.base, f)
	r.err = err
	return v
}

func (r *slotReader) u32(f Field) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := ReadUint32(r.buf, r.base, f)
	r.err = err
	return v
}

func (r *slotReader) f32(f Field) float32 {
	if r.err != nil {
		return 0
	}
	v, err := ReadFloat32(r.buf, r.base, f)
	if err == nil && !isFinite(v) {
		err = fmt.Errorf("%w: %s is %v", ErrNonFinite, f.Name, v)
		v = 0
	}
	r.err = err
	return v
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (r *slotReader) raw(f Field) []byte {
	if r.err != nil {
		return nil
	}
	v, err := ReadBytes(r.buf, r.base, f)
	r.err = err
	return v
}
