package parse

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaders_LittleEndian(t *testing.T) {
	t.Parallel()

	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x80, 0x3f, 0xfe}

	u16, err := ReadUint16(buf, 0, Field{Name: "u16", Offset: 0, Kind: KindUint16})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), u16)

	u32, err := ReadUint32(buf, 0, Field{Name: "u32", Offset: 0, Kind: KindUint32})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), u32)

	f32, err := ReadFloat32(buf, 4, Field{Name: "f32", Offset: 0, Kind: KindFloat32})
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), f32)

	i8, err := ReadInt8(buf, 8, Field{Name: "i8", Offset: 0, Kind: KindInt8})
	require.NoError(t, err)
	assert.Equal(t, int8(-2), i8)

	u8, err := ReadUint8(buf, 0, Field{Name: "u8", Offset: 2, Kind: KindUint8})
	require.NoError(t, err)
	assert.Equal(t, uint8(3), u8)

	raw, err := ReadBytes(buf, 1, Field{Name: "raw", Offset: 1, Kind: KindBytes, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x04, 0x00}, raw)
}

func TestReaders_OutOfBounds(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 10)
	tests := []struct {
		name string
		base int
		f    Field
	}{
		{"past end", 8, Field{Name: "f", Offset: 0, Kind: KindFloat32}},
		{"offset past end", 0, Field{Name: "f", Offset: 10, Kind: KindUint8}},
		{"negative base", -1, Field{Name: "f", Offset: 0, Kind: KindUint8}},
		{"bytes too long", 0, Field{Name: "name", Offset: 7, Kind: KindBytes, Size: 48}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fieldBytes(buf, tt.base, tt.f)
			assert.True(t, errors.Is(err, ErrOutOfBounds), "got %v", err)
		})
	}
}

func TestReaders_KindMismatch(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 64)
	_, err := ReadUint16(buf, 0, FieldSpeedKPH)
	require.NoError(t, err)

	_, err = ReadFloat32(buf, 0, FieldSpeedKPH)
	assert.True(t, errors.Is(err, ErrKindMismatch))
	_, err = ReadUint8(buf, 0, FieldName)
	assert.True(t, errors.Is(err, ErrKindMismatch))
}

func TestSlotReader_StickyError(t *testing.T) {
	t.Parallel()

	r := slotReader{buf: make([]byte, 4), base: 0}
	assert.Equal(t, uint16(0), r.u16(Field{Name: "a", Offset: 0, Kind: KindUint16}))
	require.NoError(t, r.err)

	_ = r.u32(Field{Name: "b", Offset: 2, Kind: KindUint32})
	require.Error(t, r.err)
	first := r.err

	_ = r.u8(Field{Name: "c", Offset: 0, Kind: KindUint8})
	assert.Equal(t, first, r.err, "the first error is kept")
}

func TestSlotReader_NonFiniteFloat(t *testing.T) {
	t.Parallel()

	f := Field{Name: "v", Offset: 0, Kind: KindFloat32}
	buf := make([]byte, 4)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		r := slotReader{buf: buf}
		assert.Zero(t, r.f32(f))
		assert.True(t, errors.Is(r.err, ErrNonFinite), "%v: %v", v, r.err)
	}

	binary.LittleEndian.PutUint32(buf, math.Float32bits(-12.5))
	r := slotReader{buf: buf}
	assert.Equal(t, float32(-12.5), r.f32(f))
	assert.NoError(t, r.err)
}
