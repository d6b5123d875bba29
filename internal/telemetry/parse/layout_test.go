package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/pitwall/internal/testutil"
)

// Every field of a record must fit inside its stride, and the last slot must
// end inside a full-size datagram.
func TestLayouts_FieldsFitStride(t *testing.T) {
	t.Parallel()

	tests := []struct {
		layout RecordLayout
		fields []Field
		size   int
	}{
		{MotionLayout, []Field{FieldWorldPositionX, FieldWorldPositionZ}, testutil.MotionPacketSize},
		{LapDataLayout, []Field{FieldLastLapTimeMs, FieldCurrentLapTimeMs, FieldLapDistance, FieldTotalDistance, FieldCurrentLapNum, FieldSector, FieldTrackPosition}, testutil.LapDataPacketSize},
		{ParticipantsLayout, []Field{FieldTeamID, FieldRaceNumber, FieldName}, testutil.ParticipantsPacketSize},
		{TelemetryLayout, []Field{FieldSpeedKPH, FieldThrottle, FieldBrake, FieldGear, FieldEngineRPM}, testutil.TelemetryPacketSize},
	}

	for _, tt := range tests {
		t.Run(tt.layout.Name, func(t *testing.T) {
			assert.Equal(t, NumCars, tt.layout.Slots)
			assert.Equal(t, tt.size, tt.layout.SlotOffset(tt.layout.Slots))
			assert.LessOrEqual(t, tt.size, MaxPacketSize)
			for _, f := range tt.fields {
				assert.LessOrEqual(t, f.Offset+f.Width(), tt.layout.Stride, f.Name)
			}
		})
	}
}

func TestLayouts_HeaderFields(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, FieldPacketID.Offset)
	assert.Equal(t, 20, FieldPlayerCarIndex.Offset)
	assert.Less(t, FieldPlayerCarIndex.Offset, HeaderSize)
	assert.Equal(t, HeaderSize, FieldNumActiveCars.Offset)
	assert.Equal(t, 48, FieldName.Width())
}

func TestFieldKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "float32", KindFloat32.String())
	assert.Equal(t, "bytes", KindBytes.String())
	assert.Equal(t, "FieldKind(99)", FieldKind(99).String())
}
