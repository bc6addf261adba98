package can

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name string
		fr   Frame
		want error
	}{
		{"stdOK", Frame{ID: 0x7FF}, nil},
		{"stdTooBig", Frame{ID: 0x800}, ErrInvalidID},
		{"extOK", Frame{ID: 0x1FFFFFFF, Extended: true}, nil},
		{"extTooBig", Frame{ID: 0x20000000, Extended: true}, ErrInvalidID},
		{"classicLen", Frame{ID: 1, DLC: 9}, ErrInvalidLen},
		{"fdLen", Frame{ID: 1, FD: true, DLC: 12}, nil},
		{"fdBadLen", Frame{ID: 1, FD: true, DLC: 13}, ErrInvalidLen},
		{"brsNoFD", Frame{ID: 1, BRS: true}, ErrInvalidFlags},
		{"rtrFD", Frame{ID: 1, FD: true, RTR: true}, ErrInvalidFlags},
		{"rtrClassic", Frame{ID: 1, RTR: true, DLC: 4}, nil},
	}
	for _, tc := range tests {
		err := tc.fr.Validate()
		if tc.want == nil {
			require.NoError(t, err, tc.name)
			continue
		}
		require.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestFrameCANID(t *testing.T) {
	require.EqualValues(t, 0x10, Frame{ID: 0x10}.CANID())
	require.EqualValues(t, 0x123|CAN_RTR_FLAG, Frame{ID: 0x123, RTR: true}.CANID())
	require.EqualValues(t, 0x12345|CAN_EFF_FLAG, Frame{ID: 0x12345, Extended: true}.CANID())
}

func TestNewFrame(t *testing.T) {
	f := NewFrame(0x10, nil)
	require.False(t, f.Extended)
	require.False(t, f.FD)
	require.Zero(t, f.DLC)

	f = NewFrame(0x800, []byte{1, 2})
	require.True(t, f.Extended)
	require.EqualValues(t, 2, f.DLC)

	f = NewFrame(0x10, make([]byte, 12))
	require.True(t, f.FD)
	require.EqualValues(t, 12, f.DLC)
	require.Len(t, f.Payload(), 12)
	require.Nil(t, Frame{ID: 1, RTR: true, DLC: 4}.Payload())
}

func TestFrameString(t *testing.T) {
	tests := []struct {
		fr   Frame
		want string
	}{
		{Frame{ID: 0x10}, "010#"},
		{NewFrame(0x123, []byte{0xDE, 0xAD}), "123#DEAD"},
		{Frame{ID: 0x1ABCDEF, Extended: true, RTR: true}, "01ABCDEF#R"},
		{Frame{ID: 0x123, FD: true, BRS: true, DLC: 1, Data: [MaxFDLen]byte{0xAA}}, "123##1AA"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, tc.fr.String())
	}
}

func TestFrameOversizedDLCDoesNotPanic(t *testing.T) {
	fr := Frame{ID: 0x10, DLC: 100}
	require.ErrorIs(t, fr.Validate(), ErrInvalidLen)
	require.NotPanics(t, func() { _ = fr.String() })
	require.Len(t, fr.Payload(), MaxFDLen)

	fd := Frame{ID: 0x10, FD: true, DLC: 255}
	require.NotPanics(t, func() { _ = fd.String() })
}
