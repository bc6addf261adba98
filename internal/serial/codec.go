package serial

import (
	"errors"
	"fmt"

	"github.com/kstaniek/go-can-hog/internal/can"
)

// ErrUnsupportedFrame is returned for frames the Ampio UART adapter cannot
// carry: remote requests, CAN FD and 11-bit identifiers.
var ErrUnsupportedFrame = errors.New("serial: unsupported frame")

// Codec encodes frames for the Ampio CAN-UART adapter. Stateless.
type Codec struct{}

// canUARTSend builds a UART frame:
// [0x2D, 0xD4, len+1, data..., checksum]
// checksum = (len+1) + 0x2D + sum(data) (mod 256)
func canUARTSend(data []byte) []byte {
	n := len(data)
	frame := make([]byte, n+4)

	frame[0] = 0x2D
	frame[1] = 0xD4
	frame[2] = byte(n + 1)

	sum := frame[2] + 0x2D
	for i, b := range data {
		frame[3+i] = b
		sum += b
	}
	frame[3+n] = sum
	return frame
}

// Encode wraps fr in the adapter's "send with extended ID" instruction.
func (Codec) Encode(f can.Frame) ([]byte, error) {
	switch {
	case f.RTR:
		return nil, fmt.Errorf("%w: remote request", ErrUnsupportedFrame)
	case f.FD:
		return nil, fmt.Errorf("%w: CAN FD", ErrUnsupportedFrame)
	case !f.Extended:
		return nil, fmt.Errorf("%w: standard identifier 0x%03X", ErrUnsupportedFrame, f.ID)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID & can.CAN_EFF_MASK
	tab := make([]byte, 6+f.DLC) // INS(1) + FLAGS(1) + ID(4) + PAYLOAD(0..8)
	tab[0] = 2                   // INS: 2 = CAN UART SEND WITH EXT ID
	tab[1] = 0x80 + f.DLC        // FLAGS/DLC (0x80 | len) for classic
	tab[2] = byte(id >> 24)
	tab[3] = byte(id >> 16)
	tab[4] = byte(id >> 8)
	tab[5] = byte(id)
	copy(tab[6:], f.Data[:f.DLC])
	return canUARTSend(tab), nil
}
