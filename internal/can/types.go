package can

import (
	"errors"
	"fmt"
	"strings"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

const (
	MaxClassicLen = 8
	MaxFDLen      = 64
)

var (
	ErrInvalidID    = errors.New("can: invalid identifier")
	ErrInvalidLen   = errors.New("can: invalid data length")
	ErrInvalidFlags = errors.New("can: invalid flag combination")
)

// Frame describes one CAN or CAN FD frame to transmit.
//
// ID holds the bare 11-bit or 29-bit identifier; the EFF/RTR bits live in
// Extended and RTR and are only packed together by CANID. DLC is the payload
// length in bytes (for RTR frames, the requested length). Only the first DLC
// bytes of Data are valid.
//
// Frames are plain values; a frame shared between goroutines must not be
// mutated after it is handed out.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	DLC      uint8
	FD       bool
	BRS      bool
	Data     [MaxFDLen]byte
}

// NewFrame builds a data frame with the given payload. Identifiers above the
// standard range select the extended format.
func NewFrame(id uint32, payload []byte) Frame {
	f := Frame{ID: id, Extended: id > CAN_SFF_MASK}
	f.DLC = uint8(copy(f.Data[:], payload))
	if f.DLC > MaxClassicLen {
		f.FD = true
	}
	return f
}

// validFDLen reports whether n is one of the CAN FD payload sizes.
func validFDLen(n uint8) bool {
	switch n {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64:
		return true
	}
	return false
}

// Validate returns an error if the frame cannot be put on the wire.
func (f Frame) Validate() error {
	if f.Extended {
		if f.ID > CAN_EFF_MASK {
			return fmt.Errorf("%w: 0x%X exceeds 29 bits", ErrInvalidID, f.ID)
		}
	} else if f.ID > CAN_SFF_MASK {
		return fmt.Errorf("%w: 0x%X exceeds 11 bits", ErrInvalidID, f.ID)
	}
	if f.FD {
		if f.RTR {
			return fmt.Errorf("%w: remote request on FD frame", ErrInvalidFlags)
		}
		if !validFDLen(f.DLC) {
			return fmt.Errorf("%w: %d", ErrInvalidLen, f.DLC)
		}
		return nil
	}
	if f.BRS {
		return fmt.Errorf("%w: bit-rate switch without FD", ErrInvalidFlags)
	}
	if f.DLC > MaxClassicLen {
		return fmt.Errorf("%w: %d", ErrInvalidLen, f.DLC)
	}
	return nil
}

// CANID packs the identifier and its EFF/RTR flags in SocketCAN layout.
func (f Frame) CANID() uint32 {
	if f.Extended {
		id := (f.ID & CAN_EFF_MASK) | CAN_EFF_FLAG
		if f.RTR {
			id |= CAN_RTR_FLAG
		}
		return id
	}
	id := f.ID & CAN_SFF_MASK
	if f.RTR {
		id |= CAN_RTR_FLAG
	}
	return id
}

// Payload returns the valid data bytes. Remote requests carry none.
func (f Frame) Payload() []byte {
	if f.RTR {
		return nil
	}
	return f.data()
}

// data bounds DLC by the buffer so unvalidated frames can still be logged.
func (f Frame) data() []byte {
	return f.Data[:min(int(f.DLC), MaxFDLen)]
}

// String renders the frame in candump notation, e.g. "010#", "12345678#R",
// "123##1DEAD".
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID&CAN_EFF_MASK)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID&CAN_SFF_MASK)
	}
	b.WriteByte('#')
	switch {
	case f.RTR:
		b.WriteByte('R')
		if f.DLC > 0 {
			fmt.Fprintf(&b, "%d", f.DLC)
		}
	case f.FD:
		flags := 0
		if f.BRS {
			flags |= 1
		}
		fmt.Fprintf(&b, "#%X", flags)
		fmt.Fprintf(&b, "%X", f.data())
	default:
		fmt.Fprintf(&b, "%X", f.data())
	}
	return b.String()
}
