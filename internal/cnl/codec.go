package cnl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-can-hog/internal/can"
)

// Codec encodes cannelloni TCP frames. Stateless and safe for concurrent use.
type Codec struct{}

// ErrInvalidFrame is returned for frames that fail validation before encoding.
var ErrInvalidFrame = errors.New("cannelloni: invalid frame")

const (
	fdFrameFlag = 0x80 // length byte high bit marks a CAN FD frame
	fdFlagBRS   = 0x01
)

// Encode packs frames into a single cannelloni payload.
func (c *Codec) Encode(frames []can.Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	// Pre-size: classic worst case per frame = 4(id)+1(len)+8(data)
	buf.Grow(len(frames) * (4 + 1 + 8))
	if _, err := c.EncodeTo(&buf, frames); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes the wire representation of frames to w and returns bytes written.
// Classic frame: 4-byte BE can_id (with EFF/RTR flags), 1-byte length, payload.
// FD frame: length byte has the 0x80 bit set and is followed by one flags byte.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	for _, f := range frames {
		if err := f.Validate(); err != nil {
			return total, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
		}
		var hdr [6]byte
		binary.BigEndian.PutUint32(hdr[:4], f.CANID())
		hdr[4] = f.DLC
		h := hdr[:5]
		if f.FD {
			hdr[4] |= fdFrameFlag
			if f.BRS {
				hdr[5] = fdFlagBRS
			}
			h = hdr[:6]
		}
		n, err := w.Write(h)
		total += n
		if err != nil {
			return total, fmt.Errorf("cannelloni encode header: %w", err)
		}
		if p := f.Payload(); len(p) > 0 {
			n, err = w.Write(p)
			total += n
			if err != nil {
				return total, fmt.Errorf("cannelloni encode data: %w", err)
			}
		}
	}
	return total, nil
}
