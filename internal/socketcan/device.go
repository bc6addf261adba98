//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-can-hog/internal/can"
)

// struct canfd_frame layout (linux/can.h); x/sys only exports the classic MTU.
const (
	canfdMTU = 72
	canfdBRS = 0x01
	canfdFDF = 0x04
)

type Device struct {
	fd    int
	iface string
	canFD bool
}

// Open binds a raw CAN socket to iface. With fd set, CAN FD frames are
// enabled on the socket and FD frames may be written.
func Open(iface string, fd bool) (*Device, error) {
	sock, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	enable := 0
	if fd {
		enable = 1
	}
	if err := unix.SetsockoptInt(sock, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, enable); err != nil {
		// Older kernels may not know this option; only fatal when FD was requested.
		if fd || err != unix.ENOPROTOOPT {
			_ = unix.Close(sock)
			return nil, fmt.Errorf("set CAN FD frames=%d: %w", enable, err)
		}
	}
	// We never read; keep the kernel from queueing our own traffic back to us.
	_ = unix.SetsockoptInt(sock, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, 0)
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(sock)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(sock, sa); err != nil {
		_ = unix.Close(sock)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Device{fd: sock, iface: iface, canFD: fd}, nil
}

func (d *Device) Close() error { return unix.Close(d.fd) }

// Ready reports whether the bound interface still exists and is up.
func (d *Device) Ready() bool {
	ifi, err := net.InterfaceByName(d.iface)
	if err != nil {
		return false
	}
	return ifi.Flags&net.FlagUp != 0
}

// WriteFrame writes one classic or FD frame to the raw CAN socket.
func (d *Device) WriteFrame(fr can.Frame) error {
	if err := fr.Validate(); err != nil {
		return err
	}
	if fr.FD && !d.canFD {
		return fmt.Errorf("FD frame on classic socket (%s)", d.iface)
	}
	buf := marshalFrame(fr)
	n, err := unix.Write(d.fd, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write: %d of %d", n, len(buf))
	}
	return nil
}

// marshalFrame lays out struct can_frame (16 bytes) or struct canfd_frame
// (72 bytes):
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	len     u8    [4]
//	flags   u8    [5]    (FD only: CANFD_BRS, CANFD_FDF)
//	pad     2B    [6:8]
//	data          [8:]
//
// The kernel expects host byte order; common Linux targets are little-endian.
func marshalFrame(fr can.Frame) []byte {
	size := unix.CAN_MTU
	if fr.FD {
		size = canfdMTU
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], fr.CANID())
	buf[4] = fr.DLC
	if fr.FD {
		buf[5] = canfdFDF
		if fr.BRS {
			buf[5] |= canfdBRS
		}
	}
	copy(buf[8:], fr.Payload())
	return buf
}
