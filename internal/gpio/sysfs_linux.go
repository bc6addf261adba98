//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultSysfsRoot is where the legacy sysfs GPIO interface lives.
const DefaultSysfsRoot = "/sys/class/gpio"

// pollTimeoutMs bounds each epoll wait so Remove is observed promptly.
const pollTimeoutMs = 100

// SysfsPin drives one line through /sys/class/gpio.
type SysfsPin struct {
	Root      string
	Number    int
	ActiveLow bool
}

var _ Pin = (*SysfsPin)(nil)

// NewSysfsPin returns a pin under DefaultSysfsRoot.
func NewSysfsPin(number int, activeLow bool) *SysfsPin {
	return &SysfsPin{Root: DefaultSysfsRoot, Number: number, ActiveLow: activeLow}
}

func (p *SysfsPin) Name() string { return fmt.Sprintf("gpio%d", p.Number) }

func (p *SysfsPin) dir() string { return filepath.Join(p.Root, p.Name()) }

func (p *SysfsPin) attr(name string) string { return filepath.Join(p.dir(), name) }

// Ready reports whether the sysfs GPIO controller is present.
func (p *SysfsPin) Ready() bool {
	st, err := os.Stat(p.Root)
	return err == nil && st.IsDir()
}

func writeAttr(path, v string) error {
	return os.WriteFile(path, []byte(v), 0o644)
}

// ConfigureInput exports the line if needed and sets it as an input.
func (p *SysfsPin) ConfigureInput() error {
	if !p.Ready() {
		return fmt.Errorf("%w: %s", ErrNotReady, p.Root)
	}
	if _, err := os.Stat(p.dir()); errors.Is(err, os.ErrNotExist) {
		if err := writeAttr(filepath.Join(p.Root, "export"), strconv.Itoa(p.Number)); err != nil && !errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("export %s: %w", p.Name(), err)
		}
	}
	if err := writeAttr(p.attr("direction"), "in"); err != nil {
		return fmt.Errorf("direction %s: %w", p.Name(), err)
	}
	low := "0"
	if p.ActiveLow {
		low = "1"
	}
	if err := writeAttr(p.attr("active_low"), low); err != nil {
		return fmt.Errorf("active_low %s: %w", p.Name(), err)
	}
	return nil
}

// Read returns the logical level (sysfs already applies active_low).
func (p *SysfsPin) Read() (bool, error) {
	b, err := os.ReadFile(p.attr("value"))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(b)) == "1", nil
}

// sysfsEdge maps an Edge to the sysfs "edge" attribute. Sysfs edges follow the
// logical value, so "to active" is a rising edge once active_low is applied.
func sysfsEdge(e Edge) (string, error) {
	switch e {
	case EdgeRising, EdgeToActive:
		return "rising", nil
	case EdgeFalling:
		return "falling", nil
	case EdgeBoth:
		return "both", nil
	}
	return "", fmt.Errorf("%w: unknown edge %d", ErrInterruptConfig, int(e))
}

// Register arms the edge interrupt and calls h once per edge from a
// dedicated goroutine blocked in epoll_wait.
func (p *SysfsPin) Register(edge Edge, h Handler) (Registration, error) {
	mode, err := sysfsEdge(edge)
	if err != nil {
		return nil, err
	}
	if err := writeAttr(p.attr("edge"), mode); err != nil {
		return nil, fmt.Errorf("%w: edge=%s on %s: %v", ErrInterruptConfig, mode, p.Name(), err)
	}
	f, err := os.Open(p.attr("value"))
	if err != nil {
		return nil, fmt.Errorf("%w: open value: %v", ErrInterruptConfig, err)
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: epoll_create: %v", ErrInterruptConfig, err)
	}
	fd := int(f.Fd())
	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(epfd)
		f.Close()
		return nil, fmt.Errorf("%w: epoll_ctl: %v", ErrInterruptConfig, err)
	}
	// The first wait returns immediately with the current state; consume it.
	var scratch [8]byte
	_, _ = unix.Pread(fd, scratch[:], 0)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		events := make([]unix.EpollEvent, 1)
		for {
			select {
			case <-stop:
				return
			default:
			}
			n, err := unix.EpollWait(epfd, events, pollTimeoutMs)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return
			}
			if n == 0 {
				continue
			}
			_, _ = unix.Pread(fd, scratch[:], 0)
			h()
		}
	}()
	var once sync.Once
	return regFunc(func() {
		once.Do(func() {
			close(stop)
			<-done
			unix.Close(epfd)
			f.Close()
			_ = writeAttr(p.attr("edge"), "none")
		})
	}), nil
}
