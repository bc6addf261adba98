//go:build !linux

package gpio

import "fmt"

const DefaultSysfsRoot = "/sys/class/gpio"

// SysfsPin is unavailable outside Linux; every operation reports ErrUnsupported.
type SysfsPin struct {
	Root      string
	Number    int
	ActiveLow bool
}

var _ Pin = (*SysfsPin)(nil)

func NewSysfsPin(number int, activeLow bool) *SysfsPin {
	return &SysfsPin{Root: DefaultSysfsRoot, Number: number, ActiveLow: activeLow}
}

func (p *SysfsPin) Name() string          { return fmt.Sprintf("gpio%d", p.Number) }
func (p *SysfsPin) Ready() bool           { return false }
func (p *SysfsPin) ConfigureInput() error { return ErrUnsupported }
func (p *SysfsPin) Read() (bool, error)   { return false, ErrUnsupported }
func (p *SysfsPin) Register(Edge, Handler) (Registration, error) {
	return nil, ErrUnsupported
}
