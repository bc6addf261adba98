// Package oneshot sends single operator-chosen frames, fire and forget.
package oneshot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/hub"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

var ErrIdentifierParse = errors.New("invalid CAN identifier")

// ParseID reads an identifier using C literal rules: "0x"/"0X" selects hex,
// a leading "0" selects octal, anything else is decimal. Unlike strtoul it
// rejects trailing garbage, signs and values wider than 29 bits.
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base, digits := 10, s
	switch {
	case len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X"):
		base, digits = 16, s[2:]
	case len(s) > 1 && s[0] == '0':
		base, digits = 8, s[1:]
	}
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrIdentifierParse, s)
	}
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrIdentifierParse, s)
	}
	if v > can.CAN_EFF_MASK {
		return 0, fmt.Errorf("%w: 0x%X exceeds 29 bits", ErrIdentifierParse, v)
	}
	return uint32(v), nil
}

// Publisher receives transmit outcomes; *hub.Hub implements it.
type Publisher interface {
	Publish(hub.Event)
}

// Sender builds and submits one zero-length data frame per call. It keeps no
// state between calls, so concurrent Sends are fine.
type Sender struct {
	tx  transport.Transport
	pub Publisher
	log *slog.Logger
}

// NewSender returns a Sender over tx. pub may be nil.
func NewSender(tx transport.Transport, pub Publisher) *Sender {
	return &Sender{tx: tx, pub: pub, log: logging.Component("oneshot")}
}

// CheckReady reports whether the transport can take a frame right now.
func (s *Sender) CheckReady() error {
	if !s.tx.Ready() {
		metrics.IncOneShot(metrics.OneShotRejected)
		return fmt.Errorf("%w: CAN device", transport.ErrDeviceNotReady)
	}
	return nil
}

// Send queues a standard-format frame with the given identifier and returns
// once the transport accepted it. The transmission outcome is only logged and
// published. Identifiers outside the 11-bit range are refused.
func (s *Sender) Send(id uint32) error {
	if err := s.CheckReady(); err != nil {
		return err
	}
	fr := can.Frame{ID: id}
	if err := fr.Validate(); err != nil {
		metrics.IncOneShot(metrics.OneShotRejected)
		err = fmt.Errorf("%w: %w", transport.ErrSubmissionRejected, err)
		s.log.Warn("oneshot_rejected", "id", fmt.Sprintf("0x%X", id), "error", err)
		return err
	}
	if err := s.tx.Submit(fr, func(err error) { s.complete(fr, err) }); err != nil {
		metrics.IncOneShot(metrics.OneShotRejected)
		if !errors.Is(err, transport.ErrSubmissionRejected) {
			err = fmt.Errorf("%w: %w", transport.ErrSubmissionRejected, err)
		}
		s.log.Warn("oneshot_rejected", "frame", fr.String(), "error", err)
		return err
	}
	metrics.IncOneShot(metrics.OneShotQueued)
	s.log.Info("oneshot_queued", "frame", fr.String())
	return nil
}

// SendString parses arg with ParseID and sends it.
func (s *Sender) SendString(arg string) (uint32, error) {
	id, err := ParseID(arg)
	if err != nil {
		return 0, err
	}
	return id, s.Send(id)
}

func (s *Sender) complete(fr can.Frame, err error) {
	ev := hub.Event{Kind: hub.EventTransmitted, Frame: fr}
	if err != nil {
		ev.Kind, ev.Err = hub.EventFailed, err
		metrics.IncOneShot(metrics.OneShotFailed)
		s.log.Warn("oneshot_failed", "frame", fr.String(), "error", err)
	} else {
		metrics.IncOneShot(metrics.OneShotTransmitted)
		s.log.Info("oneshot_transmitted", "frame", fr.String())
	}
	if s.pub != nil {
		s.pub.Publish(ev)
	}
}
