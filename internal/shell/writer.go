package shell

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-can-hog/internal/hub"
	"github.com/kstaniek/go-can-hog/internal/metrics"
)

const writeTimeout = 2 * time.Second

// startWriter pushes hub events to one session as text lines.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, out io.Writer, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.dropClient(cl)
			s.totalDisconnected.Add(1)
			logger.Info("session_disconnected")
		}()
		for {
			select {
			case ev := <-cl.Out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if _, err := fmt.Fprintln(out, ev.String()); err != nil {
					wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
			case <-cl.Closed:
				return
			case <-ctxDone:
				return
			}
		}
	}()
}
