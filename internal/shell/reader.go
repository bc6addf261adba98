package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-can-hog/internal/hub"
	"github.com/kstaniek/go-can-hog/internal/metrics"
)

// startReader executes one command per received line and writes the reply
// as a single block.
func (s *Server) startReader(ctx context.Context, conn net.Conn, cl *hub.Client, out io.Writer, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.dropClient(cl)
		}()
		sc := bufio.NewScanner(conn)
		var reply bytes.Buffer
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			if !sc.Scan() {
				err := sc.Err()
				if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					logger.Info("session_idle_timeout", "after", s.readDeadline)
					return
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			line := sc.Text()
			if isQuit(line) {
				return
			}
			reply.Reset()
			s.totalCommands.Add(1)
			if err := Exec(ctx, s.Sender, line, &reply); err != nil {
				s.totalFailed.Add(1)
				logger.Debug("command_failed", "line", line, "error", err)
			}
			if reply.Len() == 0 {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := out.Write(reply.Bytes()); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}
