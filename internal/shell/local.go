package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kstaniek/go-can-hog/internal/hub"
	"github.com/kstaniek/go-can-hog/internal/oneshot"
)

// lineWriter serializes whole lines from command replies and hub events.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// RunLocal runs a shell session over r and w until EOF, "exit" or ctx is
// done. Transmit outcomes published on h (if non-nil) are printed as they
// arrive.
func RunLocal(ctx context.Context, r io.Reader, w io.Writer, sender *oneshot.Sender, h *hub.Hub) error {
	out := &lineWriter{w: w}
	var wg sync.WaitGroup
	if h != nil {
		cl := hub.NewClient(h.OutBufSize)
		h.Add(cl)
		defer wg.Wait()
		defer h.Remove(cl)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case ev := <-cl.Out:
					fmt.Fprintln(out, ev.String())
				case <-cl.Closed:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if isQuit(line) {
				return nil
			}
			_ = Exec(ctx, sender, line, out)
		}
	}
}
