package deps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Stage labels what an installer is currently doing.
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageDone        Stage = "done"
	StageError       Stage = "error"
)

// Progress is one installer status update.
type Progress struct {
	Stage   Stage
	Message string
	Done    int64
	Total   int64
	Speed   float64 // bytes per second
}

// ProgressFunc receives installer status updates.
type ProgressFunc func(Progress)

// Retry policy for archive downloads. Variables so tests run without
// the pause.
var (
	fetchAttempts = 3
	retryPause    = 5 * time.Second
)

// fetch downloads url into dest with retries. A partial file left by an
// earlier attempt is resumed rather than restarted.
func fetch(ctx context.Context, dest, url string, cb func(done, total int64)) error {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		lastErr = fetchFile(ctx, dest, url, cb)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt < fetchAttempts {
			select {
			case <-time.After(retryPause):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", fetchAttempts, lastErr)
}

// fetchFile performs a single download attempt. When dest already holds
// a partial file its length is sent as a Range offset; a server that
// ignores the range restarts the file from scratch.
func fetchFile(ctx context.Context, dest, url string, cb func(done, total int64)) error {
	var offset int64
	if fi, err := os.Stat(dest); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		offset = 0
	default:
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dest, err)
	}
	defer out.Close()

	total := offset
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	w := &countingWriter{ctx: ctx, done: offset, total: total, cb: cb}
	if _, err := io.Copy(io.MultiWriter(out, w), resp.Body); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	if cb != nil {
		cb(w.done, total)
	}
	return nil
}

// countingWriter tracks downloaded bytes, honors cancellation, and
// throttles callbacks to ten per second.
type countingWriter struct {
	ctx    context.Context
	done   int64
	total  int64
	cb     func(done, total int64)
	lastCb time.Time
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	w.done += int64(len(p))
	if w.cb != nil && time.Since(w.lastCb) >= 100*time.Millisecond {
		w.cb(w.done, w.total)
		w.lastCb = time.Now()
	}
	return len(p), nil
}

// rateMeter smooths the instantaneous download rate with an exponential
// moving average.
type rateMeter struct {
	last     time.Time
	lastDone int64
	rate     float64
}

func (m *rateMeter) observe(done int64) float64 {
	now := time.Now()
	if m.last.IsZero() {
		m.last, m.lastDone = now, done
		return 0
	}
	dt := now.Sub(m.last).Seconds()
	if dt < 0.25 {
		return m.rate
	}
	inst := float64(done-m.lastDone) / dt
	if m.rate == 0 {
		m.rate = inst
	} else {
		m.rate = 0.7*m.rate + 0.3*inst
	}
	m.last, m.lastDone = now, done
	return m.rate
}

// FormatBytes renders a byte count for -setup output.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	units := []string{"KiB", "MiB", "GiB", "TiB"}
	v := float64(n)
	i := -1
	for v >= unit && i < len(units)-1 {
		v /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}

// FormatSpeed renders a transfer rate for -setup output.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
