package deps

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q; want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(0); got != "0 B/s" {
		t.Errorf("FormatSpeed(0) = %q; want %q", got, "0 B/s")
	}
	if got := FormatSpeed(2048); got != "2.0 KiB/s" {
		t.Errorf("FormatSpeed(2048) = %q; want %q", got, "2.0 KiB/s")
	}
}

func TestRateMeterFirstObservationIsZero(t *testing.T) {
	m := &rateMeter{}
	if got := m.observe(4096); got != 0 {
		t.Errorf("first observe = %v; want 0", got)
	}
}

func TestFetchFileDownloads(t *testing.T) {
	payload := bytes.Repeat([]byte("yoro"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := fetchFile(context.Background(), dest, srv.URL, nil); err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %d bytes; want %d", len(got), len(payload))
	}
}

func TestFetchFileResumesPartial(t *testing.T) {
	payload := []byte("0123456789abcdef")
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if gotRange == "bytes=8-" {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes 8-%d/%d", len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[8:])
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, payload[:8], 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := fetchFile(context.Background(), dest, srv.URL, nil); err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	if gotRange != "bytes=8-" {
		t.Errorf("Range header = %q; want %q", gotRange, "bytes=8-")
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, payload) {
		t.Errorf("resumed file = %q; want %q", got, payload)
	}
}

func TestFetchFileRestartsWhenRangeIgnored(t *testing.T) {
	// A server that answers 200 to a range request must cause a clean
	// restart, not a corrupt doubled file.
	payload := []byte("full response body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("stale partial"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := fetchFile(context.Background(), dest, srv.URL, nil); err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, payload) {
		t.Errorf("file after restart = %q; want %q", got, payload)
	}
}

func TestFetchFileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := fetchFile(context.Background(), dest, srv.URL, nil); err == nil {
		t.Fatal("fetchFile accepted a 500 response")
	}
}

func TestFetchFileReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var lastDone, lastTotal int64
	dest := filepath.Join(t.TempDir(), "out.bin")
	err := fetchFile(context.Background(), dest, srv.URL, func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	if lastDone != int64(len(payload)) {
		t.Errorf("final done = %d; want %d", lastDone, len(payload))
	}
	if lastTotal != int64(len(payload)) {
		t.Errorf("final total = %d; want %d", lastTotal, len(payload))
	}
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	oldPause := retryPause
	retryPause = 0
	defer func() { retryPause = oldPause }()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := fetch(context.Background(), dest, srv.URL, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d; want 3", attempts)
	}
}

func TestFetchGivesUpAfterAttempts(t *testing.T) {
	oldPause := retryPause
	retryPause = 0
	defer func() { retryPause = oldPause }()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := fetch(context.Background(), dest, srv.URL, nil); err == nil {
		t.Fatal("fetch succeeded against a permanently failing server")
	}
	if attempts != fetchAttempts {
		t.Errorf("attempts = %d; want %d", attempts, fetchAttempts)
	}
}

func TestFetchFileCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := fetchFile(ctx, dest, srv.URL, nil); err == nil {
		t.Fatal("fetchFile ignored a cancelled context")
	}
}
