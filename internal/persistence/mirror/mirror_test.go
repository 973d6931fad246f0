package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type capturedPut struct {
	path string
	auth string
	sha  string
	body []byte
}

func newCaptureServer(t *testing.T, failFirst int) (*httptest.Server, func() []capturedPut) {
	t.Helper()
	var mu sync.Mutex
	var puts []capturedPut
	reqs := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		mu.Lock()
		reqs++
		fail := reqs <= failFirst
		if !fail {
			puts = append(puts, capturedPut{
				path: r.URL.Path,
				auth: r.Header.Get("Authorization"),
				sha:  r.Header.Get("x-amz-content-sha256"),
				body: body,
			})
		}
		mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return srv, func() []capturedPut {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedPut(nil), puts...)
	}
}

func writeSegment(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestMirrorUploadsSealedSegment(t *testing.T) {
	srv, puts := newCaptureServer(t, 0)
	defer srv.Close()

	dir := t.TempDir()
	seg := writeSegment(t, dir, "a1/journal-2026-08-25-10.jsonl.zst", "entry-bytes")

	c, err := NewClient(srv.URL, "journals", "ak", "sk")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	m := New(c, dir, "vm", 1, log.New(io.Discard, "", 0))
	m.Enqueue(seg)
	m.Close()

	got := puts()
	if len(got) != 1 {
		t.Fatalf("uploads = %d, want 1", len(got))
	}
	p := got[0]
	if p.path != "/journals/vm/a1/journal-2026-08-25-10.jsonl.zst" {
		t.Fatalf("object path = %q", p.path)
	}
	if !strings.HasPrefix(p.auth, "AWS4-HMAC-SHA256 Credential=ak/") {
		t.Fatalf("authorization = %q", p.auth)
	}
	sum := sha256.Sum256([]byte("entry-bytes"))
	if p.sha != hex.EncodeToString(sum[:]) {
		t.Fatalf("payload hash = %q", p.sha)
	}
	if string(p.body) != "entry-bytes" {
		t.Fatalf("body = %q", p.body)
	}
	if st := m.Stats(); st.Uploaded != 1 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMirrorRetriesFailedUpload(t *testing.T) {
	srv, puts := newCaptureServer(t, 1)
	defer srv.Close()

	dir := t.TempDir()
	seg := writeSegment(t, dir, "a1/journal-2026-08-25-11.jsonl.zst", "x")

	c, err := NewClient(srv.URL, "journals", "ak", "sk")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	m := New(c, dir, "", 1, log.New(io.Discard, "", 0))
	m.Enqueue(seg)
	m.Close()

	if got := puts(); len(got) != 1 {
		t.Fatalf("uploads after retry = %d, want 1", len(got))
	}
	if st := m.Stats(); st.Uploaded != 1 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMirrorSkipsPathOutsideRoot(t *testing.T) {
	srv, puts := newCaptureServer(t, 0)
	defer srv.Close()

	root := t.TempDir()
	other := t.TempDir()
	stray := writeSegment(t, other, "journal-x.jsonl.zst", "x")

	c, err := NewClient(srv.URL, "journals", "ak", "sk")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	m := New(c, root, "", 1, log.New(io.Discard, "", 0))
	m.Enqueue(stray)
	m.Close()

	if got := puts(); len(got) != 0 {
		t.Fatalf("stray path uploaded: %+v", got)
	}
	if st := m.Stats(); st.Uploaded != 0 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "b", "k", "s"); err == nil {
		t.Fatal("empty endpoint accepted")
	}
	if _, err := NewClient("example.com", "b", "k", ""); err == nil {
		t.Fatal("empty secret accepted")
	}
	if c, err := NewClient("example.com", "b", "k", "s"); err != nil {
		t.Fatalf("bare host rejected: %v", err)
	} else if c.endpoint != "https://example.com" {
		t.Fatalf("endpoint = %q, want https scheme added", c.endpoint)
	}
}
