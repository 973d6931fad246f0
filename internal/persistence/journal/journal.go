// Package journal persists the per-agent decision and event stream as
// hourly-rotated zstd-compressed JSONL, one file series per agent. The
// replay tool reads the same format back.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelmind.ai/internal/mind"
)

// Entry kinds.
const (
	KindDecision = "decision"
	KindBridge   = "bridge"
	KindModule   = "module"
	KindArchive  = "memory_archive"
)

type Entry struct {
	At      time.Time `json:"at"`
	AgentID string    `json:"agent_id"`
	Kind    string    `json:"kind"`

	// Decision entries carry the full record for replay.
	Decision *mind.Decision `json:"decision,omitempty"`

	// Bridge and module entries.
	Source string `json:"source,omitempty"`
	Detail string `json:"detail,omitempty"`

	// Archive entries.
	Memory *mind.MemoryRecord `json:"memory,omitempty"`
}

type Writer struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	onSeal  func(path string)
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix}
}

// OnSeal registers fn to receive the path of every finished segment, at
// rotation and at Close. fn runs under the writer lock and must not stall.
func (w *Writer) OnSeal(fn func(path string)) {
	w.mu.Lock()
	w.onSeal = fn
	w.mu.Unlock()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	if w.onSeal != nil && w.curPath != "" {
		w.onSeal(w.curPath)
	}
	w.curPath = ""
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Journal is the typed per-agent stream: decisions, bridge events, module
// notes and archived memories, interleaved in time order.
type Journal struct {
	agentID string
	w       *Writer
}

func Open(dir, agentID string) *Journal {
	return &Journal{
		agentID: agentID,
		w:       NewWriter(filepath.Join(dir, agentID), "journal"),
	}
}

// OnSeal forwards finished segment paths, for the storage mirror.
func (j *Journal) OnSeal(fn func(path string)) { j.w.OnSeal(fn) }

func (j *Journal) Decision(d mind.Decision) error {
	return j.w.Write(Entry{At: time.Now().UTC(), AgentID: j.agentID, Kind: KindDecision, Decision: &d})
}

func (j *Journal) BridgeEvent(kind, detail string) error {
	return j.w.Write(Entry{At: time.Now().UTC(), AgentID: j.agentID, Kind: KindBridge, Source: kind, Detail: detail})
}

func (j *Journal) ModuleNote(module, note string) error {
	return j.w.Write(Entry{At: time.Now().UTC(), AgentID: j.agentID, Kind: KindModule, Source: module, Detail: note})
}

func (j *Journal) Archive(rec mind.MemoryRecord) error {
	return j.w.Write(Entry{At: time.Now().UTC(), AgentID: j.agentID, Kind: KindArchive, Memory: &rec})
}

func (j *Journal) Close() error { return j.w.Close() }
