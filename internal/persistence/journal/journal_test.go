package journal

import (
	"errors"
	"io"
	"testing"
	"time"

	"voxelmind.ai/internal/mind"
)

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := Open(dir, "a1")

	dec := mind.Decision{
		ID:        "d1",
		Cycle:     3,
		Action:    mind.Action{Kind: mind.ActMoveForward, Steps: 2},
		Rationale: "exploring north",
		At:        time.Now().UTC(),
	}
	if err := j.Decision(dec); err != nil {
		t.Fatalf("write decision: %v", err)
	}
	if err := j.BridgeEvent("death", "tick=41"); err != nil {
		t.Fatalf("write event: %v", err)
	}
	if err := j.ModuleNote("goalgen", "adopted: collect 5 logs"); err != nil {
		t.Fatalf("write note: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "a1")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want one", files)
	}

	r, err := OpenReader(files[0])
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	var entries []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Kind != KindDecision || entries[0].Decision == nil {
		t.Fatalf("first entry = %+v, want decision", entries[0])
	}
	if entries[0].Decision.Action.Kind != mind.ActMoveForward || entries[0].Decision.Cycle != 3 {
		t.Fatalf("decision = %+v", entries[0].Decision)
	}
	if entries[1].Kind != KindBridge || entries[1].Source != "death" {
		t.Fatalf("second entry = %+v, want bridge death", entries[1])
	}
	if entries[2].Detail != "adopted: collect 5 logs" {
		t.Fatalf("third entry = %+v", entries[2])
	}
	for _, e := range entries {
		if e.AgentID != "a1" {
			t.Fatalf("agent id = %q, want a1", e.AgentID)
		}
	}
}

func TestReaderEmptyDir(t *testing.T) {
	files, err := Files(t.TempDir(), "nobody")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("files = %v, want none", files)
	}
}

func TestOnSealFiresAtClose(t *testing.T) {
	dir := t.TempDir()
	j := Open(dir, "a1")

	var sealed []string
	j.OnSeal(func(path string) { sealed = append(sealed, path) })

	if err := j.BridgeEvent("connected", "session=a1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(sealed) != 0 {
		t.Fatalf("segment sealed while still open: %v", sealed)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "a1")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(sealed) != 1 || len(files) != 1 || sealed[0] != files[0] {
		t.Fatalf("sealed = %v, files = %v", sealed, files)
	}

	// A second close must not re-seal.
	if err := j.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if len(sealed) != 1 {
		t.Fatalf("re-sealed on second close: %v", sealed)
	}
}
