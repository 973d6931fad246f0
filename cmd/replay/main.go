package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxelmind.ai/internal/persistence/journal"
)

// replay prints an agent's journal stream: decisions, bridge events, module
// notes and archived memories, oldest first across rotated segments.
func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		agentID = flag.String("agent", "", "agent id (directory under <data>/journal)")
		kind    = flag.String("kind", "", "only this entry kind (decision|bridge|module|memory_archive)")
		tail    = flag.Int("tail", 0, "only the last N matching entries (0: all)")
	)
	flag.Parse()

	dir := filepath.Join(*dataDir, "journal")

	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "missing -agent")
		if agents := listAgents(dir); len(agents) > 0 {
			fmt.Fprintln(os.Stderr, "known agents:", strings.Join(agents, " "))
		}
		os.Exit(2)
	}

	files, err := journal.Files(dir, *agentID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journals:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no journals for %s under %s\n", *agentID, dir)
		os.Exit(1)
	}

	var ring []journal.Entry
	total := 0
	for _, path := range files {
		r, err := journal.OpenReader(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
			os.Exit(1)
		}
		for {
			e, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
				os.Exit(1)
			}
			if *kind != "" && e.Kind != *kind {
				continue
			}
			total++
			if *tail > 0 {
				ring = append(ring, e)
				if len(ring) > *tail {
					ring = ring[1:]
				}
				continue
			}
			fmt.Println(format(e))
		}
		_ = r.Close()
	}
	for _, e := range ring {
		fmt.Println(format(e))
	}
	fmt.Printf("%d entries from %d file(s)\n", total, len(files))
}

func format(e journal.Entry) string {
	ts := e.At.UTC().Format(time.RFC3339)
	switch e.Kind {
	case journal.KindDecision:
		d := e.Decision
		if d == nil {
			return fmt.Sprintf("%s decision <empty>", ts)
		}
		return fmt.Sprintf("%s decision cycle=%d action=%q rationale=%q", ts, d.Cycle, d.Action.String(), d.Rationale)
	case journal.KindArchive:
		m := e.Memory
		if m == nil {
			return fmt.Sprintf("%s archive <empty>", ts)
		}
		return fmt.Sprintf("%s archive %s imp=%.2f %q", ts, m.Kind, m.Importance, m.Content)
	default:
		return fmt.Sprintf("%s %s %s: %s", ts, e.Kind, e.Source, e.Detail)
	}
}

func listAgents(dir string) []string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}
