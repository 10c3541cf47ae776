package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/gate"
	persistlog "brainlink.ai/internal/persistence/log"
)

func main() {
	var (
		dir   = flag.String("dir", "", "journal directory (the -journal dir of the client or gateway)")
		actor = flag.String("actor", "", "only count this actor (optional)")
	)
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing -dir")
		os.Exit(2)
	}
	found := false
	for _, kind := range []string{"resolutions", "decisions"} {
		files, err := persistlog.Files(filepath.Join(*dir, kind), kind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			continue
		}
		found = true
		var sumErr error
		if kind == "resolutions" {
			sumErr = summarizeResolutions(os.Stdout, files, *actor)
		} else {
			sumErr = summarizeDecisions(os.Stdout, files, *actor)
		}
		if sumErr != nil {
			fmt.Fprintln(os.Stderr, kind+":", sumErr)
			os.Exit(1)
		}
	}
	if !found {
		fmt.Fprintln(os.Stderr, "no journal files found in", *dir)
		os.Exit(1)
	}
}

type rollStats struct {
	Rolls, Successes, Moves, Unhandled int
	RollSum, DCSum                     int
}

func summarizeResolutions(w io.Writer, files []string, only string) error {
	stats := map[string]*rollStats{}
	for _, path := range files {
		err := persistlog.ReadFile(path, func(raw json.RawMessage) error {
			var e gate.JournalEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if only != "" && e.ActorID != only {
				return nil
			}
			st := stats[e.ActorID]
			if st == nil {
				st = &rollStats{}
				stats[e.ActorID] = st
			}
			st.Rolls++
			st.RollSum += e.Roll
			st.DCSum += e.DC
			if e.Success {
				st.Successes++
			}
			if e.Moved {
				st.Moves++
			}
			if e.Unhandled {
				st.Unhandled++
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(stats) {
		st := stats[id]
		fmt.Fprintf(w, "resolutions actor=%s rolls=%d success=%d rate=%.2f avg_roll=%.1f avg_dc=%.1f moves=%d unhandled=%d\n",
			id, st.Rolls, st.Successes, float64(st.Successes)/float64(st.Rolls),
			float64(st.RollSum)/float64(st.Rolls), float64(st.DCSum)/float64(st.Rolls), st.Moves, st.Unhandled)
	}
	return nil
}

func summarizeDecisions(w io.Writer, files []string, only string) error {
	byActor := map[string]map[string]int{}
	sessions := map[string]struct{}{}
	for _, path := range files {
		err := persistlog.ReadFile(path, func(raw json.RawMessage) error {
			var d brain.Decision
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if only != "" && d.ActorID != only {
				return nil
			}
			sessions[d.SessionID] = struct{}{}
			m := byActor[d.ActorID]
			if m == nil {
				m = map[string]int{}
				byActor[d.ActorID] = m
			}
			m[d.Proposal.Intent]++
			return nil
		})
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "decisions sessions=%d actors=%d\n", len(sessions), len(byActor))
	for _, id := range sortedKeys(byActor) {
		m := byActor[id]
		total := 0
		for _, n := range m {
			total += n
		}
		fmt.Fprintf(w, "decisions actor=%s total=%d", id, total)
		for _, intent := range sortedKeys(m) {
			fmt.Fprintf(w, " %s=%d", intent, m[intent])
		}
		fmt.Fprintln(w)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
