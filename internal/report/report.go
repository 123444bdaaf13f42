package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/simharness/internal/result"
)

type SolverSummary struct {
	Name          string         `json:"name"`
	Jobs          int            `json:"jobs"`
	Succeeded     int            `json:"succeeded"`
	SuccessRate   float64        `json:"success_rate"`
	MeanDurationS float64        `json:"mean_duration_s"`
	Failures      map[string]int `json:"failures,omitempty"`
}

// Generate reads the job summaries under root and writes a per-solver report.
func Generate(root, format string, w io.Writer) error {
	jobs, err := result.CollectSummaries(root)
	if err != nil {
		return fmt.Errorf("collecting job summaries: %w", err)
	}
	summaries := Aggregate(jobs)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func Aggregate(jobs []*result.JobResult) []SolverSummary {
	type accum struct {
		count    int
		passed   int
		duration float64
		failures map[string]int
	}
	bySolver := map[string]*accum{}

	for _, j := range jobs {
		a, ok := bySolver[j.Solver]
		if !ok {
			a = &accum{failures: map[string]int{}}
			bySolver[j.Solver] = a
		}
		a.count++
		a.duration += j.DurationS
		if j.Succeeded() {
			a.passed++
			continue
		}
		kind := string(j.Kind)
		if kind == "" {
			kind = "unknown"
		}
		a.failures[kind]++
	}

	var summaries []SolverSummary
	for name, a := range bySolver {
		s := SolverSummary{
			Name:          name,
			Jobs:          a.count,
			Succeeded:     a.passed,
			SuccessRate:   float64(a.passed) / float64(a.count),
			MeanDurationS: a.duration / float64(a.count),
		}
		if len(a.failures) > 0 {
			s.Failures = a.failures
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

func failureCount(s SolverSummary, kind result.Kind) int {
	return s.Failures[string(kind)]
}

func writeTable(summaries []SolverSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOLVER\tJOBS\tSUCCESS RATE\tMEAN DURATION\tLAUNCH\tEXIT\tINCOMPLETE")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%.2fs\t%d\t%d\t%d\n",
			s.Name, s.Jobs, s.SuccessRate*100, s.MeanDurationS,
			failureCount(s, result.KindLaunch), failureCount(s, result.KindExit), failureCount(s, result.KindIncomplete))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []SolverSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Solver | Jobs | Success Rate | Mean Duration | Launch | Exit | Incomplete |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.2fs | %d | %d | %d |\n",
			s.Name, s.Jobs, s.SuccessRate*100, s.MeanDurationS,
			failureCount(s, result.KindLaunch), failureCount(s, result.KindExit), failureCount(s, result.KindIncomplete))
	}
	return nil
}

func writeJSON(summaries []SolverSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
