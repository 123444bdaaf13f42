package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File names written into every job directory.
const (
	SummaryFile = "job.json"
	StdoutFile  = "stdout.log"
	StderrFile  = "stderr.log"
)

// WriteLogs stores the captured output of one command. Output from successive
// commands in the same directory is appended.
func WriteLogs(dir string, res *JobResult) error {
	if err := appendFile(filepath.Join(dir, StdoutFile), res.Stdout); err != nil {
		return fmt.Errorf("writing %s: %w", StdoutFile, err)
	}
	if err := appendFile(filepath.Join(dir, StderrFile), res.Stderr); err != nil {
		return fmt.Errorf("writing %s: %w", StderrFile, err)
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func WriteSummary(dir string, res *JobResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling job summary: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, SummaryFile), data, 0o644)
}

func ReadSummary(path string) (*JobResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job summary: %w", err)
	}
	var res JobResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing job summary: %w", err)
	}
	return &res, nil
}

// CollectSummaries walks root and returns every job summary found. Unreadable
// summaries are skipped.
func CollectSummaries(root string) ([]*JobResult, error) {
	var out []*JobResult
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != SummaryFile {
			return nil
		}
		res, err := ReadSummary(path)
		if err != nil {
			return nil
		}
		out = append(out, res)
		return nil
	})
	return out, err
}
