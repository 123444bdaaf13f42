// Package workspace creates job directories, stages input files into them,
// renders command and input templates, and applies the retention policy once
// a job is finished.
package workspace

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// JobsDir is the directory under the root that holds unique job directories.
const JobsDir = "jobs"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Create returns the directory a job named name should run in. A non-empty
// workingDir is used as is (and created if needed); otherwise a unique
// directory is made under root/jobs and root/latest is pointed at it.
func Create(root, workingDir, name string) (string, error) {
	if workingDir != "" {
		dir, err := filepath.Abs(workingDir)
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating working directory: %w", err)
		}
		return dir, nil
	}

	stamp := time.Now().UTC().Format("20060102T150405")
	base := fmt.Sprintf("%s_%s_%s", sanitize(name), stamp, uuid.NewString()[:8])
	dir, err := filepath.Abs(filepath.Join(root, JobsDir, base))
	if err != nil {
		return "", fmt.Errorf("resolving job dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating job dir: %w", err)
	}
	if err := pointLatest(root, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// pointLatest swaps root/latest to dir with a rename so concurrent jobs never
// see the link missing or collide on creating it.
func pointLatest(root, dir string) error {
	latest := filepath.Join(root, "latest")
	tmp := latest + "." + uuid.NewString()
	if err := os.Symlink(dir, tmp); err != nil {
		return fmt.Errorf("creating latest symlink: %w", err)
	}
	if err := os.Rename(tmp, latest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("updating latest symlink: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	s := unsafeName.ReplaceAllString(name, "-")
	if s == "" {
		return "job"
	}
	return s
}

// Stage copies each file into dir, keeping its base name and mode.
func Stage(dir string, files []string) error {
	for _, src := range files {
		if err := copyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
			return fmt.Errorf("staging %s: %w", src, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Render executes a text/template against params. Referencing a parameter
// that is not set is an error.
func Render(tmpl string, params map[string]any) (string, error) {
	t, err := template.New("command").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return buf.String(), nil
}

// RenderFile renders tmpl with params and writes it to dst.
func RenderFile(tmpl, dst string, params map[string]any) error {
	out, err := Render(tmpl, params)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(out), 0o644)
}
