// Package completion provides the checks run after a solver process exits to
// decide whether it actually produced its results.
package completion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Predicate reports whether the job in dir has finished producing results.
type Predicate func(dir string) (bool, error)

// ErrTimeout is returned by WaitFor when the predicate never held.
var ErrTimeout = errors.New("completion timeout")

// FileExists holds once name (relative to the job directory) exists.
func FileExists(name string) Predicate {
	return func(dir string) (bool, error) {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
}

// DirNotEmpty holds once the job directory contains at least one entry.
func DirNotEmpty() Predicate {
	return func(dir string) (bool, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false, err
		}
		return len(entries) > 0, nil
	}
}

// GlobMatches holds once at least min files in the job directory match pattern.
func GlobMatches(pattern string, min int) Predicate {
	return func(dir string) (bool, error) {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return false, fmt.Errorf("glob %q: %w", pattern, err)
		}
		return len(matches) >= min, nil
	}
}

// All holds when every predicate holds. An empty All always holds.
func All(preds ...Predicate) Predicate {
	return func(dir string) (bool, error) {
		for _, p := range preds {
			ok, err := p(dir)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Any holds when at least one predicate holds. Errors from predicates that did
// not hold are joined and returned only if none held.
func Any(preds ...Predicate) Predicate {
	return func(dir string) (bool, error) {
		var errs []error
		for _, p := range preds {
			ok, err := p(dir)
			if ok {
				return true, nil
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		return false, errors.Join(errs...)
	}
}

// Check evaluates p once. A nil predicate always holds.
func Check(p Predicate, dir string) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p(dir)
}

// WaitFor polls p every interval until it holds, the timeout elapses or ctx is
// done. The predicate is always evaluated at least once, so a zero timeout is a
// single check.
func WaitFor(ctx context.Context, p Predicate, dir string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := Check(p, dir)
		if ok {
			return nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, lastErr)
	}
	return fmt.Errorf("%w after %s", ErrTimeout, timeout)
}
