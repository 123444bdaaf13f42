package workspace

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/logging"
)

// Archiver stores a finished job directory somewhere and returns its location.
type Archiver interface {
	Archive(ctx context.Context, dir string) (string, error)
}

// Retention decides what happens to a job directory after its model finished.
type Retention struct {
	Policy     string
	KeepFailed bool
	Archiver   Archiver
	Log        *zap.Logger
}

// NewRetention builds the retention for the configured policy. archive-s3
// connects to S3 eagerly so misconfiguration surfaces before any job runs.
func NewRetention(ctx context.Context, s config.Settings, log *zap.Logger) (*Retention, error) {
	r := &Retention{Policy: s.Retention, KeepFailed: s.KeepFailed, Log: log}
	switch s.Retention {
	case config.RetentionArchive:
		r.Archiver = &LocalArchiver{Dir: filepath.Join(s.RootDirectory, "archive")}
	case config.RetentionArchiveS3:
		a, err := NewS3Archiver(ctx, s.S3)
		if err != nil {
			return nil, err
		}
		r.Archiver = a
	}
	return r, nil
}

// Apply enforces the policy on dir and returns the archive location, if any.
// Failed jobs are left in place when KeepFailed is set.
func (r *Retention) Apply(ctx context.Context, dir string, failed bool) (string, error) {
	log := logging.OrNop(r.Log).With(zap.String("dir", dir), zap.String("policy", r.Policy))
	if failed && r.KeepFailed {
		log.Debug("keeping failed job directory")
		return "", nil
	}
	switch r.Policy {
	case "", config.RetentionKeep:
		return "", nil
	case config.RetentionDelete:
		log.Debug("deleting job directory")
		return "", os.RemoveAll(dir)
	case config.RetentionArchive, config.RetentionArchiveS3:
		if r.Archiver == nil {
			return "", fmt.Errorf("retention %q: no archiver configured", r.Policy)
		}
		loc, err := r.Archiver.Archive(ctx, dir)
		if err != nil {
			return "", fmt.Errorf("archiving %s: %w", dir, err)
		}
		log.Info("archived job directory", zap.String("archive", loc))
		return loc, os.RemoveAll(dir)
	default:
		return "", fmt.Errorf("unknown retention policy %q", r.Policy)
	}
}

// LocalArchiver writes <Dir>/<job>.tar.gz.
type LocalArchiver struct {
	Dir string
}

func (a *LocalArchiver) Archive(_ context.Context, dir string) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}
	dst := filepath.Join(a.Dir, filepath.Base(dir)+".tar.gz")
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if err := WriteTarGz(f, dir); err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// WriteTarGz streams dir as a gzipped tarball rooted at the directory's base name.
func WriteTarGz(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	base := filepath.Base(dir)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(base, rel))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("archiving %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
