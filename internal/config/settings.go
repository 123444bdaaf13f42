package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every settings variable, e.g. SIMHARNESS_ROOT_DIRECTORY.
const EnvPrefix = "SIMHARNESS_"

// Retention policies applied to a job directory once its model has finished.
const (
	RetentionKeep      = "keep"
	RetentionDelete    = "delete"
	RetentionArchive   = "archive"
	RetentionArchiveS3 = "archive-s3"
)

// Settings holds process-wide options read from the environment.
type Settings struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogEncoding string `env:"LOG_ENCODING" envDefault:"console"`
	// LogOutput is stderr, stdout or a file path.
	LogOutput string `env:"LOG_OUTPUT" envDefault:"stderr"`

	// RootDirectory is where job directories, archives and the latest link live.
	RootDirectory string `env:"ROOT_DIRECTORY" envDefault:"results"`
	// WorkingDirectory, when set, is used verbatim as the job directory instead
	// of a unique directory under RootDirectory.
	WorkingDirectory string `env:"WORKING_DIRECTORY"`

	Retention  string `env:"RETENTION" envDefault:"keep"`
	KeepFailed bool   `env:"KEEP_FAILED" envDefault:"true"`

	CheckSubprocess   bool          `env:"CHECK_SUBPROCESS" envDefault:"false"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"100ms"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"0s"`

	S3 S3Settings `envPrefix:"S3_"`

	MetricsFile string `env:"METRICS_FILE"`
}

type S3Settings struct {
	Bucket          string `env:"BUCKET"`
	Prefix          string `env:"PREFIX" envDefault:"simharness/"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

// LoadSettings reads the given dotenv files (".env" when none are given; a
// missing file is not an error) and then parses SIMHARNESS_* variables.
// Variables already present in the environment win over dotenv values.
func LoadSettings(envFiles ...string) (Settings, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Settings{}, fmt.Errorf("load env file: %w", err)
		}
	}

	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch s.Retention {
	case RetentionKeep, RetentionDelete, RetentionArchive:
	case RetentionArchiveS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("retention %q requires %sS3_BUCKET", s.Retention, EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown retention policy %q", s.Retention)
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 100 * time.Millisecond
	}
	if s.CompletionTimeout < 0 {
		return fmt.Errorf("completion timeout must not be negative")
	}
	if s.RootDirectory == "" {
		s.RootDirectory = "results"
	}
	return nil
}
