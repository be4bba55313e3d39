// Package config loads annotator settings from an optional YAML file and the
// environment (a .env file is loaded by the root command before this runs).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/annotation"
	"github.com/lehigh-university-libraries/annotator/internal/notify"
)

const (
	// DefaultPath is read when --config is not given
	DefaultPath = "annotator.yaml"

	defaultSessionsDir   = "sessions"
	defaultReportsDir    = "reports"
	defaultAutoSaveEvery = 5
)

const defaultConfigYAML = `# annotator configuration

# Labels offered to the annotator. Folder names are matched against these
# (case, "_" and "-" ignored) to pick the suggested label.
classes:
  - faiencage
  - fissure
  - joint_ouvert

# One JSON document per annotator is kept here.
sessions_dir: sessions

# Reports written locally when a session completes.
reports_dir: reports

# SQLite log of completed runs. Leave empty to disable.
history_db: sessions/history.db

autosave: true
autosave_every: 5

# Completion report delivery. Credentials are better set through the
# environment: SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD,
# REPORT_FROM, REPORT_TO.
mail:
  host: ""
  port: 587
  from: ""
  to: ""
  tls: mandatory
  subject_prefix: "[annotator]"
`

// Config holds the runtime configuration
type Config struct {
	Classes       []string      `yaml:"classes"`
	SessionsDir   string        `yaml:"sessions_dir"`
	ReportsDir    string        `yaml:"reports_dir"`
	HistoryDB     string        `yaml:"history_db"`
	AutoSave      bool          `yaml:"autosave"`
	AutoSaveEvery int           `yaml:"autosave_every"`
	Mail          notify.Config `yaml:"mail"`

	// Path is the file the configuration was read from, empty when defaults were used
	Path string `yaml:"-"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Classes:       append([]string(nil), annotation.DefaultClasses...),
		SessionsDir:   defaultSessionsDir,
		ReportsDir:    defaultReportsDir,
		HistoryDB:     filepath.Join(defaultSessionsDir, "history.db"),
		AutoSave:      true,
		AutoSaveEvery: defaultAutoSaveEvery,
		Mail:          notify.Config{Port: 587, TLS: "mandatory"},
	}
}

// Load reads path when it exists, then applies environment overrides.
// A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"ANNOTATOR_SESSIONS_DIR": &c.SessionsDir,
		"ANNOTATOR_REPORTS_DIR":  &c.ReportsDir,
		"ANNOTATOR_HISTORY_DB":   &c.HistoryDB,
		"SMTP_HOST":              &c.Mail.Host,
		"SMTP_USERNAME":          &c.Mail.Username,
		"SMTP_PASSWORD":          &c.Mail.Password,
		"REPORT_FROM":            &c.Mail.From,
		"REPORT_TO":              &c.Mail.To,
	}
	for env, field := range overrides {
		if v, ok := os.LookupEnv(env); ok {
			*field = v
		}
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		c.Mail.Port = port
	}
	if v := os.Getenv("ANNOTATOR_CLASSES"); v != "" {
		var classes []string
		for _, class := range strings.Split(v, ",") {
			if class = strings.TrimSpace(class); class != "" {
				classes = append(classes, class)
			}
		}
		c.Classes = classes
	}
	return nil
}

// Validate checks the values the annotation loop depends on
func (c *Config) Validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("config: at least one class is required")
	}
	seen := make(map[string]bool, len(c.Classes))
	for _, class := range c.Classes {
		if seen[class] {
			return fmt.Errorf("config: duplicate class %q", class)
		}
		seen[class] = true
	}
	if c.SessionsDir == "" {
		return fmt.Errorf("config: sessions_dir is required")
	}
	if c.AutoSaveEvery <= 0 {
		c.AutoSaveEvery = defaultAutoSaveEvery
	}
	return nil
}

// ClassList returns the configured labels as an annotation enumeration
func (c *Config) ClassList() annotation.Classes {
	return annotation.Classes(c.Classes)
}

// WriteDefault writes the commented default configuration to path unless a
// file already exists there.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return false, err
	}
	return true, nil
}
