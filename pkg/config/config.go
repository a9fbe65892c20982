package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFilename = ".platformctl.yaml"

const (
	DefaultHost          = "localhost"
	DefaultPort          = 5000
	DefaultProbePath     = "/"
	DefaultProbeTimeout  = 1 * time.Second
	DefaultMaxAttempts   = 30
	DefaultProbeInterval = 1 * time.Second
	DefaultDashboardAddr = "127.0.0.1:8501"
	DefaultDepsMarker    = "node_modules"
)

type File struct {
	Server    Server    `yaml:"server"`
	Readiness Readiness `yaml:"readiness"`
	Deps      Deps      `yaml:"deps"`
	Dashboard Dashboard `yaml:"dashboard"`
	Logs      Logs      `yaml:"logs"`
}

type Server struct {
	Name    string            `yaml:"name,omitempty"`
	Command []string          `yaml:"command,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Host    string            `yaml:"host,omitempty"`
	Port    int               `yaml:"port,omitempty"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

type Readiness struct {
	Type        string        `yaml:"type,omitempty"` // "http"|"tcp"
	Path        string        `yaml:"path,omitempty"`
	Policy      string        `yaml:"policy,omitempty"` // "any"|"not-server-error"|"success"
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
}

type Deps struct {
	Skip    bool     `yaml:"skip,omitempty"`
	Marker  string   `yaml:"marker,omitempty"`
	Command []string `yaml:"command,omitempty"`
}

type Dashboard struct {
	Addr  string `yaml:"addr,omitempty"`
	Title string `yaml:"title,omitempty"`
}

// Logs controls rotation of the managed server's stdout/stderr capture.
type Logs struct {
	MaxSizeMB  int  `yaml:"max_size_mb,omitempty"`
	MaxBackups int  `yaml:"max_backups,omitempty"`
	MaxAgeDays int  `yaml:"max_age_days,omitempty"`
	Compress   bool `yaml:"compress,omitempty"`
}

func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, DefaultConfigFilename)
}

// Default returns the configuration used when no config file exists.
func Default() *File {
	f := &File{}
	f.ApplyDefaults()
	return f
}

func (f *File) ApplyDefaults() {
	if f.Server.Name == "" {
		f.Server.Name = "web"
	}
	if len(f.Server.Command) == 0 {
		f.Server.Command = []string{"npm", "run", "dev"}
	}
	if f.Server.Env == nil {
		f.Server.Env = map[string]string{}
	}
	if _, ok := f.Server.Env["NODE_ENV"]; !ok {
		f.Server.Env["NODE_ENV"] = "production"
	}
	if f.Server.Host == "" {
		f.Server.Host = DefaultHost
	}
	if f.Server.Port == 0 {
		f.Server.Port = DefaultPort
	}
	if f.Server.ShutdownTimeout <= 0 {
		f.Server.ShutdownTimeout = 3 * time.Second
	}

	if f.Readiness.Type == "" {
		f.Readiness.Type = "http"
	}
	if f.Readiness.Path == "" {
		f.Readiness.Path = DefaultProbePath
	}
	if f.Readiness.Policy == "" {
		f.Readiness.Policy = "any"
	}
	if f.Readiness.Timeout <= 0 {
		f.Readiness.Timeout = DefaultProbeTimeout
	}
	if f.Readiness.Interval <= 0 {
		f.Readiness.Interval = DefaultProbeInterval
	}
	if f.Readiness.MaxAttempts <= 0 {
		f.Readiness.MaxAttempts = DefaultMaxAttempts
	}

	if f.Deps.Marker == "" {
		f.Deps.Marker = DefaultDepsMarker
	}
	if len(f.Deps.Command) == 0 {
		f.Deps.Command = []string{"npm", "install"}
	}

	if f.Dashboard.Addr == "" {
		f.Dashboard.Addr = DefaultDashboardAddr
	}
	if f.Dashboard.Title == "" {
		f.Dashboard.Title = "Azure Platform Support"
	}
}

func (f *File) Validate() error {
	if f.Server.Port <= 0 || f.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", f.Server.Port)
	}
	switch f.Readiness.Type {
	case "http", "tcp":
	default:
		return errors.Errorf("unsupported readiness.type %q", f.Readiness.Type)
	}
	switch f.Readiness.Policy {
	case "any", "not-server-error", "success":
	default:
		return errors.Errorf("unsupported readiness.policy %q", f.Readiness.Policy)
	}
	return nil
}

// Address is host:port of the managed server.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// URL is the base URL of the managed server, also used for the dashboard iframe.
func (s Server) URL() string {
	return "http://" + s.Address()
}

func (f *File) ProbeURL() string {
	return f.Server.URL() + f.Readiness.Path
}

// ResolveWorkDir returns the absolute working directory for the server.
func (f *File) ResolveWorkDir(projectDir string) string {
	wd := f.Server.WorkDir
	if wd == "" {
		return projectDir
	}
	if filepath.IsAbs(wd) {
		return wd
	}
	return filepath.Join(projectDir, wd)
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg File
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}
