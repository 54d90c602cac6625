package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. TPFETCH_CACHE_DIR.
	EnvPrefix = "TPFETCH"
	// DefaultRetries is the number of extra download rounds after the first.
	DefaultRetries = 5
	// DefaultBackoffUnit is multiplied by the round number between rounds.
	DefaultBackoffUnit = 10 * time.Second
	// DefaultNodeModulesDir is the project-local module directory.
	DefaultNodeModulesDir = "node_modules"
)

// Config keys, shared by flags, the config file and the environment.
const (
	KeyFile             = "file"
	KeyCacheDir         = "cache-dir"
	KeyNodeModuleDir    = "node-module-dir"
	KeyNodeModuleTmpDir = "node-module-tmp-dir"
	KeyWorkDir          = "work-dir"
	KeySiteMirror       = "site-mirror"
	KeyVerbose          = "verbose"
	KeyDryRun           = "dry-run"
	KeyRetries          = "retries"
	KeyBackoff          = "backoff"
	KeyLogLevel         = "log-level"
	KeyReport           = "report"
	KeyHTTPTimeout      = "http-timeout"
)

// Config is the immutable run configuration handed to every component.
// It is passed by value; components never modify it.
type Config struct {
	ManifestFile      string
	CacheDir          string
	NodeModulesDir    string
	NodeModulesTmpDir string
	WorkDir           string
	SiteMirror        string
	Verbose           bool
	DryRun            bool
	Retries           int
	BackoffUnit       time.Duration
	HTTPTimeout       time.Duration
	LogLevel          string
	ReportPath        string
	HostOS            string
}

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath loads a YAML config file when set.
	ConfigFilePath string
	// Flags are bound so that explicitly set flags win over file and env.
	Flags *pflag.FlagSet
	// HostOS overrides runtime.GOOS, for tests.
	HostOS string
}

// DefaultManifestFile returns the manifest looked up when --file is not given.
func DefaultManifestFile(hostOS string) string {
	if hostOS == "windows" {
		return "windows_packages.xml"
	}
	return "packages.xml"
}

// Load merges defaults, the optional config file, TPFETCH_* environment
// variables and flags, then resolves derived paths.
func Load(opts LoadOptions) (Config, error) {
	hostOS := opts.HostOS
	if hostOS == "" {
		hostOS = runtime.GOOS
	}

	v := viper.New()
	v.SetDefault(KeyFile, DefaultManifestFile(hostOS))
	v.SetDefault(KeyCacheDir, "")
	v.SetDefault(KeyNodeModuleDir, DefaultNodeModulesDir)
	v.SetDefault(KeyNodeModuleTmpDir, "")
	v.SetDefault(KeyWorkDir, ".")
	v.SetDefault(KeySiteMirror, "")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyRetries, DefaultRetries)
	v.SetDefault(KeyBackoff, DefaultBackoffUnit)
	v.SetDefault(KeyHTTPTimeout, time.Duration(0))
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyReport, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFilePath != "" {
		v.SetConfigFile(opts.ConfigFilePath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", opts.ConfigFilePath, err)
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return Config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	cfg := Config{
		ManifestFile:      v.GetString(KeyFile),
		CacheDir:          v.GetString(KeyCacheDir),
		NodeModulesDir:    v.GetString(KeyNodeModuleDir),
		NodeModulesTmpDir: v.GetString(KeyNodeModuleTmpDir),
		WorkDir:           v.GetString(KeyWorkDir),
		SiteMirror:        v.GetString(KeySiteMirror),
		Verbose:           v.GetBool(KeyVerbose),
		DryRun:            v.GetBool(KeyDryRun),
		Retries:           v.GetInt(KeyRetries),
		BackoffUnit:       v.GetDuration(KeyBackoff),
		HTTPTimeout:       v.GetDuration(KeyHTTPTimeout),
		LogLevel:          v.GetString(KeyLogLevel),
		ReportPath:        v.GetString(KeyReport),
		HostOS:            hostOS,
	}
	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolve fills derived defaults and makes directories absolute, since
// extraction commands run with a different working directory.
func (c *Config) resolve() error {
	workDir, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("resolving work directory: %w", err)
	}
	c.WorkDir = workDir

	if c.CacheDir == "" {
		tmp, err := os.MkdirTemp("", "tpfetch-cache-")
		if err != nil {
			return fmt.Errorf("creating temporary cache directory: %w", err)
		}
		c.CacheDir = tmp
	}
	c.CacheDir = c.absolute(c.CacheDir)

	if c.NodeModulesTmpDir == "" {
		c.NodeModulesTmpDir = filepath.Join(c.CacheDir, DefaultNodeModulesDir)
	}
	c.NodeModulesTmpDir = c.absolute(c.NodeModulesTmpDir)
	c.NodeModulesDir = c.absolute(c.NodeModulesDir)
	c.ManifestFile = c.absolute(c.ManifestFile)
	return nil
}

// absolute resolves p against WorkDir.
func (c *Config) absolute(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	if c.BackoffUnit < 0 {
		return fmt.Errorf("backoff must be >= 0, got %s", c.BackoffUnit)
	}
	if c.ManifestFile == "" {
		return fmt.Errorf("manifest file must be set")
	}
	return nil
}

// Path resolves p against the working directory.
func (c Config) Path(p string) string {
	return c.absolute(p)
}

// CachePath returns the cache location of a downloaded artifact.
func (c Config) CachePath(filename string) string {
	return filepath.Join(c.CacheDir, filename)
}

// IsDebugMode returns true if diagnostic output was requested
func (c Config) IsDebugMode() bool {
	return c.Verbose || strings.EqualFold(c.LogLevel, "debug")
}

// IsWindows reports whether the pipeline targets a Windows host.
func (c Config) IsWindows() bool {
	return c.HostOS == "windows"
}

// CreateCacheDir ensures the cache directory exists
func (c Config) CreateCacheDir() error {
	if err := os.MkdirAll(c.CacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", c.CacheDir, err)
	}
	return nil
}
