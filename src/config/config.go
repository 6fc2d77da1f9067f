package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"screen-watch/src/clicker"
	"screen-watch/src/input"
	"screen-watch/src/llm"
	"screen-watch/src/monitor"
	"screen-watch/src/ocr"
	"screen-watch/src/screenshot"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	ConfigPathEnvVar  = "SCREEN_WATCH_CONFIG"
	EnvPathEnvVar     = "SCREEN_WATCH_ENV"
)

type Hotkeys struct {
	Monitor  string `toml:"monitor" yaml:"monitor" json:"monitor"`
	Clicker  string `toml:"clicker" yaml:"clicker" json:"clicker"`
	Position string `toml:"position" yaml:"position" json:"position"`
	Quit     string `toml:"quit" yaml:"quit" json:"quit"`
}

// Config is the flat option set read from files and the environment.
// Durations are given in seconds.
type Config struct {
	Keywords       []string `toml:"keywords" yaml:"keywords" json:"keywords"`
	ImageScale     float64  `toml:"image_scale" yaml:"image_scale" json:"image_scale"`
	CheckInterval  float64  `toml:"check_interval" yaml:"check_interval" json:"check_interval"`
	AlertCooldown  float64  `toml:"alert_cooldown" yaml:"alert_cooldown" json:"alert_cooldown"`
	StatusInterval float64  `toml:"status_interval" yaml:"status_interval" json:"status_interval"`
	UseGPU         bool     `toml:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	Verbose        bool     `toml:"verbose" yaml:"verbose" json:"verbose"`

	ClickInterval     float64 `toml:"click_interval" yaml:"click_interval" json:"click_interval"`
	ClickDuration     float64 `toml:"click_duration" yaml:"click_duration" json:"click_duration"`
	ClickCount        *int    `toml:"click_count" yaml:"click_count" json:"click_count"` // nil = unlimited
	ClickButton       string  `toml:"click_button" yaml:"click_button" json:"click_button"`
	ShowMousePosition bool    `toml:"show_mouse_position" yaml:"show_mouse_position" json:"show_mouse_position"`

	EnableMonitor bool `toml:"enable_monitor" yaml:"enable_monitor" json:"enable_monitor"`
	EnableClicker bool `toml:"enable_clicker" yaml:"enable_clicker" json:"enable_clicker"`

	OCRBackend            string   `toml:"ocr_backend" yaml:"ocr_backend" json:"ocr_backend"`
	OCRLanguages          []string `toml:"ocr_languages" yaml:"ocr_languages" json:"ocr_languages"`
	OCRDeadline           float64  `toml:"ocr_deadline" yaml:"ocr_deadline" json:"ocr_deadline"`
	SkipUnchangedFrames   bool     `toml:"skip_unchanged_frames" yaml:"skip_unchanged_frames" json:"skip_unchanged_frames"`
	UnchangedHashDistance int      `toml:"unchanged_hash_distance" yaml:"unchanged_hash_distance" json:"unchanged_hash_distance"`

	DesktopNotify     bool               `toml:"desktop_notify" yaml:"desktop_notify" json:"desktop_notify"`
	EnableFileLogging bool               `toml:"enable_file_logging" yaml:"enable_file_logging" json:"enable_file_logging"`
	EnableTray        bool               `toml:"enable_tray" yaml:"enable_tray" json:"enable_tray"`
	Region            *screenshot.Region `toml:"region" yaml:"region" json:"region"`
	Hotkeys           Hotkeys            `toml:"hotkeys" yaml:"hotkeys" json:"hotkeys"`

	// Vision backend credentials come from the environment only.
	APIKey     string   `toml:"-" yaml:"-" json:"-"`
	APIKeyPath string   `toml:"-" yaml:"-" json:"-"`
	Model      string   `toml:"model" yaml:"model" json:"model"`
	Providers  []string `toml:"providers" yaml:"providers" json:"providers"`

	// Path is the config file that was read, if any.
	Path string `toml:"-" yaml:"-" json:"-"`
}

func Default() *Config {
	return &Config{
		Keywords:       []string{"多媒体技术", "机器学习", "Python", "代数式代码和AI框架"},
		ImageScale:     0.8,
		CheckInterval:  1.0,
		AlertCooldown:  2,
		StatusInterval: 30,
		Verbose:        true,

		ClickInterval:     2.0,
		ClickDuration:     0.1,
		ClickButton:       "left",
		ShowMousePosition: true,

		OCRBackend:            ocr.BackendTesseract,
		OCRLanguages:          append([]string(nil), ocr.DefaultLanguages...),
		OCRDeadline:           20,
		UnchangedHashDistance: ocr.DefaultMaxHashDistance,

		DesktopNotify: true,
		Hotkeys: Hotkeys{
			Monitor:  "Ctrl+S",
			Clicker:  "Ctrl+Alt+C",
			Position: "Ctrl+Alt+P",
			Quit:     "Ctrl+Alt+Q",
		},
	}
}

type LoadOptions struct {
	// ConfigPath is a TOML, YAML or JSON file. Empty falls back to
	// $SCREEN_WATCH_CONFIG; no file at all means defaults.
	ConfigPath string
	// EnvPath is a dotenv file. Empty means .env next to the executable,
	// then $SCREEN_WATCH_ENV.
	EnvPath string
	// Overrides run last, typically applying command-line flags.
	Overrides []func(*Config)
	// APIKeyPathOverride replaces the OpenRouter key file location.
	APIKeyPathOverride string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions layers defaults, the config file, the dotenv file, the
// process environment and opts.Overrides, then validates the result.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	envPath := opts.EnvPath
	if envPath == "" {
		envPath = resolveEnvPath()
	}
	env := newEnvLookup(readDotenvValues(envPath))
	if errs := applyEnv(cfg, env); len(errs) > 0 {
		return nil, errs
	}

	cfg.APIKeyPath = resolveAPIKeyPath(opts, env)
	cfg.APIKey = resolveAPIKey(cfg.APIKeyPath, env)

	for _, override := range opts.Overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			log.Printf("Config: ignoring unknown keys %v in %s", undecoded, path)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// autoDetectAndParse tries TOML, then JSON, then YAML. Each attempt decodes
// into a scratch copy so a failed format leaves no partial values behind.
func autoDetectAndParse(data []byte, cfg *Config) error {
	try := func(decode func(*Config) error) bool {
		scratch := *cfg
		if decode(&scratch) != nil {
			return false
		}
		*cfg = scratch
		return true
	}
	if try(func(c *Config) error { _, err := toml.Decode(string(data), c); return err }) {
		return nil
	}
	if try(func(c *Config) error { return json.Unmarshal(data, c) }) {
		return nil
	}
	if try(func(c *Config) error { return yaml.Unmarshal(data, c) }) {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

func resolveEnvPath() string {
	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}
	values, err := godotenv.Read(envPath)
	if err != nil {
		log.Printf("Config: cannot read %s: %v", envPath, err)
		return map[string]string{}
	}
	return values
}

func resolveAPIKeyPath(opts LoadOptions, env envLookup) string {
	keyPath := DefaultAPIKeyPath
	if p := strings.TrimSpace(env.get(APIKeyPathEnvVar)); p != "" {
		keyPath = p
	}
	if p := strings.TrimSpace(opts.APIKeyPathOverride); p != "" {
		keyPath = p
	}
	return keyPath
}

func resolveAPIKey(keyPath string, env envLookup) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}
	return env.get("OPENROUTER_API_KEY")
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		Keywords:       append([]string(nil), c.Keywords...),
		ImageScale:     c.ImageScale,
		CheckInterval:  seconds(c.CheckInterval),
		AlertCooldown:  seconds(c.AlertCooldown),
		StatusInterval: seconds(c.StatusInterval),
		UseGPU:         c.UseGPU,
		Verbose:        c.Verbose,
	}
}

// ClickerConfig converts the click options. The position is left unset; it
// is resolved interactively.
func (c *Config) ClickerConfig() clicker.Config {
	button, err := input.ParseButton(c.ClickButton)
	if err != nil {
		button = input.Left
	}
	cfg := clicker.Config{
		Interval: seconds(c.ClickInterval),
		Duration: seconds(c.ClickDuration),
		Button:   button,
		Verbose:  c.Verbose,
	}
	if c.ClickCount != nil {
		n := *c.ClickCount
		cfg.MaxClicks = &n
	}
	return cfg
}

func (c *Config) OCROptions() ocr.Options {
	return ocr.Options{
		Backend:         c.OCRBackend,
		Languages:       append([]string(nil), c.OCRLanguages...),
		UseGPU:          c.UseGPU,
		Deadline:        seconds(c.OCRDeadline),
		SkipUnchanged:   c.SkipUnchangedFrames,
		MaxHashDistance: c.UnchangedHashDistance,
		Vision: llm.Config{
			APIKey:    c.APIKey,
			Model:     c.Model,
			Providers: append([]string(nil), c.Providers...),
		},
	}
}
