package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"screen-watch/src/screenshot"
)

// envLookup reads the process environment first and the dotenv values
// second, so real environment variables win over the file.
type envLookup struct {
	dotenv map[string]string
}

func newEnvLookup(dotenv map[string]string) envLookup {
	return envLookup{dotenv: dotenv}
}

func (e envLookup) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return e.dotenv[key]
}

// applyEnv overrides cfg from the environment and returns every value that
// could not be parsed.
func applyEnv(cfg *Config, env envLookup) ValidationErrors {
	var errs ValidationErrors
	bad := func(key, value string, err error) {
		errs = append(errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid value %q: %v", value, err)})
	}

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(env.get(key)); v != "" {
			*dst = v
		}
	}
	list := func(key, sep string, dst *[]string) {
		if v := env.get(key); strings.TrimSpace(v) != "" {
			*dst = splitList(v, sep)
		}
	}
	float := func(key string, dst *float64) {
		if v := strings.TrimSpace(env.get(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				bad(key, v, err)
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(env.get(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				bad(key, v, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(env.get(key)); v != "" {
			b, err := strconv.ParseBool(strings.ToLower(v))
			if err != nil {
				bad(key, v, err)
				return
			}
			*dst = b
		}
	}

	list("KEYWORDS", ",", &cfg.Keywords)
	float("IMAGE_SCALE", &cfg.ImageScale)
	float("CHECK_INTERVAL", &cfg.CheckInterval)
	float("ALERT_COOLDOWN", &cfg.AlertCooldown)
	float("STATUS_INTERVAL", &cfg.StatusInterval)
	boolean("USE_GPU", &cfg.UseGPU)
	boolean("VERBOSE", &cfg.Verbose)

	float("CLICK_INTERVAL", &cfg.ClickInterval)
	float("CLICK_DURATION", &cfg.ClickDuration)
	if v := strings.TrimSpace(env.get("CLICK_COUNT")); v != "" {
		count, err := ParseClickCount(v)
		if err != nil {
			bad("CLICK_COUNT", v, err)
		} else {
			cfg.ClickCount = count
		}
	}
	str("CLICK_BUTTON", &cfg.ClickButton)
	boolean("SHOW_MOUSE_POSITION", &cfg.ShowMousePosition)

	boolean("ENABLE_MONITOR", &cfg.EnableMonitor)
	boolean("ENABLE_CLICKER", &cfg.EnableClicker)

	str("OCR_BACKEND", &cfg.OCRBackend)
	list("OCR_LANGUAGES", "+", &cfg.OCRLanguages)
	float("OCR_DEADLINE", &cfg.OCRDeadline)
	boolean("SKIP_UNCHANGED_FRAMES", &cfg.SkipUnchangedFrames)
	integer("UNCHANGED_HASH_DISTANCE", &cfg.UnchangedHashDistance)

	boolean("DESKTOP_NOTIFY", &cfg.DesktopNotify)
	boolean("ENABLE_FILE_LOGGING", &cfg.EnableFileLogging)
	boolean("ENABLE_TRAY", &cfg.EnableTray)
	if v := strings.TrimSpace(env.get("REGION")); v != "" {
		r, err := ParseRegion(v)
		if err != nil {
			bad("REGION", v, err)
		} else {
			cfg.Region = &r
		}
	}

	str("MONITOR_HOTKEY", &cfg.Hotkeys.Monitor)
	str("CLICKER_HOTKEY", &cfg.Hotkeys.Clicker)
	str("POSITION_HOTKEY", &cfg.Hotkeys.Position)
	str("QUIT_HOTKEY", &cfg.Hotkeys.Quit)

	str("MODEL", &cfg.Model)
	list("PROVIDERS", ",", &cfg.Providers)

	return errs
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseClickCount accepts a non-negative integer, or "none"/"unlimited"
// for no limit.
func ParseClickCount(s string) (*int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "unlimited", "inf":
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return &n, nil
}

// ParseRegion reads "left,top,right,bottom".
func ParseRegion(s string) (screenshot.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return screenshot.Region{}, fmt.Errorf("want left,top,right,bottom")
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return screenshot.Region{}, err
		}
		v[i] = n
	}
	return screenshot.Region{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}
