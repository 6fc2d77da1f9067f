package config

import (
	"fmt"
	"strings"

	"screen-watch/src/input"
	"screen-watch/src/ocr"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, v := range e {
		if v.Field == field {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.ImageScale <= 0 || c.ImageScale > 1 {
		add("image_scale", "must be in (0, 1], got %v", c.ImageScale)
	}
	if c.CheckInterval <= 0 {
		add("check_interval", "must be positive, got %v", c.CheckInterval)
	}
	if c.AlertCooldown < 0 {
		add("alert_cooldown", "must not be negative, got %v", c.AlertCooldown)
	}
	if c.StatusInterval <= 0 {
		add("status_interval", "must be positive, got %v", c.StatusInterval)
	}
	if c.ClickInterval <= 0 {
		add("click_interval", "must be positive, got %v", c.ClickInterval)
	}
	if c.ClickDuration < 0 {
		add("click_duration", "must not be negative, got %v", c.ClickDuration)
	}
	if c.ClickCount != nil && *c.ClickCount < 0 {
		add("click_count", "must not be negative, got %d", *c.ClickCount)
	}
	if _, err := input.ParseButton(c.ClickButton); err != nil {
		add("click_button", "%v", err)
	}

	switch strings.ToLower(c.OCRBackend) {
	case ocr.BackendTesseract, ocr.BackendVision:
	default:
		add("ocr_backend", "must be %q or %q, got %q", ocr.BackendTesseract, ocr.BackendVision, c.OCRBackend)
	}
	if c.OCRDeadline < 0 {
		add("ocr_deadline", "must not be negative, got %v", c.OCRDeadline)
	}
	if c.UnchangedHashDistance < 0 || c.UnchangedHashDistance > 64 {
		add("unchanged_hash_distance", "must be between 0 and 64, got %d", c.UnchangedHashDistance)
	}
	if c.Region != nil && !c.Region.IsZero() && !c.Region.Valid() {
		add("region", "%s needs right > left and bottom > top", c.Region)
	}

	for i, kw := range c.Keywords {
		if strings.TrimSpace(kw) == "" {
			add("keywords", "entry %d is empty", i)
		}
	}
	if len(c.Keywords) == 0 && c.EnableMonitor {
		add("keywords", "at least one keyword is needed to monitor")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
