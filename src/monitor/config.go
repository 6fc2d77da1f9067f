package monitor

import (
	"slices"
	"time"
)

// Config controls one monitoring run. Changes made with SetConfig apply to
// the next Start.
type Config struct {
	Keywords       []string
	ImageScale     float64
	CheckInterval  time.Duration
	AlertCooldown  time.Duration
	StatusInterval time.Duration
	// UseGPU is forwarded to the OCR backend; the loop itself ignores it.
	UseGPU  bool
	Verbose bool
}

func DefaultConfig() Config {
	return Config{
		Keywords:       []string{"多媒体技术", "机器学习", "Python", "代数式代码和AI框架"},
		ImageScale:     0.8,
		CheckInterval:  time.Second,
		AlertCooldown:  2 * time.Second,
		StatusInterval: 30 * time.Second,
		Verbose:        true,
	}
}

func (c Config) clone() Config {
	c.Keywords = slices.Clone(c.Keywords)
	return c
}
