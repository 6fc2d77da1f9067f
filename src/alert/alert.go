// Package alert produces the audible signal raised on a keyword detection.
package alert

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Tone is a single sine beep.
type Tone struct {
	Frequency float64
	Duration  time.Duration
}

// DefaultTones is a short rising two-tone chirp.
var DefaultTones = []Tone{
	{Frequency: 1000, Duration: 150 * time.Millisecond},
	{Frequency: 1500, Duration: 150 * time.Millisecond},
}

// DefaultGap separates consecutive tones.
const DefaultGap = 30 * time.Millisecond

// Sink emits one alert. Emit reports whether the primary signal was produced;
// it never panics and never returns an error.
type Sink interface {
	Emit() bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func() bool

func (f SinkFunc) Emit() bool { return f() }

// Player renders tones on an audio device.
type Player interface {
	Play(tones []Tone, gap time.Duration) error
}

// ToneSink plays DefaultTones through a Player and falls back to the
// terminal bell when no player is available or playback fails.
type ToneSink struct {
	player   Player
	fallback io.Writer
	tones    []Tone
	gap      time.Duration
}

// NewToneSink returns a sink over player. A nil player means bell only; a nil
// fallback writes the bell to stdout.
func NewToneSink(player Player, fallback io.Writer) *ToneSink {
	if fallback == nil {
		fallback = os.Stdout
	}
	return &ToneSink{player: player, fallback: fallback, tones: DefaultTones, gap: DefaultGap}
}

func (s *ToneSink) Emit() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: alert playback panicked: %v", r)
			s.bell()
			ok = false
		}
	}()

	if s.player == nil {
		s.bell()
		return false
	}
	if err := s.player.Play(s.tones, s.gap); err != nil {
		log.Printf("Alert: tone playback failed, using terminal bell: %v", err)
		s.bell()
		return false
	}
	return true
}

func (s *ToneSink) bell() {
	fmt.Fprint(s.fallback, "\a\a")
}
