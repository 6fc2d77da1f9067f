package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate      = 44100
	framesPerBuffer = 512
	amplitude       = 0.4
)

// PortAudioPlayer writes sine tones to the default output device.
type PortAudioPlayer struct {
	mu     sync.Mutex
	closed bool
}

// NewPortAudioPlayer initializes PortAudio and checks that an output device
// exists. Call Close to release the library.
func NewPortAudioPlayer() (*PortAudioPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("no audio output device: %w", err)
	}
	return &PortAudioPlayer{}, nil
}

func (p *PortAudioPlayer) Play(tones []Tone, gap time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("player closed")
	}

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, len(buf), buf)
	if err != nil {
		return fmt.Errorf("open stream failed: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream failed: %w", err)
	}
	defer stream.Stop()

	for i, tone := range tones {
		if i > 0 && gap > 0 {
			if err := writeSamples(stream, buf, 0, gap); err != nil {
				return err
			}
		}
		if err := writeSamples(stream, buf, tone.Frequency, tone.Duration); err != nil {
			return err
		}
	}
	return nil
}

// writeSamples streams d worth of a sine at freq; freq 0 is silence.
func writeSamples(stream *portaudio.Stream, buf []float32, freq float64, d time.Duration) error {
	total := int(d.Seconds() * sampleRate)
	step := 2 * math.Pi * freq / sampleRate
	for n := 0; n < total; n += len(buf) {
		for i := range buf {
			if n+i < total {
				buf[i] = float32(amplitude * math.Sin(step*float64(n+i)))
			} else {
				buf[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write stream failed: %w", err)
		}
	}
	return nil
}

func (p *PortAudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}
