package input

import (
	"errors"
	"testing"
)

func TestParseButton(t *testing.T) {
	tests := []struct {
		in      string
		want    Button
		wantErr bool
	}{
		{"", Left, false},
		{"left", Left, false},
		{"RIGHT", Right, false},
		{" middle ", Middle, false},
		{"center", Middle, false},
		{"back", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseButton(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownButton) {
					t.Errorf("expected ErrUnknownButton, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseButton(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestRobotButton(t *testing.T) {
	for b, want := range map[Button]string{Left: "left", Right: "right", Middle: "center"} {
		got, err := robotButton(b)
		if err != nil || got != want {
			t.Errorf("robotButton(%q) = %q, %v; want %q", b, got, err, want)
		}
	}
	if _, err := robotButton("side"); !errors.Is(err, ErrUnknownButton) {
		t.Errorf("expected ErrUnknownButton, got %v", err)
	}
}

func TestPointString(t *testing.T) {
	if s := (Point{X: 12, Y: -3}).String(); s != "(12, -3)" {
		t.Errorf("String() = %q", s)
	}
}
