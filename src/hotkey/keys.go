package hotkey

import "fmt"

// Windows virtual key codes as reported in gohook rawcodes. Modifiers map to
// both their left and right variants.
var namedKeys = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"esc":       {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"insert":    {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pagedown":  {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

var rawcodeNames = buildRawcodeNames()

// keyNameToRawcodes returns the rawcodes of a normalized key name, or nil.
func keyNameToRawcodes(name string) []uint16 {
	if codes, ok := namedKeys[name]; ok {
		return codes
	}
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)} // VK_F1 is 112
	}
	return nil
}

func buildRawcodeNames() map[uint16]string {
	m := make(map[uint16]string)
	add := func(name string) {
		for _, code := range keyNameToRawcodes(name) {
			m[code] = name
		}
	}
	for name := range namedKeys {
		add(name)
	}
	for c := 'a'; c <= 'z'; c++ {
		add(string(c))
	}
	for c := '0'; c <= '9'; c++ {
		add(string(c))
	}
	for n := 1; n <= 24; n++ {
		add(fmt.Sprintf("f%d", n))
	}
	return m
}

func rawcodeName(code uint16) string { return rawcodeNames[code] }
