package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"field-gateway/internal/model"
)

var readingRe = regexp.MustCompile(`^\s*([A-Za-z_]+)\s*[:=]\s*(.*?)\s*$`)

// Reading is one sensor value decoded from a response line.
type Reading struct {
	Type    string
	Value   float64
	Unit    string
	Comment string
	// Active is false for idle input states, such as a released button,
	// which are not worth storing.
	Active bool
}

// ParseReading decodes a sensor link response such as "TEMP:25.3",
// "LUM:512", "BUTTON:PRESSED" or "JOY:LEFT".
func ParseReading(line string) (Reading, error) {
	m := readingRe.FindStringSubmatch(line)
	if m == nil {
		return Reading{}, fmt.Errorf("unrecognized sensor line: %q", line)
	}
	key, raw := strings.ToUpper(m[1]), m[2]

	switch key {
	case "TEMP", "TEMPERATURE":
		v, err := parseNumber(raw)
		if err != nil {
			return Reading{}, fmt.Errorf("bad temperature in %q: %w", line, err)
		}
		return Reading{Type: model.TypeTemperature, Value: v, Unit: "°C", Active: true}, nil

	case "LUM", "LIGHT":
		v, err := parseNumber(raw)
		if err != nil {
			return Reading{}, fmt.Errorf("bad light level in %q: %w", line, err)
		}
		return Reading{Type: model.TypeLight, Value: v, Unit: "lux", Active: true}, nil

	case "BUTTON", "BTN":
		state := strings.ToUpper(raw)
		pressed := state == "PRESSED" || state == "1" || state == "ON"
		r := Reading{Type: model.TypeButton, Comment: state, Active: pressed}
		if pressed {
			r.Value = model.PresenceValue
		}
		return r, nil

	case "JOY", "JOYSTICK":
		dir := strings.ToUpper(raw)
		r := Reading{Type: model.TypeJoystick, Comment: dir, Active: dir != "" && dir != "CENTER" && dir != "NONE"}
		if r.Active {
			r.Value = model.PresenceValue
		}
		return r, nil
	}
	return Reading{}, fmt.Errorf("unknown sensor %q in line %q", key, line)
}

// parseNumber accepts a trailing unit suffix such as "25.3C".
func parseNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	end := len(raw)
	for end > 0 && !strings.ContainsRune("0123456789.", rune(raw[end-1])) {
		end--
	}
	return strconv.ParseFloat(raw[:end], 64)
}
