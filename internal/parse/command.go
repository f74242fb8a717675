package parse

import (
	"fmt"
	"strings"
)

// CommandKind identifies a recognized actuator command.
type CommandKind string

const (
	CommandBuzzerOn  CommandKind = "BUZZER_ON"
	CommandBuzzerOff CommandKind = "BUZZER_OFF"
	CommandSetColor  CommandKind = "SET_COLOR"
	CommandLCD       CommandKind = "LCD"

	// CommandBeep is a short buzzer pulse issued by the gateway itself. It
	// is not accepted from command records.
	CommandBeep CommandKind = "BEEP"
)

// lcdWidth is the character capacity of the attached 16x2 display.
const lcdWidth = 32

// Command is an actuator instruction carried in a command record's comment.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand recognizes BUZZER_ON, BUZZER_OFF, "SET_COLOR:<arg>" and
// "LCD <text>". ok is false for anything else.
func ParseCommand(s string) (cmd Command, ok bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == string(CommandBuzzerOn):
		return Command{Kind: CommandBuzzerOn}, true
	case s == string(CommandBuzzerOff):
		return Command{Kind: CommandBuzzerOff}, true
	case strings.HasPrefix(s, "SET_COLOR:"):
		arg := strings.TrimSpace(strings.TrimPrefix(s, "SET_COLOR:"))
		if arg == "" {
			return Command{}, false
		}
		return Command{Kind: CommandSetColor, Arg: arg}, true
	case strings.HasPrefix(s, "LCD "):
		return Command{Kind: CommandLCD, Arg: strings.TrimSpace(strings.TrimPrefix(s, "LCD "))}, true
	}
	return Command{}, false
}

// Line renders the command as a newline-free actuator link request.
func (c Command) Line() string {
	switch c.Kind {
	case CommandBuzzerOn:
		return "CMD BUZZ ON"
	case CommandBuzzerOff:
		return "CMD BUZZ OFF"
	case CommandBeep:
		return "CMD BUZZ"
	case CommandSetColor:
		return "CMD RGB " + c.Arg
	case CommandLCD:
		text := c.Arg
		if r := []rune(text); len(r) > lcdWidth {
			text = string(r[:lcdWidth])
		}
		return "LCD " + text
	}
	return ""
}

// String returns the command in its record comment form.
func (c Command) String() string {
	switch c.Kind {
	case CommandSetColor:
		return fmt.Sprintf("%s:%s", c.Kind, c.Arg)
	case CommandLCD:
		return fmt.Sprintf("%s %s", c.Kind, c.Arg)
	}
	return string(c.Kind)
}
