package wrapi

import (
	"fmt"

	"github.com/localbridge/hl7bridge/internal/hl7codec"
)

// Script is a parsed WRAPI program, ready to run against any number of
// messages.
type Script struct {
	Commands []Command
}

// Compile parses a WRAPI script once at channel start. Lines are
// trimmed; blank lines and '#'-comment lines are ignored; the first
// SAVE line terminates parsing and everything after it is ignored.
// Syntax errors returned here are meant to fail channel start.
func Compile(script string) (*Script, error) {
	var commands []Command
	for _, line := range lines(script) {
		keyword, rest := splitKeyword(line)

		if keyword == "SAVE" {
			commands = append(commands, SaveCommand{})
			break
		}

		cmd, err := parseCommand(keyword, rest)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return &Script{Commands: commands}, nil
}

func parseCommand(keyword, rest string) (Command, error) {
	switch keyword {
	case "SET":
		return parseSet(rest)
	case "COPY":
		return parseCopy(rest)
	case "CLEAR":
		return parseClear(rest)
	case "DELSEG":
		return parseDelSeg(rest)
	case "TRUNC":
		return parseTrunc(rest)
	case "ADDSEG":
		return parseAddSeg(rest)
	default:
		return nil, fmt.Errorf("wrapi: unknown command %q", keyword)
	}
}

// Run applies every command in order to msg, returning the transformed
// message. A runtime failure in any single command (other than COPY,
// which never fails) aborts the run and propagates as a message
// failure, per the WRAPI error policy.
func (s *Script) Run(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	current := msg
	for _, cmd := range s.Commands {
		next, err := cmd.Apply(current, createMissing)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}
