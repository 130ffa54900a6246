package wrapi

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/localbridge/hl7bridge/internal/hl7codec"
)

// Command is one parsed WRAPI instruction.
type Command interface {
	// Apply runs the command against msg, returning the (possibly
	// rebuilt) message. CLEAR/DELSEG/ADDSEG and the segment form of TRUNC
	// rebuild the message by re-encoding, splicing text, and re-parsing;
	// the field form of TRUNC edits the parsed fields in place.
	Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error)
}

var (
	setRe    = regexp.MustCompile(`(?s)^([A-Za-z][A-Za-z0-9]{2})-(\d+)\s+"(.*)"$`)
	copyRe   = regexp.MustCompile(`^(\S+)\s*->\s*(\S+)$`)
	clearRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]{2})-(\d+)$`)
	delsegRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]{2})$`)
	truncRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]{2})(?:-(\d+))?\s*,\s*(\d+)$`)
	addsegAfterRe  = regexp.MustCompile(`(?s)^after\s+([A-Za-z][A-Za-z0-9]{2})\s+"(.*)"$`)
	addsegAppendRe = regexp.MustCompile(`(?s)^"(.*)"$`)
)

// ---- SET ----

type SetCommand struct {
	Seg   string
	Field int
	Value string
}

func parseSet(rest string) (Command, error) {
	m := setRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("wrapi: bad SET syntax: %q", rest)
	}
	field, _ := strconv.Atoi(m[2])
	return SetCommand{Seg: strings.ToUpper(m[1]), Field: field, Value: unescapeString(m[3])}, nil
}

func (c SetCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	idx := msg.FindSegments(c.Seg)
	if len(idx) == 0 {
		if !createMissing {
			return msg, nil
		}
		seg := hl7codec.Segment{ID: c.Seg, Tokens: []string{c.Seg}}
		msg.Segments = append(msg.Segments, seg)
		idx = []int{len(msg.Segments) - 1}
	}
	for _, i := range idx {
		if err := msg.SetFieldAt(i, c.Field, c.Value); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// ---- COPY ----

type CopyCommand struct {
	From Path
	To   Path
}

func parseCopy(rest string) (Command, error) {
	m := copyRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("wrapi: bad COPY syntax: %q", rest)
	}
	from, err := ParsePath(m[1])
	if err != nil {
		return nil, err
	}
	to, err := ParsePath(m[2])
	if err != nil {
		return nil, err
	}
	return CopyCommand{From: from, To: to}, nil
}

func (c CopyCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	value, ok := Get(msg, c.From)
	if !ok {
		slog.Warn("wrapi: COPY source unreadable, skipped", "from", c.From, "to", c.To)
		return msg, nil
	}
	if !Set(msg, c.To, value) {
		slog.Warn("wrapi: COPY destination unwritable, skipped", "from", c.From, "to", c.To)
	}
	return msg, nil
}

// ---- CLEAR ----

type ClearCommand struct {
	Seg   string
	Field int
}

func parseClear(rest string) (Command, error) {
	m := clearRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("wrapi: bad CLEAR syntax: %q", rest)
	}
	field, _ := strconv.Atoi(m[2])
	return ClearCommand{Seg: strings.ToUpper(m[1]), Field: field}, nil
}

func (c ClearCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	text := hl7codec.Encode(msg)
	textLines := strings.Split(strings.TrimSuffix(text, "\r"), "\r")

	for i, line := range textLines {
		if len(line) < 3 || !strings.EqualFold(line[:3], c.Seg) {
			continue
		}
		fieldSep := msg.FieldSep
		tokens := strings.Split(line, string(fieldSep))
		tok := hl7codec.FieldTokenIndex(strings.ToUpper(line[:3]), c.Field)
		if tok >= 0 && tok < len(tokens) {
			tokens[tok] = ""
			textLines[i] = strings.Join(tokens, string(fieldSep))
		}
	}

	rebuilt := strings.Join(textLines, "\r") + "\r"
	return reparse(rebuilt)
}

// ---- DELSEG ----

type DelSegCommand struct {
	Seg string
}

func parseDelSeg(rest string) (Command, error) {
	m := delsegRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("wrapi: bad DELSEG syntax: %q", rest)
	}
	return DelSegCommand{Seg: strings.ToUpper(m[1])}, nil
}

func (c DelSegCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	text := hl7codec.Encode(msg)
	textLines := strings.Split(strings.TrimSuffix(text, "\r"), "\r")

	var kept []string
	for _, line := range textLines {
		if len(line) >= 3 && strings.EqualFold(line[:3], c.Seg) {
			continue
		}
		kept = append(kept, line)
	}

	rebuilt := strings.Join(kept, "\r") + "\r"
	return reparse(rebuilt)
}

// ---- TRUNC ----

type TruncCommand struct {
	Seg        string
	Field      int // 0 means segment mode
	N          int
}

func parseTrunc(rest string) (Command, error) {
	m := truncRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("wrapi: bad TRUNC syntax: %q", rest)
	}
	n, _ := strconv.Atoi(m[3])
	field := 0
	if m[2] != "" {
		field, _ = strconv.Atoi(m[2])
	}
	return TruncCommand{Seg: strings.ToUpper(m[1]), Field: field, N: n}, nil
}

func (c TruncCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	if c.Field == 0 {
		return c.applySegmentMode(msg)
	}
	return c.applyFieldMode(msg)
}

func (c TruncCommand) applySegmentMode(msg *hl7codec.Message) (*hl7codec.Message, error) {
	text := hl7codec.Encode(msg)
	textLines := strings.Split(strings.TrimSuffix(text, "\r"), "\r")

	var kept []string
	count := 0
	for _, line := range textLines {
		if len(line) >= 3 && strings.EqualFold(line[:3], c.Seg) {
			count++
			if count > c.N {
				continue
			}
		}
		kept = append(kept, line)
	}

	rebuilt := strings.Join(kept, "\r") + "\r"
	return reparse(rebuilt)
}

func (c TruncCommand) applyFieldMode(msg *hl7codec.Message) (*hl7codec.Message, error) {
	for _, idx := range msg.FindSegments(c.Seg) {
		raw, ok := msg.FieldAt(idx, c.Field)
		if !ok {
			continue
		}
		reps := strings.Split(raw, string(msg.RepSep))
		if len(reps) > c.N {
			reps = reps[:c.N]
		}
		if err := msg.SetFieldAt(idx, c.Field, strings.Join(reps, string(msg.RepSep))); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// ---- ADDSEG ----

type AddSegCommand struct {
	After   string // empty means append mode
	SegText string
}

func parseAddSeg(rest string) (Command, error) {
	if m := addsegAfterRe.FindStringSubmatch(rest); m != nil {
		return AddSegCommand{After: strings.ToUpper(m[1]), SegText: unescapeString(m[2])}, nil
	}
	if m := addsegAppendRe.FindStringSubmatch(rest); m != nil {
		return AddSegCommand{SegText: unescapeString(m[1])}, nil
	}
	return nil, fmt.Errorf("wrapi: bad ADDSEG syntax: %q", rest)
}

func (c AddSegCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	text := hl7codec.Encode(msg)
	textLines := strings.Split(strings.TrimSuffix(text, "\r"), "\r")

	var deduped []string
	for _, line := range textLines {
		if line == c.SegText {
			continue
		}
		deduped = append(deduped, line)
	}

	if c.After == "" {
		deduped = append(deduped, c.SegText)
		rebuilt := strings.Join(deduped, "\r") + "\r"
		return reparse(rebuilt)
	}

	anchorIdx := -1
	for i, line := range deduped {
		if line == c.After || strings.HasPrefix(line, c.After+"|") {
			anchorIdx = i
			break
		}
	}
	if anchorIdx < 0 {
		rebuilt := strings.Join(deduped, "\r") + "\r"
		return reparse(rebuilt)
	}

	out := make([]string, 0, len(deduped)+1)
	out = append(out, deduped[:anchorIdx+1]...)
	out = append(out, c.SegText)
	out = append(out, deduped[anchorIdx+1:]...)

	rebuilt := strings.Join(out, "\r") + "\r"
	return reparse(rebuilt)
}

// ---- SAVE ----

// SaveCommand is the terminal marker; it has no runtime effect.
type SaveCommand struct{}

func (SaveCommand) Apply(msg *hl7codec.Message, createMissing bool) (*hl7codec.Message, error) {
	return msg, nil
}

func reparse(text string) (*hl7codec.Message, error) {
	msg, err := hl7codec.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("wrapi: re-parse after edit failed: %w", err)
	}
	return msg, nil
}
