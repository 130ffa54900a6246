package wrapi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/localbridge/hl7bridge/internal/hl7codec"
)

// Path is a structured reference into a message used by COPY:
// SEG(occ)-field-component-subcomponent, with occ defaulting to 1 and
// component/subcomponent optional.
type Path struct {
	Seg       string
	Occ       int
	Field     int
	Component int // 0 means "whole field"
	Sub       int // 0 means "whole component"
}

var pathRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]{2})(?:\((\d+)\))?-(\d+)(?:-(\d+)(?:-(\d+))?)?$`)

// ParsePath parses the extended SEG(occ)-field-component-subcomponent
// grammar COPY's structured accessors use.
func ParsePath(s string) (Path, error) {
	m := pathRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Path{}, fmt.Errorf("wrapi: invalid path %q", s)
	}
	p := Path{Seg: strings.ToUpper(m[1]), Occ: 1, Field: atoiOr(m[3], 0)}
	if m[2] != "" {
		p.Occ = atoiOr(m[2], 1)
	}
	if m[4] != "" {
		p.Component = atoiOr(m[4], 0)
	}
	if m[5] != "" {
		p.Sub = atoiOr(m[5], 0)
	}
	return p, nil
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Get performs a "safe get": it returns ok=false instead of an error
// when the segment occurrence, field, component, or subcomponent is
// missing, matching the original's never-throw CopyCommand behavior.
func Get(msg *hl7codec.Message, p Path) (string, bool) {
	idx := msg.FindSegments(p.Seg)
	if p.Occ < 1 || p.Occ > len(idx) {
		return "", false
	}
	raw, ok := msg.FieldAt(idx[p.Occ-1], p.Field)
	if !ok {
		return "", false
	}
	if p.Component == 0 {
		return raw, true
	}
	comps := strings.Split(raw, string(msg.CompSep))
	if p.Component < 1 || p.Component > len(comps) {
		return "", false
	}
	if p.Sub == 0 {
		return comps[p.Component-1], true
	}
	subs := strings.Split(comps[p.Component-1], string(msg.SubSep))
	if p.Sub < 1 || p.Sub > len(subs) {
		return "", false
	}
	return subs[p.Sub-1], true
}

// Set performs a "safe set": it returns false instead of an error when
// the destination segment occurrence does not exist. It never creates
// segments, regardless of createMissing — that knob is SET-only.
func Set(msg *hl7codec.Message, p Path, value string) bool {
	idx := msg.FindSegments(p.Seg)
	if p.Occ < 1 || p.Occ > len(idx) {
		return false
	}
	segIdx := idx[p.Occ-1]
	if p.Component == 0 {
		return msg.SetFieldAt(segIdx, p.Field, value) == nil
	}

	raw, _ := msg.FieldAt(segIdx, p.Field)
	comps := strings.Split(raw, string(msg.CompSep))
	for len(comps) < p.Component {
		comps = append(comps, "")
	}
	if p.Sub == 0 {
		comps[p.Component-1] = value
	} else {
		subs := strings.Split(comps[p.Component-1], string(msg.SubSep))
		for len(subs) < p.Sub {
			subs = append(subs, "")
		}
		subs[p.Sub-1] = value
		comps[p.Component-1] = strings.Join(subs, string(msg.SubSep))
	}
	return msg.SetFieldAt(segIdx, p.Field, strings.Join(comps, string(msg.CompSep))) == nil
}
