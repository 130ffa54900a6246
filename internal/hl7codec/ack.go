package hl7codec

import (
	"fmt"
	"strings"
	"time"
)

// AckReason tags why a fallback ACK was synthesized instead of a real
// one.
type AckReason string

const (
	ReasonEmpty     AckReason = "EMPTY"
	ReasonParseFail AckReason = "PARSEFAIL"
)

// GenerateACK builds an AA acknowledgement for msg: MSA-1="AA",
// MSA-2 echoing the source's MSH-10 (control ID), MSA-3 empty. It fails if msg has no
// MSH segment or the MSH has no control ID, in which case the caller
// should fall back to FallbackACK.
func GenerateACK(msg *Message, now time.Time) (*Message, error) {
	mshIdx := msg.FindSegments("MSH")
	if len(mshIdx) == 0 {
		return nil, &ParseError{Reason: "source message has no MSH"}
	}
	controlID, ok := msg.FieldAt(mshIdx[0], 10)
	if !ok || controlID == "" {
		return nil, &ParseError{Reason: "source MSH has no control ID"}
	}

	version := "2.5"
	if v, ok := msg.FieldAt(mshIdx[0], 12); ok && v != "" {
		version = v
	}

	fieldSep := msg.FieldSep
	if fieldSep == 0 {
		fieldSep = defaultFieldSep
	}
	compSep, repSep, subSep := msg.CompSep, msg.RepSep, msg.SubSep
	if compSep == 0 {
		compSep = defaultCompSep
	}
	if repSep == 0 {
		repSep = defaultRepSep
	}
	if subSep == 0 {
		subSep = defaultSubSep
	}
	encChars := string([]byte{compSep, repSep, '\\', subSep})

	ts := now.Format("20060102150405")
	ackID := fmt.Sprintf("ACK-%s", now.Format("20060102150405.000"))
	ackID = strings.ReplaceAll(ackID, ".", "")

	mshFields := []string{"MSH", encChars, "LOCALBRIDGE", "ENGINE", "", "", ts, "", "ACK^A01", ackID, "P", version}
	mshLine := strings.Join(mshFields, string(fieldSep))
	msaLine := fmt.Sprintf("MSA%sAA%s%s%s", string(fieldSep), string(fieldSep), controlID, string(fieldSep))

	ack := &Message{FieldSep: fieldSep, RepSep: msg.RepSep, CompSep: msg.CompSep, SubSep: msg.SubSep}
	ack.Segments = []Segment{
		{ID: "MSH", Tokens: strings.Split(mshLine, string(fieldSep))},
		{ID: "MSA", Tokens: strings.Split(msaLine, string(fieldSep))},
	}
	return ack, nil
}

// FallbackACK synthesizes a textual AA ACK when GenerateACK fails, so
// the inbound channel never withholds a reply.
// controlID may be empty (e.g. an unparseable message never yielded
// one); reason identifies why the real ACK could not be built.
func FallbackACK(controlID string, reason AckReason, now time.Time) string {
	ts := now.Format("20060102150405")
	ackID := now.Format("20060102150405.000")
	ackID = "ACK-" + strings.ReplaceAll(ackID, ".", "")

	var b strings.Builder
	fmt.Fprintf(&b, "MSH|^~\\&|LOCALBRIDGE|ENGINE|||%s||ACK^A01|%s|P|2.5\r", ts, ackID)
	fmt.Fprintf(&b, "MSA|AA|%s|%s\r", controlID, reason)
	return b.String()
}
