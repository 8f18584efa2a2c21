package transcript

import (
	"encoding/xml"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Segment is a timed slice of spoken text.
type Segment struct {
	Timestamp float64
	Text      string
}

// Document is the parsed form of the transcript XML.
type Document struct {
	XMLName  xml.Name    `xml:"transcript"`
	Metadata Metadata    `xml:"metadata"`
	Segments []dgSegment `xml:"segments>segment"`
}

// Metadata carries document-level fields.
type Metadata struct {
	Duration     string `xml:"duration"`
	SegmentCount int    `xml:"segment_count"`
}

type dgSegment struct {
	Index     int     `xml:"index"`
	Timestamp string  `xml:"timestamp"`
	Seconds   float64 `xml:"seconds"`
	Text      string  `xml:"text"`
}

// ToXML renders segments as the transcript document. Timestamps are clamped to
// the video duration, text is trimmed, and segments are emitted in time order.
func ToXML(segments []Segment, videoDuration float64) string {
	clean := make([]Segment, 0, len(segments))
	for _, segment := range segments {
		clean = append(clean, Segment{
			Timestamp: math.Min(segment.Timestamp, videoDuration),
			Text:      strings.TrimSpace(segment.Text),
		})
	}
	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].Timestamp < clean[j].Timestamp
	})

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<transcript>\n")
	b.WriteString("  <metadata>\n")
	fmt.Fprintf(&b, "    <duration>%s</duration>\n", FormatTime(videoDuration))
	fmt.Fprintf(&b, "    <segment_count>%d</segment_count>\n", len(clean))
	b.WriteString("  </metadata>\n")
	b.WriteString("  <segments>\n")
	for i, segment := range clean {
		b.WriteString("    <segment>\n")
		fmt.Fprintf(&b, "      <index>%d</index>\n", i+1)
		fmt.Fprintf(&b, "      <timestamp>%s</timestamp>\n", FormatTime(segment.Timestamp))
		fmt.Fprintf(&b, "      <seconds>%s</seconds>\n", formatSeconds(segment.Timestamp))
		fmt.Fprintf(&b, "      <text>%s</text>\n", escapeXML(segment.Text))
		b.WriteString("    </segment>\n")
	}
	b.WriteString("  </segments>\n")
	b.WriteString("</transcript>")
	return b.String()
}

// ParseXML decodes a transcript document produced by ToXML.
func ParseXML(data string) (Document, error) {
	var doc Document
	if err := xml.Unmarshal([]byte(data), &doc); err != nil {
		return Document{}, fmt.Errorf("parse transcript: %w", err)
	}
	return doc, nil
}

// SegmentsOf returns the timed segments of a parsed document.
func (d Document) SegmentsOf() []Segment {
	segments := make([]Segment, 0, len(d.Segments))
	for _, segment := range d.Segments {
		segments = append(segments, Segment{Timestamp: segment.Seconds, Text: segment.Text})
	}
	return segments
}

// FormatTime renders whole seconds as M:SS.
func FormatTime(seconds float64) string {
	total := int(math.Floor(seconds))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatSeconds(seconds float64) string {
	if seconds == math.Trunc(seconds) {
		return fmt.Sprintf("%d", int64(seconds))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", seconds), "0"), ".")
}

func escapeXML(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(text)
}
