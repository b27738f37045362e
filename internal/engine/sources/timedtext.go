package sources

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// timedTextDoc covers both timedtext shapes YouTube serves:
// the classic <transcript><text start dur> (seconds) and srv3 <timedtext><body><p t d> (milliseconds).
type timedTextDoc struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",innerxml"`
	} `xml:"text"`
	Paras []struct {
		T    string `xml:"t,attr"`
		D    string `xml:"d,attr"`
		Body string `xml:",innerxml"`
	} `xml:"body>p"`
}

// ParseTimedText decodes a timedtext XML document into segments.
// Cue text is unescaped and stripped of inline markup; empty cues are dropped.
func ParseTimedText(data []byte) ([]Segment, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	segs := make([]Segment, 0, len(doc.Texts)+len(doc.Paras))
	for _, t := range doc.Texts {
		text := engine.CleanCaption(t.Body)
		if text == "" {
			continue
		}
		segs = append(segs, Segment{Text: text, Start: parseSeconds(t.Start), Duration: parseSeconds(t.Dur)})
	}
	for _, p := range doc.Paras {
		text := engine.CleanCaption(p.Body)
		if text == "" {
			continue
		}
		segs = append(segs, Segment{Text: text, Start: parseMillis(p.T), Duration: parseMillis(p.D)})
	}
	return segs, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseMillis(s string) float64 {
	return parseSeconds(s) / 1000
}
