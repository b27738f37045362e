package rag

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

var (
	bracketArrayRE = regexp.MustCompile(`\[[^\[\]]*\]`)
	chunkLabelRE   = regexp.MustCompile(`(?i)chunk\s*#?\s*\d+`)
	scaleRangeRE   = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:-|–|to)\s*\d+(?:\.\d+)?`)
	numberRE       = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParseScores extracts a list of relevance scores from free-form model output.
// It tries, in order: the whole text as a JSON array (after stripping code fences),
// the first bracketed array in the text, then every bare number once "Chunk N"
// labels and scale ranges such as "1-10" are removed. ok is false when nothing
// numeric was found.
func ParseScores(raw string) (scores []float64, ok bool) {
	s := engine.StripFences(raw)
	if s == "" {
		return nil, false
	}
	if v, ok := decodeArray(s); ok {
		return v, true
	}
	if m := bracketArrayRE.FindString(s); m != "" {
		if v, ok := decodeArray(m); ok {
			return v, true
		}
	}

	prose := scaleRangeRE.ReplaceAllString(chunkLabelRE.ReplaceAllString(s, " "), " ")
	for _, n := range numberRE.FindAllString(prose, -1) {
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			scores = append(scores, f)
		}
	}
	return scores, len(scores) > 0
}

func decodeArray(s string) ([]float64, bool) {
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil || len(v) == 0 {
		return nil, false
	}
	return v, true
}
