package grading

import (
	"strings"
	"unicode"
)

// verdict is the JSON object the model is asked to return.
type verdict struct {
	SimilarityScore float64  `json:"similarity_score"`
	ConceptCoverage float64  `json:"concept_coverage"`
	FinalScore      float64  `json:"final_score"`
	Marks           float64  `json:"marks"`
	Explanation     string   `json:"explanation"`
	Strengths       string   `json:"strengths"`
	Weaknesses      string   `json:"weaknesses"`
	MissingConcepts []string `json:"missing_concepts"`
	Suggestions     string   `json:"suggestions"`
}

// clamp bounds the model's numbers: scores to [0,1], marks to [0,maxMarks].
func (v verdict) clamp(maxMarks float64) verdict {
	v.SimilarityScore = bound(v.SimilarityScore, 0, 1)
	v.ConceptCoverage = bound(v.ConceptCoverage, 0, 1)
	v.FinalScore = bound(v.FinalScore, 0, 1)
	v.Marks = bound(v.Marks, 0, maxMarks)
	v.MissingConcepts = dedupeConcepts(v.MissingConcepts)
	return v
}

func bound(x, lo, hi float64) float64 {
	if x != x { // NaN
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// dedupeConcepts drops blanks and case/punctuation-insensitive duplicates,
// keeping first-seen order and spelling.
func dedupeConcepts(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		k := foldConcept(c)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// foldConcept lowercases, drops punctuation and collapses whitespace.
func foldConcept(s string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsPunct(r):
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
