package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the character budget of a chunk.
const DefaultChunkSize = 800

var sentenceRE = regexp.MustCompile(`[^.!?]+[.!?]+`)

// Sentences returns the maximal runs ending in terminal punctuation, plus
// any unpunctuated tail as a final sentence. Text without any terminal
// punctuation is one sentence.
func Sentences(text string) []string {
	locs := sentenceRE.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(locs)+1)
	for _, l := range locs {
		out = append(out, text[l[0]:l[1]])
	}
	// leading punctuation never starts a match; keep it with the first sentence
	out[0] = text[:locs[0][0]] + out[0]
	if tail := text[locs[len(locs)-1][1]:]; strings.TrimSpace(tail) != "" {
		out = append(out, tail)
	}
	return out
}

// SplitText packs whole sentences into chunks of at most budget characters.
// A sentence that does not fit starts a new chunk, so a chunk only exceeds
// the budget when a single sentence does. Blank text yields no chunks.
func SplitText(text string, budget int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if budget <= 0 {
		budget = DefaultChunkSize
	}
	var (
		chunks  []string
		current string
	)
	for _, s := range Sentences(text) {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(s) > budget {
			if c := strings.TrimSpace(current); c != "" {
				chunks = append(chunks, c)
			}
			current = s
			continue
		}
		current += " " + s
	}
	if c := strings.TrimSpace(current); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}
