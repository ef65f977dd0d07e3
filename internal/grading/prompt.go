package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Jayanthmurala/EduAssist/internal/store"
)

// NoTextPlaceholder stands in for the student's text when OCR produced none,
// so the model falls back to reading the attached image.
const NoTextPlaceholder = "[No OCR text available - please analyze the handwritten answer from the image if provided]"

// FeedbackMatchText is the text embedded both when a teacher correction is
// stored and when grading looks corrections up, so the two keys agree.
func FeedbackMatchText(questionText, ocrText string) string {
	text := strings.TrimSpace(ocrText)
	if text == "" {
		text = NoTextPlaceholder
	}
	return strings.TrimSpace(questionText) + " " + text
}

const systemPrompt = `You are an expert educator evaluating a student's handwritten answer. You must respond ONLY with a valid JSON object (no markdown, no code fences). The JSON must have these exact fields:

{
  "similarity_score": <number 0-1>,
  "concept_coverage": <number 0-1>,
  "final_score": <number 0-1>,
  "marks": <number 0 to max_marks>,
  "explanation": "<1-2 sentence overall assessment>",
  "strengths": "<specific things done well>",
  "weaknesses": "<specific gaps or errors>",
  "missing_concepts": ["<concept1>", "<concept2>"],
  "suggestions": "<actionable advice for improvement>"
}

Be specific, constructive, and reference actual content. Do NOT hallucinate concepts not in the ideal answer.`

const chunkSeparator = "\n\n---\n\n"

func groundingPrompt(chunks []store.ContextChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return "CRITICAL INSTRUCTION: Use the following official reference material (textbook excerpts) to grade " +
		"the accuracy of the student's answer. Prioritize this source over general knowledge if they conflict:\n\n" +
		strings.Join(parts, chunkSeparator)
}

func calibrationPrompt(matches []store.FeedbackMatch) string {
	var b strings.Builder
	b.WriteString("IMPORTANT: I have graded similar answers before. Please use these past teacher corrections " +
		"as a guide to calibrate your grading (be stricter or more lenient as indicated):\n")
	for i, m := range matches {
		score := "not given"
		if m.TeacherCorrectedScore != nil {
			score = strconv.FormatFloat(*m.TeacherCorrectedScore, 'g', -1, 64)
		}
		fmt.Fprintf(&b, "\n[Example %d] Teacher Correction: %q (Score Adjusted to: %s)", i+1, m.TeacherComments, score)
	}
	return b.String()
}

func userPrompt(question, ideal, student string, maxMarks float64) string {
	return fmt.Sprintf("Question: %s \n\nIdeal Answer: %s \n\nStudent Answer(OCR extracted): %s \n\nMaximum Marks: %s \n\nEvaluate this answer and return the JSON.",
		question, ideal, student, strconv.FormatFloat(maxMarks, 'g', -1, 64))
}
