package store

import "time"

type OCRStatus string

const (
	OCRPending OCRStatus = "pending"
	OCRDone    OCRStatus = "done"
	OCRFailed  OCRStatus = "failed"
)

type Question struct {
	ID           string    `json:"id"`
	QuestionText string    `json:"question_text"`
	IdealAnswer  string    `json:"ideal_answer"`
	MaxMarks     float64   `json:"max_marks"`
	Subject      *string   `json:"subject,omitempty"`
	Difficulty   *string   `json:"difficulty,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StudentAnswer is one uploaded answer image. OCRText stays nil until
// extraction finishes; callers must treat that as a normal transient state.
type StudentAnswer struct {
	ID                 string    `json:"id"`
	QuestionID         string    `json:"question_id"`
	ImagePath          string    `json:"image_path"`
	StudentName        *string   `json:"student_name,omitempty"`
	UploadedBy         string    `json:"uploaded_by"`
	UploadedAt         time.Time `json:"uploaded_at"`
	OCRText            *string   `json:"ocr_text"`
	OCRConfidence      *float64  `json:"ocr_confidence"`
	OCRStatus          OCRStatus `json:"ocr_status"`
	OCRError           *string   `json:"ocr_error,omitempty"`
	EmbeddingModel     *string   `json:"embedding_model,omitempty"`
	ActiveEvaluationID *string   `json:"active_evaluation_id,omitempty"`
}

// AnswerView joins an answer with its question and its active evaluation.
type AnswerView struct {
	StudentAnswer
	Question   Question    `json:"question"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// Evaluation rows are immutable; re-evaluation inserts a new row and moves
// the answer's active pointer.
type Evaluation struct {
	ID              string    `json:"id"`
	AnswerID        string    `json:"answer_id"`
	SimilarityScore float64   `json:"similarity_score"`
	ConceptCoverage float64   `json:"concept_coverage"`
	FinalScore      float64   `json:"final_score"`
	Marks           float64   `json:"marks"`
	Explanation     string    `json:"explanation"`
	Strengths       string    `json:"strengths"`
	Weaknesses      string    `json:"weaknesses"`
	MissingConcepts []string  `json:"missing_concepts"`
	Suggestions     string    `json:"suggestions"`
	ModelVersion    string    `json:"model_version"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

type Feedback struct {
	ID                 string    `json:"id"`
	EvaluationID       string    `json:"evaluation_id"`
	TeacherID          string    `json:"teacher_id"`
	TeacherScore       *float64  `json:"teacher_score,omitempty"`
	TeacherFeedback    *string   `json:"teacher_feedback,omitempty"`
	ScoreAccurate      *bool     `json:"score_accurate,omitempty"`
	WhatAIGotWrong     *string   `json:"what_ai_got_wrong,omitempty"`
	WhatAIMissed       *string   `json:"what_ai_missed,omitempty"`
	ExplanationHelpful *int      `json:"explanation_helpful,omitempty"`
	Embedding          Vector    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	FilePath    string    `json:"file_path"`
	UploadedBy  string    `json:"uploaded_by"`
	IsProcessed bool      `json:"is_processed"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"chunk_content"`
	Embedding  Vector `json:"-"`
}

// FeedbackMatch is a past teacher correction returned by similar-feedback search.
type FeedbackMatch struct {
	FeedbackID            string   `json:"feedback_id"`
	TeacherComments       string   `json:"teacher_comments"`
	TeacherCorrectedScore *float64 `json:"teacher_corrected_score"`
	Similarity            float64  `json:"similarity"`
}

// ContextChunk is a reference excerpt returned by relevant-context search.
type ContextChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"chunk_content"`
	Similarity float64 `json:"similarity"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     *string   `json:"full_name,omitempty"`
	Institution  *string   `json:"institution,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OCRResult is what a successful extraction writes onto an answer.
type OCRResult struct {
	Text           string
	Confidence     float64
	Embedding      Vector // nil when embedding failed
	EmbeddingModel string
}

type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type ConfidencePoint struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"` // percent
}

type Dashboard struct {
	TotalQuestions    int               `json:"total_questions"`
	TotalAnswers      int               `json:"total_answers"`
	TotalEvaluations  int               `json:"total_evaluations"`
	AvgScore          *float64          `json:"avg_score"`
	AvgOCRConfidence  *float64          `json:"avg_ocr_confidence"`
	ScoreDistribution []ScoreBucket     `json:"score_distribution"`
	ConfidenceTrend   []ConfidencePoint `json:"confidence_trend"`
}
