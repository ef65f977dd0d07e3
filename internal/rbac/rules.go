package rbac

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

const (
	PermQuestionView   = "question:view"
	PermQuestionWrite  = "question:write"
	PermAnswerView     = "answer:view"
	PermAnswerUpload   = "answer:upload"
	PermOCRRun         = "ocr:run"
	PermOCRCorrect     = "ocr:correct"
	PermEvaluationRun  = "evaluation:run"
	PermFeedbackSubmit = "feedback:submit"
	PermDocumentView   = "document:view"
	PermDocumentIngest = "document:ingest"
	PermDocumentDelete = "document:delete"
	PermDashboardView  = "dashboard:view"
	PermEventsView     = "events:view"
	PermAllOwners      = "owner:any" // see and modify other teachers' rows
)

// Default policy. Teachers work on their own rows; admins see everything.
var RolePermissions = map[string][]string{
	RoleTeacher: {
		"question:*",
		"answer:*",
		"ocr:*",
		PermEvaluationRun,
		PermFeedbackSubmit,
		"document:*",
		PermDashboardView,
	},
	RoleAdmin: {
		"*",
	},
}
