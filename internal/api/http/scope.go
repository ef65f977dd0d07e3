package http

import (
	"context"
	"net/http"
	"strconv"

	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/rbac"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

// ownerScope is the owner filter for the caller: their own id, or empty for
// roles that see every teacher's rows.
func ownerScope(r *http.Request) string {
	ctx := r.Context()
	if rbac.Default().CanSeeAll(rbac.RoleFromContext(ctx)) {
		return ""
	}
	return auth.SubjectFromContext(ctx)
}

func canAccess(r *http.Request, ownerID string) bool {
	scope := ownerScope(r)
	return scope == "" || scope == ownerID
}

// loadAnswer fetches an answer the caller may see. Other teachers' answers
// are reported as missing.
func loadAnswer(ctx context.Context, r *http.Request, st store.Store, id string) (store.AnswerView, error) {
	v, err := st.GetAnswer(ctx, id)
	if err != nil {
		return store.AnswerView{}, err
	}
	if !canAccess(r, v.UploadedBy) {
		return store.AnswerView{}, store.ErrNotFound
	}
	return v, nil
}

func listOpts(r *http.Request) store.ListOpts {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return store.ListOpts{
		OwnerID:    ownerScope(r),
		QuestionID: q.Get("question_id"),
		Limit:      limit,
		Offset:     offset,
	}
}
