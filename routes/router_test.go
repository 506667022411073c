package routes

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/controllers"
	"github.com/cppla/qaforum/forms"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/testutil"
)

func setup(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	r, err := SetupRouter(db)
	if err != nil {
		t.Fatalf("setup router: %v", err)
	}
	return r, db
}

type request struct {
	method string
	path   string
	form   url.Values
	json   string
	auth   string
	cookie *http.Cookie
}

func do(r *gin.Engine, req request) *httptest.ResponseRecorder {
	var httpReq *http.Request
	switch {
	case req.form != nil:
		httpReq = httptest.NewRequest(req.method, req.path, strings.NewReader(req.form.Encode()))
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case req.json != "":
		httpReq = httptest.NewRequest(req.method, req.path, strings.NewReader(req.json))
		httpReq.Header.Set("Content-Type", "application/json")
	default:
		httpReq = httptest.NewRequest(req.method, req.path, nil)
	}
	if req.auth != "" {
		httpReq.Header.Set("Authorization", req.auth)
	}
	if req.cookie != nil {
		httpReq.AddCookie(req.cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}

func expectRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}

func pubDateValue(q models.Question) string {
	return q.PubDate.In(time.Local).Format(forms.PubDateLayout)
}

func answerVotes(t *testing.T, db *gorm.DB, answerID uint) uint {
	t.Helper()
	var a models.Answer
	if err := db.First(&a, answerID).Error; err != nil {
		t.Fatalf("load answer %d: %v", answerID, err)
	}
	return a.Votes
}

func id(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setup(t)

	w := do(r, request{method: http.MethodGet, path: "/health"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestIndexShowsFiveNewestPublished(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	now := time.Now()

	names := []string{"first-newest", "second", "third", "fourth", "fifth", "sixth-oldest"}
	for i, name := range names {
		testutil.CreateQuestion(t, db, owner, name, now.Add(-time.Duration(i+1)*time.Hour))
	}
	testutil.CreateQuestion(t, db, owner, "from-the-future", now.Add(24*time.Hour))

	w := do(r, request{method: http.MethodGet, path: "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range names[:controllers.IndexSize] {
		if !strings.Contains(body, name) {
			t.Fatalf("index is missing %q", name)
		}
	}
	if strings.Contains(body, "sixth-oldest") {
		t.Fatalf("index should be capped at %d questions", controllers.IndexSize)
	}
	if strings.Contains(body, "from-the-future") {
		t.Fatalf("index must not list unpublished questions")
	}
	if strings.Index(body, "first-newest") > strings.Index(body, "second") {
		t.Fatalf("index is not ordered newest first")
	}
}

func TestIndexEmpty(t *testing.T) {
	r, _ := setup(t)

	w := do(r, request{method: http.MethodGet, path: "/"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "No questions are available.") {
		t.Fatalf("unexpected empty index: %d %s", w.Code, w.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	r, _ := setup(t)

	for _, path := range []string{"/999/", "/abc/", "/999/answers/", "/questions/999/", "/answers/5/", "/comments/7/", "/no/such/page/"} {
		w := do(r, request{method: http.MethodGet, path: path})
		if w.Code != http.StatusNotFound {
			t.Fatalf("GET %s: expected 404, got %d", path, w.Code)
		}
	}

	w := do(r, request{method: http.MethodPost, path: "/999/vote/", form: url.Values{"answer": {"1"}}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("vote on missing question: expected 404, got %d", w.Code)
	}
}

func TestEditMissingObjectNotFound(t *testing.T) {
	r, db := setup(t)
	editor := testutil.CreateUser(t, db, "editor", auth.ChangeQuestion, auth.ChangeAnswer, auth.ChangeComment)
	bearer := testutil.BearerFor(t, editor)

	for _, path := range []string{"/questions/999/edit/", "/answers/999/edit/", "/comments/999/edit/"} {
		w := do(r, request{method: http.MethodGet, path: path, auth: bearer})
		if w.Code != http.StatusNotFound {
			t.Fatalf("GET %s: expected 404, got %d", path, w.Code)
		}
		w = do(r, request{method: http.MethodPost, path: path, auth: bearer, form: url.Values{"text": {"x"}}})
		if w.Code != http.StatusNotFound {
			t.Fatalf("POST %s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestDetailListsAnswers(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Favourite editor?", time.Now().Add(-time.Hour))
	testutil.CreateAnswer(t, db, q, owner, "vim", 0)
	testutil.CreateAnswer(t, db, q, owner, "emacs", 0)

	w := do(r, request{method: http.MethodGet, path: "/" + id(q.ID) + "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Favourite editor?", "vim", "emacs", `name="answer"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("detail page missing %q", want)
		}
	}
}

func TestVoteIncrementsAndRedirects(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Best language?", time.Now().Add(-time.Hour))
	a1 := testutil.CreateAnswer(t, db, q, owner, "Go", 3)
	a2 := testutil.CreateAnswer(t, db, q, owner, "Rust", 0)

	votePath := "/" + id(q.ID) + "/vote/"
	resultsPath := "/" + id(q.ID) + "/answers/"

	w := do(r, request{method: http.MethodPost, path: votePath, form: url.Values{"answer": {id(a1.ID)}}})
	expectRedirect(t, w, resultsPath)

	if got := answerVotes(t, db, a1.ID); got != 4 {
		t.Fatalf("votes = %d, want 4", got)
	}

	w = do(r, request{method: http.MethodPost, path: votePath, form: url.Values{"answer": {id(a1.ID)}}})
	expectRedirect(t, w, resultsPath)
	if got := answerVotes(t, db, a1.ID); got != 5 {
		t.Fatalf("repeat vote should count again, votes = %d", got)
	}
	if got := answerVotes(t, db, a2.ID); got != 0 {
		t.Fatalf("other answer changed to %d", got)
	}

	w = do(r, request{method: http.MethodGet, path: resultsPath})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "5 votes") {
		t.Fatalf("results page should show the new count: %s", w.Body.String())
	}
}

func TestVoteWithoutValidChoice(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Tabs or spaces?", time.Now().Add(-time.Hour))
	a := testutil.CreateAnswer(t, db, q, owner, "Tabs", 3)
	other := testutil.CreateQuestion(t, db, owner, "Other", time.Now().Add(-time.Hour))
	foreign := testutil.CreateAnswer(t, db, other, owner, "Foreign", 1)

	votePath := "/" + id(q.ID) + "/vote/"
	for _, form := range []url.Values{{}, {"answer": {"999"}}, {"answer": {"x"}}, {"answer": {id(foreign.ID)}}} {
		w := do(r, request{method: http.MethodPost, path: votePath, form: form})
		if w.Code != http.StatusOK {
			t.Fatalf("form %v: expected 200, got %d", form, w.Code)
		}
		if !strings.Contains(w.Body.String(), template.HTMLEscapeString(controllers.NoAnswerMessage)) {
			t.Fatalf("form %v: missing error message", form)
		}
	}

	if got := answerVotes(t, db, a.ID); got != 3 {
		t.Fatalf("votes changed to %d", got)
	}
	if got := answerVotes(t, db, foreign.ID); got != 1 {
		t.Fatalf("foreign answer changed to %d", got)
	}
}

func TestEditRequiresLogin(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Q", time.Now().Add(-time.Hour))

	path := "/questions/" + id(q.ID) + "/edit/"
	w := do(r, request{method: http.MethodGet, path: path})
	expectRedirect(t, w, middleware.LoginPath+"?next="+url.QueryEscape(path))

	w = do(r, request{method: http.MethodPost, path: "/questions/new/", form: url.Values{"text": {"sneaky"}}})
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect to login, got %d", w.Code)
	}
	var count int64
	db.Model(&models.Question{}).Count(&count)
	if count != 1 {
		t.Fatalf("anonymous create stored a question")
	}
}

func TestStrangerCannotEdit(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	stranger := testutil.CreateUser(t, db, "stranger", auth.AddQuestion, auth.ChangeAnswer)
	q := testutil.CreateQuestion(t, db, owner, "Original", time.Now().Add(-time.Hour))

	path := "/questions/" + id(q.ID) + "/edit/"
	bearer := testutil.BearerFor(t, stranger)

	w := do(r, request{method: http.MethodGet, path: path, auth: bearer})
	if w.Code != http.StatusForbidden {
		t.Fatalf("GET edit: expected 403, got %d", w.Code)
	}

	w = do(r, request{method: http.MethodPost, path: path, auth: bearer, form: url.Values{"text": {"Hijacked"}, "pub_date": {pubDateValue(q)}}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("POST edit: expected 403, got %d", w.Code)
	}

	var got models.Question
	db.First(&got, q.ID)
	if got.Text != "Original" || got.UserID != owner.ID {
		t.Fatalf("question changed: %+v", got)
	}
}

func TestStrangerCannotEditAnswerOrComment(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	stranger := testutil.CreateUser(t, db, "stranger", auth.AddAnswer, auth.AddComment)
	q := testutil.CreateQuestion(t, db, owner, "Q", time.Now().Add(-time.Hour))
	a := testutil.CreateAnswer(t, db, q, owner, "Original answer", 2)
	c := testutil.CreateComment(t, db, a, owner, "Original comment")
	bearer := testutil.BearerFor(t, stranger)

	answerPath := "/answers/" + id(a.ID) + "/edit/"
	commentPath := "/comments/" + id(c.ID) + "/edit/"
	for _, path := range []string{answerPath, commentPath} {
		w := do(r, request{method: http.MethodGet, path: path, auth: bearer})
		if w.Code != http.StatusForbidden {
			t.Fatalf("GET %s: expected 403, got %d", path, w.Code)
		}
	}

	w := do(r, request{method: http.MethodPost, path: answerPath, auth: bearer, form: url.Values{"text": {"Hijacked"}, "question": {id(q.ID)}}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("POST answer edit: expected 403, got %d", w.Code)
	}
	w = do(r, request{method: http.MethodPost, path: commentPath, auth: bearer, form: url.Values{"text": {"Hijacked"}, "answer": {id(a.ID)}}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("POST comment edit: expected 403, got %d", w.Code)
	}

	var gotAnswer models.Answer
	if err := db.First(&gotAnswer, a.ID).Error; err != nil {
		t.Fatalf("load answer: %v", err)
	}
	if gotAnswer.Text != "Original answer" || gotAnswer.UserID != owner.ID || gotAnswer.Votes != 2 {
		t.Fatalf("answer changed: %+v", gotAnswer)
	}
	var gotComment models.Comment
	if err := db.First(&gotComment, c.ID).Error; err != nil {
		t.Fatalf("load comment: %v", err)
	}
	if gotComment.Text != "Original comment" || gotComment.UserID != owner.ID {
		t.Fatalf("comment changed: %+v", gotComment)
	}
}

func TestOwnerEditCannotReassign(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	other := testutil.CreateUser(t, db, "other")
	q := testutil.CreateQuestion(t, db, owner, "Original", time.Now().Add(-time.Hour))

	path := "/questions/" + id(q.ID) + "/edit/"
	bearer := testutil.BearerFor(t, owner)

	w := do(r, request{method: http.MethodGet, path: path, auth: bearer})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Original") {
		t.Fatalf("GET edit: %d", w.Code)
	}

	form := url.Values{"text": {"Edited"}, "pub_date": {pubDateValue(q)}, "user": {id(other.ID)}}
	w = do(r, request{method: http.MethodPost, path: path, auth: bearer, form: form})
	expectRedirect(t, w, "/questions/"+id(q.ID)+"/")

	var got models.Question
	db.First(&got, q.ID)
	if got.Text != "Edited" {
		t.Fatalf("text = %q", got.Text)
	}
	if got.UserID != owner.ID {
		t.Fatalf("owner edit reassigned question to %d", got.UserID)
	}
}

func TestPrivilegedEditReassigns(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	other := testutil.CreateUser(t, db, "other")
	editor := testutil.CreateUser(t, db, "editor", auth.ChangeQuestion)
	q := testutil.CreateQuestion(t, db, owner, "Original", time.Now().Add(-time.Hour))

	form := url.Values{"text": {"Moderated"}, "pub_date": {pubDateValue(q)}, "user": {id(other.ID)}}
	w := do(r, request{method: http.MethodPost, path: "/questions/" + id(q.ID) + "/edit/", auth: testutil.BearerFor(t, editor), form: form})
	expectRedirect(t, w, "/questions/"+id(q.ID)+"/")

	var got models.Question
	db.First(&got, q.ID)
	if got.Text != "Moderated" || got.UserID != other.ID {
		t.Fatalf("question = %+v", got)
	}
}

func TestInvalidEditIsNotSaved(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Original", time.Now().Add(-time.Hour))

	form := url.Values{"text": {""}, "pub_date": {pubDateValue(q)}}
	w := do(r, request{method: http.MethodPost, path: "/questions/" + id(q.ID) + "/edit/", auth: testutil.BearerFor(t, owner), form: form})
	if w.Code != http.StatusOK {
		t.Fatalf("expected form re-render, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), forms.MsgRequired) {
		t.Fatalf("missing field error in %s", w.Body.String())
	}

	var got models.Question
	db.First(&got, q.ID)
	if got.Text != "Original" {
		t.Fatalf("invalid edit was saved: %q", got.Text)
	}
}

func TestCreateQuestion(t *testing.T) {
	r, db := setup(t)
	author := testutil.CreateUser(t, db, "author", auth.AddQuestion)
	reader := testutil.CreateUser(t, db, "reader")

	w := do(r, request{method: http.MethodGet, path: "/questions/new/", auth: testutil.BearerFor(t, reader)})
	if w.Code != http.StatusForbidden {
		t.Fatalf("create without permission: expected 403, got %d", w.Code)
	}

	form := url.Values{"text": {"What is a goroutine?"}, "user": {id(reader.ID)}}
	w = do(r, request{method: http.MethodPost, path: "/questions/new/", auth: testutil.BearerFor(t, author), form: form})
	expectRedirect(t, w, "/questions/")

	var got models.Question
	if err := db.Where("text = ?", "What is a goroutine?").First(&got).Error; err != nil {
		t.Fatalf("question not stored: %v", err)
	}
	if got.UserID != author.ID {
		t.Fatalf("owner = %d, want requester %d", got.UserID, author.ID)
	}
	if got.PubDate.IsZero() || got.PubDate.After(time.Now()) {
		t.Fatalf("pub_date should default to now, got %v", got.PubDate)
	}

	w = do(r, request{method: http.MethodGet, path: "/questions/"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "What is a goroutine?") {
		t.Fatalf("question list should include the new question")
	}
}

func TestCreatedQuestionReachesDetail(t *testing.T) {
	r, db := setup(t)
	author := testutil.CreateUser(t, db, "author", auth.AddQuestion)

	form := url.Values{"text": {"Is nil a valid map?"}, "pub_date": {"2024-03-01T09:30"}}
	w := do(r, request{method: http.MethodPost, path: "/questions/new/", auth: testutil.BearerFor(t, author), form: form})
	expectRedirect(t, w, "/questions/")

	var got models.Question
	if err := db.Where("text = ?", "Is nil a valid map?").First(&got).Error; err != nil {
		t.Fatalf("question not stored: %v", err)
	}
	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	if !got.PubDate.Equal(want) {
		t.Fatalf("pub_date = %v, want %v", got.PubDate, want)
	}

	w = do(r, request{method: http.MethodGet, path: "/" + id(got.ID) + "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Is nil a valid map?") || !strings.Contains(body, "2024-03-01 09:30") {
		t.Fatalf("detail should show text and pub_date: %s", body)
	}
}

func TestCreateAnswerAndComment(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	author := testutil.CreateUser(t, db, "author", auth.AddAnswer, auth.AddComment)
	q := testutil.CreateQuestion(t, db, owner, "Q", time.Now().Add(-time.Hour))
	bearer := testutil.BearerFor(t, author)

	w := do(r, request{method: http.MethodGet, path: "/answers/new/?question=" + id(q.ID), auth: bearer})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `value="`+id(q.ID)+`"`) {
		t.Fatalf("answer form should preselect the question: %d", w.Code)
	}

	w = do(r, request{method: http.MethodPost, path: "/answers/new/", auth: bearer, form: url.Values{"text": {"Use channels"}, "question": {id(q.ID)}}})
	expectRedirect(t, w, "/answers/")

	var answer models.Answer
	if err := db.Where("text = ?", "Use channels").First(&answer).Error; err != nil {
		t.Fatalf("answer not stored: %v", err)
	}
	if answer.UserID != author.ID || answer.QuestionID != q.ID || answer.Votes != 0 {
		t.Fatalf("answer = %+v", answer)
	}

	w = do(r, request{method: http.MethodPost, path: "/comments/new/", auth: bearer, form: url.Values{"text": {"Agreed"}, "answer": {id(answer.ID)}}})
	expectRedirect(t, w, "/answers/")

	var comment models.Comment
	if err := db.Where("text = ?", "Agreed").First(&comment).Error; err != nil {
		t.Fatalf("comment not stored: %v", err)
	}
	if comment.AnswerID != answer.ID || comment.UserID != author.ID {
		t.Fatalf("comment = %+v", comment)
	}

	w = do(r, request{method: http.MethodPost, path: "/answers/new/", auth: bearer, form: url.Values{"text": {"orphan"}, "question": {"999"}}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Select a valid choice.") {
		t.Fatalf("unknown question should re-render with an error, got %d", w.Code)
	}
}

func TestAnswerEditKeepsVotesAndQuestion(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q1 := testutil.CreateQuestion(t, db, owner, "Q1", time.Now().Add(-time.Hour))
	q2 := testutil.CreateQuestion(t, db, owner, "Q2", time.Now().Add(-time.Hour))
	a := testutil.CreateAnswer(t, db, q1, owner, "draft", 7)

	form := url.Values{"text": {"final"}, "question": {id(q2.ID)}}
	w := do(r, request{method: http.MethodPost, path: "/answers/" + id(a.ID) + "/edit/", auth: testutil.BearerFor(t, owner), form: form})
	expectRedirect(t, w, "/answers/"+id(a.ID)+"/")

	var got models.Answer
	db.First(&got, a.ID)
	if got.Text != "final" || got.Votes != 7 || got.QuestionID != q1.ID {
		t.Fatalf("answer = %+v", got)
	}
}

func TestCommentEditByPrivilegedUser(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	moderator := testutil.CreateUser(t, db, "moderator", auth.ChangeComment)
	q := testutil.CreateQuestion(t, db, owner, "Q", time.Now().Add(-time.Hour))
	a1 := testutil.CreateAnswer(t, db, q, owner, "A1", 0)
	a2 := testutil.CreateAnswer(t, db, q, owner, "A2", 0)
	c := testutil.CreateComment(t, db, a1, owner, "misplaced")

	form := url.Values{"text": {"moved"}, "answer": {id(a2.ID)}, "user": {id(owner.ID)}}
	w := do(r, request{method: http.MethodPost, path: "/comments/" + id(c.ID) + "/edit/", auth: testutil.BearerFor(t, moderator), form: form})
	expectRedirect(t, w, "/comments/"+id(c.ID)+"/")

	var got models.Comment
	db.First(&got, c.ID)
	if got.Text != "moved" || got.AnswerID != a2.ID || got.UserID != owner.ID {
		t.Fatalf("comment = %+v", got)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	r, _ := setup(t)

	w := do(r, request{method: http.MethodPost, path: "/register/", form: url.Values{
		"username": {"alice"}, "email": {"alice@example.com"}, "password": {"s3cretpass"}, "confirm": {"s3cretpass"},
	}})
	expectRedirect(t, w, "/")

	w = do(r, request{method: http.MethodPost, path: "/register/", form: url.Values{
		"username": {"alice"}, "password": {"s3cretpass"}, "confirm": {"s3cretpass"},
	}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "already exists") {
		t.Fatalf("duplicate username should be rejected, got %d", w.Code)
	}

	w = do(r, request{method: http.MethodPost, path: "/login/", form: url.Values{"username": {"alice"}, "password": {"wrong-password"}}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Please enter a correct username and password.") {
		t.Fatalf("bad password should re-render login, got %d", w.Code)
	}

	w = do(r, request{method: http.MethodPost, path: "/login/", form: url.Values{"username": {"alice"}, "password": {"s3cretpass"}, "next": {"/questions/"}}})
	expectRedirect(t, w, "/questions/")
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.TokenCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatalf("login did not set the session cookie")
	}

	w = do(r, request{method: http.MethodGet, path: "/api/v1/me", cookie: session})
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	var resp struct {
		Data struct {
			Username    string   `json:"username"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if resp.Data.Username != "alice" || len(resp.Data.Permissions) != len(controllers.DefaultPermissions) {
		t.Fatalf("me = %+v", resp.Data)
	}

	w = do(r, request{method: http.MethodPost, path: "/logout/", cookie: session})
	expectRedirect(t, w, "/")

	w = do(r, request{method: http.MethodGet, path: "/api/v1/me", cookie: session})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token should be rejected, got %d", w.Code)
	}
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	r, db := setup(t)
	testutil.CreateUser(t, db, "bob")
	w := do(r, request{method: http.MethodPost, path: "/register/", form: url.Values{
		"username": {"carol"}, "password": {"s3cretpass"}, "confirm": {"s3cretpass"},
	}})
	expectRedirect(t, w, "/")

	w = do(r, request{method: http.MethodPost, path: "/login/", form: url.Values{"username": {"carol"}, "password": {"s3cretpass"}, "next": {"//evil.example.com/"}}})
	expectRedirect(t, w, "/")
}

func TestAdminGrantsPermissions(t *testing.T) {
	r, db := setup(t)
	admin := testutil.CreateUser(t, db, "admin")
	user := testutil.CreateUser(t, db, "member", auth.AddQuestion)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Original", time.Now().Add(-time.Hour))

	path := fmt.Sprintf("/api/v1/admin/users/%d/permissions", user.ID)
	body := `{"permissions":["questions.change_question"]}`

	w := do(r, request{method: http.MethodPut, path: path, json: body, auth: testutil.BearerFor(t, user)})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", w.Code)
	}

	w = do(r, request{method: http.MethodPut, path: path, json: `{"permissions":["questions.delete_question"]}`, auth: testutil.BearerFor(t, admin)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown codename: expected 400, got %d", w.Code)
	}

	w = do(r, request{method: http.MethodPut, path: path, json: body, auth: testutil.BearerFor(t, admin)})
	if w.Code != http.StatusOK {
		t.Fatalf("grant: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	form := url.Values{"text": {"Moderated"}, "pub_date": {pubDateValue(q)}, "user": {id(owner.ID)}}
	w = do(r, request{method: http.MethodPost, path: "/questions/" + id(q.ID) + "/edit/", auth: testutil.BearerFor(t, user), form: form})
	expectRedirect(t, w, "/questions/"+id(q.ID)+"/")

	w = do(r, request{method: http.MethodGet, path: "/questions/new/", auth: testutil.BearerFor(t, user)})
	if w.Code != http.StatusForbidden {
		t.Fatalf("replaced permission set should drop add_question, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	r, db := setup(t)
	owner := testutil.CreateUser(t, db, "owner")
	q := testutil.CreateQuestion(t, db, owner, "Q", time.Now().Add(-time.Hour))
	testutil.CreateAnswer(t, db, q, owner, "A", 2)

	do(r, request{method: http.MethodGet, path: "/"})

	w := do(r, request{method: http.MethodGet, path: "/api/v1/stats"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Data["question_count"] != 1 || resp.Data["answer_count"] != 1 || resp.Data["user_count"] != 1 {
		t.Fatalf("stats = %v", resp.Data)
	}
	if resp.Data["today_views"] < 1 {
		t.Fatalf("page view for / was not recorded: %v", resp.Data)
	}

	w = do(r, request{method: http.MethodGet, path: "/api/v1/questions/" + id(q.ID) + "/stats"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"vote_count":2`) {
		t.Fatalf("question stats: %d %s", w.Code, w.Body.String())
	}
}
