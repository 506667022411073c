package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/forms"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/models"
)

const (
	// IndexSize caps the front page listing.
	IndexSize = 5
	// NoAnswerMessage is shown when a vote names no answer of the question.
	NoAnswerMessage = "You didn't post an answer."
)

// QuestionController serves question listing, detail, voting and question editing.
type QuestionController struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQuestionController creates a new QuestionController instance.
func NewQuestionController(db *gorm.DB) *QuestionController {
	return &QuestionController{db: db, now: time.Now}
}

// Index shows the latest published questions, newest first.
func (q *QuestionController) Index(ctx *gin.Context) {
	var questions []models.Question
	err := q.db.Where("pub_date <= ?", q.now()).
		Order("pub_date DESC").
		Limit(IndexSize).
		Find(&questions).Error
	if err != nil {
		serverError(ctx, "failed to list latest questions", err)
		return
	}
	render(ctx, http.StatusOK, "index.html", "Latest questions", gin.H{
		"Questions": questions,
		"CanAsk":    middleware.CurrentIdentity(ctx).CanAdd(auth.KindQuestion),
	})
}

// List pages through every published question.
func (q *QuestionController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"), config.Get().ListPageSize)

	query := q.db.Model(&models.Question{}).Where("pub_date <= ?", q.now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		serverError(ctx, "failed to count questions", err)
		return
	}

	var questions []models.Question
	err := query.Preload("User").
		Order("pub_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&questions).Error
	if err != nil {
		serverError(ctx, "failed to list questions", err)
		return
	}
	render(ctx, http.StatusOK, "question_list.html", "Questions", gin.H{
		"Questions":  questions,
		"Pagination": newPagination(page, pageSize, total),
	})
}

// Detail shows a question with a vote form over its answers.
func (q *QuestionController) Detail(ctx *gin.Context) {
	question, ok := q.loadQuestion(ctx, "question_id", false)
	if !ok {
		return
	}
	q.renderDetail(ctx, http.StatusOK, question, "")
}

// Show is the canonical question page used after edits.
func (q *QuestionController) Show(ctx *gin.Context) {
	question, ok := q.loadQuestion(ctx, "id", false)
	if !ok {
		return
	}
	q.renderDetail(ctx, http.StatusOK, question, "")
}

// Answers shows a question's answers with vote counts and comments.
func (q *QuestionController) Answers(ctx *gin.Context) {
	question, ok := q.loadQuestion(ctx, "question_id", true)
	if !ok {
		return
	}
	render(ctx, http.StatusOK, "answers.html", question.Text, gin.H{"Question": question})
}

// Vote adds one vote to the selected answer and redirects to the results,
// so refreshing the result page does not vote again.
func (q *QuestionController) Vote(ctx *gin.Context) {
	question, ok := q.loadQuestion(ctx, "question_id", false)
	if !ok {
		return
	}

	selected, found := findAnswer(question.Answers, ctx.PostForm("answer"))
	if !found {
		q.renderDetail(ctx, http.StatusOK, question, NoAnswerMessage)
		return
	}

	// single UPDATE, scoped to the question
	res := q.db.Model(&models.Answer{}).
		Where("id = ? AND question_id = ?", selected.ID, question.ID).
		UpdateColumn("votes", gorm.Expr("votes + ?", 1))
	if res.Error != nil {
		serverError(ctx, "failed to record vote", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		q.renderDetail(ctx, http.StatusOK, question, NoAnswerMessage)
		return
	}

	ctx.Redirect(http.StatusFound, fmt.Sprintf("/%d/answers/", question.ID))
}

// Create presents and accepts the new-question form.
func (q *QuestionController) Create(ctx *gin.Context) {
	identity := middleware.CurrentIdentity(ctx)
	if !identity.CanAdd(auth.KindQuestion) {
		forbidden(ctx)
		return
	}

	form := forms.NewQuestionForm(forms.RoleCreate, nil)
	if ctx.Request.Method != http.MethodPost {
		q.renderForm(ctx, http.StatusOK, form, "New question", "/questions/new/")
		return
	}

	values, err := postValues(ctx)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	valid, err := form.Bind(values).Validate(q.db)
	if err != nil {
		serverError(ctx, "failed to validate question", err)
		return
	}
	if !valid {
		q.renderForm(ctx, http.StatusOK, form, "New question", "/questions/new/")
		return
	}

	question := models.Question{UserID: identity.UserID}
	form.Apply(&question, q.now())
	if err := q.db.Omit(clause.Associations).Create(&question).Error; err != nil {
		serverError(ctx, "failed to create question", err)
		return
	}
	ctx.Redirect(http.StatusFound, "/questions/")
}

// Edit presents and accepts the edit form. Owners may change content only;
// holders of the change permission may also reassign the owner.
func (q *QuestionController) Edit(ctx *gin.Context) {
	question, ok := q.loadQuestion(ctx, "id", false)
	if !ok {
		return
	}

	role, allowed := middleware.CurrentIdentity(ctx).EditRole(auth.KindQuestion, question.UserID)
	if !allowed {
		forbidden(ctx)
		return
	}

	action := fmt.Sprintf("/questions/%d/edit/", question.ID)
	form := forms.NewQuestionForm(role, &question)
	if ctx.Request.Method != http.MethodPost {
		q.renderForm(ctx, http.StatusOK, form, "Edit question", action)
		return
	}

	values, err := postValues(ctx)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	valid, err := form.Bind(values).Validate(q.db)
	if err != nil {
		serverError(ctx, "failed to validate question", err)
		return
	}
	if !valid {
		q.renderForm(ctx, http.StatusOK, form, "Edit question", action)
		return
	}

	form.Apply(&question, q.now())
	if err := q.db.Omit(clause.Associations).Save(&question).Error; err != nil {
		serverError(ctx, "failed to update question", err)
		return
	}
	ctx.Redirect(http.StatusFound, fmt.Sprintf("/questions/%d/", question.ID))
}

// loadQuestion resolves the question named by route param, answering 404 or 500 itself on failure.
// Answers are always loaded; withComments also loads each answer's comments and authors.
func (q *QuestionController) loadQuestion(ctx *gin.Context, param string, withComments bool) (models.Question, bool) {
	var question models.Question
	id, ok := pathID(ctx, param)
	if !ok {
		notFound(ctx, "question")
		return question, false
	}

	query := q.db.Preload("User").Preload("Answers", func(db *gorm.DB) *gorm.DB {
		return db.Order("answers.id ASC")
	})
	if withComments {
		query = query.Preload("Answers.User").Preload("Answers.Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.id ASC")
		}).Preload("Answers.Comments.User")
	}
	if err := query.First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(ctx, "question")
			return question, false
		}
		serverError(ctx, "failed to load question", err)
		return question, false
	}
	return question, true
}

func (q *QuestionController) renderDetail(ctx *gin.Context, status int, question models.Question, errMsg string) {
	_, canEdit := middleware.CurrentIdentity(ctx).EditRole(auth.KindQuestion, question.UserID)
	render(ctx, status, "detail.html", question.Text, gin.H{
		"Question":     question,
		"ErrorMessage": errMsg,
		"CanEdit":      canEdit,
		"Scheduled":    !question.IsPublished(q.now()),
	})
}

func (q *QuestionController) renderForm(ctx *gin.Context, status int, form *forms.QuestionForm, title, action string) {
	render(ctx, status, "question_form.html", title, gin.H{"Form": form, "Action": action})
}

// findAnswer resolves the submitted answer id among a question's answers.
func findAnswer(answers []models.Answer, raw string) (models.Answer, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return models.Answer{}, false
	}
	for _, a := range answers {
		if uint64(a.ID) == id {
			return a, true
		}
	}
	return models.Answer{}, false
}
