package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/forms"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/models"
)

// AnswerController manages answer listing, display and editing.
type AnswerController struct {
	db *gorm.DB
}

// NewAnswerController creates a new AnswerController instance.
func NewAnswerController(db *gorm.DB) *AnswerController {
	return &AnswerController{db: db}
}

// List pages through answers, most recent first.
func (a *AnswerController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"), config.Get().ListPageSize)

	var total int64
	if err := a.db.Model(&models.Answer{}).Count(&total).Error; err != nil {
		serverError(ctx, "failed to count answers", err)
		return
	}

	var answers []models.Answer
	err := a.db.Preload("Question").
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&answers).Error
	if err != nil {
		serverError(ctx, "failed to list answers", err)
		return
	}
	render(ctx, http.StatusOK, "answer_list.html", "Answers", gin.H{
		"Answers":    answers,
		"Pagination": newPagination(page, pageSize, total),
		"CanAnswer":  middleware.CurrentIdentity(ctx).CanAdd(auth.KindAnswer),
	})
}

// Show displays one answer with its comments.
func (a *AnswerController) Show(ctx *gin.Context) {
	answer, ok := a.loadAnswer(ctx, true)
	if !ok {
		return
	}
	identity := middleware.CurrentIdentity(ctx)
	_, canEdit := identity.EditRole(auth.KindAnswer, answer.UserID)
	render(ctx, http.StatusOK, "answer_show.html", "Answer", gin.H{
		"Answer":     answer,
		"CanEdit":    canEdit,
		"CanComment": identity.CanAdd(auth.KindComment),
	})
}

// Create presents and accepts the new-answer form. GET accepts ?question=<id> to preselect the question.
func (a *AnswerController) Create(ctx *gin.Context) {
	identity := middleware.CurrentIdentity(ctx)
	if !identity.CanAdd(auth.KindAnswer) {
		forbidden(ctx)
		return
	}

	form := forms.NewAnswerForm(forms.RoleCreate, nil)
	if ctx.Request.Method != http.MethodPost {
		form.Bind(ctx.Request.URL.Query())
		a.renderForm(ctx, form, "New answer", "/answers/new/")
		return
	}

	values, err := postValues(ctx)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	valid, err := form.Bind(values).Validate(a.db)
	if err != nil {
		serverError(ctx, "failed to validate answer", err)
		return
	}
	if !valid {
		a.renderForm(ctx, form, "New answer", "/answers/new/")
		return
	}

	answer := models.Answer{UserID: identity.UserID}
	form.Apply(&answer)
	if err := a.db.Omit(clause.Associations).Create(&answer).Error; err != nil {
		serverError(ctx, "failed to create answer", err)
		return
	}
	ctx.Redirect(http.StatusFound, "/answers/")
}

// Edit presents and accepts the answer edit form.
func (a *AnswerController) Edit(ctx *gin.Context) {
	answer, ok := a.loadAnswer(ctx, false)
	if !ok {
		return
	}

	role, allowed := middleware.CurrentIdentity(ctx).EditRole(auth.KindAnswer, answer.UserID)
	if !allowed {
		forbidden(ctx)
		return
	}

	action := fmt.Sprintf("/answers/%d/edit/", answer.ID)
	form := forms.NewAnswerForm(role, &answer)
	if ctx.Request.Method != http.MethodPost {
		a.renderForm(ctx, form, "Edit answer", action)
		return
	}

	values, err := postValues(ctx)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	valid, err := form.Bind(values).Validate(a.db)
	if err != nil {
		serverError(ctx, "failed to validate answer", err)
		return
	}
	if !valid {
		a.renderForm(ctx, form, "Edit answer", action)
		return
	}

	form.Apply(&answer)
	// votes are written only by Vote
	if err := a.db.Model(&answer).Omit(clause.Associations).Select("text", "question_id", "user_id", "updated_at").Updates(&answer).Error; err != nil {
		serverError(ctx, "failed to update answer", err)
		return
	}
	ctx.Redirect(http.StatusFound, fmt.Sprintf("/answers/%d/", answer.ID))
}

func (a *AnswerController) loadAnswer(ctx *gin.Context, full bool) (models.Answer, bool) {
	var answer models.Answer
	id, ok := pathID(ctx, "id")
	if !ok {
		notFound(ctx, "answer")
		return answer, false
	}

	query := a.db
	if full {
		query = query.Preload("Question").Preload("User").Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.id ASC")
		}).Preload("Comments.User")
	}
	if err := query.First(&answer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(ctx, "answer")
			return answer, false
		}
		serverError(ctx, "failed to load answer", err)
		return answer, false
	}
	return answer, true
}

func (a *AnswerController) renderForm(ctx *gin.Context, form *forms.AnswerForm, title, action string) {
	render(ctx, http.StatusOK, "answer_form.html", title, gin.H{"Form": form, "Action": action})
}
