package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/forms"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/models"
)

// CommentController manages comments on answers.
type CommentController struct {
	db *gorm.DB
}

// NewCommentController creates a new CommentController instance.
func NewCommentController(db *gorm.DB) *CommentController {
	return &CommentController{db: db}
}

// Show displays a single comment.
func (c *CommentController) Show(ctx *gin.Context) {
	comment, ok := c.loadComment(ctx, true)
	if !ok {
		return
	}
	_, canEdit := middleware.CurrentIdentity(ctx).EditRole(auth.KindComment, comment.UserID)
	render(ctx, http.StatusOK, "comment_show.html", "Comment", gin.H{
		"Comment": comment,
		"CanEdit": canEdit,
	})
}

// Create presents and accepts the new-comment form. GET accepts ?answer=<id> to preselect the answer.
func (c *CommentController) Create(ctx *gin.Context) {
	identity := middleware.CurrentIdentity(ctx)
	if !identity.CanAdd(auth.KindComment) {
		forbidden(ctx)
		return
	}

	form := forms.NewCommentForm(forms.RoleCreate, nil)
	if ctx.Request.Method != http.MethodPost {
		form.Bind(ctx.Request.URL.Query())
		c.renderForm(ctx, form, "New comment", "/comments/new/")
		return
	}

	values, err := postValues(ctx)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	valid, err := form.Bind(values).Validate(c.db)
	if err != nil {
		serverError(ctx, "failed to validate comment", err)
		return
	}
	if !valid {
		c.renderForm(ctx, form, "New comment", "/comments/new/")
		return
	}

	comment := models.Comment{UserID: identity.UserID}
	form.Apply(&comment)
	if err := c.db.Omit(clause.Associations).Create(&comment).Error; err != nil {
		serverError(ctx, "failed to create comment", err)
		return
	}
	ctx.Redirect(http.StatusFound, "/answers/")
}

// Edit presents and accepts the comment edit form.
func (c *CommentController) Edit(ctx *gin.Context) {
	comment, ok := c.loadComment(ctx, false)
	if !ok {
		return
	}

	role, allowed := middleware.CurrentIdentity(ctx).EditRole(auth.KindComment, comment.UserID)
	if !allowed {
		forbidden(ctx)
		return
	}

	action := fmt.Sprintf("/comments/%d/edit/", comment.ID)
	form := forms.NewCommentForm(role, &comment)
	if ctx.Request.Method != http.MethodPost {
		c.renderForm(ctx, form, "Edit comment", action)
		return
	}

	values, err := postValues(ctx)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	valid, err := form.Bind(values).Validate(c.db)
	if err != nil {
		serverError(ctx, "failed to validate comment", err)
		return
	}
	if !valid {
		c.renderForm(ctx, form, "Edit comment", action)
		return
	}

	form.Apply(&comment)
	if err := c.db.Omit(clause.Associations).Save(&comment).Error; err != nil {
		serverError(ctx, "failed to update comment", err)
		return
	}
	ctx.Redirect(http.StatusFound, fmt.Sprintf("/comments/%d/", comment.ID))
}

func (c *CommentController) loadComment(ctx *gin.Context, withUser bool) (models.Comment, bool) {
	var comment models.Comment
	id, ok := pathID(ctx, "id")
	if !ok {
		notFound(ctx, "comment")
		return comment, false
	}
	query := c.db
	if withUser {
		query = query.Preload("User")
	}
	if err := query.First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(ctx, "comment")
			return comment, false
		}
		serverError(ctx, "failed to load comment", err)
		return comment, false
	}
	return comment, true
}

func (c *CommentController) renderForm(ctx *gin.Context, form *forms.CommentForm, title, action string) {
	render(ctx, http.StatusOK, "comment_form.html", title, gin.H{"Form": form, "Action": action})
}
