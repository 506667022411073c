package forms

import (
	"net/url"
	"strconv"

	"gorm.io/gorm"

	"github.com/cppla/qaforum/models"
)

// CommentFields is the mutability table for comments.
var CommentFields = Table{
	rule(FieldText, "Text", RoleCreate, RoleOwnerEdit, RolePrivilegedEdit),
	rule(FieldAnswer, "Answer", RoleCreate, RolePrivilegedEdit),
	rule(FieldUser, "User", RolePrivilegedEdit),
}

// CommentForm validates comment submissions.
type CommentForm struct {
	Form
	Text   string `form:"text" validate:"required,max=1000"`
	Answer string `form:"answer" validate:"required,number"`
	User   string `form:"user" validate:"required,number"`

	answerID uint
	userID   uint
}

// NewCommentForm returns a form for role, pre-populated from initial when editing.
func NewCommentForm(role Role, initial *models.Comment) *CommentForm {
	f := &CommentForm{Form: newForm(CommentFields, role)}
	if initial != nil {
		f.Text = initial.Text
		f.Answer = strconv.FormatUint(uint64(initial.AnswerID), 10)
		f.User = strconv.FormatUint(uint64(initial.UserID), 10)
	}
	return f
}

// Bind overwrites the open fields with submitted values.
func (f *CommentForm) Bind(values url.Values) *CommentForm {
	f.bind(values, map[Field]*string{
		FieldText:   &f.Text,
		FieldAnswer: &f.Answer,
		FieldUser:   &f.User,
	})
	return f
}

// Validate checks field rules and that referenced rows exist. A non-nil error is a store failure.
func (f *CommentForm) Validate(db *gorm.DB) (bool, error) {
	f.Errors = map[Field]string{}
	f.checkStruct(f)

	if f.Editable(string(FieldAnswer)) && f.Error(string(FieldAnswer)) == "" {
		id, ok, err := lookupID(db, &models.Answer{}, f.Answer)
		if err != nil {
			return false, err
		}
		if !ok {
			f.addError(FieldAnswer, MsgInvalidChoice)
		}
		f.answerID = id
	}
	if f.Editable(string(FieldUser)) && f.Error(string(FieldUser)) == "" {
		id, ok, err := lookupID(db, &models.User{}, f.User)
		if err != nil {
			return false, err
		}
		if !ok {
			f.addError(FieldUser, MsgInvalidChoice)
		}
		f.userID = id
	}
	return f.Valid(), nil
}

// Apply writes the open, validated fields into c.
func (f *CommentForm) Apply(c *models.Comment) {
	if f.Editable(string(FieldText)) {
		c.Text = f.Text
	}
	if f.Editable(string(FieldAnswer)) {
		c.AnswerID = f.answerID
	}
	if f.Editable(string(FieldUser)) {
		c.UserID = f.userID
	}
}
