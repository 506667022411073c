package forms

import (
	"net/url"
	"strconv"

	"gorm.io/gorm"

	"github.com/cppla/qaforum/models"
)

// AnswerFields is the mutability table for answers. Votes are never form-editable.
var AnswerFields = Table{
	rule(FieldText, "Text", RoleCreate, RoleOwnerEdit, RolePrivilegedEdit),
	rule(FieldQuestion, "Question", RoleCreate, RolePrivilegedEdit),
	rule(FieldUser, "User", RolePrivilegedEdit),
}

// AnswerForm validates answer submissions.
type AnswerForm struct {
	Form
	Text     string `form:"text" validate:"required,max=5000"`
	Question string `form:"question" validate:"required,number"`
	User     string `form:"user" validate:"required,number"`

	questionID uint
	userID     uint
}

// NewAnswerForm returns a form for role, pre-populated from initial when editing.
func NewAnswerForm(role Role, initial *models.Answer) *AnswerForm {
	f := &AnswerForm{Form: newForm(AnswerFields, role)}
	if initial != nil {
		f.Text = initial.Text
		f.Question = strconv.FormatUint(uint64(initial.QuestionID), 10)
		f.User = strconv.FormatUint(uint64(initial.UserID), 10)
	}
	return f
}

// Bind overwrites the open fields with submitted values.
func (f *AnswerForm) Bind(values url.Values) *AnswerForm {
	f.bind(values, map[Field]*string{
		FieldText:     &f.Text,
		FieldQuestion: &f.Question,
		FieldUser:     &f.User,
	})
	return f
}

// Validate checks field rules and that referenced rows exist. A non-nil error is a store failure.
func (f *AnswerForm) Validate(db *gorm.DB) (bool, error) {
	f.Errors = map[Field]string{}
	f.checkStruct(f)

	if f.Editable(string(FieldQuestion)) && f.Error(string(FieldQuestion)) == "" {
		id, ok, err := lookupID(db, &models.Question{}, f.Question)
		if err != nil {
			return false, err
		}
		if !ok {
			f.addError(FieldQuestion, MsgInvalidChoice)
		}
		f.questionID = id
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

// Apply writes the open, validated fields into a.
func (f *AnswerForm) Apply(a *models.Answer) {
	if f.Editable(string(FieldText)) {
		a.Text = f.Text
	}
	if f.Editable(string(FieldQuestion)) {
		a.QuestionID = f.questionID
	}
	if f.Editable(string(FieldUser)) {
		a.UserID = f.userID
	}
}
