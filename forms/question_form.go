package forms

import (
	"net/url"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/qaforum/models"
)

// QuestionFields is the mutability table for questions.
var QuestionFields = Table{
	rule(FieldText, "Text", RoleCreate, RoleOwnerEdit, RolePrivilegedEdit),
	rule(FieldPubDate, "PubDate", RoleCreate, RoleOwnerEdit, RolePrivilegedEdit),
	rule(FieldUser, "User", RolePrivilegedEdit),
}

// QuestionForm validates question submissions.
type QuestionForm struct {
	Form
	Text    string `form:"text" validate:"required,max=200"`
	PubDate string `form:"pub_date" validate:"omitempty,datetime=2006-01-02T15:04"`
	User    string `form:"user" validate:"required,number"`

	initialPubDate string
	pubDate        time.Time
	userID         uint
}

// NewQuestionForm returns a form for role, pre-populated from initial when editing.
func NewQuestionForm(role Role, initial *models.Question) *QuestionForm {
	f := &QuestionForm{Form: newForm(QuestionFields, role)}
	if initial != nil {
		f.Text = initial.Text
		f.PubDate = initial.PubDate.In(time.Local).Format(PubDateLayout)
		f.User = strconv.FormatUint(uint64(initial.UserID), 10)
		f.initialPubDate = f.PubDate
	}
	return f
}

// Bind overwrites the open fields with submitted values. Locked fields keep their initial values.
func (f *QuestionForm) Bind(values url.Values) *QuestionForm {
	f.bind(values, map[Field]*string{
		FieldText:    &f.Text,
		FieldPubDate: &f.PubDate,
		FieldUser:    &f.User,
	})
	return f
}

// Validate checks field rules and references. A non-nil error is a store failure.
func (f *QuestionForm) Validate(db *gorm.DB) (bool, error) {
	f.Errors = map[Field]string{}
	f.checkStruct(f)

	if f.Editable(string(FieldPubDate)) && f.PubDate != "" && f.Error(string(FieldPubDate)) == "" {
		t, err := time.ParseInLocation(PubDateLayout, f.PubDate, time.Local)
		if err != nil {
			f.addError(FieldPubDate, MsgInvalidDate)
		} else {
			f.pubDate = t
		}
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

// Apply writes the open, validated fields into q. A blank pub_date on create means now.
func (f *QuestionForm) Apply(q *models.Question, now time.Time) {
	if f.Editable(string(FieldText)) {
		q.Text = f.Text
	}
	if f.Editable(string(FieldPubDate)) {
		switch {
		case f.PubDate == "" && q.PubDate.IsZero():
			q.PubDate = now
		case f.PubDate != "" && f.PubDate != f.initialPubDate:
			q.PubDate = f.pubDate
		}
	}
	if f.Editable(string(FieldUser)) {
		q.UserID = f.userID
	}
}

// lookupID parses raw as a primary key and reports whether a row of model exists with it.
func lookupID(db *gorm.DB, model interface{}, raw string) (uint, bool, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, false, nil
	}
	var count int64
	if err := db.Model(model).Where("id = ?", n).Count(&count).Error; err != nil {
		return 0, false, err
	}
	return uint(n), count > 0, nil
}
