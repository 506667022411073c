// Package forms binds submitted form values to content edits.
//
// Every form runs under a Role. The role picks, per field, whether a submitted
// value is accepted or the field stays locked at its current value. The rules
// live in one table per content kind so they can be read (and tested) at a glance.
package forms

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Role is the editing situation a form is bound under.
type Role int

const (
	// RoleCreate is a new submission. The owner is always the requester.
	RoleCreate Role = iota + 1
	// RoleOwnerEdit is the owner editing their own content. Ownership and parent are locked.
	RoleOwnerEdit
	// RolePrivilegedEdit is a non-owner holding the change permission. Every field is open.
	RolePrivilegedEdit
)

func (r Role) String() string {
	switch r {
	case RoleCreate:
		return "create"
	case RoleOwnerEdit:
		return "owner"
	case RolePrivilegedEdit:
		return "privileged"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Field is the submitted name of a form field.
type Field string

const (
	FieldText     Field = "text"
	FieldPubDate  Field = "pub_date"
	FieldUser     Field = "user"
	FieldQuestion Field = "question"
	FieldAnswer   Field = "answer"
)

// PubDateLayout is the wire format of pub_date (HTML datetime-local).
const PubDateLayout = "2006-01-02T15:04"

// Error messages shown next to fields.
const (
	MsgRequired      = "This field is required."
	MsgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	MsgInvalidDate   = "Enter a valid date/time."
)

// Rule states which roles may change one field. goName is the struct field carrying it.
type Rule struct {
	Field  Field
	goName string
	roles  map[Role]bool
}

// Table is the per-field mutability table of one content kind, in display order.
type Table []Rule

func rule(f Field, goName string, roles ...Role) Rule {
	m := make(map[Role]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return Rule{Field: f, goName: goName, roles: m}
}

// Editable reports whether f accepts submitted values under r.
func (t Table) Editable(f Field, r Role) bool {
	for _, rl := range t {
		if rl.Field == f {
			return rl.roles[r]
		}
	}
	return false
}

// EditableFields lists the fields open under r.
func (t Table) EditableFields(r Role) []Field {
	var out []Field
	for _, rl := range t {
		if rl.roles[r] {
			out = append(out, rl.Field)
		}
	}
	return out
}

func (t Table) structFields(r Role) []string {
	var out []string
	for _, rl := range t {
		if rl.roles[r] {
			out = append(out, rl.goName)
		}
	}
	return out
}

// Form carries the state shared by every entity form.
type Form struct {
	Role   Role
	Errors map[Field]string
	table  Table
}

func newForm(table Table, role Role) Form {
	return Form{Role: role, Errors: map[Field]string{}, table: table}
}

// Editable is the template-facing check for whether a field input is enabled.
func (f *Form) Editable(name string) bool {
	return f.table.Editable(Field(name), f.Role)
}

// Error returns the message attached to a field, if any.
func (f *Form) Error(name string) string {
	return f.Errors[Field(name)]
}

// Valid reports whether the last validation produced no errors.
func (f *Form) Valid() bool {
	return len(f.Errors) == 0
}

func (f *Form) addError(field Field, msg string) {
	if _, exists := f.Errors[field]; !exists {
		f.Errors[field] = msg
	}
}

// bind copies submitted values into dst for the fields open under the form role.
func (f *Form) bind(values url.Values, dst map[Field]*string) {
	for field, ptr := range dst {
		if !f.Editable(string(field)) {
			continue
		}
		*ptr = strings.TrimSpace(values.Get(string(field)))
	}
}

// checkStruct runs tag validation over the open fields of s only.
func (f *Form) checkStruct(s interface{}) {
	fields := f.table.structFields(f.Role)
	if len(fields) == 0 {
		return
	}
	err := validate.StructPartial(s, fields...)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		f.addError(FieldText, err.Error())
		return
	}
	for _, fe := range verrs {
		f.addError(Field(fe.Field()), messageFor(fe))
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name := strings.SplitN(sf.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), len([]rune(fmt.Sprint(fe.Value()))))
	case "datetime":
		return MsgInvalidDate
	case "number":
		return MsgInvalidChoice
	default:
		return "Enter a valid value."
	}
}
