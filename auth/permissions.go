package auth

// Kind names an editable content type. Each kind has its own add/change permission.
type Kind string

const (
	KindQuestion Kind = "question"
	KindAnswer   Kind = "answer"
	KindComment  Kind = "comment"
)

// Permission codenames.
const (
	AddQuestion    = "questions.add_question"
	ChangeQuestion = "questions.change_question"
	AddAnswer      = "answers.add_answer"
	ChangeAnswer   = "answers.change_answer"
	AddComment     = "comments.add_comment"
	ChangeComment  = "comments.change_comment"
)

// Permission describes a grantable codename.
type Permission struct {
	Codename string
	Name     string
}

// AllPermissions is the full set seeded into the permissions table.
var AllPermissions = []Permission{
	{Codename: AddQuestion, Name: "Can add question"},
	{Codename: ChangeQuestion, Name: "Can change question"},
	{Codename: AddAnswer, Name: "Can add answer"},
	{Codename: ChangeAnswer, Name: "Can change answer"},
	{Codename: AddComment, Name: "Can add comment"},
	{Codename: ChangeComment, Name: "Can change comment"},
}

// AddPermission returns the codename required to create content of kind k.
func AddPermission(k Kind) string {
	switch k {
	case KindQuestion:
		return AddQuestion
	case KindAnswer:
		return AddAnswer
	case KindComment:
		return AddComment
	}
	return ""
}

// ChangePermission returns the codename that lets a non-owner edit content of kind k.
func ChangePermission(k Kind) string {
	switch k {
	case KindQuestion:
		return ChangeQuestion
	case KindAnswer:
		return ChangeAnswer
	case KindComment:
		return ChangeComment
	}
	return ""
}

// IsKnownPermission reports whether codename is one of AllPermissions.
func IsKnownPermission(codename string) bool {
	for _, p := range AllPermissions {
		if p.Codename == codename {
			return true
		}
	}
	return false
}
