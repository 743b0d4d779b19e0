package quiz

import (
	"fmt"

	"github.com/p-n-ai/pai-instructor/internal/lms"
)

// OwnerKind names what a quiz is attached to.
type OwnerKind string

const (
	OwnerBigLesson OwnerKind = "big-lesson"
	OwnerSubLesson OwnerKind = "sub-lesson"
	OwnerPreTest   OwnerKind = "pre-test"
	OwnerPostTest  OwnerKind = "post-test"
)

// Owner is the entity a quiz belongs to. For pre- and post-tests ID is the
// subject id.
type Owner struct {
	Kind OwnerKind
	ID   int64
}

func BigLessonOwner(id int64) Owner { return Owner{Kind: OwnerBigLesson, ID: id} }
func SubLessonOwner(id int64) Owner { return Owner{Kind: OwnerSubLesson, ID: id} }
func PreTestOwner(subjectID int64) Owner {
	return Owner{Kind: OwnerPreTest, ID: subjectID}
}
func PostTestOwner(subjectID int64) Owner {
	return Owner{Kind: OwnerPostTest, ID: subjectID}
}

// ParseOwner builds an Owner from its kind name, as used in URLs.
func ParseOwner(kind string, id int64) (Owner, error) {
	o := Owner{Kind: OwnerKind(kind), ID: id}
	if !o.Valid() {
		return Owner{}, fmt.Errorf("invalid quiz owner %s/%d", kind, id)
	}
	return o, nil
}

// Valid reports whether the kind is known and the id is set.
func (o Owner) Valid() bool {
	switch o.Kind {
	case OwnerBigLesson, OwnerSubLesson, OwnerPreTest, OwnerPostTest:
		return o.ID > 0
	}
	return false
}

// APIType is the quiz_type the backend expects when creating the quiz.
func (o Owner) APIType() lms.QuizOwnerType {
	switch o.Kind {
	case OwnerBigLesson:
		return lms.QuizOwnerBigLesson
	case OwnerSubLesson:
		return lms.QuizOwnerLesson
	default:
		return lms.QuizOwnerSubject
	}
}

// DefaultTitle returns the title and description of a newly created quiz.
// name is the owning entity's display name and may be empty.
func (o Owner) DefaultTitle(name string) (string, string) {
	if name == "" {
		name = fmt.Sprintf("#%d", o.ID)
	}
	switch o.Kind {
	case OwnerBigLesson:
		return "Quiz: " + name, "Quiz for big lesson " + name
	case OwnerSubLesson:
		return "Quiz: " + name, "Quiz for lesson " + name
	case OwnerPreTest:
		return "Pre-test: " + name, "Pre-test for subject " + name
	case OwnerPostTest:
		return "Post-test: " + name, "Post-test for subject " + name
	}
	return "Quiz", ""
}

func (o Owner) String() string {
	return fmt.Sprintf("%s/%d", o.Kind, o.ID)
}
