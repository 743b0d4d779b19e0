package tree

import (
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// View is the render model of a whole tree.
type View struct {
	SubjectID  int64           `json:"subject_id"`
	BigLessons []BigLessonView `json:"big_lessons"`
}

// BigLessonView is the render model of one big lesson panel.
type BigLessonView struct {
	ID          int64                    `json:"id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description,omitempty"`
	Order       int                      `json:"order"`
	Expanded    bool                     `json:"expanded"`
	Sections    map[collapse.Aspect]bool `json:"sections"`
	Mode        Mode                     `json:"mode"`
	Quiz        QuizView                 `json:"quiz"`
	Attachments AttachmentsView          `json:"attachments"`
	Lessons     []SubLessonView          `json:"lessons"`
}

// SubLessonView is the render model of one sub-lesson panel.
type SubLessonView struct {
	ID       int64                    `json:"id"`
	Title    string                   `json:"title"`
	Order    int                      `json:"order"`
	VideoURL string                   `json:"video_url,omitempty"`
	Status   lms.Status               `json:"status,omitempty"`
	Expanded bool                     `json:"expanded"`
	Sections map[collapse.Aspect]bool `json:"sections"`
	Mode     Mode                     `json:"mode"`
	Quiz     QuizView                 `json:"quiz"`
}

// QuizView summarizes a quiz section.
type QuizView struct {
	ID        *int64         `json:"id,omitempty"`
	Questions []lms.Question `json:"questions,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AttachmentsView summarizes an attachment list.
type AttachmentsView struct {
	Expanded bool             `json:"expanded"`
	Loaded   bool             `json:"loaded"`
	Files    []lms.Attachment `json:"files,omitempty"`
}

// View renders the current state of every panel.
func (t *Tree) View() View {
	panels := t.Panels()
	v := View{
		SubjectID:  t.cfg.SubjectID,
		BigLessons: make([]BigLessonView, 0, len(panels)),
	}
	for _, p := range panels {
		v.BigLessons = append(v.BigLessons, p.View())
	}
	return v
}

// View renders the panel.
func (p *BigLessonPanel) View() BigLessonView {
	l := p.Lesson()
	subs := p.SubLessons()
	v := BigLessonView{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Order:       p.Order(),
		Expanded:    p.Expanded(),
		Sections: map[collapse.Aspect]bool{
			collapse.Lessons:     p.SectionOpen(collapse.Lessons),
			collapse.Attachments: p.SectionOpen(collapse.Attachments),
			collapse.Quiz:        p.SectionOpen(collapse.Quiz),
		},
		Mode: p.Mode(),
		Quiz: QuizViewOf(p.quiz),
		Attachments: AttachmentsView{
			Expanded: p.attachments.Expanded(),
			Loaded:   p.attachments.Loaded(),
			Files:    p.attachments.Files(),
		},
		Lessons: make([]SubLessonView, 0, len(subs)),
	}
	for _, sp := range subs {
		v.Lessons = append(v.Lessons, sp.View())
	}
	return v
}

// View renders the panel.
func (p *SubLessonPanel) View() SubLessonView {
	l := p.Lesson()
	return SubLessonView{
		ID:       l.ID,
		Title:    l.Title,
		Order:    p.Order(),
		VideoURL: l.VideoURL,
		Status:   l.Status,
		Expanded: p.Expanded(),
		Sections: map[collapse.Aspect]bool{
			collapse.Video: p.SectionOpen(collapse.Video),
			collapse.Quiz:  p.SectionOpen(collapse.Quiz),
		},
		Mode: p.Mode(),
		Quiz: QuizViewOf(p.quiz),
	}
}

// QuizViewOf summarizes the state of a quiz editor.
func QuizViewOf(e *quiz.Editor) QuizView {
	v := QuizView{Questions: e.Questions(), Error: e.Err()}
	if id, ok := e.QuizID(); ok {
		v.ID = &id
	}
	return v
}
