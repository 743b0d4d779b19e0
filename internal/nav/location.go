// Package nav is the drill-down shell of the dashboard: faculty, department,
// course, subject, with breadcrumbs and history that survive a reload
// through the URL query.
package nav

import (
	"net/url"
	"strconv"
)

// View is one screen of the shell.
type View string

const (
	ViewFaculties     View = "faculties"
	ViewDepartments   View = "departments"
	ViewCourses       View = "courses"
	ViewSubjects      View = "subjects"
	ViewSubjectDetail View = "subject-detail"
)

func (v View) valid() bool {
	switch v {
	case ViewFaculties, ViewDepartments, ViewCourses, ViewSubjects, ViewSubjectDetail:
		return true
	}
	return false
}

// Mode selects how courses are reached.
type Mode string

const (
	// ModeMine lists every course the instructor teaches without a faculty
	// or department selection.
	ModeMine Mode = "mine"
	// ModeBrowse walks the faculty and department drill-down.
	ModeBrowse Mode = "browse"
)

// Query parameter names.
const (
	ParamView       = "view"
	ParamFaculty    = "faculty"
	ParamDepartment = "department"
	ParamCourse     = "course"
	ParamSubject    = "subject"
	ParamViewMode   = "viewMode"
)

// Location is the state encoded in the URL.
type Location struct {
	View         View  `json:"view"`
	Mode         Mode  `json:"view_mode"`
	FacultyID    int64 `json:"faculty,omitempty"`
	DepartmentID int64 `json:"department,omitempty"`
	CourseID     int64 `json:"course,omitempty"`
	SubjectID    int64 `json:"subject,omitempty"`
}

// Home is the landing location: the instructor's own courses.
func Home() Location {
	return Location{View: ViewCourses, Mode: ModeMine}
}

// ParseLocation reads a location from URL query parameters. Unknown views
// fall back to Home; malformed ids are ignored.
func ParseLocation(q url.Values) Location {
	loc := Location{
		View:         View(q.Get(ParamView)),
		Mode:         Mode(q.Get(ParamViewMode)),
		FacultyID:    parseID(q.Get(ParamFaculty)),
		DepartmentID: parseID(q.Get(ParamDepartment)),
		CourseID:     parseID(q.Get(ParamCourse)),
		SubjectID:    parseID(q.Get(ParamSubject)),
	}
	if !loc.View.valid() {
		loc.View = ViewCourses
	}
	if loc.Mode != ModeBrowse {
		loc.Mode = ModeMine
	}
	return loc
}

// Query encodes the location as URL query parameters.
func (l Location) Query() url.Values {
	q := url.Values{}
	q.Set(ParamView, string(l.View))
	if l.Mode != "" {
		q.Set(ParamViewMode, string(l.Mode))
	}
	setID(q, ParamFaculty, l.FacultyID)
	setID(q, ParamDepartment, l.DepartmentID)
	setID(q, ParamCourse, l.CourseID)
	setID(q, ParamSubject, l.SubjectID)
	return q
}

func (l Location) String() string {
	return "?" + l.Query().Encode()
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func setID(q url.Values, key string, id int64) {
	if id > 0 {
		q.Set(key, strconv.FormatInt(id, 10))
	}
}

// History is a browser-style back/forward stack.
type History struct {
	entries []Location
	pos     int
}

// Push records a new location and drops anything ahead of the current one.
func (h *History) Push(loc Location) {
	if len(h.entries) > 0 {
		h.entries = h.entries[:h.pos+1]
	}
	h.entries = append(h.entries, loc)
	h.pos = len(h.entries) - 1
}

// Replace swaps the current entry, or pushes when empty.
func (h *History) Replace(loc Location) {
	if len(h.entries) == 0 {
		h.Push(loc)
		return
	}
	h.entries[h.pos] = loc
}

// Current returns the current entry.
func (h *History) Current() (Location, bool) {
	if len(h.entries) == 0 {
		return Location{}, false
	}
	return h.entries[h.pos], true
}

// Back moves one entry back.
func (h *History) Back() (Location, bool) {
	if h.pos == 0 || len(h.entries) == 0 {
		return Location{}, false
	}
	h.pos--
	return h.entries[h.pos], true
}

// Forward moves one entry forward.
func (h *History) Forward() (Location, bool) {
	if h.pos+1 >= len(h.entries) {
		return Location{}, false
	}
	h.pos++
	return h.entries[h.pos], true
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}
