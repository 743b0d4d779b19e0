package nav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-instructor/internal/lms"
)

// ErrMissingParent is returned when a location lacks an id its view needs,
// or names a parent that does not contain the child.
var ErrMissingParent = errors.New("missing parent entity")

// API is the part of the LMS client the shell needs.
type API interface {
	ListFaculties(ctx context.Context) ([]lms.Faculty, error)
	GetFaculty(ctx context.Context, id int64) (*lms.Faculty, error)
	ListDepartments(ctx context.Context, facultyID int64) ([]lms.Department, error)
	GetDepartment(ctx context.Context, id int64) (*lms.Department, error)
	ListCourses(ctx context.Context, departmentID int64) ([]lms.Course, error)
	ListInstructorCourses(ctx context.Context, instructorID int64) ([]lms.Course, error)
	GetCourse(ctx context.Context, id int64) (*lms.Course, error)
	ListSubjects(ctx context.Context, courseID int64) ([]lms.Subject, error)
	GetSubject(ctx context.Context, id int64) (*lms.Subject, error)
}

// Crumb is one breadcrumb entry.
type Crumb struct {
	Label    string   `json:"label"`
	Location Location `json:"location"`
	Href     string   `json:"href"`
}

// Page is everything the shell renders for one location.
type Page struct {
	Location    Location         `json:"location"`
	Href        string           `json:"href"`
	Crumbs      []Crumb          `json:"crumbs"`
	Faculties   []lms.Faculty    `json:"faculties,omitempty"`
	Departments []lms.Department `json:"departments,omitempty"`
	Courses     []lms.Course     `json:"courses,omitempty"`
	Subjects    []lms.Subject    `json:"subjects,omitempty"`
	Subject     *lms.Subject     `json:"subject,omitempty"`
	Banner      string           `json:"banner,omitempty"`
}

// Shell holds the navigation state of one dashboard session.
type Shell struct {
	api          API
	instructorID int64

	mu      sync.Mutex
	history History
	page    Page
}

// NewShell creates a shell for an instructor.
func NewShell(api API, instructorID int64) *Shell {
	return &Shell{api: api, instructorID: instructorID}
}

// Page returns the current page.
func (s *Shell) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// History returns a copy of the history stack.
func (s *Shell) History() History {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history
	h.entries = append([]Location{}, s.history.entries...)
	return h
}

// Restore opens the location encoded in q, as on a fresh page load. All
// parent entities are fetched concurrently. When any of them cannot be
// resolved the shell lands on the instructor's course list with a banner.
// An error is returned only when that list cannot be loaded either.
func (s *Shell) Restore(ctx context.Context, q url.Values) (Page, error) {
	loc := ParseLocation(q)
	page, err := s.resolve(ctx, loc)
	if err != nil {
		slog.Warn("deep link could not be restored",
			"location", loc.String(),
			"error", err,
		)
		page, err = s.resolve(ctx, Home())
		if err != nil {
			return Page{}, fmt.Errorf("load home: %w", err)
		}
		page.Banner = "The requested page could not be opened. Showing your courses instead."
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = History{}
	s.history.Push(page.Location)
	s.page = page
	return page, nil
}

// Navigate resolves loc and pushes it on success. On failure the current
// page stays and carries the error as its banner.
func (s *Shell) Navigate(ctx context.Context, loc Location) (Page, error) {
	if loc.Mode == "" {
		loc.Mode = ModeBrowse
	}
	page, err := s.resolve(ctx, loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.page.Banner = "Could not open page: " + err.Error()
		return s.page, err
	}
	s.history.Push(page.Location)
	s.page = page
	return page, nil
}

// ShowMyCourses lists every course the instructor teaches.
func (s *Shell) ShowMyCourses(ctx context.Context) (Page, error) {
	return s.Navigate(ctx, Home())
}

// BrowseFaculties starts the drill-down.
func (s *Shell) BrowseFaculties(ctx context.Context) (Page, error) {
	return s.Navigate(ctx, Location{View: ViewFaculties, Mode: ModeBrowse})
}

// SelectFaculty opens the departments of a faculty.
func (s *Shell) SelectFaculty(ctx context.Context, id int64) (Page, error) {
	return s.Navigate(ctx, Location{View: ViewDepartments, Mode: ModeBrowse, FacultyID: id})
}

// SelectDepartment opens the courses of a department.
func (s *Shell) SelectDepartment(ctx context.Context, id int64) (Page, error) {
	cur := s.Page().Location
	return s.Navigate(ctx, Location{View: ViewCourses, Mode: ModeBrowse, FacultyID: cur.FacultyID, DepartmentID: id})
}

// SelectCourse opens the subjects of a course, keeping the current mode.
func (s *Shell) SelectCourse(ctx context.Context, id int64) (Page, error) {
	cur := s.Page().Location
	loc := Location{View: ViewSubjects, Mode: cur.Mode, CourseID: id}
	if cur.Mode == ModeBrowse {
		loc.FacultyID, loc.DepartmentID = cur.FacultyID, cur.DepartmentID
	}
	return s.Navigate(ctx, loc)
}

// SelectSubject opens the editor of a subject in the current course.
func (s *Shell) SelectSubject(ctx context.Context, id int64) (Page, error) {
	cur := s.Page().Location
	loc := cur
	loc.View = ViewSubjectDetail
	loc.SubjectID = id
	return s.Navigate(ctx, loc)
}

// Back re-opens the previous history entry, fetching it again.
func (s *Shell) Back(ctx context.Context) (Page, error) {
	return s.move(ctx, (*History).Back, (*History).Forward)
}

// Forward re-opens the next history entry, fetching it again.
func (s *Shell) Forward(ctx context.Context) (Page, error) {
	return s.move(ctx, (*History).Forward, (*History).Back)
}

func (s *Shell) move(ctx context.Context, step, undo func(*History) (Location, bool)) (Page, error) {
	s.mu.Lock()
	loc, ok := step(&s.history)
	s.mu.Unlock()
	if !ok {
		return s.Page(), nil
	}

	page, err := s.resolve(ctx, loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		undo(&s.history)
		s.page.Banner = "Could not open page: " + err.Error()
		return s.page, err
	}
	s.page = page
	return page, nil
}

// DismissBanner clears the error banner.
func (s *Shell) DismissBanner() {
	s.mu.Lock()
	s.page.Banner = ""
	s.mu.Unlock()
}

// resolve fetches everything a location shows. Parents are fetched in
// parallel; the first failure cancels the rest.
func (s *Shell) resolve(ctx context.Context, loc Location) (Page, error) {
	if err := requireIDs(loc); err != nil {
		return Page{}, err
	}

	var (
		page       = Page{Location: loc, Href: loc.String()}
		faculty    *lms.Faculty
		department *lms.Department
		course     *lms.Course
	)
	g, gctx := errgroup.WithContext(ctx)

	browse := loc.Mode == ModeBrowse
	if browse && loc.FacultyID != 0 && loc.View != ViewFaculties {
		g.Go(func() error {
			f, err := s.api.GetFaculty(gctx, loc.FacultyID)
			faculty = f
			return err
		})
	}
	if browse && loc.DepartmentID != 0 && (loc.View == ViewCourses || loc.View == ViewSubjects || loc.View == ViewSubjectDetail) {
		g.Go(func() error {
			d, err := s.api.GetDepartment(gctx, loc.DepartmentID)
			department = d
			return err
		})
	}
	if loc.View == ViewSubjects || loc.View == ViewSubjectDetail {
		g.Go(func() error {
			c, err := s.api.GetCourse(gctx, loc.CourseID)
			course = c
			return err
		})
	}

	switch loc.View {
	case ViewFaculties:
		g.Go(func() error {
			list, err := s.api.ListFaculties(gctx)
			page.Faculties = list
			return err
		})
	case ViewDepartments:
		g.Go(func() error {
			list, err := s.api.ListDepartments(gctx, loc.FacultyID)
			page.Departments = list
			return err
		})
	case ViewCourses:
		g.Go(func() error {
			var list []lms.Course
			var err error
			if browse {
				list, err = s.api.ListCourses(gctx, loc.DepartmentID)
			} else {
				list, err = s.api.ListInstructorCourses(gctx, s.instructorID)
			}
			page.Courses = list
			return err
		})
	case ViewSubjects:
		g.Go(func() error {
			list, err := s.api.ListSubjects(gctx, loc.CourseID)
			page.Subjects = list
			return err
		})
	case ViewSubjectDetail:
		g.Go(func() error {
			sub, err := s.api.GetSubject(gctx, loc.SubjectID)
			page.Subject = sub
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Page{}, fmt.Errorf("resolve %s: %w", loc.View, err)
	}
	if err := checkParents(loc, faculty, department, course, page.Subject); err != nil {
		return Page{}, err
	}
	page.Crumbs = crumbs(loc, faculty, department, course, page.Subject)
	return page, nil
}

func requireIDs(loc Location) error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s view needs a %s", ErrMissingParent, loc.View, name)
	}
	switch loc.View {
	case ViewDepartments:
		if loc.FacultyID == 0 {
			return missing(ParamFaculty)
		}
	case ViewCourses:
		if loc.Mode == ModeBrowse && loc.DepartmentID == 0 {
			return missing(ParamDepartment)
		}
	case ViewSubjects:
		if loc.CourseID == 0 {
			return missing(ParamCourse)
		}
	case ViewSubjectDetail:
		if loc.CourseID == 0 {
			return missing(ParamCourse)
		}
		if loc.SubjectID == 0 {
			return missing(ParamSubject)
		}
	}
	return nil
}

// checkParents rejects links whose ids do not belong together. Relations the
// backend did not send are not checked.
func checkParents(loc Location, faculty *lms.Faculty, department *lms.Department, course *lms.Course, subject *lms.Subject) error {
	if department != nil && faculty != nil && department.FacultyID != 0 && department.FacultyID != faculty.ID {
		return fmt.Errorf("%w: department %d is not in faculty %d", ErrMissingParent, department.ID, faculty.ID)
	}
	if course != nil && department != nil && course.DepartmentID != 0 && course.DepartmentID != department.ID {
		return fmt.Errorf("%w: course %d is not in department %d", ErrMissingParent, course.ID, department.ID)
	}
	if subject != nil && loc.CourseID != 0 && subject.CourseID != 0 && subject.CourseID != loc.CourseID {
		return fmt.Errorf("%w: subject %d is not in course %d", ErrMissingParent, subject.ID, loc.CourseID)
	}
	return nil
}

func crumbs(loc Location, faculty *lms.Faculty, department *lms.Department, course *lms.Course, subject *lms.Subject) []Crumb {
	var out []Crumb
	add := func(label string, l Location) {
		out = append(out, Crumb{Label: label, Location: l, Href: l.String()})
	}

	if loc.Mode == ModeBrowse {
		add("Faculties", Location{View: ViewFaculties, Mode: ModeBrowse})
		if faculty != nil {
			add(faculty.Name, Location{View: ViewDepartments, Mode: ModeBrowse, FacultyID: faculty.ID})
		}
		if department != nil {
			add(department.Name, Location{View: ViewCourses, Mode: ModeBrowse, FacultyID: loc.FacultyID, DepartmentID: department.ID})
		}
	} else {
		add("My courses", Home())
	}
	if course != nil {
		l := loc
		l.View, l.SubjectID = ViewSubjects, 0
		l.CourseID = course.ID
		add(course.Name, l)
	}
	if subject != nil {
		add(subject.Name, loc)
	}
	return out
}
