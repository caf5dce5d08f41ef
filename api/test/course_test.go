package test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/irsalhamdi/course-enrollment/core/course"
)

// createCourse authors a published course with one chapter holding lectures
// L1..Ln.
func (e *TestEnv) createCourse(t *testing.T, token string, price float64, discount, lectures int) course.Course {
	t.Helper()

	ls := make([]course.LectureNew, 0, lectures)
	for i := 1; i <= lectures; i++ {
		ls = append(ls, course.LectureNew{
			ID:          fmt.Sprintf("L%d", i),
			Title:       fmt.Sprintf("Lecture %d", i),
			Duration:    10,
			PreviewFree: i == 1,
			URL:         fmt.Sprintf("https://cdn.example.com/l%d.mp4", i),
		})
	}

	cn := course.CourseNew{
		Title:       "Go in practice",
		Description: "Services, storage and payments",
		Price:       price,
		Discount:    discount,
		Chapters: []course.ChapterNew{
			{ID: "CH1", Title: "Basics", Lectures: ls},
		},
	}

	var resp struct {
		Success bool          `json:"success"`
		Course  course.Course `json:"course"`
	}
	Expect(t, e.Do(t, http.MethodPost, "/educator/courses", token, cn), http.StatusCreated, &resp)

	if !resp.Success || resp.Course.ID == "" {
		t.Fatalf("expected a created course, got %+v", resp)
	}
	return resp.Course
}

func TestCourse(t *testing.T) {
	env, err := NewTestEnv(t, "course_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	edu := env.Token(t, "educator1", "educator")
	other := env.Token(t, "educator2", "educator")
	stu := env.Token(t, "student1", "student")

	Expect(t, env.Do(t, http.MethodPost, "/educator/courses", stu, course.CourseNew{Title: "x", Description: "y"}), http.StatusForbidden, nil)

	c := env.createCourse(t, edu, 49.99, 0, 3)

	var show struct {
		Course     course.Course `json:"course"`
		IsEnrolled bool          `json:"isEnrolled"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/courses/"+c.ID, "", nil), http.StatusOK, &show)

	if show.IsEnrolled {
		t.Error("expected an anonymous visitor not to be enrolled")
	}
	if got := show.Course.TotalLectures(); got != 3 {
		t.Fatalf("expected 3 lectures, got %d", got)
	}
	for _, l := range show.Course.Chapters[0].Lectures {
		if l.PreviewFree != (l.URL != "") {
			t.Errorf("lecture %s: expected a url only on free previews", l.ID)
		}
	}

	var list struct {
		Courses    []course.Course `json:"courses"`
		TotalPages int             `json:"totalPages"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/courses", "", nil), http.StatusOK, &list)

	if len(list.Courses) != 1 || list.TotalPages != 1 {
		t.Fatalf("expected one catalog page with one course, got %d courses over %d pages", len(list.Courses), list.TotalPages)
	}

	Expect(t, env.Do(t, http.MethodDelete, "/educator/courses/"+c.ID, other, nil), http.StatusForbidden, nil)
	Expect(t, env.Do(t, http.MethodDelete, "/educator/courses/"+c.ID, edu, nil), http.StatusOK, nil)
	Expect(t, env.Do(t, http.MethodGet, "/student/courses/"+c.ID, "", nil), http.StatusNotFound, nil)

	Expect(t, env.Do(t, http.MethodGet, "/student/courses", "", nil), http.StatusOK, &list)
	if len(list.Courses) != 0 {
		t.Fatalf("expected the deleted course to leave the catalog, got %d courses", len(list.Courses))
	}
}

func TestCourseUpdate(t *testing.T) {
	env, err := NewTestEnv(t, "course_update_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	edu := env.Token(t, "educator1", "educator")
	other := env.Token(t, "educator2", "educator")
	stu := env.Token(t, "student1", "student")
	c := env.createCourse(t, edu, 100, 20, 4)

	price, discount, published := 120.0, 50, false
	up := course.CourseUp{Price: &price, Discount: &discount, IsPublished: &published}
	path := "/educator/courses/" + c.ID

	Expect(t, env.Do(t, http.MethodPut, path, stu, up), http.StatusForbidden, nil)
	Expect(t, env.Do(t, http.MethodPut, path, other, up), http.StatusForbidden, nil)
	Expect(t, env.Do(t, http.MethodPut, "/educator/courses/6f1c2d7e-1111-4a2b-9c3d-000000000000", edu, up), http.StatusNotFound, nil)

	bad := 150
	Expect(t, env.Do(t, http.MethodPut, path, edu, course.CourseUp{Discount: &bad}), http.StatusBadRequest, nil)

	var resp struct {
		Course course.Course `json:"course"`
	}
	Expect(t, env.Do(t, http.MethodPut, path, edu, up), http.StatusOK, &resp)

	got := resp.Course
	if got.Price != 120 || got.Discount != 50 || got.IsPublished || got.FinalPrice() != 60 {
		t.Fatalf("unexpected updated course: %+v", got)
	}
	if got.Title != c.Title || got.TotalLectures() != 4 {
		t.Fatalf("expected untouched fields to be kept, got %+v", got)
	}

	var list struct {
		Courses []course.Course `json:"courses"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/courses", "", nil), http.StatusOK, &list)
	if len(list.Courses) != 0 {
		t.Fatalf("expected the unpublished course to leave the catalog, got %d", len(list.Courses))
	}

	content := []course.ChapterNew{{
		ID:    "CH2",
		Title: "Rewritten",
		Lectures: []course.LectureNew{
			{ID: "L1", Title: "Intro", URL: "https://cdn.example.com/intro.mp4"},
			{ID: "L9", Title: "Wrap up", URL: "https://cdn.example.com/wrap.mp4"},
		},
	}}
	Expect(t, env.Do(t, http.MethodPut, path, edu, course.CourseUp{Chapters: &content}), http.StatusOK, &resp)

	if resp.Course.TotalLectures() != 2 || resp.Course.Chapters[0].ID != "CH2" {
		t.Fatalf("expected the content tree to be replaced, got %+v", resp.Course.Chapters)
	}

	fetched, err := course.Fetch(context.Background(), env.DB, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fetched.Lecture("L9"); !ok || fetched.TotalLectures() != 2 || fetched.Price != 120 {
		t.Fatalf("expected the stored course to match the update, got %+v", fetched)
	}

	dup := []course.ChapterNew{{
		Title: "Dup",
		Lectures: []course.LectureNew{
			{ID: "L1", Title: "a", URL: "https://cdn.example.com/a.mp4"},
			{ID: "L1", Title: "b", URL: "https://cdn.example.com/b.mp4"},
		},
	}}
	Expect(t, env.Do(t, http.MethodPut, path, edu, course.CourseUp{Chapters: &dup}), http.StatusBadRequest, nil)

	Expect(t, env.Do(t, http.MethodDelete, path, edu, nil), http.StatusOK, nil)
	Expect(t, env.Do(t, http.MethodPut, path, edu, up), http.StatusNotFound, nil)
}
