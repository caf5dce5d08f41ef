package course

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		price    float64
		discount int
		want     float64
	}{
		{100, 20, 80},
		{100, 0, 100},
		{100, 100, 0},
		{0, 50, 0},
		{49.99, 15, 42.49},
		{19.99, 33, 13.39},
	}

	for _, tt := range tests {
		c := Course{Price: tt.price, Discount: tt.discount}
		if got := c.FinalPrice(); got != tt.want {
			t.Errorf("FinalPrice(%v, %d%%): expected %v, got %v", tt.price, tt.discount, tt.want, got)
		}
	}
}

func sample() Course {
	return Course{
		ID: "c1",
		Chapters: []Chapter{
			{ID: "ch1", Lectures: []Lecture{
				{ID: "L1", URL: "https://cdn/l1", PreviewFree: true},
				{ID: "L2", URL: "https://cdn/l2"},
			}},
			{ID: "ch2", Lectures: []Lecture{
				{ID: "L3", URL: "https://cdn/l3"},
				{ID: "L4", URL: "https://cdn/l4"},
				{ID: "L5", URL: "https://cdn/l5"},
			}},
			{ID: "ch3"},
		},
		EnrolledStudents: []string{"s1"},
	}
}

func TestTotalLectures(t *testing.T) {
	if got := sample().TotalLectures(); got != 5 {
		t.Fatalf("expected 5 lectures, got %d", got)
	}
	if got := (Course{}).TotalLectures(); got != 0 {
		t.Fatalf("expected 0 lectures, got %d", got)
	}
}

func TestLecture(t *testing.T) {
	c := sample()
	if _, ok := c.Lecture("L4"); !ok {
		t.Fatal("L4 not found")
	}
	if _, ok := c.Lecture("L9"); ok {
		t.Fatal("L9 should not exist")
	}
}

func TestRedacted(t *testing.T) {
	c := sample()

	full := c.Redacted(true)
	if diff := cmp.Diff(c, full); diff != "" {
		t.Fatalf("full view changed the course (-want +got):\n%s", diff)
	}

	red := c.Redacted(false)
	var urls []string
	for _, ch := range red.Chapters {
		for _, l := range ch.Lectures {
			urls = append(urls, l.URL)
		}
	}

	want := []string{"https://cdn/l1", "", "", "", ""}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Fatalf("unexpected urls (-want +got):\n%s", diff)
	}
	if red.EnrolledStudents != nil {
		t.Fatal("student list leaked into the public view")
	}
	if c.Chapters[0].Lectures[1].URL == "" {
		t.Fatal("redaction mutated the original course")
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cn := CourseNew{
		Title:       "Go",
		Description: "Learn Go",
		Price:       100,
		Discount:    20,
		Chapters: []ChapterNew{
			{Title: "Basics", Lectures: []LectureNew{
				{ID: "L1", Title: "Intro", URL: "https://cdn/l1"},
				{Title: "Types", URL: "https://cdn/l2"},
			}},
		},
	}

	c, err := Build("edu_1", cn, now)
	if err != nil {
		t.Fatal(err)
	}

	if c.EducatorID != "edu_1" || !c.IsPublished || c.CreatedAt != now {
		t.Fatalf("unexpected course header: %+v", c)
	}
	if c.TotalLectures() != 2 {
		t.Fatalf("expected 2 lectures, got %d", c.TotalLectures())
	}

	ch := c.Chapters[0]
	if ch.ID == "" || ch.CourseID != c.ID || ch.Order != 1 {
		t.Fatalf("unexpected chapter: %+v", ch)
	}
	if ch.Lectures[0].ID != "L1" || ch.Lectures[1].ID == "" || ch.Lectures[1].Order != 2 {
		t.Fatalf("unexpected lectures: %+v", ch.Lectures)
	}
	if ch.Lectures[1].ChapterID != ch.ID {
		t.Fatal("lecture not linked to its chapter")
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	cn := CourseNew{
		Title: "Go", Description: "Learn Go",
		Chapters: []ChapterNew{
			{Title: "A", Lectures: []LectureNew{{ID: "L1", Title: "x", URL: "https://cdn/1"}}},
			{Title: "B", Lectures: []LectureNew{{ID: "L1", Title: "y", URL: "https://cdn/2"}}},
		},
	}
	if _, err := Build("edu", cn, time.Now()); !errors.Is(err, ErrDuplicateLecture) {
		t.Fatalf("expected ErrDuplicateLecture, got %v", err)
	}

	cn.Chapters[0].ID, cn.Chapters[1].ID = "ch", "ch"
	cn.Chapters[1].Lectures[0].ID = "L2"
	if _, err := Build("edu", cn, time.Now()); !errors.Is(err, ErrDuplicateChapter) {
		t.Fatalf("expected ErrDuplicateChapter, got %v", err)
	}
}
