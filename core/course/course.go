package course

import (
	"errors"
	"math"
	"time"
)

var (
	ErrNotFound         = errors.New("course not found")
	ErrNotOwner         = errors.New("course belongs to another educator")
	ErrDuplicateLecture = errors.New("lecture ids must be unique within a course")
	ErrDuplicateChapter = errors.New("chapter ids must be unique within a course")
)

type Course struct {
	ID               string     `json:"id" db:"course_id"`
	EducatorID       string     `json:"educator" db:"educator_id"`
	Title            string     `json:"courseTitle" db:"title"`
	Description      string     `json:"courseDescription" db:"description"`
	ThumbnailURL     string     `json:"courseThumbnail" db:"thumbnail_url"`
	Price            float64    `json:"coursePrice" db:"price"`
	Discount         int        `json:"discount" db:"discount"`
	IsPublished      bool       `json:"isPublished" db:"is_published"`
	Chapters         []Chapter  `json:"courseContent" db:"-"`
	EnrolledStudents []string   `json:"enrolledStudents,omitempty" db:"-"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt        *time.Time `json:"-" db:"deleted_at"`
}

type Chapter struct {
	CourseID string    `json:"-" db:"course_id"`
	ID       string    `json:"chapterId" db:"chapter_id"`
	Order    int       `json:"chapterOrder" db:"chapter_order"`
	Title    string    `json:"chapterTitle" db:"title"`
	Lectures []Lecture `json:"chapterContent" db:"-"`
}

type Lecture struct {
	CourseID    string `json:"-" db:"course_id"`
	ChapterID   string `json:"-" db:"chapter_id"`
	ID          string `json:"lectureId" db:"lecture_id"`
	Order       int    `json:"lectureOrder" db:"lecture_order"`
	Title       string `json:"lectureTitle" db:"title"`
	Duration    int    `json:"lectureDuration" db:"duration_minutes"`
	PreviewFree bool   `json:"isPreviewFree" db:"preview_free"`
	URL         string `json:"lectureUrl,omitempty" db:"url"`
}

type CourseNew struct {
	Title        string       `json:"courseTitle" validate:"required"`
	Description  string       `json:"courseDescription" validate:"required"`
	ThumbnailURL string       `json:"courseThumbnail" validate:"omitempty,url"`
	Price        float64      `json:"coursePrice" validate:"money,lte=100000"`
	Discount     int          `json:"discount" validate:"gte=0,lte=100"`
	IsPublished  *bool        `json:"isPublished"`
	Chapters     []ChapterNew `json:"courseContent" validate:"dive"`
}

// CourseUp edits a course. Nil fields are left alone; Chapters replaces the
// whole content tree.
type CourseUp struct {
	Title        *string       `json:"courseTitle" validate:"omitempty,min=1"`
	Description  *string       `json:"courseDescription" validate:"omitempty,min=1"`
	ThumbnailURL *string       `json:"courseThumbnail" validate:"omitempty,url"`
	Price        *float64      `json:"coursePrice" validate:"omitempty,money,lte=100000"`
	Discount     *int          `json:"discount" validate:"omitempty,gte=0,lte=100"`
	IsPublished  *bool         `json:"isPublished"`
	Chapters     *[]ChapterNew `json:"courseContent" validate:"omitempty,dive"`
}

type ChapterNew struct {
	ID       string       `json:"chapterId"`
	Title    string       `json:"chapterTitle" validate:"required"`
	Lectures []LectureNew `json:"chapterContent" validate:"dive"`
}

type LectureNew struct {
	ID          string `json:"lectureId"`
	Title       string `json:"lectureTitle" validate:"required"`
	Duration    int    `json:"lectureDuration" validate:"gte=0"`
	PreviewFree bool   `json:"isPreviewFree"`
	URL         string `json:"lectureUrl" validate:"required,url"`
}

// FinalPrice is the discounted price, rounded to cents.
func (c Course) FinalPrice() float64 {
	return math.Round(c.Price*float64(100-c.Discount)) / 100
}

func (c Course) TotalLectures() int {
	n := 0
	for _, ch := range c.Chapters {
		n += len(ch.Lectures)
	}
	return n
}

func (c Course) Lecture(id string) (Lecture, bool) {
	for _, ch := range c.Chapters {
		for _, l := range ch.Lectures {
			if l.ID == id {
				return l, true
			}
		}
	}
	return Lecture{}, false
}

// Available reports whether the course can still be ordered, enrolled in
// or rated.
func (c Course) Available() bool {
	return c.DeletedAt == nil
}

// Redacted returns a copy of the course whose lecture URLs are blanked,
// except free previews. full keeps every URL.
func (c Course) Redacted(full bool) Course {
	if full {
		return c
	}

	chapters := make([]Chapter, len(c.Chapters))
	for i, ch := range c.Chapters {
		lectures := make([]Lecture, len(ch.Lectures))
		for j, l := range ch.Lectures {
			if !l.PreviewFree {
				l.URL = ""
			}
			lectures[j] = l
		}
		ch.Lectures = lectures
		chapters[i] = ch
	}
	c.Chapters = chapters
	c.EnrolledStudents = nil
	return c
}
