package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const courseColumns = `course_id, educator_id, title, description, thumbnail_url, price, discount,
	is_published, created_at, updated_at, deleted_at`

func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	INSERT INTO courses (course_id, educator_id, title, description, thumbnail_url, price, discount,
		is_published, created_at, updated_at)
	VALUES (:course_id, :educator_id, :title, :description, :thumbnail_url, :price, :discount,
		:is_published, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}

	return insertContent(ctx, db, c.Chapters)
}

func insertContent(ctx context.Context, db sqlx.ExtContext, chapters []Chapter) error {
	const qc = `
	INSERT INTO chapters (course_id, chapter_id, chapter_order, title)
	VALUES (:course_id, :chapter_id, :chapter_order, :title)`

	const ql = `
	INSERT INTO lectures (course_id, chapter_id, lecture_id, lecture_order, title, duration_minutes, preview_free, url)
	VALUES (:course_id, :chapter_id, :lecture_id, :lecture_order, :title, :duration_minutes, :preview_free, :url)`

	for _, ch := range chapters {
		if err := database.NamedExecContext(ctx, db, qc, ch); err != nil {
			return fmt.Errorf("inserting chapter[%s]: %w", ch.ID, err)
		}

		for _, l := range ch.Lectures {
			if err := database.NamedExecContext(ctx, db, ql, l); err != nil {
				return fmt.Errorf("inserting lecture[%s]: %w", l.ID, err)
			}
		}
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	UPDATE courses SET
		title = :title,
		description = :description,
		thumbnail_url = :thumbnail_url,
		price = :price,
		discount = :discount,
		is_published = :is_published,
		updated_at = :updated_at
	WHERE course_id = :course_id`

	if err := database.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("updating course[%s]: %w", c.ID, err)
	}
	return nil
}

// ReplaceContent swaps the whole chapter and lecture tree of c. Progress
// rows keep their lecture ids; removed lectures stop counting towards the
// total.
func ReplaceContent(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `DELETE FROM chapters WHERE course_id = $1`

	if _, err := db.ExecContext(ctx, q, c.ID); err != nil {
		return fmt.Errorf("clearing content of course[%s]: %w", c.ID, err)
	}
	return insertContent(ctx, db, c.Chapters)
}

// Fetch returns the course with its content tree, including soft deleted
// courses so existing enrollments keep working.
func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses WHERE course_id = $1`

	var c Course
	if err := database.GetContext(ctx, db, &c, q, id); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}

	courses := []Course{c}
	if err := loadContent(ctx, db, courses); err != nil {
		return Course{}, err
	}

	return courses[0], nil
}

func lock(ctx context.Context, tx sqlx.ExtContext, id string) (Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses WHERE course_id = $1 FOR UPDATE`

	var c Course
	if err := database.GetContext(ctx, tx, &c, q, id); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("locking course[%s]: %w", id, err)
	}

	courses := []Course{c}
	if err := loadContent(ctx, tx, courses); err != nil {
		return Course{}, err
	}
	return courses[0], nil
}

// QueryPublished pages through the catalog, newest first.
func QueryPublished(ctx context.Context, db sqlx.ExtContext, page, limit int) ([]Course, int, error) {
	const qc = `SELECT count(*) FROM courses WHERE is_published AND deleted_at IS NULL`

	var total int
	if err := database.GetContext(ctx, db, &total, qc); err != nil {
		return nil, 0, fmt.Errorf("counting courses: %w", err)
	}

	q := `SELECT ` + courseColumns + ` FROM courses
	WHERE is_published AND deleted_at IS NULL
	ORDER BY created_at DESC
	LIMIT $1 OFFSET $2`

	courses := []Course{}
	if err := database.SelectContext(ctx, db, &courses, q, limit, (page-1)*limit); err != nil {
		return nil, 0, fmt.Errorf("selecting courses: %w", err)
	}

	if err := loadContent(ctx, db, courses); err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func QueryByEducator(ctx context.Context, db sqlx.ExtContext, educatorID string) ([]Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses
	WHERE educator_id = $1 AND deleted_at IS NULL
	ORDER BY created_at DESC`

	courses := []Course{}
	if err := database.SelectContext(ctx, db, &courses, q, educatorID); err != nil {
		return nil, fmt.Errorf("selecting courses of educator[%s]: %w", educatorID, err)
	}

	if err := loadContent(ctx, db, courses); err != nil {
		return nil, err
	}

	for i := range courses {
		students, err := QueryStudents(ctx, db, courses[i].ID)
		if err != nil {
			return nil, err
		}
		courses[i].EnrolledStudents = students
	}

	return courses, nil
}

func loadContent(ctx context.Context, db sqlx.ExtContext, courses []Course) error {
	if len(courses) == 0 {
		return nil
	}

	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}

	const qc = `
	SELECT course_id, chapter_id, chapter_order, title FROM chapters
	WHERE course_id = ANY($1)
	ORDER BY course_id, chapter_order`

	var chapters []Chapter
	if err := database.SelectContext(ctx, db, &chapters, qc, pq.Array(ids)); err != nil {
		return fmt.Errorf("selecting chapters: %w", err)
	}

	const ql = `
	SELECT course_id, chapter_id, lecture_id, lecture_order, title, duration_minutes, preview_free, url
	FROM lectures
	WHERE course_id = ANY($1)
	ORDER BY course_id, chapter_id, lecture_order`

	var lectures []Lecture
	if err := database.SelectContext(ctx, db, &lectures, ql, pq.Array(ids)); err != nil {
		return fmt.Errorf("selecting lectures: %w", err)
	}

	type key struct{ course, chapter string }
	byChapter := make(map[key][]Lecture)
	for _, l := range lectures {
		k := key{l.CourseID, l.ChapterID}
		byChapter[k] = append(byChapter[k], l)
	}

	byCourse := make(map[string][]Chapter)
	for _, ch := range chapters {
		ch.Lectures = byChapter[key{ch.CourseID, ch.ID}]
		if ch.Lectures == nil {
			ch.Lectures = []Lecture{}
		}
		byCourse[ch.CourseID] = append(byCourse[ch.CourseID], ch)
	}

	for i := range courses {
		courses[i].Chapters = byCourse[courses[i].ID]
		if courses[i].Chapters == nil {
			courses[i].Chapters = []Chapter{}
		}
	}
	return nil
}

func SoftDelete(ctx context.Context, db sqlx.ExtContext, id string, now time.Time) error {
	const q = `
	UPDATE courses SET deleted_at = $2, is_published = FALSE, updated_at = $2
	WHERE course_id = $1 AND deleted_at IS NULL`

	if _, err := db.ExecContext(ctx, q, id, now); err != nil {
		return fmt.Errorf("deleting course[%s]: %w", id, err)
	}
	return nil
}

func CountLectures(ctx context.Context, db sqlx.ExtContext, id string) (int, error) {
	const q = `SELECT count(*) FROM lectures WHERE course_id = $1`

	var n int
	if err := database.GetContext(ctx, db, &n, q, id); err != nil {
		return 0, fmt.Errorf("counting lectures of course[%s]: %w", id, err)
	}
	return n, nil
}

func HasLecture(ctx context.Context, db sqlx.ExtContext, courseID, lectureID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM lectures WHERE course_id = $1 AND lecture_id = $2)`

	var ok bool
	if err := database.GetContext(ctx, db, &ok, q, courseID, lectureID); err != nil {
		return false, fmt.Errorf("looking up lecture[%s] of course[%s]: %w", lectureID, courseID, err)
	}
	return ok, nil
}

func AddStudent(ctx context.Context, db sqlx.ExtContext, courseID, studentID string, now time.Time) error {
	const q = `
	INSERT INTO course_students (course_id, student_id, created_at) VALUES ($1, $2, $3)
	ON CONFLICT DO NOTHING`

	if _, err := db.ExecContext(ctx, q, courseID, studentID, now); err != nil {
		return fmt.Errorf("adding student[%s] to course[%s]: %w", studentID, courseID, err)
	}
	return nil
}

func RemoveStudent(ctx context.Context, db sqlx.ExtContext, courseID, studentID string) error {
	const q = `DELETE FROM course_students WHERE course_id = $1 AND student_id = $2`

	if _, err := db.ExecContext(ctx, q, courseID, studentID); err != nil {
		return fmt.Errorf("removing student[%s] from course[%s]: %w", studentID, courseID, err)
	}
	return nil
}

func QueryStudents(ctx context.Context, db sqlx.ExtContext, courseID string) ([]string, error) {
	const q = `SELECT student_id FROM course_students WHERE course_id = $1 ORDER BY created_at`

	students := []string{}
	if err := database.SelectContext(ctx, db, &students, q, courseID); err != nil {
		return nil, fmt.Errorf("selecting students of course[%s]: %w", courseID, err)
	}
	return students, nil
}

// RebuildStudents re-derives course_students from the enrollment ledger and
// returns how many rows were added and removed.
func RebuildStudents(ctx context.Context, db sqlx.ExtContext, now time.Time) (added, removed int64, err error) {
	const qa = `
	INSERT INTO course_students (course_id, student_id, created_at)
	SELECT course_id, student_id, $1 FROM enrollments WHERE status <> 'cancelled'
	ON CONFLICT DO NOTHING`

	res, err := db.ExecContext(ctx, qa, now)
	if err != nil {
		return 0, 0, fmt.Errorf("restoring course students: %w", err)
	}
	added, _ = res.RowsAffected()

	const qr = `
	DELETE FROM course_students cs
	WHERE NOT EXISTS (
		SELECT 1 FROM enrollments e
		WHERE e.course_id = cs.course_id AND e.student_id = cs.student_id AND e.status <> 'cancelled'
	)`

	res, err = db.ExecContext(ctx, qr)
	if err != nil {
		return added, 0, fmt.Errorf("pruning course students: %w", err)
	}
	removed, _ = res.RowsAffected()

	return added, removed, nil
}
