package course

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/irsalhamdi/course-enrollment/validate"
	"github.com/jmoiron/sqlx"
)

// Build turns an authoring request into a course owned by educatorID.
func Build(educatorID string, cn CourseNew, now time.Time) (Course, error) {
	published := true
	if cn.IsPublished != nil {
		published = *cn.IsPublished
	}

	c := Course{
		ID:           validate.GenerateID(),
		EducatorID:   educatorID,
		Title:        cn.Title,
		Description:  cn.Description,
		ThumbnailURL: cn.ThumbnailURL,
		Price:        cn.Price,
		Discount:     cn.Discount,
		IsPublished:  published,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	chapters, err := buildContent(c.ID, cn.Chapters)
	if err != nil {
		return Course{}, err
	}
	c.Chapters = chapters

	return c, nil
}

// buildContent lays out the chapter tree of courseID in request order.
// Chapter and lecture ids are generated when the client leaves them blank.
func buildContent(courseID string, chn []ChapterNew) ([]Chapter, error) {
	chapters := make([]Chapter, 0, len(chn))
	chapterIDs := make(map[string]bool)
	lectureIDs := make(map[string]bool)

	for i, cn := range chn {
		ch := Chapter{
			CourseID: courseID,
			ID:       cn.ID,
			Order:    i + 1,
			Title:    cn.Title,
			Lectures: make([]Lecture, 0, len(cn.Lectures)),
		}
		if ch.ID == "" {
			ch.ID = validate.GenerateID()
		}
		if chapterIDs[ch.ID] {
			return nil, ErrDuplicateChapter
		}
		chapterIDs[ch.ID] = true

		for j, ln := range cn.Lectures {
			l := Lecture{
				CourseID:    courseID,
				ChapterID:   ch.ID,
				ID:          ln.ID,
				Order:       j + 1,
				Title:       ln.Title,
				Duration:    ln.Duration,
				PreviewFree: ln.PreviewFree,
				URL:         ln.URL,
			}
			if l.ID == "" {
				l.ID = validate.GenerateID()
			}
			if lectureIDs[l.ID] {
				return nil, ErrDuplicateLecture
			}
			lectureIDs[l.ID] = true

			ch.Lectures = append(ch.Lectures, l)
		}

		chapters = append(chapters, ch)
	}

	return chapters, nil
}

func New(ctx context.Context, db *sqlx.DB, p claims.Principal, cn CourseNew) (Course, error) {
	c, err := Build(p.UserID, cn, time.Now().UTC())
	if err != nil {
		return Course{}, err
	}

	err = database.Transaction(ctx, db, func(tx sqlx.ExtContext) error {
		return Create(ctx, tx, c)
	})
	if err != nil {
		return Course{}, fmt.Errorf("creating course for educator[%s]: %w", p.UserID, err)
	}

	return c, nil
}

// Delete soft deletes a course owned by p. Enrollments, payments and
// ratings referencing it are kept.
func Delete(ctx context.Context, db sqlx.ExtContext, p claims.Principal, id string) error {
	c, err := Fetch(ctx, db, id)
	if err != nil {
		return err
	}

	if c.EducatorID != p.UserID {
		return ErrNotOwner
	}

	return SoftDelete(ctx, db, id, time.Now().UTC())
}

// Edit applies cu to a course owned by p. Orders already created keep the
// amount they were opened with.
func Edit(ctx context.Context, db *sqlx.DB, p claims.Principal, id string, cu CourseUp) (Course, error) {
	var out Course

	err := database.Transaction(ctx, db, func(tx sqlx.ExtContext) error {
		c, err := lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !c.Available() {
			return ErrNotFound
		}
		if c.EducatorID != p.UserID {
			return ErrNotOwner
		}

		if cu.Title != nil {
			c.Title = *cu.Title
		}
		if cu.Description != nil {
			c.Description = *cu.Description
		}
		if cu.ThumbnailURL != nil {
			c.ThumbnailURL = *cu.ThumbnailURL
		}
		if cu.Price != nil {
			c.Price = *cu.Price
		}
		if cu.Discount != nil {
			c.Discount = *cu.Discount
		}
		if cu.IsPublished != nil {
			c.IsPublished = *cu.IsPublished
		}
		c.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, tx, c); err != nil {
			return err
		}

		if cu.Chapters != nil {
			chapters, err := buildContent(c.ID, *cu.Chapters)
			if err != nil {
				return err
			}
			c.Chapters = chapters

			if err := ReplaceContent(ctx, tx, c); err != nil {
				return err
			}
		}

		out = c
		return nil
	})
	if err != nil {
		return Course{}, fmt.Errorf("editing course[%s]: %w", id, err)
	}

	return out, nil
}
