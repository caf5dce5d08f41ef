package rating

import (
	"errors"
	"math"
	"strconv"
	"time"
)

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrNotEnrolled   = errors.New("you must be enrolled to rate this course")
	ErrAlreadyRated  = errors.New("you have already rated this course")
	ErrNotFound      = errors.New("rating not found")
)

const (
	minRating = 1
	maxRating = 5
)

type Rating struct {
	CourseID  string    `json:"courseId" db:"course_id"`
	UserID    string    `json:"userId" db:"user_id"`
	Rating    int       `json:"rating" db:"rating"`
	Review    string    `json:"review" db:"review"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type RatingNew struct {
	CourseID string `json:"courseId" validate:"required,uuid"`
	Rating   int    `json:"rating" validate:"gte=1,lte=5"`
	Review   string `json:"review" validate:"max=2000"`
}

// Average is a mean rating. It always serialises with one decimal.
type Average float64

func (a Average) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(a), 'f', 1, 64)), nil
}

type Summary struct {
	Average Average `json:"averageRating"`
	Total   int     `json:"totalRatings"`
}

// Summarize averages the ratings, rounded to one decimal. No ratings
// average 0.
func Summarize(rs []Rating) Summary {
	if len(rs) == 0 {
		return Summary{}
	}

	var sum int
	for _, r := range rs {
		sum += r.Rating
	}

	avg := float64(sum) / float64(len(rs))
	return Summary{
		Average: Average(math.Round(avg*10) / 10),
		Total:   len(rs),
	}
}

func valid(n int) bool {
	return n >= minRating && n <= maxRating
}
