package rating

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/course"
)

func ratings(vals ...int) []Rating {
	rs := make([]Rating, 0, len(vals))
	for _, v := range vals {
		rs = append(rs, Rating{Rating: v})
	}
	return rs
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		in    []Rating
		avg   Average
		total int
	}{
		{"none", nil, 0, 0},
		{"single", ratings(3), 3, 1},
		{"whole", ratings(5, 4, 3), 4, 3},
		{"rounded up", ratings(5, 5, 4), 4.7, 3},
		{"rounded down", ratings(1, 2, 2), 1.7, 3},
		{"halves", ratings(4, 5), 4.5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.in)
			if got.Average != tt.avg || got.Total != tt.total {
				t.Fatalf("expected %v over %d, got %v over %d", tt.avg, tt.total, got.Average, got.Total)
			}
		})
	}
}

func TestSummaryJSON(t *testing.T) {
	tests := []struct {
		in   []Rating
		want string
	}{
		{ratings(5, 4, 3), `{"averageRating":4.0,"totalRatings":3}`},
		{nil, `{"averageRating":0.0,"totalRatings":0}`},
		{ratings(5, 5, 4), `{"averageRating":4.7,"totalRatings":3}`},
	}

	for _, tt := range tests {
		b, err := json.Marshal(Summarize(tt.in))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Errorf("expected %s, got %s", tt.want, b)
		}
	}
}

func TestValid(t *testing.T) {
	for n := -1; n <= 7; n++ {
		want := n >= 1 && n <= 5
		if got := valid(n); got != want {
			t.Errorf("valid(%d): expected %v, got %v", n, want, got)
		}
	}
}

func TestRequestErr(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrInvalidRating, http.StatusBadRequest},
		{ErrNotEnrolled, http.StatusForbidden},
		{ErrAlreadyRated, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{course.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		_, status, ok := weberr.Response(requestErr(tt.err))
		if !ok || status != tt.status {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.status, status)
		}
	}
}
