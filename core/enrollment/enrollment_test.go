package enrollment

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/course"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 5, 0},
		{1, 5, 20},
		{3, 5, 60},
		{5, 5, 100},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 0},
		{3, 0, 0},
		{6, 5, 100},
	}

	for _, tt := range tests {
		if got := Percentage(tt.completed, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d): expected %d, got %d", tt.completed, tt.total, tt.want, got)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{Active, Completed, true},
		{Active, Cancelled, true},
		{Completed, Cancelled, true},
		{Completed, Active, false},
		{Cancelled, Active, false},
		{Cancelled, Completed, false},
		{Active, Active, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestAdvance(t *testing.T) {
	if got := advance(Active, 99); got != Active {
		t.Errorf("expected active below 100%%, got %s", got)
	}
	if got := advance(Active, 100); got != Completed {
		t.Errorf("expected completed at 100%%, got %s", got)
	}
	if got := advance(Completed, 100); got != Completed {
		t.Errorf("expected completed to stay completed, got %s", got)
	}
	if got := advance(Cancelled, 100); got != Cancelled {
		t.Errorf("expected cancelled to stay cancelled, got %s", got)
	}
}

func TestHasAccess(t *testing.T) {
	for s, want := range map[Status]bool{Active: true, Completed: true, Cancelled: false} {
		if got := (Enrollment{Status: s}).HasAccess(); got != want {
			t.Errorf("HasAccess(%s): expected %v, got %v", s, want, got)
		}
	}
}

func TestRequestErr(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{course.ErrNotFound, http.StatusNotFound},
		{ErrLectureNotFound, http.StatusNotFound},
		{ErrAlreadyEnrolled, http.StatusConflict},
		{ErrNotEnrolled, http.StatusForbidden},
		{ErrPaymentRequired, http.StatusPaymentRequired},
		{fmt.Errorf("locking: %w", ErrNotEnrolled), http.StatusForbidden},
	}

	for _, tt := range tests {
		_, status, ok := weberr.Response(requestErr(tt.err))
		if !ok {
			t.Errorf("%v: expected a response", tt.err)
			continue
		}
		if status != tt.status {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.status, status)
		}
	}

	unknown := errors.New("connection reset")
	if _, _, ok := weberr.Response(requestErr(unknown)); ok {
		t.Error("expected unknown errors to pass through")
	}
}
