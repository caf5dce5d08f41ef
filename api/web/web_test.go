package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	type markNew struct {
		CourseID  string `json:"courseId"`
		LectureID string `json:"lectureId"`
	}

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"courseId":"c1","lectureId":"L1"}`, true},
		{"unknown field", `{"courseId":"c1","progress":100}`, false},
		{"empty", ``, false},
		{"too large", `{"courseId":"` + strings.Repeat("x", int(bodyLimit)) + `"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in markNew
			err := Decode(httptest.NewRecorder(), r, &in)
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected result: %v", err)
			}
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := Decode(httptest.NewRecorder(), r, &struct{}{}); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestQueryInt(t *testing.T) {
	tests := map[string]int{
		"/courses":              10,
		"/courses?limit=25":     25,
		"/courses?limit=0":      10,
		"/courses?limit=-3":     10,
		"/courses?limit=twenty": 10,
	}

	for target, want := range tests {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		if got := QueryInt(r, "limit", 10); got != want {
			t.Errorf("%s: expected %d, got %d", target, want, got)
		}
	}
}

func TestWrapMiddleware(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return next(ctx, w, r)
			}
		}
	}

	h := WrapMiddleware([]Middleware{mark("auth"), nil, mark("limit")}, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		order = append(order, "handler")
		return Respond(ctx, w, map[string]bool{"success": true}, http.StatusOK)
	})

	w := httptest.NewRecorder()
	if err := h(context.Background(), w, httptest.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "auth,limit,handler" {
		t.Fatalf("unexpected order %v", order)
	}
	if w.Header().Get("Content-Type") != "application/json" || strings.TrimSpace(w.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected response %q", w.Body.String())
	}
}
