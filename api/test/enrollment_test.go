package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/course-enrollment/core/enrollment"
	"github.com/irsalhamdi/course-enrollment/core/user"
)

type progressResp struct {
	Success  bool                `json:"success"`
	Progress enrollment.Progress `json:"progress"`
}

func markComplete(t *testing.T, env *TestEnv, token, courseID, lectureID string, status int) enrollment.Progress {
	t.Helper()

	var resp progressResp
	body := enrollment.LectureMark{CourseID: courseID, LectureID: lectureID}
	w := env.Do(t, http.MethodPost, "/mark-complete", token, body)
	if status != http.StatusOK {
		Expect(t, w, status, nil)
		return enrollment.Progress{}
	}
	Expect(t, w, status, &resp)
	return resp.Progress
}

func TestEnrollmentProgress(t *testing.T) {
	env, err := NewTestEnv(t, "enrollment_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	edu := env.Token(t, "educator1", "educator")
	stu := env.Token(t, "student1", "student")
	c := env.createCourse(t, edu, 0, 0, 5)

	Expect(t, env.Do(t, http.MethodGet, "/progress/"+c.ID, stu, nil), http.StatusForbidden, nil)
	markComplete(t, env, stu, c.ID, "L1", http.StatusForbidden)

	var status struct {
		IsEnrolled bool `json:"isEnrolled"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/status/"+c.ID, stu, nil), http.StatusOK, &status)
	if status.IsEnrolled {
		t.Fatal("expected not enrolled before enrolling")
	}

	var enrolled struct {
		Enrollment enrollment.Enrollment `json:"enrollment"`
	}
	Expect(t, env.Do(t, http.MethodPost, "/enroll", stu, enrollment.SelfEnrollNew{CourseID: c.ID}), http.StatusCreated, &enrolled)

	e := enrolled.Enrollment
	if e.Status != enrollment.Active || e.Amount != 0 || e.Progress.CompletionPercentage != 0 {
		t.Fatalf("expected a fresh active enrollment, got %+v", e)
	}

	Expect(t, env.Do(t, http.MethodPost, "/enroll", stu, enrollment.SelfEnrollNew{CourseID: c.ID}), http.StatusConflict, nil)

	var n int
	if err := env.DB.GetContext(context.Background(), &n, `SELECT count(*) FROM enrollments WHERE course_id = $1`, c.ID); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one enrollment row, got %d", n)
	}

	var profile struct {
		User user.User `json:"user"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/profile", stu, nil), http.StatusOK, &profile)
	if profile.User.Email != "student1@example.com" || !cmp.Equal(profile.User.EnrolledCourses, []string{c.ID}) {
		t.Fatalf("unexpected profile %+v", profile.User)
	}

	Expect(t, env.Do(t, http.MethodGet, "/status/"+c.ID, stu, nil), http.StatusOK, &status)
	if !status.IsEnrolled {
		t.Fatal("expected enrolled after enrolling")
	}

	for _, l := range []string{"L1", "L2", "L3"} {
		markComplete(t, env, stu, c.ID, l, http.StatusOK)
	}

	var got progressResp
	Expect(t, env.Do(t, http.MethodGet, "/progress/"+c.ID, stu, nil), http.StatusOK, &got)

	if got.Progress.CompletionPercentage != 60 {
		t.Fatalf("expected 60%%, got %d%%", got.Progress.CompletionPercentage)
	}
	if diff := cmp.Diff([]string{"L1", "L2", "L3"}, got.Progress.LecturesCompleted); diff != "" {
		t.Fatalf("unexpected completed lectures (-want +got):\n%s", diff)
	}
	if got.Progress.LastAccessedDate == nil {
		t.Fatal("expected a last accessed date")
	}

	again := markComplete(t, env, stu, c.ID, "L1", http.StatusOK)
	if again.CompletionPercentage != 60 || len(again.LecturesCompleted) != 3 {
		t.Fatalf("expected marking L1 again to change nothing, got %+v", again)
	}

	markComplete(t, env, stu, c.ID, "L99", http.StatusNotFound)

	markComplete(t, env, stu, c.ID, "L4", http.StatusOK)
	done := markComplete(t, env, stu, c.ID, "L5", http.StatusOK)
	if done.CompletionPercentage != 100 {
		t.Fatalf("expected 100%%, got %d%%", done.CompletionPercentage)
	}

	var dash struct {
		Dashboard enrollment.Dashboard `json:"dashboard"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/dashboard", stu, nil), http.StatusOK, &dash)

	d := dash.Dashboard
	if d.TotalEnrollments != 1 || d.CompletedCourses != 1 || d.InProgress != 0 {
		t.Fatalf("unexpected dashboard counts: %+v", d)
	}
	if len(d.RecentEnrollments) != 1 || d.RecentEnrollments[0].Status != enrollment.Completed {
		t.Fatalf("expected the completed enrollment in the dashboard, got %+v", d.RecentEnrollments)
	}

	var show struct {
		IsEnrolled bool `json:"isEnrolled"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/courses/"+c.ID, stu, nil), http.StatusOK, &show)
	if !show.IsEnrolled {
		t.Fatal("expected the catalog to report the enrollment")
	}

	var cancelled struct {
		Enrollment enrollment.Enrollment `json:"enrollment"`
	}
	Expect(t, env.Do(t, http.MethodPost, "/cancel", stu, enrollment.CourseRef{CourseID: c.ID}), http.StatusOK, &cancelled)
	if cancelled.Enrollment.Status != enrollment.Cancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Enrollment.Status)
	}

	markComplete(t, env, stu, c.ID, "L1", http.StatusForbidden)

	var after struct {
		IsEnrolled bool                   `json:"isEnrolled"`
		Enrollment *enrollment.Enrollment `json:"enrollment"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/status/"+c.ID, stu, nil), http.StatusOK, &after)
	if !after.IsEnrolled || after.Enrollment == nil || after.Enrollment.Status != enrollment.Cancelled {
		t.Fatalf("expected the cancelled record to be reported, got %+v", after)
	}

	var mine struct {
		Enrollments []enrollment.WithCourse `json:"enrollments"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/student/my-courses", stu, nil), http.StatusOK, &mine)
	if len(mine.Enrollments) != 0 {
		t.Fatalf("expected cancelled enrollments to be hidden, got %d", len(mine.Enrollments))
	}

	if err := env.DB.GetContext(context.Background(), &n, `SELECT count(*) FROM course_students WHERE course_id = $1`, c.ID); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected the course mirror to drop the student, got %d rows", n)
	}
}

func TestEnrollmentRequiresPayment(t *testing.T) {
	env, err := NewTestEnv(t, "enrollment_paid_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	edu := env.Token(t, "educator1", "educator")
	stu := env.Token(t, "student1", "student")
	c := env.createCourse(t, edu, 100, 20, 2)

	Expect(t, env.Do(t, http.MethodPost, "/enroll", stu, enrollment.SelfEnrollNew{CourseID: c.ID, Amount: 80}), http.StatusPaymentRequired, nil)

	fake := "9a0b7f44-3a5d-4d8e-9d4e-2f7e3d3c9b11"
	body := enrollment.SelfEnrollNew{CourseID: c.ID, PaymentID: &fake, Amount: 80}
	Expect(t, env.Do(t, http.MethodPost, "/enroll", stu, body), http.StatusPaymentRequired, nil)

	Expect(t, env.Do(t, http.MethodPost, "/enroll", stu, enrollment.SelfEnrollNew{CourseID: c.ID, Amount: -1}), http.StatusBadRequest, nil)

	Expect(t, env.Do(t, http.MethodPost, "/enroll", edu, enrollment.SelfEnrollNew{CourseID: c.ID}), http.StatusCreated, nil)

	Expect(t, env.Do(t, http.MethodPost, "/enroll", "", enrollment.SelfEnrollNew{CourseID: c.ID}), http.StatusUnauthorized, nil)
}
