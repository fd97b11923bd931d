package jobs

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestJobLifecycleSetsCompletedAtOnlyWhenTerminal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{ID: "j", Status: StatusPending}

	if err := job.transition(StatusProcessing, now); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if job.CompletedAt != nil {
		t.Fatal("completedAt must not be set while processing")
	}

	for i := 1; i <= 2; i++ {
		if err := job.appendPage(PageArtifact{PageNumber: i, Filename: "p"}); err != nil {
			t.Fatalf("appendPage(%d): %v", i, err)
		}
	}
	if err := job.complete(now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(now) {
		t.Fatalf("unexpected completedAt: %v", job.CompletedAt)
	}
	if job.TotalPages == nil || *job.TotalPages != 2 || job.CompletedPages != 2 {
		t.Fatalf("unexpected page counts: total=%v completed=%d", job.TotalPages, job.CompletedPages)
	}

	if err := job.fail(CodeConversionFailed, "late", now); err == nil {
		t.Fatal("terminal job must not transition again")
	}
	if err := job.appendPage(PageArtifact{PageNumber: 3}); err == nil {
		t.Fatal("pages must be immutable once completed")
	}
}

func TestJobAppendPageRejectsOutOfOrder(t *testing.T) {
	job := &Job{ID: "j", Status: StatusProcessing}
	if err := job.appendPage(PageArtifact{PageNumber: 2}); err == nil {
		t.Fatal("expected error for page 2 before page 1")
	}
	if job.CompletedPages != 0 {
		t.Fatalf("completedPages changed on rejected append: %d", job.CompletedPages)
	}
}

func TestJobFailClearsArtifacts(t *testing.T) {
	now := time.Now()
	job := &Job{ID: "j", Status: StatusProcessing, Pages: []PageArtifact{{PageNumber: 1}}, CompletedPages: 1}
	if err := job.fail(CodeConversionFailed, "boom", now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if job.Status != StatusFailed || job.Error != "boom" || len(job.Pages) != 0 {
		t.Fatalf("unexpected failed job: %+v", job)
	}
	if job.CompletedPages != 1 {
		t.Fatal("completedPages must never decrease")
	}
	if job.TotalPages != nil {
		t.Fatal("failed job must not report totalPages")
	}
}

func TestJobProgress(t *testing.T) {
	total := 4
	cases := []struct {
		job  Job
		want int
	}{
		{Job{Status: StatusPending}, -1},
		{Job{Status: StatusProcessing, SourcePages: 4, CompletedPages: 2}, 50},
		{Job{Status: StatusProcessing, SourcePages: 2, CompletedPages: 3}, 99},
		{Job{Status: StatusCompleted, TotalPages: &total, CompletedPages: 4}, 100},
		{Job{Status: StatusFailed, SourcePages: 3, CompletedPages: 1}, -1},
	}
	for i, tc := range cases {
		if got := tc.job.Progress(); got != tc.want {
			t.Fatalf("case %d: Progress() = %d, want %d", i, got, tc.want)
		}
	}
}
