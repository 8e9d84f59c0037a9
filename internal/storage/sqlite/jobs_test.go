package sqlite

import (
	"errors"
	"sync"
	"testing"

	"github.com/pickgear/backend/internal/storage/models"
)

var testMakers = []string{"LG", "Samsung"}

func TestCreateJobSingleFlight(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	job, err := store.CreateJob(models.TriggerManual, "노트북", testMakers)
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.Status != models.JobPending {
		t.Errorf("Status = %q, want PENDING", job.Status)
	}

	// A second job is refused while the first is PENDING.
	if _, err := store.CreateJob(models.TriggerManual, "노트북", testMakers); !errors.Is(err, ErrJobConflict) {
		t.Errorf("CreateJob() error = %v, want ErrJobConflict", err)
	}

	// Still refused while RUNNING.
	if err := store.MarkJobRunning(job.ID); err != nil {
		t.Fatalf("MarkJobRunning() error = %v", err)
	}
	if _, err := store.CreateJob(models.TriggerScheduler, "노트북", testMakers); !errors.Is(err, ErrJobConflict) {
		t.Errorf("CreateJob() error = %v, want ErrJobConflict while running", err)
	}

	// A terminal job frees the queue.
	if err := store.MarkJobDone(job.ID); err != nil {
		t.Fatalf("MarkJobDone() error = %v", err)
	}
	if _, err := store.CreateJob(models.TriggerManual, "노트북", testMakers); err != nil {
		t.Errorf("CreateJob() after completion error = %v", err)
	}
}

func TestCreateJobConcurrent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.CreateJob(models.TriggerManual, "노트북", testMakers)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else if !errors.Is(err, ErrJobConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("%d jobs created concurrently, want exactly 1", created)
	}
}

func TestJobStatusTransitionsAreMonotonic(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	job, err := store.CreateJob(models.TriggerManual, "노트북", testMakers)
	if err != nil {
		t.Fatal(err)
	}

	// DONE requires RUNNING first.
	if err := store.MarkJobDone(job.ID); err == nil {
		t.Error("MarkJobDone() from PENDING should fail")
	}

	if err := store.MarkJobRunning(job.ID); err != nil {
		t.Fatalf("MarkJobRunning() error = %v", err)
	}
	// Claiming twice fails: the job is no longer PENDING.
	if err := store.MarkJobRunning(job.ID); err == nil {
		t.Error("MarkJobRunning() twice should fail")
	}

	if err := store.MarkJobFailed(job.ID); err != nil {
		t.Fatalf("MarkJobFailed() error = %v", err)
	}
	// Terminal states are final.
	if err := store.MarkJobDone(job.ID); err == nil {
		t.Error("MarkJobDone() after FAILED should fail")
	}

	got, err := store.JobByID(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobFailed {
		t.Errorf("Status = %q, want FAILED", got.Status)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("timestamps not recorded: started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
}

func TestNextPendingJobOldestFirst(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first, err := store.CreateJob(models.TriggerManual, "노트북", testMakers)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.NextPendingJob()
	if err != nil {
		t.Fatalf("NextPendingJob() error = %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("NextPendingJob() = %+v, want job %s", got, first.ID)
	}
	if len(got.Makers) != 2 || got.Makers[0] != "LG" {
		t.Errorf("Makers = %v", got.Makers)
	}

	// Empty queue returns nil without error.
	if err := store.MarkJobRunning(first.ID); err != nil {
		t.Fatal(err)
	}
	got, err = store.NextPendingJob()
	if err != nil {
		t.Fatalf("NextPendingJob() error = %v", err)
	}
	if got != nil {
		t.Errorf("NextPendingJob() = %+v, want nil", got)
	}
}

func TestJobLogsOrderingAndIncrementalRead(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	job, err := store.CreateJob(models.TriggerManual, "노트북", testMakers)
	if err != nil {
		t.Fatal(err)
	}

	for _, msg := range []string{"one", "two", "three", "four"} {
		if err := store.AppendJobLog(job.ID, msg); err != nil {
			t.Fatalf("AppendJobLog() error = %v", err)
		}
	}

	logs, err := store.JobLogs(job.ID, 0)
	if err != nil {
		t.Fatalf("JobLogs() error = %v", err)
	}
	if len(logs) != 4 || logs[0].Message != "one" || logs[3].Message != "four" {
		t.Errorf("JobLogs() = %v", logs)
	}

	// A limited read returns the newest lines, still chronological.
	tail, err := store.JobLogs(job.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].Message != "three" || tail[1].Message != "four" {
		t.Errorf("JobLogs(limit=2) = %v", tail)
	}

	// Incremental read picks up only lines after the cursor.
	rest, err := store.JobLogsAfter(job.ID, logs[1].ID)
	if err != nil {
		t.Fatalf("JobLogsAfter() error = %v", err)
	}
	if len(rest) != 2 || rest[0].Message != "three" {
		t.Errorf("JobLogsAfter() = %v", rest)
	}
}

func TestLatestAndRecentJobs(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	latest, err := store.LatestJob()
	if err != nil {
		t.Fatalf("LatestJob() error = %v", err)
	}
	if latest != nil {
		t.Errorf("LatestJob() = %+v on empty table", latest)
	}

	var last *models.PipelineJob
	for i := 0; i < 3; i++ {
		job, err := store.CreateJob(models.TriggerManual, "노트북", testMakers)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.MarkJobRunning(job.ID); err != nil {
			t.Fatal(err)
		}
		if err := store.MarkJobDone(job.ID); err != nil {
			t.Fatal(err)
		}
		last = job
	}

	latest, err = store.LatestJob()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != last.ID {
		t.Errorf("LatestJob() = %+v, want %s", latest, last.ID)
	}

	jobs, err := store.RecentJobs(2)
	if err != nil {
		t.Fatalf("RecentJobs() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != last.ID {
		t.Errorf("RecentJobs() = %+v", jobs)
	}

	missing, err := store.JobByID("no-such-job")
	if err != nil {
		t.Fatalf("JobByID() error = %v", err)
	}
	if missing != nil {
		t.Errorf("JobByID() = %+v, want nil", missing)
	}
}
