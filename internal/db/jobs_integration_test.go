//go:build integration

package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func cleanupJob(t *testing.T, db *DB, job *AgentJob) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = db.pool.Exec(context.Background(), `DELETE FROM agent_jobs WHERE id = $1`, job.ID)
	})
}

func TestIntegration_ClaimIsExclusive(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	jobType := "test_exclusive_" + time.Now().Format("150405.000000")
	job, err := db.EnqueueJob(ctx, jobType, nil, 0)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, job)

	first, err := db.ClaimNextJob(ctx, jobType, "worker-a")
	if err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	if first == nil || first.ID != job.ID {
		t.Fatalf("Expected to claim enqueued job")
	}
	if first.Status != JobClaimed {
		t.Errorf("Expected status claimed, got %s", first.Status)
	}
	if first.ClaimedBy == nil || *first.ClaimedBy != "worker-a" {
		t.Error("Expected claimed_by worker-a")
	}

	// The queue for this type is now empty
	second, err := db.ClaimNextJob(ctx, jobType, "worker-b")
	if err != nil {
		t.Fatalf("Second claim failed: %v", err)
	}
	if second != nil {
		t.Errorf("Expected nil on second claim, got job %s", second.ID)
	}
}

func TestIntegration_ClaimOrderPriorityThenFIFO(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	jobType := "test_order_" + time.Now().Format("150405.000000")

	// low priority first, then two high-priority jobs in order
	low, err := db.EnqueueJob(ctx, jobType, nil, 0)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, low)
	time.Sleep(5 * time.Millisecond)

	highOld, err := db.EnqueueJob(ctx, jobType, nil, 5)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, highOld)
	time.Sleep(5 * time.Millisecond)

	highNew, err := db.EnqueueJob(ctx, jobType, nil, 5)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, highNew)

	want := []*AgentJob{highOld, highNew, low}
	for i, expected := range want {
		claimed, err := db.ClaimNextJob(ctx, jobType, "worker")
		if err != nil {
			t.Fatalf("Claim %d failed: %v", i, err)
		}
		if claimed == nil {
			t.Fatalf("Claim %d returned nil", i)
		}
		if claimed.ID != expected.ID {
			t.Errorf("Claim %d: expected job %s, got %s", i, expected.ID, claimed.ID)
		}
	}
}

func TestIntegration_FinishJobGuards(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	jobType := "test_finish_" + time.Now().Format("150405.000000")
	job, err := db.EnqueueJob(ctx, jobType, json.RawMessage(`{"k":1}`), 0)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, job)

	// Completing an unclaimed job is an invalid transition
	_, err = db.CompleteJob(ctx, job.ID, nil)
	var invalid *ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected ErrInvalidTransition for unclaimed job, got: %v", err)
	}

	claimed, err := db.ClaimNextJob(ctx, jobType, "worker")
	if err != nil || claimed == nil {
		t.Fatalf("Claim failed: %v", err)
	}

	failed, err := db.FailJob(ctx, job.ID, "handler exploded")
	if err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	if failed.Status != JobFailed || failed.ErrorMsg != "handler exploded" {
		t.Errorf("Expected failed status with message, got %s %q", failed.Status, failed.ErrorMsg)
	}
	if failed.CompletedAt == nil {
		t.Error("Expected completed_at stamped on failure")
	}

	// Terminal job cannot be completed afterwards
	_, err = db.CompleteJob(ctx, job.ID, nil)
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected ErrInvalidTransition for terminal job, got: %v", err)
	}
}

func TestIntegration_ListJobsFilters(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	jobType := "test_list_" + time.Now().Format("150405.000000")
	a, err := db.EnqueueJob(ctx, jobType, nil, 0)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, a)
	b, err := db.EnqueueJob(ctx, jobType, nil, 0)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	cleanupJob(t, db, b)

	if _, err := db.ClaimNextJob(ctx, jobType, "worker"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	queued, err := db.ListJobs(ctx, JobFilters{Type: jobType, Status: JobQueued})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(queued) != 1 {
		t.Errorf("Expected 1 queued job, got %d", len(queued))
	}

	all, err := db.ListJobs(ctx, JobFilters{Type: jobType})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 jobs of type, got %d", len(all))
	}
}
