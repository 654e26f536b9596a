package state

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testCheckpoint(threadID string) *Checkpoint {
	return &Checkpoint{
		Instance: models.WorkflowInstance{
			WorkflowID:     "wf-" + threadID,
			ThreadID:       threadID,
			UserID:         "user-1",
			Type:           models.TypeResearchAnalysis,
			Status:         models.StatusRunning,
			CurrentStep:    "plan_research",
			CompletedSteps: []string{"plan_research"},
			MaxIterations:  25,
			CreatedAt:      time.Now(),
		},
		Data: json.RawMessage(`{"research_query":"market sizing"}`),
	}
}

func TestSaveAndGetCheckpoint(t *testing.T) {
	db := openTestDB(t)

	cp := testCheckpoint("t1")
	if err := db.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := db.GetCheckpoint("t1")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}

	if got.Instance.WorkflowID != cp.Instance.WorkflowID {
		t.Errorf("workflow id mismatch: %s", got.Instance.WorkflowID)
	}
	if got.Instance.Type != models.TypeResearchAnalysis {
		t.Errorf("type mismatch: %s", got.Instance.Type)
	}
	if got.Instance.Status != models.StatusRunning {
		t.Errorf("status mismatch: %s", got.Instance.Status)
	}
	if len(got.Instance.CompletedSteps) != 1 || got.Instance.CompletedSteps[0] != "plan_research" {
		t.Errorf("completed steps mismatch: %v", got.Instance.CompletedSteps)
	}

	var payload struct {
		Query string `json:"research_query"`
	}
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Query != "market sizing" {
		t.Errorf("payload mismatch: %q", payload.Query)
	}
}

func TestSaveCheckpointUpserts(t *testing.T) {
	db := openTestDB(t)

	cp := testCheckpoint("t1")
	if err := db.SaveCheckpoint(cp); err != nil {
		t.Fatalf("first save: %v", err)
	}

	cp.Instance.Status = models.StatusCompleted
	cp.Instance.CurrentStep = "END"
	cp.Instance.CompletedSteps = append(cp.Instance.CompletedSteps, "synthesize_research")
	cp.Data = json.RawMessage(`{"final_report":"done"}`)
	if err := db.SaveCheckpoint(cp); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := db.GetCheckpoint("t1")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.Instance.Status != models.StatusCompleted {
		t.Errorf("expected completed after upsert, got %s", got.Instance.Status)
	}
	if len(got.Instance.CompletedSteps) != 2 {
		t.Errorf("expected 2 completed steps, got %v", got.Instance.CompletedSteps)
	}
}

func TestGetCheckpointNotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveCheckpoint(testCheckpoint("t1")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if err := db.UpdateStatus("t1", models.StatusCancelled, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := db.GetCheckpoint("t1")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.Instance.Status != models.StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Instance.Status)
	}

	if err := db.UpdateStatus("missing", models.StatusCancelled, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown thread, got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	db := openTestDB(t)

	for _, id := range []string{"t1", "t2"} {
		if err := db.SaveCheckpoint(testCheckpoint(id)); err != nil {
			t.Fatalf("SaveCheckpoint %s: %v", id, err)
		}
	}
	other := testCheckpoint("t3")
	other.Instance.UserID = "user-2"
	if err := db.SaveCheckpoint(other); err != nil {
		t.Fatalf("SaveCheckpoint t3: %v", err)
	}

	mine, err := db.ListByUser("user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 checkpoints for user-1, got %d", len(mine))
	}

	theirs, err := db.ListByUser("user-2")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(theirs) != 1 {
		t.Errorf("expected 1 checkpoint for user-2, got %d", len(theirs))
	}

	none, err := db.ListByUser("nobody")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no checkpoints, got %d", len(none))
	}
}

func TestPurgeOlderThanKeepsLiveInstances(t *testing.T) {
	db := openTestDB(t)

	done := testCheckpoint("done")
	done.Instance.Status = models.StatusCompleted
	if err := db.SaveCheckpoint(done); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	live := testCheckpoint("live")
	live.Instance.Status = models.StatusRunning
	if err := db.SaveCheckpoint(live); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	// A negative age makes the cutoff be in the future, so every
	// terminal checkpoint qualifies regardless of write time.
	n, err := db.PurgeOlderThan(-time.Hour)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged checkpoint, got %d", n)
	}

	if _, err := db.GetCheckpoint("done"); !errors.Is(err, ErrNotFound) {
		t.Error("terminal checkpoint should have been purged")
	}
	if _, err := db.GetCheckpoint("live"); err != nil {
		t.Errorf("running checkpoint must survive purge: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := db.SaveCheckpoint(testCheckpoint("t1")); err != nil {
		t.Fatalf("SaveCheckpoint after re-migrate: %v", err)
	}
}

func TestSaveCheckpointPreservesCancelled(t *testing.T) {
	db := openTestDB(t)

	cp := testCheckpoint("t-cancel")
	if err := db.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := db.UpdateStatus("t-cancel", models.StatusCancelled, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// A save racing the cancellation must not resurrect the run.
	late := testCheckpoint("t-cancel")
	late.Instance.Status = models.StatusRunning
	late.Instance.CurrentStep = "synthesize_research"
	late.Instance.CompletedSteps = []string{"plan_research", "research_section"}
	late.Data = json.RawMessage(`{"research_query":"market sizing","final_report":"done"}`)
	if err := db.SaveCheckpoint(late); err != nil {
		t.Fatalf("SaveCheckpoint after cancel: %v", err)
	}

	got, err := db.GetCheckpoint("t-cancel")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.Instance.Status != models.StatusCancelled {
		t.Errorf("expected cancelled to survive the save, got %s", got.Instance.Status)
	}
	if got.Instance.CurrentStep != "plan_research" {
		t.Errorf("expected pre-cancel step, got %s", got.Instance.CurrentStep)
	}
	if len(got.Instance.CompletedSteps) != 1 {
		t.Errorf("expected pre-cancel steps, got %v", got.Instance.CompletedSteps)
	}

	// A failed run may be re-marked running on resume.
	failed := testCheckpoint("t-cancel2")
	failed.Instance.Status = models.StatusFailed
	if err := db.SaveCheckpoint(failed); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	failed.Instance.Status = models.StatusRunning
	if err := db.SaveCheckpoint(failed); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, err = db.GetCheckpoint("t-cancel2")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.Instance.Status != models.StatusRunning {
		t.Errorf("failed must remain overwritable, got %s", got.Instance.Status)
	}
}
