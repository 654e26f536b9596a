package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// memSaver records checkpoints in memory. statusOverride, when set,
// is what Status reports regardless of the last saved status.
type memSaver struct {
	mu             sync.Mutex
	saves          int
	last           models.WorkflowInstance
	lastData       json.RawMessage
	statusOverride models.WorkflowStatus
}

func (m *memSaver) Save(inst *models.WorkflowInstance, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = *inst
	m.last.CompletedSteps = append([]string(nil), inst.CompletedSteps...)
	m.lastData = append(json.RawMessage(nil), data...)
	return nil
}

func (m *memSaver) Status(threadID string) (models.WorkflowStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusOverride != "" {
		return m.statusOverride, nil
	}
	return m.last.Status, nil
}

func newInstance() *models.WorkflowInstance {
	return &models.WorkflowInstance{
		WorkflowID:    "wf-1",
		ThreadID:      "thread-1",
		UserID:        "user-1",
		Type:          models.TypeTaskOrchestration,
		MaxIterations: 10,
	}
}

func record(name string) NodeFunc[listState] {
	return func(_ context.Context, s listState) (listState, error) {
		s.Steps = append(s.Steps, name)
		return s, nil
	}
}

func TestStartRunsSequentialGraph(t *testing.T) {
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddNode("b", record("b")).
		AddNode("c", record("c")).
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	saver := &memSaver{}
	inst := newInstance()

	final, err := compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: saver}, listState{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(final.Steps) != 3 || final.Steps[0] != "a" || final.Steps[2] != "c" {
		t.Errorf("unexpected execution order: %v", final.Steps)
	}
	if inst.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", inst.Status)
	}
	if inst.CurrentStep != END {
		t.Errorf("expected current step END, got %s", inst.CurrentStep)
	}
	if len(inst.CompletedSteps) != 3 {
		t.Errorf("expected 3 completed steps, got %v", inst.CompletedSteps)
	}
	// Initial checkpoint, one per node, one at completion.
	if saver.saves != 5 {
		t.Errorf("expected 5 checkpoints, got %d", saver.saves)
	}

	var persisted listState
	if err := json.Unmarshal(saver.lastData, &persisted); err != nil {
		t.Fatalf("decode final checkpoint: %v", err)
	}
	if len(persisted.Steps) != 3 {
		t.Errorf("final checkpoint missing state: %v", persisted.Steps)
	}
}

func TestConditionalLoopTerminates(t *testing.T) {
	type loopState struct {
		N int `json:"n"`
	}

	compiled, err := NewGraph[loopState]().
		AddNode("inc", func(_ context.Context, s loopState) (loopState, error) {
			s.N++
			return s, nil
		}).
		AddConditionalEdge("inc", func(s loopState) string {
			if s.N >= 3 {
				return END
			}
			return "inc"
		}, "inc", END).
		SetEntry("inc").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	final, err := compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}}, loopState{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if final.N != 3 {
		t.Errorf("expected 3 loop passes, got %d", final.N)
	}
	if inst.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", inst.Status)
	}
}

func TestRunawayLoopFails(t *testing.T) {
	type loopState struct{ N int }

	compiled, err := NewGraph[loopState]().
		AddNode("spin", func(_ context.Context, s loopState) (loopState, error) {
			s.N++
			return s, nil
		}).
		AddConditionalEdge("spin", func(loopState) string { return "spin" }, "spin", END).
		SetEntry("spin").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	inst.MaxIterations = 4

	_, err = compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}}, loopState{})
	if !errors.Is(err, ErrRunaway) {
		t.Fatalf("expected ErrRunaway, got %v", err)
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}
	if inst.LastError == "" {
		t.Error("expected last error to be recorded")
	}
	// One node, so the bound is MaxIterations passes.
	if len(inst.CompletedSteps) != 4 {
		t.Errorf("expected exactly 4 passes before the bound, got %d", len(inst.CompletedSteps))
	}
}

func TestNodeErrorMarksFailed(t *testing.T) {
	boom := errors.New("boom")
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddNode("b", func(_ context.Context, s listState) (listState, error) {
			return s, boom
		}).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	saver := &memSaver{}
	_, err = compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: saver}, listState{})

	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("expected NodeError, got %v", err)
	}
	if nodeErr.Node != "b" {
		t.Errorf("expected failure in node b, got %s", nodeErr.Node)
	}
	if !errors.Is(err, boom) {
		t.Error("expected the cause to unwrap")
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}
	if inst.ErrorCount != 1 {
		t.Errorf("expected error count 1, got %d", inst.ErrorCount)
	}
	if saver.last.Status != models.StatusFailed {
		t.Error("failure must be checkpointed")
	}
}

func TestCancellationStopsBeforeNextNode(t *testing.T) {
	saver := &memSaver{}
	ran := 0

	compiled, err := NewGraph[listState]().
		AddNode("a", func(_ context.Context, s listState) (listState, error) {
			ran++
			// Cancel arrives while the node is in flight.
			saver.mu.Lock()
			saver.statusOverride = models.StatusCancelled
			saver.mu.Unlock()
			return s, nil
		}).
		AddNode("b", func(_ context.Context, s listState) (listState, error) {
			ran++
			return s, nil
		}).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	_, err = compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: saver}, listState{})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if ran != 1 {
		t.Errorf("expected only the in-flight node to run, got %d", ran)
	}
	if inst.Status != models.StatusCancelled {
		t.Errorf("expected cancelled, got %s", inst.Status)
	}
}

func TestContextCancellationFailsRun(t *testing.T) {
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inst := newInstance()
	_, err = compiled.Start(ctx, RunConfig{Instance: inst, Saver: &memSaver{}}, listState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}
}

func TestFanOutMergesEveryWorkerOnce(t *testing.T) {
	type fanState struct {
		Items   []int `json:"items"`
		Results []int `json:"results"`
	}

	compiled, err := NewGraph[fanState]().
		AddNode("split", func(_ context.Context, s fanState) (fanState, error) {
			s.Items = []int{1, 2, 3, 4}
			return s, nil
		}).
		AddNode("work", func(_ context.Context, s fanState) (fanState, error) {
			s.Results = append(s.Results, s.Items[0]*10)
			return s, nil
		}).
		AddNode("join", func(_ context.Context, s fanState) (fanState, error) {
			return s, nil
		}).
		AddFanOut("split", FanOut[fanState]{
			Worker: "work",
			Join:   "join",
			Split: func(s fanState) []fanState {
				out := make([]fanState, 0, len(s.Items))
				for _, item := range s.Items {
					out = append(out, fanState{Items: []int{item}})
				}
				return out
			},
			Merge: func(acc, w fanState) fanState {
				acc.Results = append(acc.Results, w.Results...)
				return acc
			},
		}).
		AddEdge("join", END).
		SetEntry("split").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	final, err := compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}, Concurrency: 2}, fanState{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	sort.Ints(final.Results)
	want := []int{10, 20, 30, 40}
	if len(final.Results) != len(want) {
		t.Fatalf("expected %d results, got %v", len(want), final.Results)
	}
	for i := range want {
		if final.Results[i] != want[i] {
			t.Errorf("expected results %v, got %v", want, final.Results)
			break
		}
	}
	if inst.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", inst.Status)
	}
}

func TestFanOutMinResultsToleratesFailures(t *testing.T) {
	type fanState struct {
		ID      int   `json:"id"`
		IDs     []int `json:"ids"`
		Results []int `json:"results"`
	}

	build := func(minResults int) *Compiled[fanState] {
		compiled, err := NewGraph[fanState]().
			AddNode("src", func(_ context.Context, s fanState) (fanState, error) {
				s.IDs = []int{1, 2, 3}
				return s, nil
			}).
			AddNode("work", func(_ context.Context, s fanState) (fanState, error) {
				if s.ID == 2 {
					return s, fmt.Errorf("worker %d failed", s.ID)
				}
				s.Results = append(s.Results, s.ID)
				return s, nil
			}).
			AddNode("join", func(_ context.Context, s fanState) (fanState, error) {
				return s, nil
			}).
			AddFanOut("src", FanOut[fanState]{
				Worker:     "work",
				Join:       "join",
				MinResults: minResults,
				Split: func(s fanState) []fanState {
					out := make([]fanState, 0, len(s.IDs))
					for _, id := range s.IDs {
						out = append(out, fanState{ID: id})
					}
					return out
				},
				Merge: func(acc, w fanState) fanState {
					acc.Results = append(acc.Results, w.Results...)
					return acc
				},
			}).
			AddEdge("join", END).
			SetEntry("src").
			Compile()
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		return compiled
	}

	// MinResults 1 tolerates the failing worker.
	final, err := build(1).Start(context.Background(), RunConfig{Instance: newInstance(), Saver: &memSaver{}}, fanState{})
	if err != nil {
		t.Fatalf("expected tolerant fan-out to succeed: %v", err)
	}
	if len(final.Results) != 2 {
		t.Errorf("expected 2 merged results, got %v", final.Results)
	}

	// MinResults 0 requires every worker.
	inst := newInstance()
	_, err = build(0).Start(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}}, fanState{})
	if err == nil {
		t.Fatal("expected strict fan-out to fail")
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}
}

func TestResumeContinuesFromCurrentStep(t *testing.T) {
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddNode("b", record("b")).
		AddNode("c", record("c")).
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	inst.Status = models.StatusPaused
	inst.CurrentStep = "b"
	inst.CompletedSteps = []string{"a"}

	final, err := compiled.Resume(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}}, listState{Steps: []string{"a"}})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if len(final.Steps) != 3 || final.Steps[1] != "b" || final.Steps[2] != "c" {
		t.Errorf("expected resume to run only b and c, got %v", final.Steps)
	}
	if inst.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", inst.Status)
	}
}

func TestResumeUnknownStep(t *testing.T) {
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	inst.CurrentStep = "ghost"

	if _, err := compiled.Resume(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}}, listState{}); err == nil {
		t.Fatal("expected an error for an unknown resume step")
	}
}

func TestRouterUnknownCandidateFails(t *testing.T) {
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddConditionalEdge("a", func(listState) string { return "ghost" }, "a", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	_, err = compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: &memSaver{}}, listState{})
	if err == nil {
		t.Fatal("expected an error for an out-of-set router result")
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}
}

// brokenSaver fails every save once failAfter saves have succeeded.
type brokenSaver struct {
	memSaver
	failAfter int
}

func (b *brokenSaver) Save(inst *models.WorkflowInstance, data json.RawMessage) error {
	b.mu.Lock()
	n := b.saves
	b.mu.Unlock()
	if n >= b.failAfter {
		return errors.New("disk full")
	}
	return b.memSaver.Save(inst, data)
}

func TestNodeErrorSurvivesCheckpointWriteFailure(t *testing.T) {
	boom := errors.New("boom")
	compiled, err := NewGraph[listState]().
		AddNode("a", record("a")).
		AddNode("b", func(_ context.Context, s listState) (listState, error) {
			return s, boom
		}).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	// Initial checkpoint and the post-"a" checkpoint land; the failure
	// checkpoint write itself fails.
	saver := &brokenSaver{failAfter: 2}
	inst := newInstance()
	var logs []string
	run := RunConfig{
		Instance: inst,
		Saver:    saver,
		DebugLog: func(format string, args ...any) {
			logs = append(logs, fmt.Sprintf(format, args...))
		},
	}

	_, err = compiled.Start(context.Background(), run, listState{})

	// The node's error is what the caller sees, not the write failure.
	var ne *NodeError
	if !errors.As(err, &ne) || ne.Node != "b" {
		t.Fatalf("expected NodeError for b, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected the node error to unwrap, got %v", err)
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}

	logged := false
	for _, line := range logs {
		if strings.Contains(line, "checkpoint not written") {
			logged = true
		}
	}
	if !logged {
		t.Errorf("expected the lost checkpoint to be logged, got %q", logs)
	}
}

func TestCancelDuringFinalNodeWinsOverCompletion(t *testing.T) {
	saver := &memSaver{}

	compiled, err := NewGraph[listState]().
		AddNode("a", func(_ context.Context, s listState) (listState, error) {
			saver.mu.Lock()
			saver.statusOverride = models.StatusCancelled
			saver.mu.Unlock()
			return s, nil
		}).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inst := newInstance()
	_, err = compiled.Start(context.Background(), RunConfig{Instance: inst, Saver: saver}, listState{})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if inst.Status != models.StatusCancelled {
		t.Errorf("a cancel during the final node must not complete the run, got %s", inst.Status)
	}
}
