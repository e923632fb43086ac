package service

import (
	"fmt"
	"testing"

	"github.com/Strob0t/CrewForge/internal/domain/task"
)

func newManagerLoop(e *env) *ManagerLoop {
	return NewManagerLoop(e.store, e.bus, e.runtime, e.dispatcher,
		e.settings, e.teams, e.logger, nil, schedulerConfig())
}

func TestManagerLoopAssignsAndApproves(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)
	e.invoker.responses = []string{"Implemented the endpoint.", "APPROVED"}

	tk := &task.Task{RunID: r.ID, Title: "Implement the login API"}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.AssignedRole != "Developer" {
		t.Fatalf("assigned role = %q, want Developer by keyword score", got.AssignedRole)
	}

	// Two chat messages: the assignee's output and the reviewer's verdict.
	msgs, _ := e.artifacts.ReadChats(r.ID)
	if len(msgs) != 2 || msgs[0].Agent != "Dana" || msgs[1].Agent != "Priya" {
		t.Fatalf("chat = %+v", msgs)
	}
	if msgs[1].Content != "APPROVED" {
		t.Fatalf("verdict = %q", msgs[1].Content)
	}
}

func TestManagerLoopRetryVerdictRequeues(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)
	e.invoker.responses = []string{"Implemented the endpoint.", "RETRY missing tests"}

	tk := &task.Task{RunID: r.ID, Title: "Implement the login API"}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending after RETRY", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want the failed attempt kept", got.Attempts)
	}
	if got.AssignedRole != "" {
		t.Fatalf("assigned role = %q, want cleared so the manager reassigns", got.AssignedRole)
	}
}

func TestManagerLoopMalformedVerdictCompletes(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)
	e.invoker.responses = []string{"Implemented the endpoint.", "Looks fine to me."}

	tk := &task.Task{RunID: r.ID, Title: "Implement the login API"}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("status = %s, a non-RETRY verdict completes", got.Status)
	}
}

func TestManagerLoopSelfReviewSkipsVerdict(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)
	e.invoker.responses = []string{"Groomed the backlog."}

	tk := &task.Task{RunID: r.ID, Title: "Plan the sprint", AssignedRole: "Product Owner"}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if len(e.invoker.prompts) != 1 {
		t.Fatalf("invocations = %d, want 1 (no self-review)", len(e.invoker.prompts))
	}
}

func TestManagerLoopLeavesWorkerTasksAlone(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)

	tk := &task.Task{RunID: r.ID, Title: "Implement the login API", AssignedRole: "Developer"}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusPending {
		t.Fatalf("status = %s, worker-addressed task was claimed", got.Status)
	}
	if len(e.invoker.prompts) != 0 {
		t.Fatal("model invoked for a worker task")
	}
}

func TestManagerLoopForceFailsAtRetryLimit(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)

	tk := &task.Task{RunID: r.ID, Title: "Implement the login API"}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.store.ClaimTask(t.Context(), tk.ID, "Developer"); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if err := e.store.RequeueTask(t.Context(), tk.ID); err != nil {
			t.Fatalf("requeue %d: %v", i, err)
		}
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %s, want failed at the retry limit", got.Status)
	}
	if got.FailureReason != fmt.Sprintf("max_attempts:%d", 3) {
		t.Fatalf("failure reason = %q", got.FailureReason)
	}
	if len(e.invoker.prompts) != 0 {
		t.Fatal("model invoked for a force-failed task")
	}
}

func TestManagerLoopForceFailsWorkerRoleTaskAtLimit(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	m := newManagerLoop(e)

	// A worker-role task at the limit must not slip past the ownership gate.
	tk := &task.Task{RunID: r.ID, Title: "Implement the login API", AssignedRole: "Developer", Attempts: 3}
	if err := e.store.CreateTask(t.Context(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	m.tick(t.Context())

	got, _ := e.store.GetTask(t.Context(), tk.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("status = %s, want failed at the retry limit", got.Status)
	}
	if got.FailureReason != fmt.Sprintf("max_attempts:%d", 3) {
		t.Fatalf("failure reason = %q", got.FailureReason)
	}
	if len(e.invoker.prompts) != 0 {
		t.Fatal("model invoked for a force-failed task")
	}
}
