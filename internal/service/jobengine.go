// Package service implements the CrewForge use-cases on top of the ports:
// the job engine, the tool broker and dispatcher, the scheduler loops, and
// the orchestrator.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/job"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// StepHandler executes one named phase of a job. Handlers report failure via
// StepResult, reserving Go errors for infrastructure faults; both are retried
// the same way.
type StepHandler func(ctx context.Context) job.StepResult

// JobEngine drives a job through an ordered sequence of named steps with
// bounded retries. It is the only writer of job, job_step, and job_event rows.
type JobEngine struct {
	store  database.Store
	bus    eventbus.Bus
	logger *slog.Logger

	maxAttempts int
	backoffCap  time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewJobEngine creates a JobEngine. maxAttempts and backoffCap guard each
// step; zero values fall back to 2 attempts and a 5s ceiling.
func NewJobEngine(store database.Store, bus eventbus.Bus, logger *slog.Logger, maxAttempts int, backoffCap time.Duration) *JobEngine {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if backoffCap <= 0 {
		backoffCap = 5 * time.Second
	}
	return &JobEngine{
		store:       store,
		bus:         bus,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoffCap:  backoffCap,
		sleep:       sleepCtx,
	}
}

// CreateJob returns the run's job, creating it on first call. A run has
// exactly one job; repeated calls return the existing row untouched.
func (e *JobEngine) CreateJob(ctx context.Context, runID string) (*job.Job, error) {
	existing, err := e.store.GetJobByRun(ctx, runID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("look up job for run %s: %w", runID, err)
	}

	j := &job.Job{RunID: runID, Status: job.StatusCreated, CurrentStep: "created"}
	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job for run %s: %w", runID, err)
	}
	return j, nil
}

// Run executes the named steps in order. Each step gets up to maxAttempts
// tries with exponential backoff capped at backoffCap; attempts are persisted
// before the try so a crash cannot under-count. A step with no handler is a
// configuration fault and fails immediately. The first step that exhausts its
// attempts fails the job and stops the sequence.
func (e *JobEngine) Run(ctx context.Context, jobID string, steps []string, handlers map[string]StepHandler) error {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	j.Status = job.StatusRunning
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	for _, name := range steps {
		if err := e.runStep(ctx, j, name, handlers[name]); err != nil {
			j.Status = job.StatusFailed
			j.CurrentStep = name
			if updErr := e.store.UpdateJob(ctx, j); updErr != nil {
				e.logger.Warn("persist failed job", "job_id", j.ID, "error", updErr)
			}
			e.emit(ctx, j, "", event.TypeJobFailed, map[string]any{"step": name, "error": err.Error()})
			return err
		}
	}

	j.Status = job.StatusCompleted
	j.CurrentStep = "completed"
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	e.emit(ctx, j, "", event.TypeJobCompleted, map[string]any{"run_id": j.RunID})
	return nil
}

func (e *JobEngine) runStep(ctx context.Context, j *job.Job, name string, handler StepHandler) error {
	now := time.Now().UTC()
	step := &job.Step{JobID: j.ID, Name: name, Status: job.StatusRunning, StartedAt: &now}
	if err := e.store.CreateJobStep(ctx, step); err != nil {
		return fmt.Errorf("create step %s: %w", name, err)
	}

	j.CurrentStep = name
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("advance job to %s: %w", name, err)
	}
	e.emit(ctx, j, step.ID, event.TypeJobStepStarted, map[string]any{"step": name})

	if handler == nil {
		return e.failStep(ctx, j, step, fmt.Sprintf("no handler registered for step %q", name))
	}

	var lastErr string
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		step.Attempts = attempt
		if err := e.store.UpdateJobStep(ctx, step); err != nil {
			return fmt.Errorf("persist step attempt: %w", err)
		}

		result := handler(ctx)
		if result.Success {
			end := time.Now().UTC()
			step.Status = job.StatusCompleted
			step.EndedAt = &end
			step.Error = ""
			if err := e.store.UpdateJobStep(ctx, step); err != nil {
				return fmt.Errorf("complete step %s: %w", name, err)
			}
			e.emit(ctx, j, step.ID, event.TypeJobStepCompleted,
				map[string]any{"step": name, "attempts": attempt})
			return nil
		}

		lastErr = result.Error
		if lastErr == "" {
			lastErr = "step failed"
		}
		if attempt < e.maxAttempts {
			e.logger.Warn("step failed, retrying",
				"job_id", j.ID, "step", name, "attempt", attempt, "error", lastErr)
			e.sleep(ctx, e.backoff(attempt))
			if ctx.Err() != nil {
				return e.failStep(ctx, j, step, ctx.Err().Error())
			}
		}
	}

	return e.failStep(ctx, j, step, lastErr)
}

func (e *JobEngine) failStep(ctx context.Context, j *job.Job, step *job.Step, reason string) error {
	end := time.Now().UTC()
	step.Status = job.StatusFailed
	step.EndedAt = &end
	step.Error = reason
	if err := e.store.UpdateJobStep(ctx, step); err != nil {
		e.logger.Warn("persist failed step", "job_id", j.ID, "step", step.Name, "error", err)
	}
	return fmt.Errorf("step %s failed: %s", step.Name, reason)
}

// backoff returns min(2^attempt, cap) seconds.
func (e *JobEngine) backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > e.backoffCap {
		return e.backoffCap
	}
	return d
}

// emit persists a job event row and publishes it on the bus. Persistence
// failures are logged, not fatal; the job itself is the source of truth.
func (e *JobEngine) emit(ctx context.Context, j *job.Job, stepID string, t event.Type, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	row := &job.Event{JobID: j.ID, StepID: stepID, Type: string(t), Payload: data}
	if err := e.store.AppendJobEvent(ctx, row); err != nil {
		e.logger.Warn("append job event", "job_id", j.ID, "type", t, "error", err)
	}

	payload["job_id"] = j.ID
	payload["run_id"] = j.RunID
	e.bus.Publish(event.New(t, payload))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
