package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunnerForcedRunReturnsResult(t *testing.T) {
	r := NewRunner(newTestLogger(), nil)
	if err := r.Add(JobDueCheck, "", func(context.Context) (any, error) {
		return TickResult{Queued: 3}, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	out, err := r.Run(context.Background(), JobDueCheck)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res, ok := out.(TickResult); !ok || res.Queued != 3 {
		t.Errorf("Run() = %#v", out)
	}

	st := r.Status()
	if len(st) != 1 || st[0].Runs != 1 || st[0].LastRun == nil || st[0].Running {
		t.Errorf("Status() = %+v", st)
	}
}

func TestRunnerRejectsOverlappingRuns(t *testing.T) {
	r := NewRunner(newTestLogger(), nil)
	started := make(chan struct{})
	release := make(chan struct{})
	if err := r.Add(JobSummary, "", func(context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(JobDueCheck, "", func(context.Context) (any, error) { return "ok", nil }); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), JobSummary)
		done <- err
	}()
	<-started

	if _, err := r.Run(context.Background(), JobSummary); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	// Other jobs are not blocked.
	if _, err := r.Run(context.Background(), JobDueCheck); err != nil {
		t.Errorf("Run(%s) error = %v", JobDueCheck, err)
	}

	for _, st := range r.Status() {
		if st.Name == JobSummary && !st.Running {
			t.Error("status should report the summary job as running")
		}
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("first Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first run never finished")
	}
}

func TestRunnerErrors(t *testing.T) {
	r := NewRunner(newTestLogger(), nil)
	if _, err := r.Run(context.Background(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Run(unknown) error = %v", err)
	}
	if err := r.Add("bad", "not a cron spec", func(context.Context) (any, error) { return nil, nil }); err == nil {
		t.Error("Add() should reject an invalid spec")
	}
	noop := func(context.Context) (any, error) { return nil, errors.New("boom") }
	if err := r.Add(JobSummary, DefaultSpec, noop); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(JobSummary, DefaultSpec, noop); err == nil {
		t.Error("Add() should reject a duplicate name")
	}

	if _, err := r.Run(context.Background(), JobSummary); err == nil {
		t.Error("Run() should surface the job error")
	}
	if st := r.Status(); st[0].LastError != "boom" || st[0].Spec != DefaultSpec {
		t.Errorf("Status() = %+v", st)
	}
}

func TestRunnerStartStop(t *testing.T) {
	r := NewRunner(newTestLogger(), nil)
	if err := r.Add(JobDueCheck, DefaultSpec, func(context.Context) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	r.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
