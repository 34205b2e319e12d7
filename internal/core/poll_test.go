package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/extraction"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
)

var pdfBytes = []byte("%PDF-1.7\n")

// stageOnDispatch makes the dispatcher write payload back under the request key.
func stageOnDispatch(env *testEnv, payload staging.Payload) {
	env.dispatch.hook = func(req extraction.Request) {
		_ = env.staging.Put(context.Background(), req.Key, payload)
	}
}

func TestStartDocument_PayloadMovesToReviewing(t *testing.T) {
	env := newTestEnv(t, 5)
	stageOnDispatch(env, staging.Payload{
		{"date": "2024-01-15", "description": "Coffee", "amount": json.Number("-4.50")},
		{"date": "2024-01-16", "description": "Lunch", "amount": json.Number("12.00"), "category": "Meals"},
	})

	s, err := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}
	if s.CorrelationKey == "" {
		t.Fatal("CorrelationKey is empty")
	}
	if s.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", s.MaxAttempts)
	}

	reqs := env.dispatch.requests()
	if len(reqs) != 1 {
		t.Fatalf("dispatched %d requests, want 1", len(reqs))
	}
	if reqs[0].Key != s.CorrelationKey {
		t.Errorf("dispatched key = %q, want %q", reqs[0].Key, s.CorrelationKey)
	}
	if reqs[0].Filename != "receipt.pdf" {
		t.Errorf("dispatched filename = %q, want receipt.pdf", reqs[0].Filename)
	}

	s = waitForState(t, env.c, s.ID, StateReviewing)

	if len(s.Review) != 2 {
		t.Fatalf("len(Review) = %d, want 2", len(s.Review))
	}
	if s.Report == nil || !s.Report.Valid() {
		t.Fatalf("report = %+v, want valid", s.Report)
	}
	if got := s.Review[1][mapping.FieldCategory]; got != "Meals" {
		t.Errorf("category = %q, want Meals", got)
	}
	if s.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", s.Attempts)
	}
	if env.mem.Len() != 0 {
		t.Errorf("staging still holds %d entries", env.mem.Len())
	}
}

func TestStartDocument_TimesOutAfterExactAttempts(t *testing.T) {
	env := newTestEnv(t, 3)

	s, err := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}

	s = waitForState(t, env.c, s.ID, StateTimedOut)

	if got := env.staging.takeCount(); got != 3 {
		t.Errorf("TakeOnce calls = %d, want 3", got)
	}
	if s.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", s.Attempts)
	}
	if s.Err != msgTimedOut {
		t.Errorf("Err = %q, want %q", s.Err, msgTimedOut)
	}
}

func TestStartDocument_TimesOutAtDeadline(t *testing.T) {
	env := newTestEnv(t, 3)

	start := time.Now()
	s, err := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}
	waitForState(t, env.c, s.ID, StateTimedOut)

	// Reads happen at 0, 5 and 10ms; the timeout waits out the last interval.
	if elapsed, deadline := time.Since(start), 3*5*time.Millisecond; elapsed < deadline {
		t.Errorf("timed out after %v, want at least %v", elapsed, deadline)
	}
	if got := env.staging.takeCount(); got != 3 {
		t.Errorf("TakeOnce calls = %d, want 3", got)
	}
}

func TestRetryPoll_FreshBudget(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	s, err := env.c.StartDocument(ctx, "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}
	waitForState(t, env.c, s.ID, StateTimedOut)

	// The result arrives late, after the first budget ran out.
	if err := env.staging.Put(ctx, s.CorrelationKey, staging.Payload{
		{"date": "2024-01-15", "description": "Coffee", "amount": "-4.50"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	retried, err := env.c.RetryPoll(ctx, s.ID)
	if err != nil {
		t.Fatalf("RetryPoll: %v", err)
	}
	if retried.CorrelationKey != s.CorrelationKey {
		t.Errorf("CorrelationKey changed on retry")
	}

	s = waitForState(t, env.c, s.ID, StateReviewing)
	if s.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 after retry", s.Attempts)
	}
	if s.Err != "" {
		t.Errorf("Err = %q, want empty", s.Err)
	}
}

func TestRetryPoll_OnlyFromTimedOut(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	s, _ := env.c.StartCSV(ctx, "bank.csv", strings.NewReader(coffeeCSV))
	if _, err := env.c.RetryPoll(ctx, s.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("RetryPoll error = %v, want ErrInvalidTransition", err)
	}
}

func TestStartDocument_EmptyPayloadFails(t *testing.T) {
	env := newTestEnv(t, 5)
	stageOnDispatch(env, staging.Payload{})

	s, err := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}

	s = waitForState(t, env.c, s.ID, StateFailed)
	if s.Err != msgNoRows {
		t.Errorf("Err = %q, want %q", s.Err, msgNoRows)
	}
}

func TestStartDocument_TooManyRowsFails(t *testing.T) {
	env := newTestEnv(t, 5)
	payload := make(staging.Payload, 101)
	for i := range payload {
		payload[i] = map[string]any{"date": "2024-01-15", "description": "x", "amount": "1"}
	}
	stageOnDispatch(env, payload)

	s, _ := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)
	s = waitForState(t, env.c, s.ID, StateFailed)

	if !strings.Contains(s.Err, "too many rows") {
		t.Errorf("Err = %q, want too many rows", s.Err)
	}
}

func TestStartDocument_StagingErrorFails(t *testing.T) {
	env := newTestEnv(t, 5)
	env.staging.takeErr = fmt.Errorf("take: %w: %w", staging.ErrUnavailable, errors.New("connection refused"))

	s, err := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}

	s = waitForState(t, env.c, s.ID, StateFailed)
	if !strings.HasPrefix(s.Err, msgStagingUnavailable) {
		t.Errorf("Err = %q, want prefix %q", s.Err, msgStagingUnavailable)
	}
	if got := env.staging.takeCount(); got != 1 {
		t.Errorf("TakeOnce calls = %d, want 1", got)
	}
}

func TestStartDocument_DispatchErrorFails(t *testing.T) {
	env := newTestEnv(t, 5)
	env.dispatch.err = &extraction.DispatchError{StatusCode: 502, Body: "bad gateway"}

	s, err := env.c.StartDocument(context.Background(), "receipt.pdf", "application/pdf", pdfBytes)

	var de *extraction.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("StartDocument error = %v, want *DispatchError", err)
	}
	if s.State != StateFailed {
		t.Errorf("State = %s, want %s", s.State, StateFailed)
	}
	if s.Err == "" {
		t.Error("Err is empty")
	}

	env.c.wg.Wait()
	if got := env.staging.takeCount(); got != 0 {
		t.Errorf("TakeOnce calls = %d, want 0", got)
	}
	if got := env.c.LimiterStatus().Active; got != 0 {
		t.Errorf("dispatch slots in use = %d, want 0", got)
	}
}

func TestStartDocument_Disabled(t *testing.T) {
	env := newTestEnv(t, 1)
	env.c.dispatcher = nil

	if _, err := env.c.StartDocument(context.Background(), "r.pdf", "application/pdf", pdfBytes); !errors.Is(err, ErrDocumentsDisabled) {
		t.Errorf("StartDocument error = %v, want ErrDocumentsDisabled", err)
	}
}

func TestCancel_StopsPollingAndReleasesKey(t *testing.T) {
	env := newTestEnv(t, 10000)
	ctx := context.Background()

	s, err := env.c.StartDocument(ctx, "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}

	s, err = env.c.Cancel(ctx, s.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.State != StateCancelled {
		t.Errorf("State = %s, want %s", s.State, StateCancelled)
	}

	env.c.wg.Wait()
	before := env.staging.takeCount()

	// A result written after cancellation is never picked up.
	if err := env.staging.Put(ctx, s.CorrelationKey, staging.Payload{{"a": "1"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := env.staging.takeCount(); got != before {
		t.Errorf("TakeOnce calls after cancel = %d, want %d", got, before)
	}

	env.staging.mu.Lock()
	deletes := append([]string(nil), env.staging.deletes...)
	env.staging.mu.Unlock()
	if len(deletes) != 1 || deletes[0] != s.CorrelationKey {
		t.Errorf("deleted keys = %v, want [%s]", deletes, s.CorrelationKey)
	}

	if _, err := env.c.Cancel(ctx, s.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Cancel error = %v, want ErrInvalidTransition", err)
	}
}

func TestCancel_DuringDispatch(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	env.dispatch.hook = func(req extraction.Request) {
		for _, s := range env.c.List() {
			if s.CorrelationKey == req.Key {
				if _, err := env.c.Cancel(ctx, s.ID); err != nil {
					t.Errorf("Cancel: %v", err)
				}
			}
		}
	}

	s, err := env.c.StartDocument(ctx, "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}
	if s.State != StateCancelled {
		t.Errorf("State = %s, want %s", s.State, StateCancelled)
	}

	env.c.wg.Wait()
	if got := env.staging.takeCount(); got != 0 {
		t.Errorf("TakeOnce calls = %d, want 0", got)
	}
}

func TestShutdown_StopsPollers(t *testing.T) {
	env := newTestEnv(t, 10000)
	ctx := context.Background()

	s, err := env.c.StartDocument(ctx, "receipt.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("StartDocument: %v", err)
	}

	if err := env.c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got, _ := env.c.Get(s.ID)
	if got.State != StatePolling {
		t.Errorf("State = %s, want %s", got.State, StatePolling)
	}
}
