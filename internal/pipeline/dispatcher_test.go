package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/config"
	"github.com/mojiQAQ/petsphoto/internal/domain"
)

type blockingProcessor struct {
	mu        sync.Mutex
	started   chan string
	cancelled []string
}

func (p *blockingProcessor) Process(ctx context.Context, jobID string) {
	p.started <- jobID
	<-ctx.Done()
	p.mu.Lock()
	p.cancelled = append(p.cancelled, jobID)
	p.mu.Unlock()
}

func TestDispatcherRunsConcurrentJobsIndependently(t *testing.T) {
	h := newHarness(t)
	h.addJob("job-a")
	h.addJob("job-b")
	settings := map[string]string{"delay": "20ms"}
	o := h.orchestrator(stubSource{cfg: config.ProviderConfig{Provider: "mock", Settings: settings}}, realFactory)
	d := NewDispatcher(o, time.Minute, nil)

	for _, id := range []string{"job-a", "job-b"} {
		if err := d.Dispatch(id); err != nil {
			t.Fatalf("Dispatch(%s): %v", id, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	a, b := h.store.snapshot("job-a"), h.store.snapshot("job-b")
	for _, job := range []domain.GenerationJob{a, b} {
		if job.Status != domain.JobStatusCompleted {
			t.Fatalf("%s status = %s, want completed", job.ID, job.Status)
		}
	}
	if *a.ResultImageURL == *b.ResultImageURL {
		t.Fatalf("jobs share result %q", *a.ResultImageURL)
	}
	if files := h.generatedFiles(t); len(files) != 2 {
		t.Fatalf("generated files = %v, want 2", files)
	}
}

func TestDispatcherShutdownCancelsAfterGrace(t *testing.T) {
	p := &blockingProcessor{started: make(chan string, 2)}
	d := NewDispatcher(p, time.Minute, nil)
	for _, id := range []string{"a", "b"} {
		if err := d.Dispatch(id); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	<-p.started
	<-p.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown error = %v, want deadline exceeded", err)
	}
	if len(p.cancelled) != 2 {
		t.Fatalf("cancelled = %v, want both jobs", p.cancelled)
	}
	if err := d.Dispatch("c"); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("Dispatch after shutdown = %v, want ErrDispatcherClosed", err)
	}
}

func TestDispatcherAppliesJobTimeout(t *testing.T) {
	p := &blockingProcessor{started: make(chan string, 1)}
	d := NewDispatcher(p, 10*time.Millisecond, nil)
	if err := d.Dispatch("slow"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(p.cancelled) != 1 {
		t.Fatalf("job deadline did not fire: %v", p.cancelled)
	}
}

type panickingProcessor struct {
	mu   sync.Mutex
	seen []string
}

func (p *panickingProcessor) Process(_ context.Context, jobID string) {
	p.mu.Lock()
	p.seen = append(p.seen, jobID)
	p.mu.Unlock()
	if jobID == "boom" {
		panic("session pool exploded")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDispatcherSurvivesProcessorPanic(t *testing.T) {
	var buf lockedBuffer
	logger := zerolog.New(&buf)
	p := &panickingProcessor{}
	d := NewDispatcher(p, time.Second, &logger)

	for _, id := range []string{"boom", "fine"} {
		if err := d.Dispatch(id); err != nil {
			t.Fatalf("Dispatch(%s): %v", id, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if len(p.seen) != 2 {
		t.Fatalf("processed %v, want both jobs", p.seen)
	}
	out := buf.String()
	if !strings.Contains(out, `"job_id":"boom"`) || !strings.Contains(out, "session pool exploded") {
		t.Fatalf("panic not logged with job id: %s", out)
	}
}
