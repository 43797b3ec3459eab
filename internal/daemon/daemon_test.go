package daemon

import (
	"context"
	"testing"

	"sprout/internal/pipeline"
	"sprout/internal/stage"
	"sprout/internal/store"
	"sprout/internal/testsupport"
)

type idleStage struct{}

func (idleStage) Prepare(context.Context, *store.Session) error { return nil }
func (idleStage) Execute(context.Context, *store.Session) error { return nil }
func (idleStage) HealthCheck(context.Context) stage.Health      { return stage.Healthy("idle") }

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	supervisor := pipeline.NewWithDependencies(cfg, st, nil, nil, pipeline.Dependencies{
		Core: []pipeline.Stage{{Name: "transcription", Handler: idleStage{}}},
	})
	d, err := New(cfg, st, nil, supervisor, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !d.Status().Running {
		t.Error("expected daemon status running")
	}
}

func TestStopReleasesLock(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()
	if d.Status().Running {
		t.Error("expected daemon status stopped")
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	d.Stop()
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	d := newTestDaemon(t)
	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Error("expected no notification without configured topic")
	}
	if detail == "" {
		t.Error("expected explanatory detail")
	}
}
