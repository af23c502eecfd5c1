package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLifecycle_ReverseOrder(t *testing.T) {
	l := NewLifecycle(time.Second, nil)
	var order []string
	for _, name := range []string{"store", "cache", "engine"} {
		l.Register(ComponentFunc(name, func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}

	if err := l.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"engine", "cache", "store"}
	if !equalCalls(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	// second shutdown and late registration are no-ops
	l.Register(ComponentFunc("late", func(context.Context) error {
		order = append(order, "late")
		return nil
	}))
	if err := l.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 {
		t.Errorf("order = %v", order)
	}
}

func TestLifecycle_CollectsErrors(t *testing.T) {
	l := NewLifecycle(time.Second, nil)
	boom := errors.New("boom")
	ran := false
	l.Register(ComponentFunc("first", func(context.Context) error { ran = true; return nil }))
	l.Register(ComponentFunc("broken", func(context.Context) error { return boom }))

	err := l.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if !ran {
		t.Error("failure stopped later components")
	}
}

func TestLifecycle_Timeout(t *testing.T) {
	l := NewLifecycle(20*time.Millisecond, nil)
	l.Register(ComponentFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	if err := l.Shutdown(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestSignal_String(t *testing.T) {
	if InterruptionEnded.String() != "interruption-ended" || Signal(42).String() != "unknown" {
		t.Error("unexpected signal names")
	}
}
