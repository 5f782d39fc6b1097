package server

import (
	"context"
	"testing"
	"time"
)

func TestShutdownCoordinator(t *testing.T) {
	t.Parallel()

	sc := NewShutdownCoordinator(time.Hour)
	if sc.BaseContext().Err() != nil {
		t.Fatal("base context cancelled before shutdown")
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	done := make(chan struct{})
	go func() {
		sc.InitiateShutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("InitiateShutdown ignored a cancelled context")
	}
	if sc.BaseContext().Err() == nil {
		t.Error("base context still live after shutdown")
	}
}
