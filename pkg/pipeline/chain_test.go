package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func step(name string, completes Stage, trace *[]string, fail bool) Step {
	return Step{
		Name:      name,
		Completes: completes,
		Run: func(_ context.Context, _ *Context) error {
			*trace = append(*trace, "run:"+name)
			if fail {
				return errors.New(name + " failed")
			}
			return nil
		},
		Rollback: func(_ context.Context, _ *Context) error {
			*trace = append(*trace, "rollback:"+name)
			return nil
		},
	}
}

func TestChainCompletes(t *testing.T) {
	var trace []string
	chain := NewChain(OpUpload, testLogger(),
		step("validate", StageValidated, &trace, false),
		step("store", StageFileStored, &trace, false),
		step("metadata", StageStatsUpdated, &trace, false),
	)

	pc := &Context{TraceID: "tr-test"}
	require.NoError(t, chain.Run(context.Background(), pc))
	assert.Equal(t, StageCompleted, pc.Stage())
	assert.Equal(t, OpUpload, pc.Operation)
	assert.Equal(t, []string{"run:validate", "run:store", "run:metadata"}, trace)
}

func TestChainRollsBackInReverse(t *testing.T) {
	var trace []string
	chain := NewChain(OpUpload, testLogger(),
		step("validate", StageValidated, &trace, false),
		step("store", StageFileStored, &trace, false),
		step("metadata", StageStatsUpdated, &trace, true),
	)

	pc := &Context{TraceID: "tr-test"}
	err := chain.Run(context.Background(), pc)
	require.Error(t, err)
	assert.Equal(t, StageRolledBack, pc.Stage())
	assert.Equal(t, err, pc.Err())
	assert.Equal(t, []string{
		"run:validate", "run:store", "run:metadata",
		"rollback:store", "rollback:validate",
	}, trace)
}

func TestFailureBeforeAnySideEffect(t *testing.T) {
	var trace []string
	chain := NewChain(OpUpload, testLogger(),
		step("validate", StageValidated, &trace, true),
		step("store", StageFileStored, &trace, false),
	)

	pc := &Context{}
	require.Error(t, chain.Run(context.Background(), pc))
	assert.Equal(t, []string{"run:validate"}, trace, "no rollbacks when the first step fails")
	assert.Equal(t, StageRolledBack, pc.Stage())
}

func TestRollbackFailureDoesNotMaskOriginal(t *testing.T) {
	var trace []string
	failing := Step{
		Name:      "store",
		Completes: StageFileStored,
		Run: func(_ context.Context, _ *Context) error {
			trace = append(trace, "run:store")
			return nil
		},
		Rollback: func(_ context.Context, _ *Context) error {
			trace = append(trace, "rollback:store")
			return errors.New("rollback broke too")
		},
	}
	boom := errors.New("metadata failed")
	chain := NewChain(OpUpload, testLogger(),
		failing,
		Step{
			Name:      "metadata",
			Completes: StageMetadataWritten,
			Run:       func(_ context.Context, _ *Context) error { return boom },
		},
	)

	err := chain.Run(context.Background(), &Context{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"run:store", "rollback:store"}, trace)
}

func TestStageMonotonic(t *testing.T) {
	pc := &Context{}
	require.NoError(t, pc.advance(StageFileStored))
	assert.Error(t, pc.advance(StageValidated), "backward transition rejected")
	require.NoError(t, pc.advance(StageRolledBack), "rollback jump always allowed")
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	unlock := km.Lock("file-1")
	done := make(chan struct{})
	go func() {
		u := km.Lock("file-1")
		record("second")
		u()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	record("first")
	unlock()
	<-done

	assert.Equal(t, []string{"first", "second"}, events)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("file-1")
	defer unlock()

	acquired := make(chan struct{})
	go func() {
		u := km.Lock("file-2")
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("distinct keys must not block each other")
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := NewKeyedMutex()
	for i := 0; i < 100; i++ {
		km.Lock("k")()
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
