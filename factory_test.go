package rescache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/rescache/provider"
)

type rejectingProvider struct{ *memProvider }

func (rejectingProvider) Set(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, nil
}

func TestProbeLeavesNoSentinel(t *testing.T) {
	mp := newMemProvider()
	if err := Probe(context.Background(), mp, "app:", time.Second); err != nil {
		t.Fatal(err)
	}
	if keys := mp.keys(); len(keys) != 0 {
		t.Fatalf("probe left keys behind: %v", keys)
	}
}

func TestProbeFailures(t *testing.T) {
	ctx := context.Background()

	down := newMemProvider()
	down.setErr = errors.New("down")
	if err := Probe(ctx, down, "", time.Second); err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("err=%v", err)
	}

	if err := Probe(ctx, rejectingProvider{newMemProvider()}, "", time.Second); err == nil {
		t.Fatal("rejected write must fail the probe")
	}

	if err := Probe(ctx, plainProvider{inner: nopMiss{}}, "", time.Second); !errors.Is(err, ErrProbeMiss) {
		t.Fatalf("err=%v want ErrProbeMiss", err)
	}
}

// nopMiss accepts writes and never returns them.
type nopMiss struct{}

func (nopMiss) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nopMiss) Set(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
func (nopMiss) Del(context.Context, string) error { return nil }
func (nopMiss) Close(context.Context) error       { return nil }

func TestCreateAndValidateClosesOnProbeFailure(t *testing.T) {
	closed := false
	builders := map[Technology]Builder{
		TechMemory: func(context.Context, Config) (pr.Provider, error) {
			return closeSpy{nopMiss: nopMiss{}, closed: &closed}, nil
		},
	}
	_, err := CreateAndValidate(context.Background(), TechMemory, Config{}, builders)
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Op != "probe" {
		t.Fatalf("err=%v", err)
	}
	if !closed {
		t.Fatal("driver failing its probe must be closed")
	}
}

type closeSpy struct {
	nopMiss
	closed *bool
}

func (c closeSpy) Close(context.Context) error { *c.closed = true; return nil }

func TestCreateAndValidateNoneSkipsProbe(t *testing.T) {
	p, err := CreateAndValidate(context.Background(), TechNone, Config{}, DefaultBuilders())
	if err != nil || p == nil {
		t.Fatalf("p=%v err=%v", p, err)
	}
}
