// Package nop is the sink used while rescache is degraded: reads always miss
// and writes always report success, so callers never branch on cache
// availability. It deliberately implements neither Counter nor Scanner.
package nop

import (
	"context"
	"time"

	pr "github.com/unkn0wn-root/rescache/provider"
)

type Provider struct{}

var (
	_ pr.Provider = Provider{}
	_ pr.Adder    = Provider{}
)

func (Provider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Provider) Set(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Add always wins so a degraded caller recomputes without waiting.
func (Provider) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
func (Provider) Del(context.Context, string) error { return nil }
func (Provider) Close(context.Context) error       { return nil }
