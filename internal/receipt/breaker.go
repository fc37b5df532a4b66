package receipt

import (
	"context"
	"fmt"

	"github.com/kiranahub/backend-pos/internal/resilience"
)

type guardedPrinter struct {
	inner   Printer
	breaker *resilience.Breaker
}

// WithBreaker wraps a printer in a circuit breaker so a dead print bridge
// stops being dialled on every queued job. While the breaker is open, Print
// fails fast with ErrPrinterUnavailable and IsConnected reports false without
// probing the device.
func WithBreaker(p Printer, b *resilience.Breaker) Printer {
	if b == nil {
		return p
	}
	return &guardedPrinter{inner: p, breaker: b}
}

func (g *guardedPrinter) Print(data []byte) error {
	ctx := context.Background()
	if !g.breaker.Allow(ctx) {
		return fmt.Errorf("print bridge circuit open: %w", ErrPrinterUnavailable)
	}
	err := g.inner.Print(data)
	g.breaker.Report(ctx, err == nil)
	return err
}

func (g *guardedPrinter) IsConnected() bool {
	ctx := context.Background()
	if !g.breaker.Allow(ctx) {
		return false
	}
	ok := g.inner.IsConnected()
	g.breaker.Report(ctx, ok)
	return ok
}

func (g *guardedPrinter) Close() error { return g.inner.Close() }
