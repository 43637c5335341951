package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer is one call budget that may be shared by several adapters of the
// same provider.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows perMinute call starts with a burst of one. A non-positive
// perMinute returns nil, which wraps adapters unchanged.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		return nil
	}
	every := time.Minute / time.Duration(perMinute)
	return &Pacer{limiter: rate.NewLimiter(rate.Every(every), 1)}
}

// Wrap returns next paced by p.
func (p *Pacer) Wrap(next Adapter) Adapter {
	if p == nil {
		return next
	}
	return &Paced{next: next, pacer: p}
}

// Paced wraps an adapter so calls start no faster than its pacer allows.
type Paced struct {
	next  Adapter
	pacer *Pacer
}

// NewPaced paces next with a pacer of its own.
func NewPaced(next Adapter, perMinute int) Adapter {
	return NewPacer(perMinute).Wrap(next)
}

// Pacer returns the budget this adapter draws from.
func (p *Paced) Pacer() *Pacer { return p.pacer }

func (p *Paced) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if err := p.pacer.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return p.next.Generate(ctx, req, progress)
}

var _ Adapter = (*Paced)(nil)
