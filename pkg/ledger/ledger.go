package ledger

import (
	"time"

	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/mcclellann/milkrun/pkg/store"
	"github.com/rs/zerolog"
)

const defaultWorkers = 4

// Ledger handles the billing logic for customers, deliveries, bills and payments.
//
// Every read-modify-write on a customer's bills or balance holds the
// customer's lock and runs in one store transaction, so a bill refresh and a
// payment on the same customer never interleave.
type Ledger struct {
	storage store.Storage
	locks   *keyedMutex
	workers int
	now     func() time.Time
	log     zerolog.Logger
}

type Option func(*Ledger)

// WithWorkers bounds how many customers GenerateBills processes at once.
func WithWorkers(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		locks:   newKeyedMutex(),
		workers: defaultWorkers,
		now:     time.Now,
		log:     logger.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}
