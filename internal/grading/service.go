// Package grading grades exam attempts, runs the attempt lifecycle and
// resolves uncertain answers in the background.
package grading

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
	"github.com/pavelanni/studytool/internal/worker"
)

// Oracle judges answers the matcher could not decide and explains wrong
// ones.
type Oracle interface {
	IsSemanticallyCorrect(ctx context.Context, c model.AnswerCheck) (bool, error)
	ExplainAnswer(ctx context.Context, c model.AnswerCheck) (string, error)
	Close() error
}

// OracleFactory returns an Oracle for the given credential. An empty
// credential means "use the server default, if any".
type OracleFactory func(ctx context.Context, credential string) (Oracle, error)

const (
	DefaultDuplicateWindow = 5 * time.Second
	DefaultOracleTimeout   = 8 * time.Second
	// secondsPerPending is the estimated oracle latency per pending answer.
	secondsPerPending = 3
)

// Options tune a Service. Zero values select the defaults.
type Options struct {
	DuplicateWindow time.Duration
	OracleTimeout   time.Duration
	Now             func() time.Time
}

// Service is the grading orchestrator and attempt state machine.
type Service struct {
	store   *store.Store
	pool    *worker.Pool
	oracles OracleFactory

	window        time.Duration
	oracleTimeout time.Duration
	now           func() time.Time

	examLocks keyedMutex
}

// New returns a Service. oracles may be nil, in which case pending answers
// resolve to incorrect and no explanations are written.
func New(st *store.Store, pool *worker.Pool, oracles OracleFactory, opts Options) *Service {
	s := &Service{
		store:         st,
		pool:          pool,
		oracles:       oracles,
		window:        opts.DuplicateWindow,
		oracleTimeout: opts.OracleTimeout,
		now:           opts.Now,
	}
	if s.window <= 0 {
		s.window = DefaultDuplicateWindow
	}
	if s.oracleTimeout <= 0 {
		s.oracleTimeout = DefaultOracleTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// keyedMutex serializes work per key; entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// percent returns correct/total*100 rounded to two decimals, treating a
// zero total as one.
func percent(correct, total int) float64 {
	if total < 1 {
		total = 1
	}
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}
