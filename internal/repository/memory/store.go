// Package memory is an in-process implementation of the repository
// interfaces. It backs tests and the STORE=memory development mode.
package memory

import (
	"context"
	"sync"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

type redemption struct {
	code   string
	userID string
	rideID string
}

// Store holds every entity map behind one mutex. Transactions are serialized
// and rolled back with an undo log.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	rides       map[string]*domain.Ride
	drivers     map[string]*domain.Driver
	users       map[string]*domain.User
	payments    map[string]*domain.Payment
	promos      map[string]*domain.PromoCode
	redemptions []redemption

	faultMu sync.Mutex
	faults  map[string]*injectedFault
}

type injectedFault struct {
	err  error
	left int // remaining hits; 0 means until cleared
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		rides:    make(map[string]*domain.Ride),
		drivers:  make(map[string]*domain.Driver),
		users:    make(map[string]*domain.User),
		payments: make(map[string]*domain.Payment),
		promos:   make(map[string]*domain.PromoCode),
		faults:   make(map[string]*injectedFault),
	}
}

// Repos returns repositories that write directly, outside any transaction.
func (s *Store) Repos() repository.Repos {
	return s.repos(nil)
}

func (s *Store) repos(u *undoLog) repository.Repos {
	return repository.Repos{
		Rides:    &RideRepository{s: s, undo: u},
		Drivers:  &DriverRepository{s: s, undo: u},
		Users:    &UserRepository{s: s, undo: u},
		Payments: &PaymentRepository{s: s, undo: u},
		Promos:   &PromoRepository{s: s, undo: u},
	}
}

// WithinTx runs fn with transaction-scoped repositories. Writes are undone
// in reverse order if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	u := &undoLog{}
	if err := fn(ctx, s.repos(u)); err != nil {
		s.mu.Lock()
		u.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

// InjectFault makes the named operation (e.g. "drivers.RecordCompletion")
// fail with err until cleared with a nil err.
func (s *Store) InjectFault(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = &injectedFault{err: err}
}

// InjectFaultTimes makes the named operation fail with err for its next n calls.
func (s *Store) InjectFaultTimes(op string, err error, n int) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = &injectedFault{err: err, left: n}
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.left > 0 {
		f.left--
		if f.left == 0 {
			delete(s.faults, op)
		}
	}
	return f.err
}

// undoLog collects compensating writes. Entries run with Store.mu held.
type undoLog struct {
	fns []func()
}

func (u *undoLog) push(fn func()) {
	if u != nil {
		u.fns = append(u.fns, fn)
	}
}

func (u *undoLog) rollback() {
	for i := len(u.fns) - 1; i >= 0; i-- {
		u.fns[i]()
	}
}

// Ensure Store implements the transactor.
var _ repository.Transactor = (*Store)(nil)
