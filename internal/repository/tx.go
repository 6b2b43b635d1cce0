package repository

import "context"

// Repos is the set of repositories bound to one unit of work.
type Repos struct {
	Rides    RideRepository
	Drivers  DriverRepository
	Users    UserRepository
	Payments PaymentRepository
	Promos   PromoRepository
}

// Transactor runs fn in a single all-or-nothing unit of work. If fn returns
// an error every write made through the given Repos is rolled back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
