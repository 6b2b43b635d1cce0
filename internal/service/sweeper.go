package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

const sweeperLock = "sweeper"

// Sweeper re-dispatches or expires PENDING rides nobody accepted and closes
// asynchronous payments left unsettled.
type Sweeper struct {
	rideRepo   repository.RideRepository
	rides      *RideService
	dispatcher *DispatchService
	payments   *PaymentService
	lock       redis.LockStoreInterface
	dispatch   config.DispatchConfig
	payment    config.PaymentConfig
	cfg        config.SweeperConfig
	logger     *zap.Logger
	now        func() time.Time
}

// SweepResult counts what one pass did.
type SweepResult struct {
	Redispatched    int
	Expired         int
	PaymentsSettled int
	PaymentsFailed  int
}

// NewSweeper creates a new Sweeper. lock may be nil for a single instance.
func NewSweeper(
	rideRepo repository.RideRepository,
	rides *RideService,
	dispatcher *DispatchService,
	payments *PaymentService,
	lock redis.LockStoreInterface,
	dispatch config.DispatchConfig,
	payment config.PaymentConfig,
	cfg config.SweeperConfig,
	logger *zap.Logger,
) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if dispatch.OfferTTL <= 0 {
		dispatch.OfferTTL = 30 * time.Second
	}
	if dispatch.MaxAttempts <= 0 {
		dispatch.MaxAttempts = 3
	}
	if payment.PendingTTL <= 0 {
		payment.PendingTTL = 30 * time.Minute
	}
	return &Sweeper{
		rideRepo:   rideRepo,
		rides:      rides,
		dispatcher: dispatcher,
		payments:   payments,
		lock:       lock,
		dispatch:   dispatch,
		payment:    payment,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is done. With a lock configured only
// the instance holding it sweeps.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.acquire(ctx) {
				continue
			}
			res, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if res != (SweepResult{}) {
				s.logger.Info("sweep done",
					zap.Int("redispatched", res.Redispatched),
					zap.Int("expired", res.Expired),
					zap.Int("payments_settled", res.PaymentsSettled),
					zap.Int("payments_failed", res.PaymentsFailed))
			}
		}
	}
}

func (s *Sweeper) acquire(ctx context.Context) bool {
	if s.lock == nil {
		return true
	}
	// Held until it lapses so a second instance skips this tick.
	ok, err := s.lock.Acquire(ctx, sweeperLock, s.cfg.Interval)
	if err != nil {
		s.logger.Warn("sweeper lock unavailable", zap.Error(err))
		return false
	}
	return ok
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	stale, err := s.rideRepo.ListStalePending(ctx, now.Add(-s.dispatch.OfferTTL), s.cfg.Batch)
	if err != nil {
		return res, err
	}
	for _, ride := range stale {
		if s.pendingExpired(ride) {
			if _, err := s.rides.ExpireRide(ctx, ride); err != nil {
				// Accepted or cancelled since the scan.
				s.logger.Debug("expiring ride skipped", zap.String("ride_id", ride.ID), zap.Error(err))
				continue
			}
			res.Expired++
			continue
		}
		if _, err := s.dispatcher.Dispatch(ctx, ride); err != nil {
			s.logger.Warn("re-dispatch failed", zap.String("ride_id", ride.ID), zap.Error(err))
			continue
		}
		res.Redispatched++
	}

	settled, failed, err := s.payments.ExpireStale(ctx, now.Add(-s.payment.PendingTTL), s.cfg.Batch)
	res.PaymentsSettled, res.PaymentsFailed = settled, failed
	if err != nil {
		return res, err
	}
	return res, nil
}

// pendingExpired reports whether ride has used up its dispatch attempts.
func (s *Sweeper) pendingExpired(ride *domain.Ride) bool {
	return ride.Status == domain.RideStatusPending && ride.DispatchAttempts >= s.dispatch.MaxAttempts
}
