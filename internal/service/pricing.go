package service

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// Factor is one multiplier reported by a pricing signal.
type Factor struct {
	Value      float64
	Confidence float64 // 0 means "no opinion"
}

// FactorQuery describes the ride being priced.
type FactorQuery struct {
	Pickup domain.Point
	Class  domain.VehicleClass
	At     time.Time
}

// FactorProvider supplies one pricing multiplier. Failures are treated as neutral.
type FactorProvider interface {
	Factor(ctx context.Context, q FactorQuery) (Factor, error)
}

// FactorFunc adapts a function to FactorProvider.
type FactorFunc func(ctx context.Context, q FactorQuery) (Factor, error)

// Factor calls f.
func (f FactorFunc) Factor(ctx context.Context, q FactorQuery) (Factor, error) { return f(ctx, q) }

// StaticFactor always reports v.
func StaticFactor(v float64) FactorProvider {
	return FactorFunc(func(context.Context, FactorQuery) (Factor, error) {
		return Factor{Value: v, Confidence: 1}, nil
	})
}

// WeatherSource reports the main weather condition at a point.
type WeatherSource interface {
	Condition(ctx context.Context, p domain.Point) (string, error)
}

// WeatherFactor turns current conditions into a multiplier.
type WeatherFactor struct {
	source WeatherSource
}

// NewWeatherFactor creates a WeatherFactor.
func NewWeatherFactor(source WeatherSource) *WeatherFactor {
	return &WeatherFactor{source: source}
}

// Factor implements FactorProvider.
func (w *WeatherFactor) Factor(ctx context.Context, q FactorQuery) (Factor, error) {
	cond, err := w.source.Condition(ctx, q.Pickup)
	if err != nil {
		return Factor{}, err
	}
	switch cond {
	case "Rain", "Thunderstorm":
		return Factor{Value: 1.3, Confidence: 1}, nil
	case "Drizzle":
		return Factor{Value: 1.15, Confidence: 1}, nil
	}
	return Factor{Value: 1, Confidence: 1}, nil
}

// Rates are the per-class unit prices in the service currency.
type Rates struct {
	Base      float64
	PerKm     float64
	PerMinute float64
}

var classRates = map[domain.VehicleClass]Rates{
	domain.VehicleClassEconomy: {Base: 500, PerKm: 120, PerMinute: 30},
	domain.VehicleClassComfort: {Base: 800, PerKm: 150, PerMinute: 40},
	domain.VehicleClassXL:      {Base: 1200, PerKm: 200, PerMinute: 50},
	domain.VehicleClassBike:    {Base: 300, PerKm: 80, PerMinute: 20},
}

// PricingProviders are the dynamic multipliers. Nil providers are neutral.
type PricingProviders struct {
	Demand   FactorProvider
	External FactorProvider
	Weather  FactorProvider
	Event    FactorProvider
}

// FareQuote is a fully priced ride.
type FareQuote struct {
	VehicleClass domain.VehicleClass
	DistanceKm   float64
	DurationMin  int
	Rates        Rates

	TimeMultiplier     float64
	DemandMultiplier   float64
	WeatherMultiplier  float64
	EventMultiplier    float64
	ExternalMultiplier float64
	SurgeMultiplier    float64

	Split     domain.FareSplit
	Fare      float64 // before discount
	Total     float64 // what the rider pays
	PromoCode string
}

// Breakdown returns the values stored on the ride for repricing at completion.
func (q *FareQuote) Breakdown(commissionRate float64) domain.FareBreakdown {
	return domain.FareBreakdown{
		BaseFare:        q.Rates.Base,
		PerKmRate:       q.Rates.PerKm,
		PerMinuteRate:   q.Rates.PerMinute,
		SurgeMultiplier: q.SurgeMultiplier,
		Discount:        q.Split.Discount,
		CommissionRate:  commissionRate,
	}
}

// PricingService computes fares.
type PricingService struct {
	cfg       config.PricingConfig
	loc       *time.Location
	providers PricingProviders
	logger    *zap.Logger
	now       func() time.Time
}

// NewPricingService creates a new PricingService.
func NewPricingService(cfg config.PricingConfig, providers PricingProviders, logger *zap.Logger) *PricingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RoundTo <= 0 {
		cfg.RoundTo = 50
	}
	if cfg.MaxDemand <= 0 {
		cfg.MaxDemand = 2.5
	}
	if cfg.AverageSpeedKmh <= 0 {
		cfg.AverageSpeedKmh = 40
	}
	if cfg.CommissionRate < 0 || cfg.CommissionRate >= 1 {
		cfg.CommissionRate = 0.15
	}
	if providers.Event == nil && cfg.EventMultiplier > 0 {
		providers.Event = StaticFactor(cfg.EventMultiplier)
	}

	loc := time.UTC
	if cfg.TimeZone != "" {
		l, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			logger.Warn("unknown pricing time zone, using UTC", zap.String("tz", cfg.TimeZone), zap.Error(err))
		} else {
			loc = l
		}
	}

	return &PricingService{
		cfg:       cfg,
		loc:       loc,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// CommissionRate is the platform share of every fare.
func (s *PricingService) CommissionRate() float64 { return s.cfg.CommissionRate }

// EstimateTrip returns the straight-line distance and the expected duration.
func (s *PricingService) EstimateTrip(pickup, dropoff domain.Point) (float64, int) {
	km := round2(geo.DistanceKm(pickup, dropoff))
	minutes := int(math.Ceil(km / s.cfg.AverageSpeedKmh * 60))
	return km, minutes
}

// Quote prices a trip between two points at time at (zero means now).
func (s *PricingService) Quote(ctx context.Context, pickup, dropoff domain.Point, class domain.VehicleClass, at time.Time) (*FareQuote, error) {
	km, minutes := s.EstimateTrip(pickup, dropoff)
	return s.CalculateFare(ctx, class, km, minutes, pickup, at)
}

// CalculateFare prices a trip of known distance and duration.
func (s *PricingService) CalculateFare(ctx context.Context, class domain.VehicleClass, km float64, minutes int, pickup domain.Point, at time.Time) (*FareQuote, error) {
	rates, ok := classRates[class]
	if !ok {
		return nil, ErrInvalidVehicleClass
	}
	if km < 0 || minutes < 0 {
		return nil, ErrInvalidAmount
	}
	if at.IsZero() {
		at = s.now()
	}

	q := FactorQuery{Pickup: pickup, Class: class, At: at}
	quote := &FareQuote{
		VehicleClass:       class,
		DistanceKm:         km,
		DurationMin:        minutes,
		Rates:              rates,
		TimeMultiplier:     TimeMultiplier(at.In(s.loc)),
		DemandMultiplier:   math.Min(s.factor(ctx, "demand", s.providers.Demand, q), s.cfg.MaxDemand),
		ExternalMultiplier: math.Min(s.factor(ctx, "external", s.providers.External, q), s.cfg.MaxDemand),
		WeatherMultiplier:  s.factor(ctx, "weather", s.providers.Weather, q),
		EventMultiplier:    s.factor(ctx, "event", s.providers.Event, q),
	}
	quote.SurgeMultiplier = round4(quote.TimeMultiplier * quote.DemandMultiplier *
		quote.WeatherMultiplier * quote.EventMultiplier * quote.ExternalMultiplier)

	quote.Split = s.split(rawFare(rates, km, minutes), quote.SurgeMultiplier, 0, s.cfg.CommissionRate)
	quote.Fare = quote.Split.BaseFare + quote.Split.SurgeCharge
	quote.Total = quote.Split.Total()
	return quote, nil
}

// ApplyDiscount takes discount off the quote and recomputes the split.
func (s *PricingService) ApplyDiscount(quote *FareQuote, code string, discount float64) {
	quote.PromoCode = code
	quote.Split = s.split(rawFare(quote.Rates, quote.DistanceKm, quote.DurationMin),
		quote.SurgeMultiplier, discount, s.cfg.CommissionRate)
	quote.Total = quote.Split.Total()
}

// FinalFare reprices a finished ride from the rates stored when it was requested.
func (s *PricingService) FinalFare(b domain.FareBreakdown, km float64, minutes int) domain.FareSplit {
	rates := Rates{Base: b.BaseFare, PerKm: b.PerKmRate, PerMinute: b.PerMinuteRate}
	surge := b.SurgeMultiplier
	if surge <= 0 {
		surge = 1
	}
	rate := b.CommissionRate
	if rate <= 0 {
		rate = s.cfg.CommissionRate
	}
	return s.split(rawFare(rates, km, minutes), surge, b.Discount, rate)
}

// TimeMultiplier is the time-of-day factor for the local hour of t.
func TimeMultiplier(t time.Time) float64 {
	switch h := t.Hour(); {
	case (h >= 7 && h <= 9) || (h >= 17 && h <= 19):
		return 1.2
	case h >= 22 || h <= 5:
		return 1.15
	}
	return 1.0
}

func (s *PricingService) factor(ctx context.Context, name string, p FactorProvider, q FactorQuery) float64 {
	if p == nil {
		return 1
	}
	f, err := p.Factor(ctx, q)
	if err != nil {
		s.logger.Debug("pricing factor unavailable", zap.String("factor", name), zap.Error(err))
		return 1
	}
	if f.Value <= 0 || f.Confidence <= 0 {
		return 1
	}
	return f.Value
}

// split rounds the gross fare to the configured step and divides the net
// amount between platform and driver.
// BaseFare + SurgeCharge - Discount == PlatformCommission + DriverEarnings.
func (s *PricingService) split(raw, surge, discount, commissionRate float64) domain.FareSplit {
	step := decimal.NewFromFloat(s.cfg.RoundTo)
	base := roundStep(decimal.NewFromFloat(raw), step)
	gross := roundStep(decimal.NewFromFloat(raw).Mul(decimal.NewFromFloat(surge)), step)

	disc := decimal.NewFromFloat(math.Max(discount, 0)).Round(2)
	if disc.GreaterThan(gross) {
		disc = gross
	}
	net := gross.Sub(disc)
	commission := net.Mul(decimal.NewFromFloat(commissionRate)).Round(2)

	return domain.FareSplit{
		BaseFare:           base.InexactFloat64(),
		SurgeCharge:        gross.Sub(base).InexactFloat64(),
		Discount:           disc.InexactFloat64(),
		PlatformCommission: commission.InexactFloat64(),
		DriverEarnings:     net.Sub(commission).InexactFloat64(),
	}
}

func rawFare(r Rates, km float64, minutes int) float64 {
	return r.Base + km*r.PerKm + float64(minutes)*r.PerMinute
}

func roundStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v.Round(2)
	}
	return v.Div(step).Round(0).Mul(step)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
