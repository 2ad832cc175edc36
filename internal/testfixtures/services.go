package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/alarm-engine/internal/application"
	"github.com/example/alarm-engine/internal/occurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// PlanServiceDeps captures dependencies for constructing a plan service.
type PlanServiceDeps struct {
	Plans       application.PlanRepository
	Reconciler  application.ReconcileTrigger
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewPlanService builds a plan service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewPlanService(deps PlanServiceDeps) *application.PlanService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewPlanServiceWithLogger(
		deps.Plans,
		deps.Reconciler,
		idGen,
		now,
		deps.Logger,
	)
}

// ExceptionServiceDeps captures dependencies for constructing an exception
// service.
type ExceptionServiceDeps struct {
	Exceptions  application.ExceptionRepository
	Plans       application.PlanFinder
	Reconciler  application.ReconcileTrigger
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewExceptionService builds an exception service using the supplied
// dependencies.
func (f *ServiceFactory) NewExceptionService(deps ExceptionServiceDeps) *application.ExceptionService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewExceptionServiceWithLogger(
		deps.Exceptions,
		deps.Plans,
		deps.Reconciler,
		idGen,
		now,
		deps.Logger,
	)
}

// QueueServiceDeps captures dependencies for constructing a queue service.
type QueueServiceDeps struct {
	Plans      application.EnabledPlanSource
	Exceptions application.ExceptionRepository
	Holidays   occurrence.HolidayCalendar
	Calculator *occurrence.Calculator
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewQueueService builds a queue service using the supplied dependencies.
func (f *ServiceFactory) NewQueueService(deps QueueServiceDeps) *application.QueueService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	calculator := deps.Calculator
	if calculator == nil {
		calculator = occurrence.NewCalculator(nil, 0)
	}
	return application.NewQueueService(
		deps.Plans,
		deps.Exceptions,
		deps.Holidays,
		calculator,
		now,
		deps.Logger,
	)
}
