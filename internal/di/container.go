package di

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trademate/api/internal/platform/config"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
	"github.com/trademate/api/internal/platform/observability"
	"github.com/trademate/api/internal/repositories"
	firestoreRepo "github.com/trademate/api/internal/repositories/firestore"
	"github.com/trademate/api/internal/services"
)

// Repositories bundles the persistence contracts the services are built on.
type Repositories struct {
	Carts          repositories.CartRepository
	AbandonedCarts repositories.AbandonedCartRepository
	Orders         repositories.OrderRepository
	Invoices       repositories.InvoiceRepository
	Payments       repositories.PaymentRepository
	Allocations    repositories.AllocationRepository
	Users          repositories.UserRepository
	Customers      repositories.CustomerRepository
	Expenses       repositories.ExpenseRepository
	Transactions   repositories.TransactionRepository
}

// Adapters carries the external collaborators created by main. Optional adapters may be nil.
type Adapters struct {
	Stock     services.StockReservationService
	Gateway   services.PaymentGateway
	Events    services.OrderEventPublisher
	Mailer    services.InvoiceMailer
	Push      services.PushNotifier
	URLSigner services.InvoiceURLSigner
	Metrics   services.JobMetrics
	Health    repositories.HealthRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Carts             services.CartService
	Eligibility       services.DeliveryEligibilityService
	Orders            services.OrderService
	Payments          services.PaymentLedgerService
	Credit            services.CreditService
	Reports           services.ReportService
	DeliveryLocations services.DeliveryLocationService
	Transactions      services.TransactionService
	System            services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
	clock  func() time.Time
	build  services.BuildInfo
}

// WithLogger sets the base logger handed to services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo sets the build metadata reported by the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// NewFirestoreRepositories builds every repository on top of provider.
func NewFirestoreRepositories(provider *pfirestore.Provider) (Repositories, error) {
	if provider == nil {
		return Repositories{}, errors.New("firestore provider is required")
	}
	var (
		repos Repositories
		err   error
	)
	if repos.Carts, err = firestoreRepo.NewCartRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build cart repository: %w", err)
	}
	if repos.AbandonedCarts, err = firestoreRepo.NewAbandonedCartRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build abandoned cart repository: %w", err)
	}
	if repos.Orders, err = firestoreRepo.NewOrderRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build order repository: %w", err)
	}
	if repos.Invoices, err = firestoreRepo.NewInvoiceRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build invoice repository: %w", err)
	}
	if repos.Payments, err = firestoreRepo.NewPaymentRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build payment repository: %w", err)
	}
	if repos.Allocations, err = firestoreRepo.NewAllocationRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build allocation repository: %w", err)
	}
	if repos.Users, err = firestoreRepo.NewUserRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build user repository: %w", err)
	}
	if repos.Customers, err = firestoreRepo.NewCustomerRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build customer repository: %w", err)
	}
	if repos.Expenses, err = firestoreRepo.NewExpenseRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build expense repository: %w", err)
	}
	if repos.Transactions, err = firestoreRepo.NewTransactionRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build transaction repository: %w", err)
	}
	return repos, nil
}

// NewContainer constructs the runtime dependencies. Tests can hand in stub repositories and adapters.
func NewContainer(cfg config.Config, repos Repositories, adapters Adapters, opts ...Option) (*Container, error) {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(cfg, repos, adapters, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, adapters Adapters, o options) (Services, error) {
	var svc Services

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:          repos.Carts,
		AbandonedCarts: repos.AbandonedCarts,
		Stock:          adapters.Stock,
		Metrics:        adapters.Metrics,
		Clock:          o.clock,
		Logger:         observability.ServiceLogger(o.logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	location, err := time.LoadLocation(cfg.Delivery.Timezone)
	if err != nil {
		return Services{}, fmt.Errorf("load delivery timezone %q: %w", cfg.Delivery.Timezone, err)
	}
	eligibility, err := services.NewDeliveryEligibility(services.DeliveryEligibilityConfig{
		Cities:     cfg.Delivery.Cities,
		Location:   location,
		CutoffHour: services.DefaultFastDeliveryCutoffHour,
		Clock:      o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build delivery eligibility: %w", err)
	}
	svc.Eligibility = eligibility

	pricer, err := services.NewOrderPricer(cfg.Pricing.CardFixedFee, cfg.Pricing.Currency)
	if err != nil {
		return Services{}, fmt.Errorf("build order pricer: %w", err)
	}
	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   repos.Orders,
		Invoices: repos.Invoices,
		Users:    repos.Users,
		Gateway:  adapters.Gateway,
		Events:   adapters.Events,
		Mailer:   adapters.Mailer,
		Push:     adapters.Push,
		Pricer:   pricer,
		Clock:    o.clock,
		Logger:   observability.ServiceLogger(o.logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	ledger, err := services.NewPaymentLedgerService(services.PaymentLedgerServiceDeps{
		Payments:    repos.Payments,
		Allocations: repos.Allocations,
		Invoices:    repos.Invoices,
		URLSigner:   adapters.URLSigner,
		Currency:    cfg.Pricing.Currency,
		Clock:       o.clock,
		Logger:      observability.ServiceLogger(o.logger, "payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment ledger: %w", err)
	}
	svc.Payments = ledger

	creditSvc, err := services.NewCreditService(services.CreditServiceDeps{
		Users:     repos.Users,
		Customers: repos.Customers,
		Invoices:  repos.Invoices,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build credit service: %w", err)
	}
	svc.Credit = creditSvc

	reportSvc, err := services.NewReportService(services.ReportServiceDeps{
		Invoices: repos.Invoices,
		Expenses: repos.Expenses,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build report service: %w", err)
	}
	svc.Reports = reportSvc

	locationSvc, err := services.NewDeliveryLocationService(services.DeliveryLocationServiceDeps{
		Users: repos.Users,
		Clock: o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build delivery location service: %w", err)
	}
	svc.DeliveryLocations = locationSvc

	transactionSvc, err := services.NewTransactionService(services.TransactionServiceDeps{
		Transactions: repos.Transactions,
		Clock:        o.clock,
		Logger:       observability.ServiceLogger(o.logger, "transactions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build transaction service: %w", err)
	}
	svc.Transactions = transactionSvc

	if adapters.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: adapters.Health,
			Clock:            o.clock,
			Build:            o.build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
