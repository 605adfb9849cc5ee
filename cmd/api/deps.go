package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/infrastructure/kafka"
	"ledger/internal/infrastructure/memory"
	"ledger/internal/infrastructure/postgres"
	"ledger/internal/infrastructure/postgres/listener"
	httphandlers "ledger/internal/interfaces/http"
	"ledger/internal/interfaces/outbox"
	"ledger/internal/shared/auth"
	"ledger/internal/shared/config"
)

// storage groups the repositories of one storage driver.
type storage struct {
	accounts     account.Repository
	transactions transaction.Repository
	bills        bill.Repository
	events       event.Repository
	ledger       ledger.Store
	pinger       httphandlers.Pinger
}

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler
	BillHandler        *httphandlers.BillHandler
	HealthHandler      *httphandlers.HealthHandler

	// Auth
	JWT *auth.JWT

	// Outbox delivery
	Relay    *outbox.Relay
	Listener *listener.OutboxListener
	Producer *kafka.Producer
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	var store storage
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; data is lost on exit")
		mem := memory.NewStore()
		store = storage{
			accounts:     mem.Accounts(),
			transactions: mem.Transactions(),
			bills:        mem.Bills(),
			events:       mem.Events(),
			ledger:       mem,
			pinger:       mem,
		}
	default:
		if cfg.Database.MigrateOnStart {
			if err := postgres.MigrateUp(cfg.Database.MigrationURL(), logger); err != nil {
				return nil, err
			}
		}

		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.DBName))
		deps.DB = db

		store = storage{
			accounts:     postgres.NewAccountRepository(db),
			transactions: postgres.NewTransactionRepository(db),
			bills:        postgres.NewBillRepository(db),
			events:       postgres.NewOutboxRepository(db),
			ledger:       postgres.NewLedgerStore(db),
			pinger:       db,
		}
	}

	// Initialize domain services
	ledgerService := ledger.NewService(store.ledger, logger)
	accountService := account.NewService(store.accounts)
	transactionService := transaction.NewService(store.transactions, store.accounts)
	billService := bill.NewService(store.bills)

	// Initialize handlers
	deps.AccountHandler = httphandlers.NewAccountHandler(accountService, ledgerService, logger)
	deps.TransactionHandler = httphandlers.NewTransactionHandler(transactionService, ledgerService, logger)
	deps.BillHandler = httphandlers.NewBillHandler(billService, ledgerService, logger)
	deps.HealthHandler = httphandlers.NewHealthHandler(store.pinger, store.events, logger)

	deps.JWT = auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)

	// Outbox relay: Kafka when enabled, otherwise the log
	var publisher outbox.Publisher = outbox.NewLogPublisher(logger)
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, logger); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to ensure kafka topic: %w", err)
		}
		deps.Producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = deps.Producer
	}

	deps.Relay = outbox.NewRelay(store.events, publisher, outbox.Config{
		Interval:    cfg.Outbox.PollInterval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}, logger)

	if deps.DB != nil && cfg.Outbox.Listen {
		deps.Listener = listener.NewOutboxListener(cfg.Database.ConnectionString(), deps.Relay.Wake, logger)
	}

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Producer != nil {
		d.Producer.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
