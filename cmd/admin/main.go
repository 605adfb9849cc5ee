package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain/ledger"
	"ledger/internal/infrastructure/postgres"
	"ledger/internal/shared/auth"
	"ledger/internal/shared/config"
	"ledger/internal/shared/logger"
)

const usage = `Ledger Admin CLI - Management commands for the ledger API

Usage:
  admin <command> [options]

Commands:
  migrate     Apply or roll back database migrations
  token       Issue an access token for a user
  reconcile   Replay account transaction logs and compare them with balances

Examples:
  # Apply all pending migrations
  admin migrate up

  # Roll back the last migration
  admin migrate down --steps=1

  # Issue a token valid for one hour
  admin token --user-id=1 --email=alice@example.com --ttl=1h

  # Reconcile specific accounts
  admin reconcile --account-id=3f0c...,9a1e...

  # Reconcile every account with 8 concurrent workers
  admin reconcile --all --workers=8 --timeout=1h
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, out io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(out, usage)
		return 1
	}

	switch command := args[0]; command {
	case "migrate":
		runMigrate(args[1:])
	case "token":
		runToken(args[1:])
	case "reconcile":
		runReconcile(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n", command)
		fmt.Fprint(out, usage)
		return 1
	}
	return 0
}

// setup loads configuration and builds the CLI logger.
func setup() (*config.Config, *zap.Logger) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Format = "console"
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, log.Named("admin")
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	steps := fs.Int("steps", 1, "Number of migrations to roll back (down only)")

	fs.Usage = func() {
		fmt.Println("Usage: admin migrate <up|down> [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if len(args) == 0 {
		fs.Usage()
		os.Exit(1)
	}
	direction := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}

	cfg, log := setup()
	defer log.Sync()

	var err error
	switch direction {
	case "up":
		err = postgres.MigrateUp(cfg.Database.MigrationURL(), log)
	case "down":
		if *steps <= 0 {
			log.Fatal("--steps must be positive", zap.Int("steps", *steps))
		}
		err = postgres.MigrateDown(cfg.Database.MigrationURL(), *steps, log)
	default:
		fmt.Printf("Unknown migrate direction: %s\n\n", direction)
		fs.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)

	userID := fs.Int64("user-id", 0, "User ID the token is issued for")
	email := fs.String("email", "", "Email claim")
	ttl := fs.Duration("ttl", 0, "Token lifetime (defaults to JWT_TTL)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *userID <= 0 {
		fmt.Println("Error: --user-id must be a positive integer")
		fs.Usage()
		os.Exit(1)
	}

	cfg, log := setup()
	defer log.Sync()

	lifetime := cfg.JWT.TTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewJWT(cfg.JWT.Secret, lifetime).Generate(*userID, *email)
	if err != nil {
		log.Fatal("Failed to issue token", zap.Error(err))
	}
	fmt.Println(token)
}

func runReconcile(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)

	accountIDs := fs.String("account-id", "", "Account ID(s) to reconcile (comma-separated for multiple)")
	all := fs.Bool("all", false, "Reconcile every account")
	workers := fs.Int("workers", ledger.DefaultAuditWorkers, "Number of concurrent workers")
	timeout := fs.Duration("timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin reconcile [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin reconcile --account-id=<id>")
		fmt.Println("  admin reconcile --all --workers=8 --timeout=1h")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *accountIDs == "" && !*all {
		fmt.Println("Error: must specify --account-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	cfg, log := setup()
	defer log.Sync()

	if cfg.Storage.Driver != config.StoragePostgres {
		log.Fatal("reconcile requires STORAGE_DRIVER=postgres", zap.String("driver", cfg.Storage.Driver))
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	svc := ledger.NewService(postgres.NewLedgerStore(db), log)
	auditor := ledger.NewAuditor(svc, postgres.NewAccountRepository(db), *workers, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var report *ledger.AuditReport
	if *all {
		report, err = auditor.AuditAll(ctx)
	} else {
		report, err = auditor.Audit(ctx, splitIDs(*accountIDs))
	}
	if err != nil {
		log.Fatal("Reconciliation failed", zap.Error(err))
	}

	printReport(os.Stdout, report)
	log.Info("Reconciliation completed", zap.Duration("elapsed", time.Since(start)))

	if !report.OK() {
		os.Exit(2)
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func printReport(w io.Writer, report *ledger.AuditReport) {
	fmt.Fprintf(w, "\n=== Reconciliation ===\n")
	fmt.Fprintf(w, "  Accounts checked: %d\n", report.Checked)
	fmt.Fprintf(w, "  Inconsistent:     %d\n", len(report.Inconsistent))
	fmt.Fprintf(w, "  Errors:           %d\n", len(report.Errors))

	for _, rec := range report.Inconsistent {
		fmt.Fprintf(w, "\n  Account %s\n", rec.AccountID)
		fmt.Fprintf(w, "    Balance:           %s\n", rec.Balance)
		fmt.Fprintf(w, "    Replayed balance:  %s\n", rec.ReplayedBalance)
		fmt.Fprintf(w, "    Transactions:      %d\n", rec.Transactions)
		if rec.FirstMismatchID != "" {
			fmt.Fprintf(w, "    First mismatch:    %s\n", rec.FirstMismatchID)
		}
	}

	ids := make([]string, 0, len(report.Errors))
	for id := range report.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "\n  Account %s: %v\n", id, report.Errors[id])
	}
}
