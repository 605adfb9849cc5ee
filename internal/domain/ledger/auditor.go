package ledger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAuditWorkers bounds concurrent account replays.
const DefaultAuditWorkers = 4

// AccountLister lists every account id known to the store.
type AccountLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// AuditReport summarizes a reconciliation run over many accounts.
type AuditReport struct {
	Checked      int
	Inconsistent []*Reconciliation
	Errors       map[string]error
}

// OK reports whether every account replayed cleanly.
func (r *AuditReport) OK() bool {
	return len(r.Inconsistent) == 0 && len(r.Errors) == 0
}

// Auditor replays the logs of many accounts concurrently.
type Auditor struct {
	ledger   *Service
	accounts AccountLister
	workers  int
	logger   *zap.Logger
}

// NewAuditor creates an auditor running at most workers replays at a time.
func NewAuditor(svc *Service, accounts AccountLister, workers int, logger *zap.Logger) *Auditor {
	if workers <= 0 {
		workers = DefaultAuditWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{ledger: svc, accounts: accounts, workers: workers, logger: logger.Named("auditor")}
}

// AuditAll reconciles every account. Per-account failures are collected in
// the report; only a failure to list accounts or a cancelled context is
// returned as an error.
func (a *Auditor) AuditAll(ctx context.Context) (*AuditReport, error) {
	ids, err := a.accounts.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	return a.Audit(ctx, ids)
}

// Audit reconciles the given accounts.
func (a *Auditor) Audit(ctx context.Context, ids []string) (*AuditReport, error) {
	report := &AuditReport{Errors: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.ledger.ReconcileAccount(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				report.Errors[id] = err
				return nil
			}
			if !rec.Consistent {
				report.Inconsistent = append(report.Inconsistent, rec)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	a.logger.Info("Audit completed",
		zap.Int("checked", report.Checked),
		zap.Int("inconsistent", len(report.Inconsistent)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}
