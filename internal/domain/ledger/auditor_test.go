package ledger_test

import (
	"context"
	"errors"
	"testing"

	"ledger/internal/domain/ledger"
	"ledger/internal/shared/money"
)

type staticLister struct {
	ids []string
	err error
}

func (l staticLister) ListIDs(ctx context.Context) ([]string, error) {
	return l.ids, l.err
}

func TestAuditAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.openAccount(t, 1, "1000000000", "100.00")
	b := h.openAccount(t, 2, "1000000001", "20.00")
	c := h.openAccount(t, 3, "1000000002", "0")
	if _, err := h.svc.Transfer(ctx, 1, a.ID, "1000000002", money.MustParse("30.00"), ""); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	auditor := ledger.NewAuditor(h.svc, h.store.Accounts(), 2, nil)
	report, err := auditor.AuditAll(ctx)
	if err != nil {
		t.Fatalf("AuditAll() error = %v", err)
	}
	if report.Checked != 3 || !report.OK() {
		t.Errorf("unexpected report: %+v", report)
	}

	report, err = auditor.Audit(ctx, []string{b.ID, c.ID, "missing"})
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if report.OK() || report.Errors["missing"] == nil {
		t.Errorf("missing account should be reported: %+v", report)
	}
}

func TestAuditAllListError(t *testing.T) {
	h := newHarness(t)
	listErr := errors.New("boom")
	auditor := ledger.NewAuditor(h.svc, staticLister{err: listErr}, 0, nil)
	if _, err := auditor.AuditAll(context.Background()); !errors.Is(err, listErr) {
		t.Errorf("expected list error, got %v", err)
	}
}
