package revenue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Report is the revenue page model.
type Report struct {
	Range    Range
	Summary  RevenueSummary
	Balances BalanceReport
}

// Service serves the revenue page, the ledger and the spreadsheet export.
type Service struct {
	repo  Repository
	audit AuditPort
	group singleflight.Group
	now   func() time.Time
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// Summary aggregates the ledger for the range.
func (s *Service) Summary(ctx context.Context, orgID int64, rng Range, g Granularity) (RevenueSummary, error) {
	txs, err := s.repo.Between(ctx, orgID, rng.From, rng.To)
	if err != nil {
		return RevenueSummary{}, fmt.Errorf("load transactions: %w", err)
	}
	return Summarize(txs, rng.From, rng.To, g), nil
}

// Report loads the summary and the service balances concurrently.
func (s *Service) Report(ctx context.Context, orgID int64, rng Range, g Granularity) (*Report, error) {
	var (
		txs   []Transaction
		lines []BilledLine
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		txs, err = s.repo.Between(egCtx, orgID, rng.From, rng.To)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		lines, err = s.repo.AcceptedLines(egCtx, orgID, rng.From, rng.To)
		if err != nil {
			return fmt.Errorf("load booking lines: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &Report{
		Range:    rng,
		Summary:  Summarize(txs, rng.From, rng.To, g),
		Balances: Balances(lines, txs),
	}, nil
}

// Export renders the report as XLSX. Identical concurrent exports share one build;
// the build is detached from the cancellation of the caller that started it and
// each caller stops waiting when its own context ends.
func (s *Service) Export(ctx context.Context, orgID int64, rng Range, g Granularity) ([]byte, error) {
	key := fmt.Sprintf("%d:%s:%s:%s", orgID, rng.From.Format(time.DateOnly), rng.To.Format(time.DateOnly), g)
	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		report, err := s.Report(buildCtx, orgID, rng, g)
		if err != nil {
			return nil, err
		}
		return WriteXLSX(report)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// ListTransactions returns a page of the ledger.
func (s *Service) ListTransactions(ctx context.Context, req ListTransactionsRequest) ([]Transaction, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return s.repo.List(ctx, req)
}

// CreateTransaction records a manual ledger entry. Deal and booking income is only
// written by their workflows.
func (s *Service) CreateTransaction(ctx context.Context, orgID, actorID int64, in TransactionInput) (*Transaction, error) {
	in.Description = strings.TrimSpace(in.Description)
	in.Amount = in.Amount.Round(2)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, err
	}
	t := Transaction{
		OrganizationID: orgID,
		Kind:           in.Kind,
		Source:         in.Source,
		ServiceID:      in.ServiceID,
		Amount:         in.Amount,
		OccurredOn:     truncateDay(in.OccurredOn),
		Description:    in.Description,
		CreatedBy:      actorID,
	}
	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	t.ID = id
	s.record(ctx, orgID, actorID, "transaction.created", id, map[string]any{"kind": t.Kind, "amount": t.Amount.StringFixed(2)})
	return &t, nil
}

// DeleteTransaction removes a manual entry.
func (s *Service) DeleteTransaction(ctx context.Context, orgID, actorID, id int64) error {
	t, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if t.RefID != nil {
		return fmt.Errorf("%w: %s income is managed by its workflow", ErrProtected, strings.ToLower(string(t.Source)))
	}
	if err := s.repo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "transaction.deleted", id, nil)
	return nil
}

// CurrentMonth is the default range of the revenue page.
func (s *Service) CurrentMonth() Range {
	return MonthRange(s.now())
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "transaction",
		EntityID:       fmt.Sprint(id),
		Meta:           meta,
	})
}
