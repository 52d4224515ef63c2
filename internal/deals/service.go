package deals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/revenue"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// Car statuses written by the deal lifecycle.
const (
	carAvailable = "AVAILABLE"
	carReserved  = "RESERVED"
	carSold      = "SOLD"
)

// AuditPort records changes for the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ContractRenderer produces the contract PDF.
type ContractRenderer interface {
	Contract(ctx context.Context, data documents.ContractData) ([]byte, error)
}

// Service runs the deal lifecycle. Every status change also moves the car.
type Service struct {
	repo     Repository
	audit    AuditPort
	renderer ContractRenderer
	now      func() time.Time
}

// NewService constructs a Service. audit and renderer may be nil.
func NewService(repo Repository, audit AuditPort, renderer ContractRenderer) *Service {
	return &Service{repo: repo, audit: audit, renderer: renderer, now: time.Now}
}

func normalize(in DealInput) DealInput {
	in.SalePrice = in.SalePrice.Round(2)
	in.DownPayment = in.DownPayment.Round(2)
	in.Terms = strings.TrimSpace(in.Terms)
	return in
}

func validate(in DealInput) error {
	if err := shared.Validate.Struct(in); err != nil {
		return err
	}
	if in.DownPayment.GreaterThan(in.SalePrice) {
		return fmt.Errorf("%w: down payment cannot exceed the sale price", ErrInvalidInput)
	}
	return nil
}

// Create opens a DRAFT deal and reserves the car. The car must be AVAILABLE.
func (s *Service) Create(ctx context.Context, orgID, actorID int64, in DealInput) (*Deal, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}
	var dealID int64
	var docNumber string
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.CustomerExists(ctx, orgID, in.CustomerID)
		if err != nil {
			return fmt.Errorf("check customer: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: customer not found", ErrInvalidInput)
		}
		car, err := repo.LockCar(ctx, orgID, in.CarID)
		if err != nil {
			return err
		}
		if car.Status != carAvailable {
			return fmt.Errorf("%w: car is %s", ErrCarUnavailable, strings.ToLower(car.Status))
		}
		docNumber, err = repo.NextDocNumber(ctx, orgID, s.now())
		if err != nil {
			return err
		}
		zoneID := in.ZoneID
		if zoneID == nil {
			zoneID = car.ZoneID
		}
		deal := Deal{
			OrganizationID: orgID,
			DocNumber:      docNumber,
			CustomerID:     in.CustomerID,
			CarID:          in.CarID,
			ZoneID:         zoneID,
			SalePrice:      in.SalePrice,
			DownPayment:    in.DownPayment,
			Status:         StatusDraft,
			Terms:          in.Terms,
			CreatedBy:      actorRef(actorID),
		}
		dealID, err = repo.Create(ctx, deal)
		if err != nil {
			return fmt.Errorf("create deal: %w", err)
		}
		return repo.SetCarStatus(ctx, orgID, in.CarID, carReserved)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "deal.create", dealID, map[string]any{"doc_number": docNumber, "car_id": in.CarID})
	return s.repo.Get(ctx, orgID, dealID)
}

// Update edits a DRAFT deal. The car of a deal never changes; cancel and open a new deal instead.
func (s *Service) Update(ctx context.Context, orgID, actorID, id int64, in DealInput) (*Deal, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		if !current.Editable() {
			return fmt.Errorf("%w: only draft deals can be edited", ErrInvalidTransition)
		}
		if in.CarID != current.CarID {
			return fmt.Errorf("%w: the car of a deal cannot be changed", ErrInvalidInput)
		}
		if in.CustomerID != current.CustomerID {
			ok, err := repo.CustomerExists(ctx, orgID, in.CustomerID)
			if err != nil {
				return fmt.Errorf("check customer: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: customer not found", ErrInvalidInput)
			}
		}
		current.CustomerID = in.CustomerID
		current.ZoneID = in.ZoneID
		current.SalePrice = in.SalePrice
		current.DownPayment = in.DownPayment
		current.Terms = in.Terms
		return repo.Update(ctx, *current)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "deal.update", id, nil)
	return s.repo.Get(ctx, orgID, id)
}

// Sign moves a DRAFT deal to SIGNED.
func (s *Service) Sign(ctx context.Context, orgID, actorID, id int64) (*Deal, error) {
	return s.transition(ctx, orgID, actorID, id, StatusSigned)
}

// Complete moves a SIGNED deal to COMPLETED, marks the car SOLD and books the sale
// price as DEAL income.
func (s *Service) Complete(ctx context.Context, orgID, actorID, id int64) (*Deal, error) {
	return s.transition(ctx, orgID, actorID, id, StatusCompleted)
}

// Cancel moves a DRAFT or SIGNED deal to CANCELLED and releases the car.
func (s *Service) Cancel(ctx context.Context, orgID, actorID, id int64) (*Deal, error) {
	return s.transition(ctx, orgID, actorID, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, orgID, actorID, id int64, to Status) (*Deal, error) {
	now := s.now()
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		deal, err := repo.GetForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		from = deal.Status
		if !CanTransition(deal.Status, to) {
			return fmt.Errorf("%w: cannot move a %s deal to %s", ErrInvalidTransition,
				strings.ToLower(string(deal.Status)), strings.ToLower(string(to)))
		}
		if _, err := repo.LockCar(ctx, orgID, deal.CarID); err != nil {
			return err
		}
		if err := repo.SetStatus(ctx, orgID, id, to, now); err != nil {
			return err
		}
		switch to {
		case StatusCompleted:
			if err := repo.SetCarStatus(ctx, orgID, deal.CarID, carSold); err != nil {
				return err
			}
			ref := deal.ID
			_, err := repo.RecordIncome(ctx, revenue.Transaction{
				OrganizationID: orgID,
				Kind:           revenue.KindIncome,
				Source:         revenue.SourceDeal,
				RefID:          &ref,
				Amount:         deal.SalePrice,
				OccurredOn:     now,
				Description:    "Deal " + deal.DocNumber,
				CreatedBy:      actorID,
			})
			return err
		case StatusCancelled:
			return repo.SetCarStatus(ctx, orgID, deal.CarID, carAvailable)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "deal."+strings.ToLower(string(to)), id, map[string]any{"from": from, "to": to})
	return s.repo.Get(ctx, orgID, id)
}

// Get returns a deal.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*Deal, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a page of deals and the total count.
func (s *Service) List(ctx context.Context, req ListDealsRequest) ([]Deal, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPerPage
	}
	return s.repo.List(ctx, req)
}

// Contract renders the contract PDF of a deal. An empty locale uses the organization's.
func (s *Service) Contract(ctx context.Context, orgID, id int64, locale language.Tag) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", fmt.Errorf("%w: no renderer configured", documents.ErrRenderFailed)
	}
	deal, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, "", err
	}
	parties, err := s.repo.ContractParties(ctx, orgID, id)
	if err != nil {
		return nil, "", err
	}
	if locale == language.Und {
		locale = language.Make(parties.Locale)
	}
	pdf, err := s.renderer.Contract(ctx, ContractData(deal, parties, locale, s.now()))
	if err != nil {
		return nil, "", err
	}
	return pdf, deal.DocNumber + ".pdf", nil
}

// ContractData assembles the template data of a contract.
func ContractData(deal *Deal, parties *ContractParties, locale language.Tag, at time.Time) documents.ContractData {
	date := at
	if deal.SignedAt != nil {
		date = *deal.SignedAt
	}
	return documents.ContractData{
		Locale:       locale,
		Organization: parties.Organization,
		DocNumber:    deal.DocNumber,
		Date:         date,
		Status:       string(deal.Status),
		Customer: documents.Party{
			Code:       parties.CustomerCode,
			Name:       parties.FullName,
			Email:      deref(parties.Email),
			Phone:      deref(parties.Phone),
			Address:    deref(parties.Address),
			NationalID: deref(parties.NationalID),
		},
		Vehicle:     deal.CarLabel,
		VIN:         deal.VIN,
		Year:        parties.Year,
		Mileage:     parties.Mileage,
		SalePrice:   deal.SalePrice,
		DownPayment: deal.DownPayment,
		Balance:     deal.Balance(),
		Terms:       deal.Terms,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func actorRef(actorID int64) *int64 {
	if actorID <= 0 {
		return nil
	}
	return &actorID
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "deal",
		EntityID:       fmt.Sprint(id),
		Meta:           meta,
	})
}

// IsConflict reports errors that mean the deal or car is in the wrong state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrCarUnavailable)
}
