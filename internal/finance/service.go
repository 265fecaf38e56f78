package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/entitlements"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

type guard interface {
	Guard(ctx context.Context, tx *gorm.DB, subscriberID uint64, resource enums.Resource) (entitlements.Snapshot, error)
}

type trialRefresher interface {
	RefreshTrial(ctx context.Context, id uint64) (*models.Subscriber, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service creates plan-limited resources. Each create checks the limit and
// inserts inside one transaction.
type Service interface {
	CreateAccount(ctx context.Context, subscriberID uint64, input AccountInput) (*models.Account, error)
	CreateTransaction(ctx context.Context, subscriberID uint64, input TransactionInput) (*models.Transaction, error)
}

// ServiceParams groups dependencies for the finance service.
type ServiceParams struct {
	Repo              Repository
	Entitlements      guard
	Lifecycle         trialRefresher
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

// AccountInput is the minimal account shape.
type AccountInput struct {
	Name string
	Kind string
}

// TransactionInput is the minimal transaction shape. OccurredOn is the
// user-supplied date and never drives the monthly quota.
type TransactionInput struct {
	AccountID   *uuid.UUID
	Amount      decimal.Decimal
	Description string
	OccurredOn  *time.Time
}

type service struct {
	repo      Repository
	guard     guard
	lifecycle trialRefresher
	tx        txRunner
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the finance service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("finance repo required")
	}
	if params.Entitlements == nil {
		return nil, fmt.Errorf("entitlement guard required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		guard:     params.Entitlements,
		lifecycle: params.Lifecycle,
		tx:        params.TransactionRunner,
		logg:      params.Logger,
		now:       func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) CreateAccount(ctx context.Context, subscriberID uint64, input AccountInput) (*models.Account, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	account := &models.Account{
		SubscriberID: subscriberID,
		Name:         name,
		Kind:         strings.TrimSpace(input.Kind),
	}
	err := s.guarded(ctx, subscriberID, enums.ResourceAccounts, func(tx *gorm.DB) error {
		account.CreatedAt = s.now()
		return s.repo.WithTx(tx).CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithSubscriberID(ctx, subscriberID), "account created")
	return account, nil
}

func (s *service) CreateTransaction(ctx context.Context, subscriberID uint64, input TransactionInput) (*models.Transaction, error) {
	if input.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	txn := &models.Transaction{
		SubscriberID: subscriberID,
		AccountID:    input.AccountID,
		Amount:       input.Amount.Round(2),
		Description:  strings.TrimSpace(input.Description),
		OccurredOn:   input.OccurredOn,
	}
	err := s.guarded(ctx, subscriberID, enums.ResourceTransactions, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.AccountID != nil {
			account, err := repo.FindAccount(ctx, subscriberID, *input.AccountID)
			if err != nil {
				return err
			}
			if account == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
		}
		txn.CreatedAt = s.now()
		return repo.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithSubscriberID(ctx, subscriberID), "transaction recorded")
	return txn, nil
}

func (s *service) guarded(ctx context.Context, subscriberID uint64, resource enums.Resource, insert func(tx *gorm.DB) error) error {
	if subscriberID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscriber id is required")
	}
	if _, err := s.lifecycle.RefreshTrial(ctx, subscriberID); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.guard.Guard(ctx, tx, subscriberID, resource); err != nil {
			return err
		}
		return insert(tx)
	})
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsConcurrencyError(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "concurrent create, retry")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create "+string(resource))
}
