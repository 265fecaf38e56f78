package subscribers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/plans"
	"github.com/angelmondragon/fintrack-backend/internal/usage"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox/payloads"
)

// Lifecycle reasons recorded in subscription_history.
const (
	ReasonSignup           = "signup"
	ReasonTrialExpired     = "trial_expired"
	ReasonPaymentCompleted = "payment_completed"
	ReasonPlanUpgrade      = "plan_upgrade"
	ReasonPlanDowngrade    = "plan_downgrade"
	ReasonCanceled         = "canceled"
	ReasonPastDue          = "charge_failed"
)

type planReader interface {
	Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
	GetTx(ctx context.Context, tx *gorm.DB, planType enums.PlanType) (*models.Plan, error)
}

type usageCounter interface {
	Count(ctx context.Context, tx *gorm.DB, subscriberID uint64) (usage.Counts, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of subscriber status, plan and trial fields.
type Service interface {
	SignUp(ctx context.Context, input SignUpInput) (*models.Subscriber, error)
	Get(ctx context.Context, id uint64) (*models.Subscriber, error)
	History(ctx context.Context, id uint64) ([]models.SubscriptionHistory, error)
	RefreshTrial(ctx context.Context, id uint64) (*models.Subscriber, error)
	ChangePlan(ctx context.Context, id uint64, planType enums.PlanType, actor *outbox.ActorRef) (*models.Subscriber, error)
	Cancel(ctx context.Context, id uint64, reason string, actor *outbox.ActorRef) (*models.Subscriber, error)
	MarkPastDue(ctx context.Context, id uint64, reason string, actor *outbox.ActorRef) (*models.Subscriber, error)
	Activate(ctx context.Context, tx *gorm.DB, input ActivateInput) (*models.Subscriber, error)
	Lock(ctx context.Context, tx *gorm.DB, id uint64) (*models.Subscriber, error)
	CheckDowngrade(ctx context.Context, tx *gorm.DB, subscriberID uint64, target models.Plan) error
}

// ServiceParams groups dependencies for the lifecycle service.
type ServiceParams struct {
	Repo               Repository
	Plans              planReader
	Usage              usageCounter
	Outbox             outbox.Emitter
	TransactionRunner  txRunner
	Logger             *logger.Logger
	DefaultTrialDays   int
	TrialWarningWindow time.Duration
	Now                func() time.Time
}

// SignUpInput starts a subscriber on a trial of PlanType.
type SignUpInput struct {
	Email          string
	DisplayName    string
	PlanType       enums.PlanType
	OrganizationID *uuid.UUID
	OrgRole        *enums.OrgRole
}

// ActivateInput is the payment-driven activation applied inside the completion transaction.
type ActivateInput struct {
	SubscriberID uint64
	PlanType     enums.PlanType
	PaymentID    uint64
	Actor        *outbox.ActorRef
}

type service struct {
	repo          Repository
	plans         planReader
	usage         usageCounter
	outbox        outbox.Emitter
	tx            txRunner
	logg          *logger.Logger
	trialDays     int
	warningWindow time.Duration
	now           func() time.Time
}

// NewService builds the lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriber repo required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Usage == nil {
		return nil, fmt.Errorf("usage counter required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		plans:         params.Plans,
		usage:         params.Usage,
		outbox:        params.Outbox,
		tx:            params.TransactionRunner,
		logg:          params.Logger,
		trialDays:     params.DefaultTrialDays,
		warningWindow: params.TrialWarningWindow,
		now:           func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) SignUp(ctx context.Context, input SignUpInput) (*models.Subscriber, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid email is required")
	}
	planType := input.PlanType
	if planType == "" {
		planType = enums.PlanBasic
	}
	if input.OrgRole != nil && input.OrganizationID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org_role requires organization_id")
	}
	plan, err := s.plans.Get(ctx, planType)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not available").
			WithDetails(map[string]any{"plan_type": plan.Type})
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscriber")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	}

	days := plan.TrialDays
	if days <= 0 {
		days = s.trialDays
	}
	now := s.now()
	trialEnds := now.AddDate(0, 0, days)
	sub := &models.Subscriber{
		Email:          email,
		DisplayName:    strings.TrimSpace(input.DisplayName),
		Status:         enums.SubscriptionStatusTrialing,
		PlanType:       plan.Type,
		TrialEndsAt:    &trialEnds,
		OrganizationID: input.OrganizationID,
		OrgRole:        input.OrgRole,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, sub); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscriber")
		}
		return repo.AppendHistory(ctx, &models.SubscriptionHistory{
			SubscriberID: sub.ID,
			FromStatus:   enums.SubscriptionStatusTrialing,
			ToStatus:     enums.SubscriptionStatusTrialing,
			FromPlan:     plan.Type,
			ToPlan:       plan.Type,
			Reason:       ReasonSignup,
			OccurredAt:   now,
		})
	})
	if err != nil {
		return nil, asDependency(err, "sign up")
	}

	logCtx := s.logg.WithSubscriberID(ctx, sub.ID)
	s.logg.Info(logCtx, "trial started")
	return sub, nil
}

func (s *service) Get(ctx context.Context, id uint64) (*models.Subscriber, error) {
	return s.find(ctx, s.repo, id)
}

func (s *service) History(ctx context.Context, id uint64) ([]models.SubscriptionHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list history")
	}
	return rows, nil
}

// RefreshTrial applies lazy trial expiry and queues the one-time expiry
// warning once the trial enters the warning window.
func (s *service) RefreshTrial(ctx context.Context, id uint64) (*models.Subscriber, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != enums.SubscriptionStatusTrialing || sub.TrialEndsAt == nil {
		return sub, nil
	}
	now := s.now()

	if sub.TrialExpired(now) {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.transition(ctx, tx, sub, enums.SubscriptionStatusCanceled, sub.PlanType, ReasonTrialExpired, nil, systemActor())
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeConcurrency) {
			return s.Get(ctx, id)
		}
		if err != nil {
			return nil, asDependency(err, "expire trial")
		}
		return sub, nil
	}

	if s.warningWindow > 0 && sub.TrialEndsAt.Sub(now) <= s.warningWindow {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSubscriptionTrialExpiring,
				AggregateType: enums.AggregateSubscriber,
				AggregateID:   aggregateID(sub.ID),
				Actor:         systemActor(),
				Data: payloads.TrialExpiringEvent{
					SubscriberID: sub.ID,
					PlanType:     sub.PlanType,
					TrialEndsAt:  *sub.TrialEndsAt,
				},
				OccurredAt: now,
			})
		})
		if err != nil {
			// the warning is best effort and must not block entitlement reads
			s.logg.Error(s.logg.WithSubscriberID(ctx, sub.ID), "queue trial warning", err)
		}
	}
	return sub, nil
}

func (s *service) ChangePlan(ctx context.Context, id uint64, planType enums.PlanType, actor *outbox.ActorRef) (*models.Subscriber, error) {
	target, err := s.plans.Get(ctx, planType)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not available").
			WithDetails(map[string]any{"plan_type": target.Type})
	}
	if _, err := s.RefreshTrial(ctx, id); err != nil {
		return nil, err
	}

	var out *models.Subscriber
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sub, err := s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is canceled").
				WithDetails(map[string]any{"status": sub.Status})
		}
		if sub.PlanType == target.Type {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscriber is already on this plan").
				WithDetails(map[string]any{"plan_type": target.Type})
		}
		current, err := s.plans.GetTx(ctx, tx, sub.PlanType)
		if err != nil {
			return err
		}

		reason := ReasonPlanDowngrade
		if plans.Compare(*target, *current) > 0 {
			if sub.Status != enums.SubscriptionStatusTrialing {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "upgrade requires a completed payment").
					WithDetails(map[string]any{"plan_type": target.Type, "required_action": "payment"})
			}
			reason = ReasonPlanUpgrade
		} else if err := s.CheckDowngrade(ctx, tx, sub.ID, *target); err != nil {
			return err
		}

		if err := s.transition(ctx, tx, sub, sub.Status, target.Type, reason, nil, actor); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, asDependency(err, "change plan")
	}
	return out, nil
}

// CheckDowngrade rejects a move to target while any resource is above the
// target's ceiling. Accounts are checked before transactions.
func (s *service) CheckDowngrade(ctx context.Context, tx *gorm.DB, subscriberID uint64, target models.Plan) error {
	counts, err := s.usage.Count(ctx, tx, subscriberID)
	if err != nil {
		return err
	}
	for _, resource := range enums.Resources {
		limit := target.LimitFor(resource)
		current := counts.For(resource)
		if limit.Exceeded(current) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "current usage exceeds the target plan limit").
				WithDetails(map[string]any{
					"resource":  resource,
					"current":   current,
					"limit":     limit,
					"plan_type": target.Type,
				})
		}
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, id uint64, reason string, actor *outbox.ActorRef) (*models.Subscriber, error) {
	if strings.TrimSpace(reason) == "" {
		reason = ReasonCanceled
	}
	return s.moveTo(ctx, id, enums.SubscriptionStatusCanceled, reason, actor)
}

func (s *service) MarkPastDue(ctx context.Context, id uint64, reason string, actor *outbox.ActorRef) (*models.Subscriber, error) {
	if strings.TrimSpace(reason) == "" {
		reason = ReasonPastDue
	}
	return s.moveTo(ctx, id, enums.SubscriptionStatusPastDue, reason, actor)
}

func (s *service) moveTo(ctx context.Context, id uint64, to enums.SubscriptionStatus, reason string, actor *outbox.ActorRef) (*models.Subscriber, error) {
	var out *models.Subscriber
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sub, err := s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.Status == to {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already in requested status").
				WithDetails(map[string]any{"status": sub.Status})
		}
		if err := s.transition(ctx, tx, sub, to, sub.PlanType, reason, nil, actor); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, asDependency(err, "update subscription")
	}
	return out, nil
}

// Activate moves the subscriber to active on the paid plan. It runs inside
// the payment completion transaction and never opens its own.
func (s *service) Activate(ctx context.Context, tx *gorm.DB, input ActivateInput) (*models.Subscriber, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "activation requires a transaction")
	}
	sub, err := s.Lock(ctx, tx, input.SubscriberID)
	if err != nil {
		return nil, err
	}
	// Usage may have grown since the payment was created; a paid downgrade
	// still cannot land below current usage.
	if input.PlanType != sub.PlanType {
		target, err := s.plans.GetTx(ctx, tx, input.PlanType)
		if err != nil {
			return nil, err
		}
		current, err := s.plans.GetTx(ctx, tx, sub.PlanType)
		if err != nil {
			return nil, err
		}
		if plans.Compare(*target, *current) < 0 {
			if err := s.CheckDowngrade(ctx, tx, sub.ID, *target); err != nil {
				return nil, err
			}
		}
	}
	paymentID := input.PaymentID
	if err := s.transition(ctx, tx, sub, enums.SubscriptionStatusActive, input.PlanType, ReasonPaymentCompleted, &paymentID, input.Actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// Lock takes the subscriber row lock inside tx and returns the fresh row.
func (s *service) Lock(ctx context.Context, tx *gorm.DB, id uint64) (*models.Subscriber, error) {
	repo := s.repo.WithTx(tx)
	ok, err := repo.Lock(ctx, id)
	if err != nil {
		if db.IsConcurrencyError(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "subscriber is locked by another request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscriber")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscriber not found")
	}
	return s.find(ctx, repo, id)
}

func (s *service) find(ctx context.Context, repo Repository, id uint64) (*models.Subscriber, error) {
	if id == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriber id is required")
	}
	sub, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscriber")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscriber not found")
	}
	return sub, nil
}

// transition writes the guarded status update, the history row and the
// status_changed event. sub is updated in place on success.
func (s *service) transition(ctx context.Context, tx *gorm.DB, sub *models.Subscriber, to enums.SubscriptionStatus, toPlan enums.PlanType, reason string, paymentID *uint64, actor *outbox.ActorRef) error {
	from := sub.Status
	fromPlan := sub.PlanType
	if to != from && !from.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription transition not allowed").
			WithDetails(map[string]any{"from": from, "to": to})
	}

	now := s.now()
	updates := map[string]any{
		"status":    to,
		"plan_type": toPlan,
	}
	switch to {
	case enums.SubscriptionStatusCanceled:
		updates["canceled_at"] = now
	case enums.SubscriptionStatusActive:
		updates["canceled_at"] = nil
		updates["trial_ends_at"] = nil
	}

	repo := s.repo.WithTx(tx)
	rows, err := repo.UpdateLifecycle(ctx, sub.ID, from, updates)
	if err != nil {
		if db.IsConcurrencyError(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "subscriber updated concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscriber")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "subscriber updated concurrently")
	}

	if err := repo.AppendHistory(ctx, &models.SubscriptionHistory{
		SubscriberID: sub.ID,
		FromStatus:   from,
		ToStatus:     to,
		FromPlan:     fromPlan,
		ToPlan:       toPlan,
		Reason:       reason,
		PaymentID:    paymentID,
		OccurredAt:   now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append subscription history")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscriber,
		AggregateID:   aggregateID(sub.ID),
		Actor:         actor,
		Data: payloads.SubscriptionStatusChangedEvent{
			SubscriberID: sub.ID,
			FromStatus:   from,
			ToStatus:     to,
			FromPlan:     fromPlan,
			ToPlan:       toPlan,
			Reason:       reason,
			PaymentID:    paymentID,
		},
		OccurredAt: now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit subscription event")
	}

	sub.Status = to
	sub.PlanType = toPlan
	switch to {
	case enums.SubscriptionStatusCanceled:
		sub.CanceledAt = &now
	case enums.SubscriptionStatusActive:
		sub.CanceledAt = nil
		sub.TrialEndsAt = nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"subscriber_id": sub.ID,
		"from_status":   from,
		"to_status":     to,
		"from_plan":     fromPlan,
		"to_plan":       toPlan,
		"reason":        reason,
	})
	s.logg.Info(logCtx, "subscription transitioned")
	return nil
}

func aggregateID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func systemActor() *outbox.ActorRef {
	return &outbox.ActorRef{Source: "lifecycle"}
}

// asDependency leaves typed errors alone and wraps anything else.
func asDependency(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsConcurrencyError(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
