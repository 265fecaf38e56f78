package payments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/campaigns"
	"github.com/angelmondragon/fintrack-backend/internal/plans"
	"github.com/angelmondragon/fintrack-backend/internal/subscribers"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fintrack-backend/pkg/paddle"
	"github.com/angelmondragon/fintrack-backend/pkg/pagination"
)

// Audit reasons written to payment_events.
const (
	reasonCreated   = "payment_created"
	reasonCheckout  = "checkout_started"
	reasonProof     = "proof_submitted"
	reasonQueued    = "queued_for_review"
	reasonCompleted = "payment_completed"
	reasonExpired   = "expired"
)

const actorSystem = "system"

type planReader interface {
	Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
}

type couponEngine interface {
	Resolve(ctx context.Context, code string, plan models.Plan) (*campaigns.Quote, error)
	Redeem(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) error
}

type lifecycle interface {
	Get(ctx context.Context, id uint64) (*models.Subscriber, error)
	CheckDowngrade(ctx context.Context, tx *gorm.DB, subscriberID uint64, target models.Plan) error
	Activate(ctx context.Context, tx *gorm.DB, input subscribers.ActivateInput) (*models.Subscriber, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway begins hosted checkouts for automated-family payments.
type Gateway interface {
	BeginCheckout(ctx context.Context, req paddle.CheckoutRequest) (paddle.CheckoutSession, error)
}

// Service owns payment state. Every status change goes through it.
type Service interface {
	Methods(ctx context.Context) ([]models.PaymentMethod, error)
	SeedMethods(ctx context.Context) error
	Create(ctx context.Context, input CreateInput) (*models.Payment, error)
	RetryCheckout(ctx context.Context, id uint64) (*models.Payment, error)
	Get(ctx context.Context, id uint64) (*models.Payment, error)
	ListBySubscriber(ctx context.Context, subscriberID uint64, limit int) ([]models.Payment, error)
	Events(ctx context.Context, id uint64) ([]models.PaymentEvent, error)
	Proof(ctx context.Context, id uint64) (*models.PaymentProof, error)
	SubmitProof(ctx context.Context, id uint64, input ProofInput) (*models.Payment, error)
	Complete(ctx context.Context, id uint64, src Source) (*Outcome, error)
	Fail(ctx context.Context, id uint64, reason string, src Source) (*Outcome, error)
	Reject(ctx context.Context, id uint64, src Source) (*models.Payment, error)
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Repo              Repository
	Plans             planReader
	Campaigns         couponEngine
	Lifecycle         lifecycle
	Gateway           Gateway
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
	ManualTTL         time.Duration
	Now               func() time.Time
}

// CreateInput starts a payment attempt for a plan.
type CreateInput struct {
	SubscriberID  uint64
	PlanType      enums.PlanType
	PaymentMethod enums.PaymentMethodName
	CouponCode    string
}

// ProofInput is the evidence a subscriber attaches to a manual payment.
type ProofInput struct {
	Description   string
	EvidenceRef   string
	BankReference string
	PhoneNumber   string
}

// SourceKind tells who is driving a completion or failure.
type SourceKind string

const (
	SourceGateway SourceKind = "gateway"
	SourceReview  SourceKind = "review"
)

// Source describes the signal behind a terminal transition. Gateway sources
// carry the external event id used for replay detection.
type Source struct {
	Kind       SourceKind
	EventID    string
	EventType  string
	ReviewerID uint64
	Note       string
}

// GatewaySource builds the source for a gateway callback.
func GatewaySource(eventID, eventType string) Source {
	return Source{Kind: SourceGateway, EventID: strings.TrimSpace(eventID), EventType: eventType}
}

// ReviewSource builds the source for an admin decision.
func ReviewSource(reviewerID uint64, note string) Source {
	return Source{Kind: SourceReview, ReviewerID: reviewerID, Note: strings.TrimSpace(note)}
}

func (s Source) validate() error {
	switch s.Kind {
	case SourceGateway:
		if s.EventID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "gateway event id is required")
		}
	case SourceReview:
		if s.ReviewerID == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reviewer id is required")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown completion source")
	}
	return nil
}

func (s Source) family() enums.PaymentFamily {
	if s.Kind == SourceGateway {
		return enums.PaymentFamilyAutomated
	}
	return enums.PaymentFamilyManual
}

func (s Source) actor() string {
	if s.Kind == SourceReview {
		return "admin:" + strconv.FormatUint(s.ReviewerID, 10)
	}
	return string(SourceGateway)
}

func (s Source) actorRef() *outbox.ActorRef {
	if s.Kind == SourceReview {
		id := s.ReviewerID
		return &outbox.ActorRef{SubscriberID: &id, Role: string(enums.ActorRoleAdmin), Source: "reconciliation"}
	}
	return &outbox.ActorRef{Source: "paddle"}
}

// Outcome reports a completion or failure. Duplicate is set when the signal
// was already applied and nothing changed.
type Outcome struct {
	Payment   *models.Payment
	Duplicate bool
}

// change is one guarded status move plus its audit trail.
type change struct {
	to       enums.PaymentStatus
	actor    string
	actorRef *outbox.ActorRef
	reason   string
	eventID  string
	updates  map[string]any
}

type move struct {
	from, to enums.PaymentStatus
}

type service struct {
	repo      Repository
	plans     planReader
	campaigns couponEngine
	lifecycle lifecycle
	gateway   Gateway
	outbox    outbox.Emitter
	tx        txRunner
	metrics   *metrics.BillingMetrics
	logg      *logger.Logger
	manualTTL time.Duration
	now       func() time.Time
}

// NewService builds the payment service. Gateway may be nil, in which case
// automated methods are unavailable.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repo required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Campaigns == nil {
		return nil, fmt.Errorf("coupon engine required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.ManualTTL <= 0 {
		return nil, fmt.Errorf("manual payment ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		plans:     params.Plans,
		campaigns: params.Campaigns,
		lifecycle: params.Lifecycle,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		tx:        params.TransactionRunner,
		metrics:   params.Metrics,
		logg:      params.Logger,
		manualTTL: params.ManualTTL,
		now:       func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) Methods(ctx context.Context) ([]models.PaymentMethod, error) {
	methods, err := s.repo.ListMethods(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	if s.gateway == nil {
		filtered := methods[:0]
		for _, m := range methods {
			if m.Family != enums.PaymentFamilyAutomated {
				filtered = append(filtered, m)
			}
		}
		methods = filtered
	}
	return methods, nil
}

// SeedMethods installs DefaultMethods when the table is empty, leaving admin
// edits alone afterwards.
func (s *service) SeedMethods(ctx context.Context) error {
	count, err := s.repo.CountMethods(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payment methods")
	}
	if count > 0 {
		return nil
	}
	for _, method := range DefaultMethods() {
		method := method
		if err := s.repo.UpsertMethod(ctx, &method); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed payment method")
		}
	}
	s.logg.Info(ctx, "payment methods seeded")
	return nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Payment, error) {
	if input.SubscriberID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriber id is required")
	}
	if !input.PlanType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type").
			WithDetails(map[string]any{"plan_type": input.PlanType})
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"payment_method": input.PaymentMethod})
	}

	method, err := s.repo.FindMethod(ctx, input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}
	if method == nil || !method.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is not available").
			WithDetails(map[string]any{"payment_method": input.PaymentMethod})
	}
	if _, ok := flowFor(method.Family); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method has no flow")
	}

	sub, err := s.lifecycle.Get(ctx, input.SubscriberID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.Get(ctx, input.PlanType)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not available").
			WithDetails(map[string]any{"plan_type": plan.Type})
	}
	if method.Family == enums.PaymentFamilyAutomated {
		if s.gateway == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments are not configured")
		}
		if plan.GatewayPriceID == nil || *plan.GatewayPriceID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan cannot be paid by card").
				WithDetails(map[string]any{"plan_type": plan.Type, "payment_method": method.Name})
		}
	}

	current, err := s.plans.Get(ctx, sub.PlanType)
	if err != nil {
		return nil, err
	}
	if plans.Compare(*plan, *current) < 0 {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.lifecycle.CheckDowngrade(ctx, tx, sub.ID, *plan)
		})
		if err != nil {
			return nil, asDependency(err, "check downgrade")
		}
	}

	amount := plan.Price.Round(2)
	discount := decimal.Zero
	var campaignID *uuid.UUID
	var couponCode *string
	if strings.TrimSpace(input.CouponCode) != "" {
		quote, err := s.campaigns.Resolve(ctx, input.CouponCode, *plan)
		if err != nil {
			return nil, err
		}
		id := quote.Campaign.ID
		code := quote.Code
		campaignID = &id
		couponCode = &code
		discount = quote.Discount
	}

	flow, _ := flowFor(method.Family)
	now := s.now()
	payment := &models.Payment{
		SubscriberID:   sub.ID,
		PlanType:       plan.Type,
		PaymentMethod:  method.Name,
		Family:         method.Family,
		Amount:         amount,
		DiscountAmount: discount,
		FinalAmount:    campaigns.FinalAmount(amount, discount),
		Currency:       plan.Currency,
		CampaignID:     campaignID,
		CouponCode:     couponCode,
		Status:         flow.initial,
		CreatedAt:      now,
	}
	if method.Family == enums.PaymentFamilyManual {
		expires := now.Add(s.manualTTL)
		payment.ExpiresAt = &expires
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
		return s.audit(ctx, repo, payment.ID, enums.PaymentStatusCreated, payment.Status, actorFor(sub.ID), reasonCreated, "")
	})
	if err != nil {
		return nil, asDependency(err, "create payment")
	}
	s.observe(payment.Family, move{from: enums.PaymentStatusCreated, to: payment.Status})

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":     payment.ID,
		"subscriber_id":  payment.SubscriberID,
		"plan_type":      payment.PlanType,
		"payment_method": payment.PaymentMethod,
		"final_amount":   payment.FinalAmount.StringFixed(2),
	})
	s.logg.Info(logCtx, "payment created")

	if payment.Family == enums.PaymentFamilyAutomated {
		return s.beginCheckout(ctx, payment, plan)
	}
	return payment, nil
}

// RetryCheckout asks the gateway again for an automated payment whose first
// checkout attempt failed.
func (s *service) RetryCheckout(ctx context.Context, id uint64) (*models.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Family != enums.PaymentFamilyAutomated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout applies to card payments only").
			WithDetails(map[string]any{"payment_id": payment.ID, "payment_method": payment.PaymentMethod})
	}
	if payment.Status.IsTerminal() {
		return nil, terminalError(payment)
	}
	if payment.Status != enums.PaymentStatusCreated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already started").
			WithDetails(map[string]any{"payment_id": payment.ID, "status": payment.Status})
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments are not configured")
	}
	plan, err := s.plans.Get(ctx, payment.PlanType)
	if err != nil {
		return nil, err
	}
	if plan.GatewayPriceID == nil || *plan.GatewayPriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan cannot be paid by card").
			WithDetails(map[string]any{"plan_type": plan.Type})
	}
	return s.beginCheckout(ctx, payment, plan)
}

// beginCheckout runs outside any database transaction. A gateway failure
// leaves the payment in created so the client can retry.
func (s *service) beginCheckout(ctx context.Context, payment *models.Payment, plan *models.Plan) (*models.Payment, error) {
	req := paddle.CheckoutRequest{
		PaymentID:    payment.ID,
		Reference:    payment.Reference(),
		SubscriberID: payment.SubscriberID,
		PriceID:      *plan.GatewayPriceID,
		PlanName:     plan.Name,
		FinalAmount:  payment.FinalAmount,
		Currency:     payment.Currency,
	}
	if payment.CouponCode != nil {
		req.CouponCode = *payment.CouponCode
	}
	session, err := s.gateway.BeginCheckout(ctx, req)
	if err != nil {
		s.logg.Error(s.logg.WithPaymentID(ctx, payment.ID), "begin checkout", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable").
			WithDetails(map[string]any{"payment_id": payment.ID, "next_action": NextActionRetry})
	}

	var out *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.load(ctx, s.repo.WithTx(tx), payment.ID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, fresh, change{
			to:       enums.PaymentStatusRedirected,
			actor:    actorSystem,
			actorRef: &outbox.ActorRef{Source: "checkout"},
			reason:   reasonCheckout,
			updates: map[string]any{
				"external_reference": session.TransactionID,
				"checkout_url":       session.URL,
			},
		}); err != nil {
			return err
		}
		out, err = s.load(ctx, s.repo.WithTx(tx), payment.ID)
		return err
	})
	if err != nil {
		return nil, asDependency(err, "record checkout")
	}
	s.observe(out.Family, move{from: enums.PaymentStatusCreated, to: enums.PaymentStatusRedirected})
	return out, nil
}

// Get returns the payment, first applying lazy expiry so a payment past its
// deadline always reads as expired.
func (s *service) Get(ctx context.Context, id uint64) (*models.Payment, error) {
	payment, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if payment.PastExpiry(s.now()) {
		return s.expire(ctx, payment.ID)
	}
	return payment, nil
}

func (s *service) ListBySubscriber(ctx context.Context, subscriberID uint64, limit int) ([]models.Payment, error) {
	rows, err := s.repo.ListBySubscriber(ctx, subscriberID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	now := s.now()
	for i := range rows {
		if !rows[i].PastExpiry(now) {
			continue
		}
		expired, err := s.expire(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		rows[i] = *expired
	}
	return rows, nil
}

func (s *service) Events(ctx context.Context, id uint64) ([]models.PaymentEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment events")
	}
	return rows, nil
}

func (s *service) Proof(ctx context.Context, id uint64) (*models.PaymentProof, error) {
	proof, err := s.repo.FindProof(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proof")
	}
	if proof == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "proof not found")
	}
	return proof, nil
}

// ExpireOverdue moves up to limit payments past their deadline to expired so
// their notices go out without waiting for a read.
func (s *service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	ids, err := s.repo.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue payments")
	}
	expired := 0
	for _, id := range ids {
		p, err := s.expire(ctx, id)
		if err != nil {
			return expired, err
		}
		if p.Status == enums.PaymentStatusExpired {
			expired++
		}
	}
	return expired, nil
}

func (s *service) expire(ctx context.Context, id uint64) (*models.Payment, error) {
	var (
		out  *models.Payment
		from enums.PaymentStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if !fresh.PastExpiry(s.now()) {
			out = fresh
			return nil
		}
		from = fresh.Status
		if err := s.transition(ctx, tx, fresh, change{
			to:       enums.PaymentStatusExpired,
			actor:    actorSystem,
			actorRef: &outbox.ActorRef{Source: "expiry"},
			reason:   reasonExpired,
		}); err != nil {
			return err
		}
		out, err = s.load(ctx, repo, id)
		return err
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeConcurrency) {
		return s.load(ctx, s.repo, id)
	}
	if err != nil {
		return nil, asDependency(err, "expire payment")
	}
	if from != "" {
		s.observe(out.Family, move{from: from, to: enums.PaymentStatusExpired})
		s.logg.Info(s.logg.WithPaymentID(ctx, id), "payment expired")
	}
	return out, nil
}

// SubmitProof attaches evidence and queues the payment for review in one
// step. Once under review the payment no longer expires.
func (s *service) SubmitProof(ctx context.Context, id uint64, input ProofInput) (*models.Payment, error) {
	evidence := strings.TrimSpace(input.EvidenceRef)
	bankRef := strings.TrimSpace(input.BankReference)
	phone := strings.TrimSpace(input.PhoneNumber)
	if evidence == "" && bankRef == "" && phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof needs an evidence reference, bank reference or phone number")
	}

	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Family != enums.PaymentFamilyManual {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "proof applies to manual payments only").
			WithDetails(map[string]any{"payment_id": payment.ID, "payment_method": payment.PaymentMethod})
	}
	if payment.Status.IsTerminal() {
		return nil, terminalError(payment)
	}

	actor := actorFor(payment.SubscriberID)
	var out *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if fresh.Status != enums.PaymentStatusAwaitingProof {
			if fresh.Status.IsTerminal() {
				return terminalError(fresh)
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proof already submitted").
				WithDetails(map[string]any{"payment_id": fresh.ID, "status": fresh.Status})
		}

		proof := &models.PaymentProof{
			PaymentID:     fresh.ID,
			Description:   strings.TrimSpace(input.Description),
			EvidenceRef:   optional(evidence),
			BankReference: optional(bankRef),
			PhoneNumber:   optional(phone),
			SubmittedAt:   s.now(),
		}
		if err := repo.CreateProof(ctx, proof); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "proof already submitted").
					WithDetails(map[string]any{"payment_id": fresh.ID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store proof")
		}

		ref := subscriberRef(fresh.SubscriberID)
		if err := s.transition(ctx, tx, fresh, change{
			to: enums.PaymentStatusSubmitted, actor: actor, actorRef: ref, reason: reasonProof,
		}); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, fresh, change{
			to: enums.PaymentStatusUnderReview, actor: actor, actorRef: ref, reason: reasonQueued,
			updates: map[string]any{"expires_at": nil},
		}); err != nil {
			return err
		}
		out, err = s.load(ctx, repo, id)
		return err
	})
	if err != nil {
		return nil, asDependency(err, "submit proof")
	}
	s.observe(out.Family,
		move{from: enums.PaymentStatusAwaitingProof, to: enums.PaymentStatusSubmitted},
		move{from: enums.PaymentStatusSubmitted, to: enums.PaymentStatusUnderReview},
	)
	s.logg.Info(s.logg.WithPaymentID(ctx, id), "payment proof submitted")
	return out, nil
}

// Complete settles the payment. The status change, coupon redemption,
// subscriber activation and gateway event record commit together or not at all.
func (s *service) Complete(ctx context.Context, id uint64, src Source) (*Outcome, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	out := &Outcome{}
	var from enums.PaymentStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if dup, err := s.seen(ctx, repo, src); err != nil || dup {
			if dup {
				out.Duplicate = true
				out.Payment, err = s.load(ctx, repo, id)
			}
			return err
		}

		payment, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if payment.Family != src.family() {
			return wrongSource(payment, src)
		}
		if payment.Status == enums.PaymentStatusCompleted {
			out.Duplicate = true
			out.Payment = payment
			return s.recordGatewayEvent(ctx, repo, src, payment.ID)
		}

		from = payment.Status
		now := s.now()
		if err := s.transition(ctx, tx, payment, change{
			to:       enums.PaymentStatusCompleted,
			actor:    src.actor(),
			actorRef: src.actorRef(),
			reason:   reasonCompleted,
			eventID:  src.EventID,
			updates:  map[string]any{"processed_at": now, "expires_at": nil},
		}); err != nil {
			return err
		}
		if payment.CampaignID != nil {
			if err := s.campaigns.Redeem(ctx, tx, *payment.CampaignID); err != nil {
				return err
			}
		}
		if _, err := s.lifecycle.Activate(ctx, tx, subscribers.ActivateInput{
			SubscriberID: payment.SubscriberID,
			PlanType:     payment.PlanType,
			PaymentID:    payment.ID,
			Actor:        src.actorRef(),
		}); err != nil {
			return err
		}
		if src.Kind == SourceReview {
			if err := repo.UpdateProofReview(ctx, payment.ID, reviewUpdates(src, enums.ReviewDecisionApprove, now)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record review")
			}
		}
		if err := s.recordGatewayEvent(ctx, repo, src, payment.ID); err != nil {
			return err
		}
		out.Payment, err = s.load(ctx, repo, id)
		return err
	})
	if err != nil {
		if src.Kind == SourceGateway && db.IsUniqueViolation(err, "gateway_events") {
			payment, loadErr := s.load(ctx, s.repo, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return &Outcome{Payment: payment, Duplicate: true}, nil
		}
		return nil, asDependency(err, "complete payment")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":    id,
		"subscriber_id": out.Payment.SubscriberID,
		"event_id":      src.EventID,
		"source":        src.Kind,
	})
	if out.Duplicate {
		s.logg.Info(logCtx, "payment completion already applied")
		return out, nil
	}
	s.observe(out.Payment.Family, move{from: from, to: enums.PaymentStatusCompleted})
	s.logg.Info(logCtx, "payment completed")
	return out, nil
}

// Fail records a gateway-reported failure. The subscriber is left untouched.
func (s *service) Fail(ctx context.Context, id uint64, reason string, src Source) (*Outcome, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if src.Kind != SourceGateway {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only the gateway can fail a payment")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment_failed"
	}

	out := &Outcome{}
	var from enums.PaymentStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if dup, err := s.seen(ctx, repo, src); err != nil || dup {
			if dup {
				out.Duplicate = true
				out.Payment, err = s.load(ctx, repo, id)
			}
			return err
		}
		payment, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if payment.Family != enums.PaymentFamilyAutomated {
			return wrongSource(payment, src)
		}
		if payment.Status == enums.PaymentStatusFailed {
			out.Duplicate = true
			out.Payment = payment
			return s.recordGatewayEvent(ctx, repo, src, payment.ID)
		}
		from = payment.Status
		if err := s.transition(ctx, tx, payment, change{
			to:       enums.PaymentStatusFailed,
			actor:    src.actor(),
			actorRef: src.actorRef(),
			reason:   reason,
			eventID:  src.EventID,
			updates:  map[string]any{"failure_reason": reason, "processed_at": s.now()},
		}); err != nil {
			return err
		}
		if err := s.recordGatewayEvent(ctx, repo, src, payment.ID); err != nil {
			return err
		}
		out.Payment, err = s.load(ctx, repo, id)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, "gateway_events") {
			payment, loadErr := s.load(ctx, s.repo, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return &Outcome{Payment: payment, Duplicate: true}, nil
		}
		return nil, asDependency(err, "fail payment")
	}
	if !out.Duplicate {
		s.observe(out.Payment.Family, move{from: from, to: enums.PaymentStatusFailed})
		logCtx := s.logg.WithFields(ctx, map[string]any{"payment_id": id, "event_id": src.EventID, "reason": reason})
		s.logg.Info(logCtx, "payment failed")
	}
	return out, nil
}

// Reject closes a manual payment after review. The subscriber keeps whatever
// status and plan it had.
func (s *service) Reject(ctx context.Context, id uint64, src Source) (*models.Payment, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if src.Kind != SourceReview {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only a reviewer can reject a payment")
	}
	reason := src.Note
	if reason == "" {
		reason = "proof_rejected"
	}

	var out *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if payment.Family != enums.PaymentFamilyManual {
			return wrongSource(payment, src)
		}
		now := s.now()
		if err := s.transition(ctx, tx, payment, change{
			to:       enums.PaymentStatusRejected,
			actor:    src.actor(),
			actorRef: src.actorRef(),
			reason:   reason,
			updates:  map[string]any{"failure_reason": reason, "processed_at": now},
		}); err != nil {
			return err
		}
		if err := repo.UpdateProofReview(ctx, payment.ID, reviewUpdates(src, enums.ReviewDecisionReject, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record review")
		}
		out, err = s.load(ctx, repo, id)
		return err
	})
	if err != nil {
		return nil, asDependency(err, "reject payment")
	}
	s.observe(out.Family, move{from: enums.PaymentStatusUnderReview, to: enums.PaymentStatusRejected})
	logCtx := s.logg.WithFields(ctx, map[string]any{"payment_id": id, "reviewer_id": src.ReviewerID})
	s.logg.Info(logCtx, "payment rejected")
	return out, nil
}

// transition applies one guarded move: flow check, conditional update, audit
// row and, for terminal statuses, the outcome event.
func (s *service) transition(ctx context.Context, tx *gorm.DB, payment *models.Payment, ch change) error {
	from := payment.Status
	if from.IsTerminal() {
		return terminalError(payment)
	}
	flow, ok := flowFor(payment.Family)
	if !ok || !flow.allows(from, ch.to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment transition not allowed").
			WithDetails(map[string]any{"payment_id": payment.ID, "from": from, "to": ch.to})
	}

	updates := map[string]any{"status": ch.to}
	for k, v := range ch.updates {
		updates[k] = v
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.Transition(ctx, payment.ID, from, updates)
	if err != nil {
		if db.IsConcurrencyError(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "payment updated concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "payment updated concurrently")
	}
	if err := s.audit(ctx, repo, payment.ID, from, ch.to, ch.actor, ch.reason, ch.eventID); err != nil {
		return err
	}
	payment.Status = ch.to

	if eventType, ok := outcomeEvents[ch.to]; ok {
		data := payloads.PaymentOutcomeEvent{
			PaymentID:     payment.ID,
			Reference:     payment.Reference(),
			SubscriberID:  payment.SubscriberID,
			PlanType:      payment.PlanType,
			PaymentMethod: payment.PaymentMethod,
			Status:        ch.to,
			FinalAmount:   payment.FinalAmount,
			Currency:      payment.Currency,
			CouponCode:    payment.CouponCode,
			OccurredAt:    s.now(),
		}
		if ch.to != enums.PaymentStatusCompleted {
			data.Reason = ch.reason
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayment,
			AggregateID:   strconv.FormatUint(payment.ID, 10),
			Actor:         ch.actorRef,
			Data:          data,
			OccurredAt:    data.OccurredAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
		}
	}
	return nil
}

var outcomeEvents = map[enums.PaymentStatus]enums.OutboxEventType{
	enums.PaymentStatusCompleted: enums.EventPaymentCompleted,
	enums.PaymentStatusFailed:    enums.EventPaymentFailed,
	enums.PaymentStatusRejected:  enums.EventPaymentRejected,
	enums.PaymentStatusExpired:   enums.EventPaymentExpired,
}

func (s *service) audit(ctx context.Context, repo Repository, paymentID uint64, from, to enums.PaymentStatus, actor, reason, eventID string) error {
	event := &models.PaymentEvent{
		PaymentID:       paymentID,
		FromStatus:      from,
		ToStatus:        to,
		Actor:           actor,
		Reason:          optional(reason),
		ExternalEventID: optional(eventID),
		OccurredAt:      s.now(),
	}
	if err := repo.AppendEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
	}
	return nil
}

// seen reports whether a gateway event was already processed.
func (s *service) seen(ctx context.Context, repo Repository, src Source) (bool, error) {
	if src.Kind != SourceGateway {
		return false, nil
	}
	exists, err := repo.GatewayEventExists(ctx, src.EventID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check gateway event")
	}
	return exists, nil
}

func (s *service) recordGatewayEvent(ctx context.Context, repo Repository, src Source, paymentID uint64) error {
	if src.Kind != SourceGateway {
		return nil
	}
	id := paymentID
	err := repo.RecordGatewayEvent(ctx, &models.GatewayEvent{
		EventID:    src.EventID,
		EventType:  src.EventType,
		PaymentID:  &id,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uint64) (*models.Payment, error) {
	if id == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) observe(family enums.PaymentFamily, moves ...move) {
	for _, m := range moves {
		s.metrics.PaymentTransition(string(family), string(m.from), string(m.to))
	}
}

// terminalError explains why a final payment cannot move, with the next step
// for the client.
func terminalError(payment *models.Payment) error {
	details := map[string]any{
		"payment_id":  payment.ID,
		"status":      payment.Status,
		"next_action": NextAction(payment.Status),
	}
	if payment.Status == enums.PaymentStatusExpired {
		return pkgerrors.New(pkgerrors.CodeExpired, "payment expired").WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already final").WithDetails(details)
}

func wrongSource(payment *models.Payment, src Source) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment method does not accept this signal").
		WithDetails(map[string]any{
			"payment_id":     payment.ID,
			"payment_method": payment.PaymentMethod,
			"source":         src.Kind,
		})
}

func reviewUpdates(src Source, decision enums.ReviewDecision, at time.Time) map[string]any {
	updates := map[string]any{
		"reviewed_at": at,
		"reviewer_id": src.ReviewerID,
		"decision":    decision,
	}
	if src.Note != "" {
		updates["review_note"] = src.Note
	}
	return updates
}

func actorFor(subscriberID uint64) string {
	return "subscriber:" + strconv.FormatUint(subscriberID, 10)
}

func subscriberRef(subscriberID uint64) *outbox.ActorRef {
	id := subscriberID
	return &outbox.ActorRef{SubscriberID: &id, Role: string(enums.ActorRoleSubscriber), Source: "api"}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

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
