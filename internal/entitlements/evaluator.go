package entitlements

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/usage"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
)

type planReader interface {
	Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
	GetTx(ctx context.Context, tx *gorm.DB, planType enums.PlanType) (*models.Plan, error)
}

type usageCounter interface {
	Count(ctx context.Context, tx *gorm.DB, subscriberID uint64) (usage.Counts, error)
}

type lifecycle interface {
	RefreshTrial(ctx context.Context, id uint64) (*models.Subscriber, error)
	Lock(ctx context.Context, tx *gorm.DB, id uint64) (*models.Subscriber, error)
}

// Evaluator answers "may this subscriber do X now". Every call recomputes
// from the database.
type Evaluator interface {
	LimitsView(ctx context.Context, subscriberID uint64) (Snapshot, error)
	CanCreate(ctx context.Context, subscriberID uint64, resource enums.Resource) (bool, error)
	HasFeature(ctx context.Context, subscriberID uint64, feature string) (bool, error)
	Guard(ctx context.Context, tx *gorm.DB, subscriberID uint64, resource enums.Resource) (Snapshot, error)
}

// EvaluatorParams groups dependencies for the evaluator.
type EvaluatorParams struct {
	Plans              planReader
	Usage              usageCounter
	Lifecycle          lifecycle
	Metrics            *metrics.BillingMetrics
	Logger             *logger.Logger
	NearLimitThreshold int
	Now                func() time.Time
}

type evaluator struct {
	plans     planReader
	usage     usageCounter
	lifecycle lifecycle
	metrics   *metrics.BillingMetrics
	logg      *logger.Logger
	threshold int
	now       func() time.Time
}

// NewEvaluator builds the entitlement evaluator.
func NewEvaluator(params EvaluatorParams) (Evaluator, error) {
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Usage == nil {
		return nil, fmt.Errorf("usage counter required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.NearLimitThreshold < 0 || params.NearLimitThreshold > 100 {
		return nil, fmt.Errorf("near limit threshold must be within 0..100")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &evaluator{
		plans:     params.Plans,
		usage:     params.Usage,
		lifecycle: params.Lifecycle,
		metrics:   params.Metrics,
		logg:      params.Logger,
		threshold: params.NearLimitThreshold,
		now:       func() time.Time { return now().UTC() },
	}, nil
}

// LimitsView applies lazy trial expiry and returns a fresh snapshot.
func (e *evaluator) LimitsView(ctx context.Context, subscriberID uint64) (Snapshot, error) {
	sub, err := e.lifecycle.RefreshTrial(ctx, subscriberID)
	if err != nil {
		return Snapshot{}, err
	}
	plan, err := e.plans.Get(ctx, sub.PlanType)
	if err != nil {
		return Snapshot{}, err
	}
	counts, err := e.usage.Count(ctx, nil, sub.ID)
	if err != nil {
		return Snapshot{}, err
	}
	return Build(*sub, *plan, usage.FromCounts(*sub, *plan, counts), e.threshold, e.now()), nil
}

func (e *evaluator) CanCreate(ctx context.Context, subscriberID uint64, resource enums.Resource) (bool, error) {
	if !resource.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "unknown resource")
	}
	snap, err := e.LimitsView(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	return snap.For(resource).CanCreate, nil
}

func (e *evaluator) HasFeature(ctx context.Context, subscriberID uint64, feature string) (bool, error) {
	snap, err := e.LimitsView(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	return snap.HasFeature(feature), nil
}

// Guard is the authoritative check for a create. It must run inside the
// transaction that performs the insert: it takes the subscriber lock and
// recounts under it, so two racing creates cannot both take the last slot.
func (e *evaluator) Guard(ctx context.Context, tx *gorm.DB, subscriberID uint64, resource enums.Resource) (Snapshot, error) {
	if tx == nil {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeInternal, "guard requires a transaction")
	}
	sub, err := e.lifecycle.Lock(ctx, tx, subscriberID)
	if err != nil {
		return Snapshot{}, err
	}
	plan, err := e.plans.GetTx(ctx, tx, sub.PlanType)
	if err != nil {
		return Snapshot{}, err
	}
	counts, err := e.usage.Count(ctx, tx, sub.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Build(*sub, *plan, usage.FromCounts(*sub, *plan, counts), e.threshold, e.now())
	if err := Check(snap, resource); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeLimitExceeded) {
			e.metrics.LimitDenied(string(resource), string(plan.Type))
			logCtx := e.logg.WithFields(ctx, map[string]any{
				"subscriber_id": sub.ID,
				"resource":      resource,
				"current":       snap.For(resource).Current,
				"plan_type":     plan.Type,
			})
			e.logg.Info(logCtx, "plan limit reached")
		}
		return snap, err
	}
	return snap, nil
}
