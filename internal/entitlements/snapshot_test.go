package entitlements

import (
	"testing"
	"time"

	"github.com/angelmondragon/fintrack-backend/internal/usage"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

var evalNow = time.Date(2026, time.May, 5, 9, 0, 0, 0, time.UTC)

func snapshotFor(status enums.SubscriptionStatus, accounts usage.Figure) Snapshot {
	sub := models.Subscriber{ID: 1, Status: status, PlanType: enums.PlanBasic}
	plan := models.Plan{Type: enums.PlanBasic, Rank: 1}
	u := usage.Usage{Accounts: accounts, Transactions: usage.Figure{Limit: types.Unlimited()}}
	return Build(sub, plan, u, 80, evalNow)
}

func TestUnlimitedAlwaysCreates(t *testing.T) {
	for _, current := range []int64{0, 1, 1 << 20, 1 << 40} {
		snap := snapshotFor(enums.SubscriptionStatusActive, usage.Figure{Current: current, Limit: types.Unlimited()})
		if !snap.Accounts.CanCreate {
			t.Fatalf("unlimited must allow create at current=%d", current)
		}
		if snap.Accounts.Percentage != nil {
			t.Fatalf("percentage must be undefined for unlimited")
		}
		if err := Check(snap, enums.ResourceAccounts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestZeroLimitBlocks(t *testing.T) {
	snap := snapshotFor(enums.SubscriptionStatusActive, usage.Figure{Current: 0, Limit: types.Finite(0)})
	if snap.Accounts.CanCreate {
		t.Fatal("zero limit must block")
	}
	if !pkgerrors.IsCode(Check(snap, enums.ResourceAccounts), pkgerrors.CodeLimitExceeded) {
		t.Fatal("expected limit exceeded")
	}
}

func TestPercentageIsPresentUtilization(t *testing.T) {
	snap := snapshotFor(enums.SubscriptionStatusActive, usage.Figure{Current: 4, Limit: types.Finite(5)})
	if snap.Accounts.Percentage == nil || *snap.Accounts.Percentage != 80 {
		t.Fatalf("expected 80%%, got %v", snap.Accounts.Percentage)
	}
	if !snap.Accounts.NearLimit {
		t.Fatal("80% should be near the limit")
	}
	if !snap.Accounts.CanCreate {
		t.Fatal("4 of 5 should still allow create")
	}

	snap = snapshotFor(enums.SubscriptionStatusActive, usage.Figure{Current: 1, Limit: types.Finite(3)})
	if *snap.Accounts.Percentage != 33.33 {
		t.Fatalf("expected 33.33, got %v", *snap.Accounts.Percentage)
	}
	if snap.Accounts.NearLimit {
		t.Fatal("33% is not near the limit")
	}
}

func TestLimitExceededCarriesDetails(t *testing.T) {
	snap := snapshotFor(enums.SubscriptionStatusActive, usage.Figure{Current: 5, Limit: types.Finite(5)})
	err := Check(snap, enums.ResourceAccounts)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
	details := typed.Details().(map[string]any)
	if details["current"] != int64(5) || details["limit"] != types.Finite(5) || details["resource"] != enums.ResourceAccounts {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestCanceledGrantsNothing(t *testing.T) {
	snap := snapshotFor(enums.SubscriptionStatusCanceled, usage.Figure{Current: 0, Limit: types.Unlimited()})
	if snap.Accounts.CanCreate || snap.Transactions.CanCreate {
		t.Fatal("canceled subscriber must not create")
	}
	if !pkgerrors.IsCode(Check(snap, enums.ResourceAccounts), pkgerrors.CodeStateConflict) {
		t.Fatal("expected state conflict")
	}
}

func TestPastDueKeepsEntitlements(t *testing.T) {
	snap := snapshotFor(enums.SubscriptionStatusPastDue, usage.Figure{Current: 1, Limit: types.Finite(5)})
	if !snap.Accounts.CanCreate {
		t.Fatal("past_due keeps plan entitlements")
	}
}

func TestExpiredTrialReadsAsCanceled(t *testing.T) {
	ended := evalNow.Add(-time.Hour)
	sub := models.Subscriber{ID: 1, Status: enums.SubscriptionStatusTrialing, TrialEndsAt: &ended}
	snap := Build(sub, models.Plan{}, usage.Usage{
		Accounts:     usage.Figure{Limit: types.Unlimited()},
		Transactions: usage.Figure{Limit: types.Unlimited()},
	}, 80, evalNow)
	if snap.Status != enums.SubscriptionStatusCanceled || snap.Accounts.CanCreate {
		t.Fatalf("expired trial must not grant access: %+v", snap)
	}
}

func TestHasFeature(t *testing.T) {
	snap := Snapshot{Status: enums.SubscriptionStatusActive, Plan: PlanView{Features: []string{"api_access"}}}
	if !snap.HasFeature("api_access") || snap.HasFeature("team_management") {
		t.Fatal("feature lookup mismatch")
	}
	snap.Status = enums.SubscriptionStatusCanceled
	if snap.HasFeature("api_access") {
		t.Fatal("canceled subscriber has no features")
	}
}
