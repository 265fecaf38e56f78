package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

const defaultExpiryBatch = 100

type overdueExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments overdueExpirer
	Batch    int
}

// NewPaymentExpiryJob expires manual payments whose proof window closed, so
// subscribers hear about it even if nobody reads the payment again.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &paymentExpiryJob{logg: params.Logger, payments: params.Payments, batch: batch}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments overdueExpirer
	batch    int
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

// Run drains overdue payments one batch at a time until a short batch.
func (j *paymentExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		n, err := j.payments.ExpireOverdue(ctx, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("payment expiry: %w", err)
		}
		if n < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", total), "payment expiry sweep complete")
	return nil
}
