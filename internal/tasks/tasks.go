// Package tasks defines background jobs run by cmd/worker.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
)

// TypeCancelPayment retries a cancel-payment call that failed inline.
const TypeCancelPayment = "payment:cancel"

// CancelPaymentPayload is the body of a TypeCancelPayment task.
type CancelPaymentPayload struct {
	OrderID string `json:"orderId"`
	Token   string `json:"token,omitempty"`
}

// NewCancelPaymentTask builds a cancel-payment task. The task id is derived
// from the order so a second failure for the same order does not queue twice.
func NewCancelPaymentTask(orderID, token string, maxRetry int) (*asynq.Task, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("tasks: order id is required")
	}
	payload, err := json.Marshal(CancelPaymentPayload{OrderID: orderID, Token: token})
	if err != nil {
		return nil, err
	}
	if maxRetry <= 0 {
		maxRetry = 8
	}
	return asynq.NewTask(TypeCancelPayment, payload,
		asynq.TaskID(TypeCancelPayment+":"+orderID),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	), nil
}

// Enqueuer schedules tasks on the asynq queue.
type Enqueuer struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
}

// EnqueueCancelPayment queues a retry of CancelPayment for orderID. A task
// already queued for the order counts as success.
func (e Enqueuer) EnqueueCancelPayment(ctx context.Context, orderID, token string) error {
	if e.Client == nil {
		return errors.New("tasks: client not configured")
	}
	task, err := NewCancelPaymentTask(orderID, token, e.MaxRetry)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	info, err := e.Client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeCancelPayment, err)
	}
	zerolog.Ctx(ctx).Info().Str("task_id", info.ID).Str("order_id", orderID).Msg("payment_cancel_enqueued")
	return nil
}

// PaymentCanceller performs the cancel-payment call.
type PaymentCanceller interface {
	CancelPayment(ctx context.Context, token, orderID string) error
}

// CancelPaymentHandler processes TypeCancelPayment tasks.
type CancelPaymentHandler struct {
	Payments PaymentCanceller
	Ledger   *audit.Ledger
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler. A malformed payload is not retried.
func (h CancelPaymentHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p CancelPaymentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || strings.TrimSpace(p.OrderID) == "" {
		h.Logger.Error().Err(err).Str("task_type", t.Type()).Msg("cancel_payment_payload_invalid")
		return fmt.Errorf("decode cancel payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.Payments == nil {
		return errors.New("tasks: payment canceller not configured")
	}
	logger := h.Logger.With().Str("order_id", p.OrderID).Logger()
	retried, _ := asynq.GetRetryCount(ctx)
	if err := h.Payments.CancelPayment(ctx, p.Token, p.OrderID); err != nil {
		logger.Warn().Err(err).Int("retry", retried).Msg("cancel_payment_retry_failed")
		obs.Inc(obs.PaymentCancelTotal, "retry_failed")
		h.record(ctx, logger, audit.Entry{
			OrderID: p.OrderID,
			Event:   audit.EventPaymentCancelFailed,
			Outcome: "retry_failed",
			Detail:  map[string]any{"retry": retried, "error": err.Error()},
		})
		return err
	}
	logger.Info().Int("retry", retried).Msg("cancel_payment_retry_succeeded")
	obs.Inc(obs.PaymentCancelTotal, "retry_ok")
	h.record(ctx, logger, audit.Entry{
		OrderID: p.OrderID,
		Event:   audit.EventPaymentCancelled,
		Outcome: "retry_ok",
		Detail:  map[string]any{"retry": retried},
	})
	return nil
}

func (h CancelPaymentHandler) record(ctx context.Context, logger zerolog.Logger, e audit.Entry) {
	if err := h.Ledger.Record(ctx, e); err != nil {
		logger.Error().Err(err).Str("event", string(e.Event)).Msg("ledger_record_failed")
	}
}

// NewMux registers every task handler.
func NewMux(cancel CancelPaymentHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeCancelPayment, cancel)
	return mux
}
