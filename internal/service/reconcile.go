package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/model"
	"github.com/mmeshcher/order-replacement/internal/shopify"
	"github.com/mmeshcher/order-replacement/internal/validation"
)

var errOriginalNotFound = errors.New("original line item not found on order")

type stepError struct {
	step model.ReconcileStep
	err  error
}

func (e *stepError) Error() string { return string(e.step) + ": " + e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }

func failAt(step model.ReconcileStep, err error) error {
	return &stepError{step: step, err: err}
}

// Reconcile применяет решения покупателя к заказу во внешней платформе.
// Каждая запись обрабатывается независимо: ошибка одной не мешает остальным.
// Уже подтверждённые записи и позиции без решения пропускаются.
func (s *Service) Reconcile(ctx context.Context, orderID string) ([]model.LineItemOutcome, error) {
	orderID = validation.NormalizeOrderID(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrInvalidInput)
	}

	records, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: order %s", ErrBatchNotFound, orderID)
	}

	responded := false
	for _, rec := range records {
		if rec.OrderStatus.Rank() >= model.OrderStatusAccepted.Rank() {
			responded = true
			break
		}
	}
	if !responded {
		return nil, fmt.Errorf("%w: order %s", ErrBatchNotAccepted, orderID)
	}

	outcomes := make([]model.LineItemOutcome, len(records))
	s.runLimited(len(records), func(i int) {
		outcomes[i] = s.reconcileRecord(ctx, records[i])
	})

	var confirmed, failed int
	for _, o := range outcomes {
		switch o.Status {
		case model.OutcomeConfirmed:
			confirmed++
		case model.OutcomeFailed:
			failed++
		}
	}
	s.logger.Info("order reconciled",
		zap.String("order_id", orderID),
		zap.Int("confirmed", confirmed),
		zap.Int("failed", failed),
		zap.Int("skipped", len(outcomes)-confirmed-failed),
	)

	return outcomes, nil
}

func (s *Service) reconcileRecord(ctx context.Context, rec model.ReplacementRecord) model.LineItemOutcome {
	out := model.LineItemOutcome{
		RecordID:              rec.ID,
		OriginalProductRef:    rec.OriginalProductRef,
		ReplacementProductRef: rec.ReplacementProductRef,
		Decision:              rec.LineItemStatus,
		Status:                model.OutcomeSkipped,
	}

	if rec.OrderStatus != model.OrderStatusAccepted || rec.LineItemStatus == model.LineItemStatusUnset {
		return out
	}

	err := s.applyDecision(ctx, rec)
	if err != nil {
		out.Status = model.OutcomeFailed
		out.Error = err.Error()

		var se *stepError
		if errors.As(err, &se) {
			out.Step = se.step
			out.Error = se.err.Error()
		}

		fields := []zap.Field{
			zap.String("record_id", rec.ID),
			zap.String("order_id", rec.OrderID),
			zap.String("line_item", rec.OriginalProductRef),
			zap.String("step", string(out.Step)),
			zap.Error(err),
		}
		var throttled *shopify.ThrottledError
		if errors.As(err, &throttled) {
			fields = append(fields, zap.Duration("retry_after", throttled.RetryAfter))
		}
		s.logger.Warn("replacement reconciliation failed", fields...)
		return out
	}

	out.Status = model.OutcomeConfirmed
	return out
}

func (s *Service) applyDecision(ctx context.Context, rec model.ReplacementRecord) error {
	if rec.LineItemStatus == model.LineItemStatusAccepted && rec.ReplacementAddedAt == nil {
		if err := s.addReplacement(ctx, rec); err != nil {
			return err
		}
		if err := s.repo.MarkReplacementAdded(ctx, rec.ID, s.now()); err != nil {
			return failAt(model.StepMarkAdded, err)
		}
	}

	if err := s.removeOriginal(ctx, rec); err != nil {
		return err
	}

	if err := s.repo.MarkConfirmed(ctx, rec.ID, s.now()); err != nil {
		return failAt(model.StepMarkConfirmed, err)
	}
	return nil
}

// addReplacement добавляет замену в заказ отдельной сессией редактирования.
func (s *Service) addReplacement(ctx context.Context, rec model.ReplacementRecord) error {
	timeout := s.opts.PlatformTimeout

	var variantID string
	if !rec.IsCustom() {
		var err error
		variantID, err = callPlatform(ctx, timeout, func(ctx context.Context) (string, error) {
			return s.platform.ResolveVariant(ctx, rec.ReplacementProductRef)
		})
		if err != nil {
			return failAt(model.StepResolveVariant, err)
		}
	}

	session, err := callPlatform(ctx, timeout, func(ctx context.Context) (model.EditSession, error) {
		return s.platform.BeginEdit(ctx, rec.OrderID)
	})
	if err != nil {
		return failAt(model.StepBeginEdit, err)
	}

	_, err = callPlatform(ctx, timeout, func(ctx context.Context) (string, error) {
		if rec.IsCustom() {
			return s.platform.AddCustomItem(ctx, session.ID, rec.ReplacementTitle, 1, rec.ReplacementPrice, rec.Currency)
		}
		return s.platform.AddVariant(ctx, session.ID, variantID, 1)
	})
	if err != nil {
		return failAt(model.StepAddItem, err)
	}

	_, err = callPlatform(ctx, timeout, func(ctx context.Context) (string, error) {
		return s.platform.CommitEdit(ctx, session.ID, false, s.opts.StaffNote)
	})
	if err != nil {
		return failAt(model.StepCommitAdd, err)
	}
	return nil
}

// removeOriginal обнуляет количество исходной позиции второй сессией редактирования.
func (s *Service) removeOriginal(ctx context.Context, rec model.ReplacementRecord) error {
	timeout := s.opts.PlatformTimeout

	session, err := callPlatform(ctx, timeout, func(ctx context.Context) (model.EditSession, error) {
		return s.platform.BeginEdit(ctx, rec.OrderID)
	})
	if err != nil {
		return failAt(model.StepBeginEdit, err)
	}

	lineItemID := ""
	for _, li := range session.LineItems {
		if validation.SameTrailingSegment(li.ID, rec.OriginalProductRef) {
			lineItemID = li.ID
			break
		}
	}
	if lineItemID == "" {
		return failAt(model.StepLocateOriginal, fmt.Errorf("%w: %s", errOriginalNotFound, rec.OriginalProductRef))
	}

	_, err = callPlatform(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.platform.SetLineItemQuantity(ctx, session.ID, lineItemID, 0)
	})
	if err != nil {
		return failAt(model.StepRemoveOriginal, err)
	}

	_, err = callPlatform(ctx, timeout, func(ctx context.Context) (string, error) {
		return s.platform.CommitEdit(ctx, session.ID, false, s.opts.StaffNote)
	})
	if err != nil {
		return failAt(model.StepCommitRemove, err)
	}
	return nil
}
