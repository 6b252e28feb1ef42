package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/expiration"
	"github.com/mmeshcher/order-replacement/internal/model"
	"github.com/mmeshcher/order-replacement/internal/repository"
	"github.com/mmeshcher/order-replacement/internal/validation"
)

// ProposalView содержит пакет замен вместе с результатом проверки для показа покупателю.
type ProposalView struct {
	Result    model.ResponseResult
	Records   []model.ReplacementRecord
	Remaining time.Duration
}

// classify проверяет пакет целиком до любых изменений: сначала ответ, затем срок.
func (s *Service) classify(records []model.ReplacementRecord, now time.Time) model.ResponseResult {
	if len(records) == 0 {
		return model.ResultNotFound
	}
	for _, rec := range records {
		if rec.OrderStatus.Rank() >= model.OrderStatusAccepted.Rank() {
			return model.ResultAlreadyResponded
		}
	}
	for _, rec := range records {
		if expiration.IsExpired(rec.SendDate, s.store.ExpirationHours, now) {
			return model.ResultExpired
		}
	}
	return model.ResultSuccess
}

// SubmitResponse принимает решения покупателя по пакету замен заказа orderName.
// Некорректный ввод возвращается ошибкой ErrInvalidInput без изменения записей.
func (s *Service) SubmitResponse(ctx context.Context, orderName string, decisions []model.Decision) (model.ResponseResult, error) {
	orderName = validation.NormalizeOrderName(orderName)
	if !validation.IsValidOrderName(orderName) {
		return "", fmt.Errorf("%w: order name %q", ErrInvalidInput, orderName)
	}
	if err := validation.ValidateDecisions(orderName, decisions); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	records, err := s.repo.GetByOrderName(ctx, orderName)
	if err != nil {
		s.logger.Error("load replacement batch", zap.String("order_name", orderName), zap.Error(err))
		return model.ResultPersistenceError, err
	}

	now := s.now()
	if result := s.classify(records, now); result != model.ResultSuccess {
		s.logger.Info("customer response rejected",
			zap.String("order_name", orderName),
			zap.String("result", string(result)),
		)
		return result, nil
	}

	if err := matchDecisions(records, decisions); err != nil {
		return "", err
	}

	err = s.repo.AcceptBatch(ctx, orderName, decisions, now)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrAlreadyResponded):
		return model.ResultAlreadyResponded, nil
	case errors.Is(err, repository.ErrBatchNotFound):
		return model.ResultNotFound, nil
	case errors.Is(err, repository.ErrUnknownDecision):
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		s.logger.Error("accept replacement batch", zap.String("order_name", orderName), zap.Error(err))
		return model.ResultPersistenceError, err
	}

	s.logger.Info("customer response accepted",
		zap.String("order_name", orderName),
		zap.Int("decisions", len(decisions)),
	)
	return model.ResultSuccess, nil
}

func matchDecisions(records []model.ReplacementRecord, decisions []model.Decision) error {
	type pair struct{ original, replacement string }
	known := make(map[pair]struct{}, len(records))
	for _, rec := range records {
		known[pair{rec.OriginalProductRef, rec.ReplacementProductRef}] = struct{}{}
	}
	for _, d := range decisions {
		if _, ok := known[pair{d.OriginalProductRef, d.ReplacementProductRef}]; !ok {
			return fmt.Errorf("%w: %w: %s -> %s", ErrInvalidInput, repository.ErrUnknownDecision, d.OriginalProductRef, d.ReplacementProductRef)
		}
	}
	return nil
}

// GetProposals возвращает пакет замен заказа и то, может ли покупатель на него ответить.
func (s *Service) GetProposals(ctx context.Context, orderName string) (ProposalView, error) {
	orderName = validation.NormalizeOrderName(orderName)
	if !validation.IsValidOrderName(orderName) {
		return ProposalView{}, fmt.Errorf("%w: order name %q", ErrInvalidInput, orderName)
	}

	records, err := s.repo.GetByOrderName(ctx, orderName)
	if err != nil {
		return ProposalView{Result: model.ResultPersistenceError}, err
	}

	now := s.now()
	view := ProposalView{
		Result:  s.classify(records, now),
		Records: records,
	}

	if view.Result == model.ResultSuccess {
		first := true
		for _, rec := range records {
			left, ok := expiration.Remaining(rec.SendDate, s.store.ExpirationHours, now)
			if !ok {
				continue
			}
			if first || left < view.Remaining {
				view.Remaining = left
				first = false
			}
		}
	}

	return view, nil
}
