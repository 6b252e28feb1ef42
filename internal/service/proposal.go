package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/model"
	"github.com/mmeshcher/order-replacement/internal/validation"
)

// BuildProposal создаёт пакет замен по выбору сотрудника и отправляет покупателю письмо.
// selections сопоставляет идентификатор позиции заказа с выбранной заменой.
// При ошибке получения заказа ни одна запись не создаётся.
func (s *Service) BuildProposal(ctx context.Context, orderID string, selections map[string]model.Replacement) (model.Proposal, error) {
	orderID = validation.NormalizeOrderID(orderID)
	if orderID == "" {
		return model.Proposal{}, fmt.Errorf("%w: empty order id", ErrInvalidInput)
	}

	existing, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return model.Proposal{}, err
	}
	if len(existing) > 0 {
		return model.Proposal{}, fmt.Errorf("%w: order %s", ErrProposalExists, orderID)
	}

	order, err := callPlatform(ctx, s.opts.PlatformTimeout, func(ctx context.Context) (model.Order, error) {
		return s.platform.LookupOrder(ctx, orderID)
	})
	if err != nil {
		return model.Proposal{}, fmt.Errorf("%w: %w", ErrOrderLookup, err)
	}

	now := s.now()
	proposal := model.Proposal{
		OrderID:   orderID,
		OrderName: validation.NormalizeOrderName(order.Name),
	}

	planned := planRecords(order, selections)
	if len(planned) == 0 {
		return proposal, ErrEmptyProposal
	}

	for _, rec := range planned {
		rec.OrderID = orderID
		rec.OrderName = proposal.OrderName
		rec.CustomerName = order.Customer.FullName()
		rec.SendDate = now

		created, err := s.repo.CreateRecord(ctx, rec)
		if err != nil {
			s.logger.Error("create replacement record",
				zap.String("order_id", orderID),
				zap.String("line_item", rec.OriginalProductRef),
				zap.Int("created", len(proposal.Records)),
				zap.Error(err),
			)
			return proposal, fmt.Errorf("create record for %s: %w", rec.OriginalProductRef, err)
		}
		proposal.Records = append(proposal.Records, created)
	}

	notification := model.Notification{
		OrderID:   orderID,
		OrderName: proposal.OrderName,
		Customer:  order.Customer,
		Items:     proposal.Records,
		Store:     s.store,
	}
	notifyCtx, cancel := context.WithTimeout(ctx, s.opts.PlatformTimeout)
	defer cancel()

	if err := s.notifier.Notify(notifyCtx, notification); err != nil {
		s.logger.Error("notify customer", zap.String("order_id", orderID), zap.Error(err))
		return proposal, fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	s.logger.Info("replacement proposal sent",
		zap.String("order_id", orderID),
		zap.String("order_name", proposal.OrderName),
		zap.Int("items", len(proposal.Records)),
	)
	return proposal, nil
}

// planRecords строит записи для позиций заказа, которым выбрана замена.
// Позиции без идентификатора, без выбора и с нулевым количеством пропускаются.
func planRecords(order model.Order, selections map[string]model.Replacement) []model.ReplacementRecord {
	bySegment := make(map[string]model.Replacement, len(selections))
	for id, r := range selections {
		bySegment[validation.TrailingSegment(id)] = r
	}

	var res []model.ReplacementRecord
	for _, li := range order.LineItems {
		if li.ID == "" || li.CurrentQuantity <= 0 {
			continue
		}
		sel, ok := selections[li.ID]
		if !ok {
			sel, ok = bySegment[validation.TrailingSegment(li.ID)]
		}
		if !ok {
			continue
		}

		ref, ok := replacementRef(sel)
		if !ok {
			continue
		}

		total := sel.Price.Mul(decimal.NewFromInt(int64(li.CurrentQuantity)))
		res = append(res, model.ReplacementRecord{
			OriginalProductRef:     li.ID,
			OriginalHandle:         li.ProductHandle,
			OriginalTitle:          li.Title,
			Quantity:               li.CurrentQuantity,
			UnitPrice:              li.UnitPrice,
			TotalPrice:             li.TotalPrice,
			Currency:               li.Currency,
			ReplacementProductRef:  ref,
			ReplacementHandle:      sel.Handle,
			ReplacementTitle:       sel.Title,
			ReplacementQuantity:    li.CurrentQuantity,
			ReplacementPrice:       sel.Price,
			TotalReplacementAmount: total,
			Balance:                li.TotalPrice.Sub(total),
			OrderStatus:            model.OrderStatusPending,
			LineItemStatus:         model.LineItemStatusUnset,
		})
	}
	return res
}

// replacementRef возвращает идентификатор замены; товары вне каталога всегда получают префикс.
func replacementRef(sel model.Replacement) (string, bool) {
	switch {
	case model.IsCustomItemID(sel.ProductID):
		return sel.ProductID, true
	case sel.Custom && sel.ProductID == "":
		return model.NewCustomItemID(), true
	case sel.Custom:
		return model.CustomItemPrefix + sel.ProductID, true
	case sel.ProductID != "":
		return sel.ProductID, true
	default:
		return "", false
	}
}
