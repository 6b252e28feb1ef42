// Package service реализует бизнес-логику замены товаров в заказах.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/order-replacement/internal/model"
	"github.com/mmeshcher/order-replacement/internal/repository"
)

var (
	// ErrInvalidInput возвращается для некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyProposal возвращается, если ни одна позиция не получила замену.
	ErrEmptyProposal = errors.New("no replacements selected")
	// ErrProposalExists возвращается, если предложение по заказу уже создано.
	ErrProposalExists = repository.ErrProposalExists
	// ErrOrderLookup возвращается, если заказ не удалось получить из платформы.
	ErrOrderLookup = errors.New("order lookup failed")
	// ErrNotificationFailed возвращается, если записи созданы, но письмо не отправлено.
	ErrNotificationFailed = errors.New("notification failed")
	// ErrBatchNotFound возвращается, если по заказу нет предложений.
	ErrBatchNotFound = repository.ErrBatchNotFound
	// ErrBatchNotAccepted возвращается при сверке пакета, на который покупатель ещё не ответил.
	ErrBatchNotAccepted = errors.New("replacement batch not accepted yet")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateRecord(ctx context.Context, rec model.ReplacementRecord) (model.ReplacementRecord, error)
	GetByOrderName(ctx context.Context, orderName string) ([]model.ReplacementRecord, error)
	GetByOrderID(ctx context.Context, orderID string) ([]model.ReplacementRecord, error)
	AcceptBatch(ctx context.Context, orderName string, decisions []model.Decision, now time.Time) error
	MarkReplacementAdded(ctx context.Context, id string, at time.Time) error
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
	ListBatches(ctx context.Context, status model.OrderStatus) ([]model.BatchSummary, error)
	ListReconcilable(ctx context.Context) ([]model.BatchSummary, error)
}

// OrderPlatform описывает операции внешней платформы заказов.
type OrderPlatform interface {
	LookupOrder(ctx context.Context, orderID string) (model.Order, error)
	ResolveVariant(ctx context.Context, productID string) (string, error)
	BeginEdit(ctx context.Context, orderID string) (model.EditSession, error)
	AddCustomItem(ctx context.Context, editID, title string, quantity int, price decimal.Decimal, currency string) (string, error)
	AddVariant(ctx context.Context, editID, variantID string, quantity int) (string, error)
	SetLineItemQuantity(ctx context.Context, editID, lineItemID string, quantity int) error
	CommitEdit(ctx context.Context, editID string, notifyCustomer bool, note string) (string, error)
}

// Notifier отправляет покупателю уведомление о предложении.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Options содержит параметры работы сервиса.
type Options struct {
	PlatformTimeout time.Duration
	Workers         int
	StaffNote       string
}

// Service содержит бизнес-логику сервиса замен.
type Service struct {
	repo     Repository
	platform OrderPlatform
	notifier Notifier
	store    model.Store
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт сервис с репозиторием, клиентом платформы, уведомителем и настройками магазина.
func NewService(repo Repository, platform OrderPlatform, notifier Notifier, store model.Store, opts Options, logger *zap.Logger) *Service {
	if opts.PlatformTimeout <= 0 {
		opts.PlatformTimeout = 10 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		platform: platform,
		notifier: notifier,
		store:    store,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ListBatches возвращает пакеты с указанным статусом.
func (s *Service) ListBatches(ctx context.Context, status model.OrderStatus) ([]model.BatchSummary, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	return s.repo.ListBatches(ctx, status)
}

// ReconcileAccepted запускает сверку для принятых пакетов, где есть решения покупателя.
// Ошибка одного пакета не останавливает обработку остальных.
func (s *Service) ReconcileAccepted(ctx context.Context) ([]model.BatchReconciliation, error) {
	batches, err := s.repo.ListReconcilable(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]model.BatchReconciliation, 0, len(batches))
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item := model.BatchReconciliation{OrderID: b.OrderID, OrderName: b.OrderName}
		outcomes, err := s.Reconcile(ctx, b.OrderID)
		item.Outcomes = outcomes
		if err != nil {
			item.Error = err.Error()
			s.logger.Error("batch reconciliation failed",
				zap.String("order_id", b.OrderID),
				zap.Error(err),
			)
		}
		res = append(res, item)
	}

	return res, nil
}

func callPlatform[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) runLimited(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
