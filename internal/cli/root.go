// Package cli содержит команды утилиты replacectl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/order-replacement/internal/model"
)

// Коды завершения команд.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ValidFormats перечисляет допустимые форматы вывода.
var ValidFormats = []string{"text", "json"}

// ExitError несёт код завершения процесса.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode возвращает код завершения для ошибки команды.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Service описывает операции сервиса, доступные из командной строки.
type Service interface {
	Reconcile(ctx context.Context, orderID string) ([]model.LineItemOutcome, error)
	ReconcileAccepted(ctx context.Context) ([]model.BatchReconciliation, error)
	ListBatches(ctx context.Context, status model.OrderStatus) ([]model.BatchSummary, error)
}

// Opener создаёт сервис по требованию команды и возвращает функцию освобождения ресурсов.
type Opener func(ctx context.Context) (Service, func(), error)

// TokenIssuer подписывает токен сотрудника для служебного API.
type TokenIssuer func(staff string, ttl time.Duration) (string, error)

// RootOptions содержит глобальные флаги.
type RootOptions struct {
	Format string
	open   Opener
	issue  TokenIssuer
}

// NewRootCommand создаёт корневую команду replacectl.
func NewRootCommand(open Opener, issue TokenIssuer) *cobra.Command {
	opts := &RootOptions{open: open, issue: issue}

	cmd := &cobra.Command{
		Use:   "replacectl",
		Short: "Operator tool for order replacement batches",
		Long: `replacectl applies customer replacement decisions to live orders
and lists replacement batches. It also issues bearer tokens for the staff API.
It reads the same environment as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewBatchesCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) withService(ctx context.Context, fn func(Service) error) error {
	svc, closeFn, err := o.open(ctx)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "initialize service", Err: err}
	}
	defer closeFn()
	return fn(svc)
}
