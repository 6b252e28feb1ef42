package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/order-replacement/internal/model"
)

// NewReconcileCommand создаёт команду сверки заказа.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reconcile [orderID]",
		Short: "Apply accepted replacement decisions to orders",
		Long: `Apply customer decisions of an accepted batch to the live order.

Records already confirmed are skipped, so the command is safe to rerun.
With --all every batch in status Accepted is processed (for cron).

Examples:
  replacectl reconcile 5512345678
  replacectl reconcile gid://shopify/Order/5512345678 --format json
  replacectl reconcile --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("order id and --all are mutually exclusive")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("requires exactly one order id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd.Context(), func(svc Service) error {
				var batches []model.BatchReconciliation
				if all {
					res, err := svc.ReconcileAccepted(cmd.Context())
					if err != nil {
						return &ExitError{Code: ExitCommandError, Message: "reconcile accepted batches", Err: err}
					}
					batches = res
				} else {
					outcomes, err := svc.Reconcile(cmd.Context(), args[0])
					if err != nil {
						return &ExitError{Code: ExitCommandError, Message: "reconcile " + args[0], Err: err}
					}
					batches = []model.BatchReconciliation{{OrderID: args[0], Outcomes: outcomes}}
				}

				if err := writeBatches(cmd.OutOrStdout(), rootOpts.Format, batches); err != nil {
					return err
				}

				if failed := countFailed(batches); failed > 0 {
					return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d item(s) failed", failed)}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reconcile every accepted batch")

	return cmd
}

func countFailed(batches []model.BatchReconciliation) int {
	n := 0
	for _, b := range batches {
		if b.Error != "" {
			n++
		}
		for _, o := range b.Outcomes {
			if o.Status == model.OutcomeFailed {
				n++
			}
		}
	}
	return n
}

func writeBatches(w io.Writer, format string, batches []model.BatchReconciliation) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(batches)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tRECORD\tDECISION\tSTATUS\tSTEP\tERROR")
	for _, b := range batches {
		if b.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t%s\t-\t%s\n", b.OrderID, model.OutcomeFailed, b.Error)
		}
		for _, o := range b.Outcomes {
			decision := string(o.Decision)
			if decision == "" {
				decision = "-"
			}
			step := string(o.Step)
			if step == "" {
				step = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", b.OrderID, o.RecordID, decision, o.Status, step, o.Error)
		}
	}
	return tw.Flush()
}
