package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/order-replacement/internal/model"
)

// NewBatchesCommand создаёт команду вывода пакетов замен.
func NewBatchesCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List replacement batches by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd.Context(), func(svc Service) error {
				batches, err := svc.ListBatches(cmd.Context(), model.OrderStatus(status))
				if err != nil {
					return &ExitError{Code: ExitCommandError, Message: "list batches", Err: err}
				}

				w := cmd.OutOrStdout()
				if rootOpts.Format == "json" {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(batches)
				}

				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORDER ID\tNAME\tCUSTOMER\tITEMS\tSENT")
				for _, b := range batches {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.OrderID, b.OrderName, b.CustomerName, b.Items, b.SendDate.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(model.OrderStatusAccepted), "batch status (Pending|Accepted|Confirmed)")

	return cmd
}
