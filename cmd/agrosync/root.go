package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/sync/queue"
	"github.com/farmlink/agrosync/internal/sync/view"
)

func newRootCmd() *cobra.Command {
	var opts appOptions

	root := &cobra.Command{
		Use:           "agrosync",
		Short:         "Inspect and drive the offline marketplace sync engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: agrosync.yaml in the working or data directory)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "directory holding agrosync.db")
	root.PersistentFlags().BoolVar(&opts.offline, "offline", false, "treat the device as offline")

	// withApp opens the engine for the duration of one command.
	withApp := func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, args, a)
		}
	}

	root.AddCommand(
		newStatusCmd(withApp),
		newSyncCmd(withApp),
		newQueueCmd(withApp),
		newListingsCmd(withApp),
		newOrderCmd(withApp),
		newOrdersCmd(withApp),
		newPrefetchCmd(withApp),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error

func newStatusCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue sizes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			status := a.scheduler.Status(ctx)
			fmt.Fprintf(out, "Online:  %v\n", status.IsOnline)
			fmt.Fprintf(out, "Pending: %d\n", status.PendingItems)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tFAILED")
			for _, q := range a.queues.All() {
				pending, err := q.CountPendingAndSyncing(ctx)
				if err != nil {
					return err
				}
				failed, err := q.Failed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\n", q.Kind(), pending, len(failed))
			}
			return w.Flush()
		}),
	}
}

func newSyncCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain every queue now",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			result, err := a.scheduler.SyncNow(cmd.Context())
			if result != nil {
				printSyncResult(cmd.OutOrStdout(), result)
			}
			return err
		}),
	}
}

func printSyncResult(out io.Writer, r *models.FullSyncResult) {
	fmt.Fprintln(out, r.Summary())
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
}

func newQueueCmd(withApp appRunner) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and requeue pending mutations",
	}

	listCmd := &cobra.Command{
		Use:       "list [kind]",
		Short:     "List pending mutations, optionally of one kind",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kindNames(),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			queues := a.queues.All()
			if len(args) == 1 {
				q := a.queues.For(models.MutationKind(args[0]))
				if q == nil {
					return errors.New(errors.ErrInvalid, fmt.Sprintf("unknown kind %q (want one of %s)", args[0], strings.Join(kindNames(), ", ")))
				}
				queues = []*queue.Queue{q}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LOCAL ID\tKIND\tTARGET\tSTATE\tCREATED\tERROR")
			for _, q := range queues {
				items, err := q.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, m := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						m.LocalID, m.Kind, m.Payload.TargetID(), m.SyncState,
						time.UnixMilli(m.CreatedAt).Format(time.RFC3339), m.LastError)
				}
			}
			return w.Flush()
		}),
	}

	var all bool
	retryCmd := &cobra.Command{
		Use:   "retry [localId]",
		Short: "Move failed mutations back to pending",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("pass either a local id or --all")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("requires a local id or --all")
			}
			return nil
		},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if all {
				total := 0
				for _, q := range a.queues.All() {
					n, err := q.RequeueFailed(ctx)
					if err != nil {
						return err
					}
					total += n
				}
				fmt.Fprintf(out, "Requeued %d mutations\n", total)
				return nil
			}

			_, q, err := a.queues.Find(ctx, args[0])
			if err != nil {
				return err
			}
			ok, err := q.Requeue(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.New(errors.ErrInvalid, fmt.Sprintf("mutation %s has not failed", args[0]))
			}
			fmt.Fprintf(out, "Requeued %s\n", args[0])
			return nil
		}),
	}
	retryCmd.Flags().BoolVar(&all, "all", false, "requeue every failed mutation")

	queueCmd.AddCommand(listCmd, retryCmd)
	return queueCmd
}

func kindNames() []string {
	names := make([]string, len(models.AllKinds))
	for i, k := range models.AllKinds {
		names[i] = string(k)
	}
	return names
}

func newListingsCmd(withApp appRunner) *cobra.Command {
	var query view.ListingsQuery
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Show pending and cached listings",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if query.Live && !a.monitor.IsOnline() {
				query.Live = false
			}
			items, err := a.views.Listings(cmd.Context(), query)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCROP\tLOCATION\tQUANTITY\tPRICE\tSTATUS")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%s\n",
					it.ID, it.CropName, it.Location, it.Quantity.String(), it.Unit,
					models.FormatPrice(it.PricePerUnit, it.Currency), it.SyncStatus)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&query.Filter.CropName, "crop", "", "filter by crop name substring")
	cmd.Flags().StringVar(&query.Filter.Location, "location", "", "filter by location substring")
	cmd.Flags().BoolVar(&query.Live, "live", false, "fetch from the backend first")
	return cmd
}

func newOrderCmd(withApp appRunner) *cobra.Command {
	orderCmd := &cobra.Command{
		Use:   "order <id>",
		Short: "Show one order with pending status changes applied",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ov, found, err := a.views.Order(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return errors.New(errors.ErrNotFound, fmt.Sprintf("order %s is not cached", args[0]))
			}
			printOrder(cmd.OutOrStdout(), ov)
			return nil
		}),
	}

	var reason string
	updateCmd := &cobra.Command{
		Use:       "update <id> <mark_ready|complete|cancel>",
		Short:     "Queue an order status change",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"mark_ready", "complete", "cancel"},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var data map[string]interface{}
			if reason != "" {
				data = map[string]interface{}{"reason": reason}
			}
			r, err := a.offline.UpdateOrderStatus(cmd.Context(), args[0], models.OrderAction(args[1]), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", r.Notice, r.LocalID)
			return nil
		}),
	}
	updateCmd.Flags().StringVar(&reason, "reason", "", "reason sent with the action")

	orderCmd.AddCommand(updateCmd)
	return orderCmd
}

func newOrdersCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List cached orders with pending status changes applied",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			views, err := a.views.Orders(cmd.Context())
			if err != nil {
				return err
			}
			for _, ov := range views {
				printOrder(cmd.OutOrStdout(), ov)
			}
			return nil
		}),
	}
}

func printOrder(out io.Writer, ov view.OrderView) {
	pending := ""
	if ov.HasPendingSync {
		pending = " (pending sync)"
	}
	fmt.Fprintf(out, "%s\t%s%s\t%s\n", ov.ID, ov.Status, pending, models.FormatPrice(ov.TotalAmount, ov.Currency))
}

func newPrefetchCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch",
		Short: "Refresh the listing and order cache from the backend",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if !a.monitor.IsOnline() {
				return errors.New(errors.ErrSyncOffline, "cannot prefetch while offline")
			}
			a.scheduler.StartPrefetch(cmd.Context())
			a.scheduler.WaitPrefetch()

			listings, err := a.cache.Listings(cmd.Context())
			if err != nil {
				return err
			}
			orders, err := a.cache.Orders(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cached %d listings and %d orders\n", len(listings), len(orders))
			return nil
		}),
	}
}
