package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/config"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

var (
	reconcileViewer string
	reconcileStatus []string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Build the credit view once and print it",
	Long: `Reconcile the ledger into a view for one viewer, save the snapshot and
print the credits as a table. Failed token fetches are listed after the table
and make the command exit non-zero.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return reconcile(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileViewer, "viewer", "", "wallet address to derive statuses for (default CREDITPANEL_VIEWER)")
	reconcileCmd.Flags().StringSliceVar(&reconcileStatus, "status", nil, "only print credits with these statuses (Available, Owned, Retired)")
}

func reconcile(parent context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var statuses []model.CreditStatus
	for _, s := range reconcileStatus {
		status, err := model.ParseCreditStatus(s)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}

	raw := reconcileViewer
	if raw == "" {
		raw = cfg.Viewer
	}
	var viewer model.Address
	if raw != "" {
		if viewer, err = model.ParseAddress(raw); err != nil {
			return err
		}
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repos, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ledgerClient, err := newLedgerClient(ctx, cfg, repos.credentials)
	if err != nil {
		return err
	}

	identity := application.NewViewerProvider(viewer)
	views := application.NewViewService(ledgerClient, application.NewReconciler(ledgerClient, cfg.FetchConcurrency), identity, repos.credits)

	view, err := views.Refresh(ctx)
	if err != nil && len(view.Records) == 0 {
		return err
	}

	if perr := printView(out, view, statuses); perr != nil {
		return perr
	}
	return err
}

func printView(out io.Writer, view application.View, statuses []model.CreditStatus) error {
	records := view.Filter(statuses...)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tPRODUCED\tPRODUCER\tOWNER\tSTATUS")
	for _, r := range records {
		produced := "unknown"
		if !r.ProductionTime.IsZero() {
			produced = r.ProductionTime.UTC().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.EnergySource, produced, r.Producer.Short(), r.Owner.Short(), r.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range view.Failures {
		fmt.Fprintf(out, "failed: %s\n", f.Error())
	}
	fmt.Fprintf(out, "%d credits, %d failed, viewer %s\n", len(records), len(view.Failures), displayViewer(view.Viewer))
	return nil
}

func displayViewer(a model.Address) string {
	if a.IsZero() {
		return "(none)"
	}
	return a.Short()
}
