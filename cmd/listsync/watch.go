package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/daemon"
	"github.com/aboutus/listsync/internal/dashboard"
	"github.com/aboutus/listsync/internal/journal"
	"github.com/aboutus/listsync/internal/schema"
	"github.com/aboutus/listsync/internal/ui"
)

var (
	watchDashboard bool
	watchPort      int
	watchResync    time.Duration
	watchDebounce  time.Duration
)

var watchCmd = &cobra.Command{
	Use:     "watch [list-name]",
	GroupID: "sync",
	Short:   "Re-run ensure whenever the template file changes (foreground)",
	Long: `Run ensure once, then again every time the template file is saved.
An edit that does not parse is logged and the previous template stays in
force. Every run is recorded in the journal.

With --dashboard, results are streamed over WebSocket at ws://host:port/ws
and the last snapshot is served at /snapshot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Template == "" {
			return fmt.Errorf("watch needs a template file (--template or template in the config)")
		}
		ctx, stop := signalContext()
		defer stop()
		out := cmd.OutOrStdout()
		name := listName(args)

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.close()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close()

		var handler *dashboard.Handler
		if watchDashboard {
			port := cfg.Dashboard.Port
			if cmd.Flags().Changed("port") {
				port = watchPort
			}
			server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger})
			handler = dashboard.NewHandler(server, logger)
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()
			fmt.Fprintf(out, "%s Dashboard on http://%s\n", ui.RenderAccent("📡"), server.Addr())
		}

		run := func(ctx context.Context, tmpl *schema.Template, trigger string) {
			var observer apply.Observer
			if handler != nil {
				handler.OnRunStarted(name, trigger)
				observer = handler.Observer()
			}

			o := newOrchestrator(b, tmpl, observer)
			if handler != nil {
				handler.SetSnapshot(o)
			}
			rep, runErr := o.Ensure(ctx, name)

			if _, err := j.Record(context.WithoutCancel(ctx), journal.TriggerWatch, rep, runErr); err != nil {
				logger.Warn("failed to record run", zap.Error(err))
			}
			if handler != nil {
				handler.OnRunFinished(rep, runErr)
			}

			if runErr != nil {
				fmt.Fprintf(out, "%s %s run failed: %v\n", ui.RenderFail("✗"), trigger, runErr)
				return
			}
			printReport(out, rep, false)
		}

		d, err := daemon.New(cfg.Template, run, &daemon.Config{
			DebounceInterval: watchDebounce,
			ResyncInterval:   watchResync,
			Logger:           logger,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s Watching %s for %q (Ctrl+C to stop)\n", ui.RenderAccent("👀"), cfg.Template, name)
		return d.Start(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchDashboard, "dashboard", false, "serve the live dashboard")
	watchCmd.Flags().IntVar(&watchPort, "port", 8080, "dashboard port (overrides dashboard.port)")
	watchCmd.Flags().DurationVar(&watchResync, "resync", 0, "also re-run on this interval to repair drift (0 = off)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet time after an edit before running")
}
