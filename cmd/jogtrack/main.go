package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jogtrack/internal/bootstrap"
	trackingdto "jogtrack/internal/modules/tracking/dto"
	"jogtrack/internal/platform/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	dataPath  string
	logStderr bool
	logLevel  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "jogtrack",
		Short:         "Step and distance tracker for jogs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataPath, "data", ".", "data directory")
	root.PersistentFlags().BoolVar(&flags.logStderr, "log-stderr", false, "log to stderr instead of the log file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")

	root.AddCommand(newTrackCmd(flags))
	root.AddCommand(newHistoryCmd(flags))
	root.AddCommand(newReindexCmd(flags))
	root.AddCommand(newDriverCmd(flags))
	root.AddCommand(newTUICmd(flags))
	return root
}

func loadApp(flags *globalFlags) (*bootstrap.App, error) {
	cfg, err := config.New(flags.dataPath)
	if err != nil {
		return nil, err
	}
	if flags.logStderr {
		cfg.Log.Stderr = true
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return bootstrap.New(cfg)
}

// withApp runs fn against a fully restored app and always closes it, so an active
// session is flushed to disk before the process exits.
func withApp(flags *globalFlags, restore bool, fn func(ctx context.Context, app *bootstrap.App) error) error {
	app, err := loadApp(flags)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if restore {
		if _, err := app.TrackingCLI.Restore(ctx); err != nil {
			app.Logger.Warn("restore", "error", err)
		}
	}
	runErr := fn(ctx, app)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, app.Close(closeCtx))
}

func warn(w io.Writer, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(w, "warning: %v\n", err)
	}
}

func newTrackCmd(flags *globalFlags) *cobra.Command {
	track := &cobra.Command{Use: "track", Short: "Session lifecycle"}

	var follow bool
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a new session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, true, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.TrackingCLI.Start(ctx)
				if out.SessionID == "" {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session started: %s at=%s\n", out.SessionID, out.StartedAt.Format(time.RFC3339))
				warn(cmd.ErrOrStderr(), err)
				if follow {
					return followSession(ctx, cmd.OutOrStdout(), app)
				}
				return nil
			})
		},
	}
	start.Flags().BoolVar(&follow, "follow", false, "keep tracking in the foreground until interrupted")

	run := &cobra.Command{
		Use:   "run",
		Short: "Track in the foreground, starting a session if none is active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, true, func(ctx context.Context, app *bootstrap.App) error {
				if state := app.TrackingCLI.Snapshot(ctx).State; state != "tracking" && state != "paused" {
					out, err := app.TrackingCLI.Start(ctx)
					if out.SessionID == "" {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session started: %s\n", out.SessionID)
					warn(cmd.ErrOrStderr(), err)
				}
				return followSession(ctx, cmd.OutOrStdout(), app)
			})
		},
	}

	pause := &cobra.Command{
		Use:   "pause",
		Short: "Pause the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, true, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.TrackingCLI.Pause(ctx)
				if out.SessionID == "" {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session paused: %s steps=%d\n", out.SessionID, out.TotalSteps)
				warn(cmd.ErrOrStderr(), err)
				return nil
			})
		},
	}

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, true, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.TrackingCLI.Resume(ctx)
				if out.SessionID == "" {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session resumed: %s steps=%d\n", out.SessionID, out.TotalSteps)
				warn(cmd.ErrOrStderr(), err)
				return nil
			})
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active session and archive it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, true, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.TrackingCLI.Stop(ctx)
				if out.SessionID == "" {
					return err
				}
				printSummary(cmd.OutOrStdout(), out)
				warn(cmd.ErrOrStderr(), err)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, true, func(ctx context.Context, app *bootstrap.App) error {
				printStatus(cmd.OutOrStdout(), app.TrackingCLI.Snapshot(ctx), app.TrackingCLI.Health(ctx))
				return nil
			})
		},
	}

	track.AddCommand(start, run, pause, resume, stop, status)
	return track
}

// followSession reports progress until ctx is cancelled by a signal.
func followSession(ctx context.Context, w io.Writer, app *bootstrap.App) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(w, "interrupted; session stays active, run `jogtrack track stop` to finish it")
			return nil
		case <-ticker.C:
			s := app.TrackingCLI.Snapshot(ctx)
			if s.State != "tracking" && s.State != "paused" {
				return nil
			}
			_, _ = fmt.Fprintf(w, "%s steps=%d distance=%.0fm\n", s.State, s.TotalSteps, s.TotalDistanceMeters)
		}
	}
}

func printStatus(w io.Writer, s trackingdto.SnapshotOutput, h trackingdto.HealthOutput) {
	_, _ = fmt.Fprintf(w, "state: %s\n", s.State)
	if s.SessionID == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "session: %s\nstarted: %s\nsteps: %d\ndistance: %.1fm\npaused: %ds\n",
		s.SessionID, s.StartedAt.Format(time.RFC3339), s.TotalSteps, s.TotalDistanceMeters, s.PausedSeconds)
	if !s.LastSampleAt.IsZero() {
		_, _ = fmt.Fprintf(w, "last sample: %s\n", s.LastSampleAt.Format(time.RFC3339))
	}
	if h.SensorUnavailable {
		_, _ = fmt.Fprintln(w, "sensor: unavailable")
	}
	if h.PersistenceDegraded {
		_, _ = fmt.Fprintf(w, "persistence: degraded (%d consecutive failures)\n", h.ConsecutiveFailures)
	}
	if h.PendingArchive {
		_, _ = fmt.Fprintln(w, "archive: pending")
	}
}

func printSummary(w io.Writer, out trackingdto.StopOutput) {
	_, _ = fmt.Fprintf(w, "session stopped: %s steps=%d distance=%.1fm duration=%ds active=%ds speed=%.2fm/s\n",
		out.SessionID, out.TotalSteps, out.TotalDistanceMeters, out.DurationSeconds, out.ActiveSeconds, out.AverageSpeedMPS)
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List archived sessions, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, false, func(ctx context.Context, app *bootstrap.App) error {
				sessions, err := app.TrackingCLI.History(ctx, limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
					return nil
				}
				for _, s := range sessions {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d steps\t%.2f km\t%s\n",
						s.StartedAt.Local().Format("2006-01-02 15:04"), s.SessionID, s.TotalSteps, s.TotalDistanceMeters/1000,
						(time.Duration(s.DurationSeconds) * time.Second).String())
				}
				return nil
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "sessions to show (0 for all)")
	return history
}

func newReindexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the SQLite history index from the history log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, false, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.TrackingCLI.Reindex(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reindex completed: %d sessions\n", out.Sessions)
				return nil
			})
		},
	}
}

func newDriverCmd(flags *globalFlags) *cobra.Command {
	driver := &cobra.Command{Use: "driver", Short: "Sensor driver operations"}
	driver.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List driver manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, false, func(ctx context.Context, app *bootstrap.App) error {
				drivers, err := app.DriverCLI.List(ctx)
				if err != nil {
					return err
				}
				if len(drivers) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no drivers configured")
					return nil
				}
				for _, d := range drivers {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s@%s enabled=%t binary=%s capabilities=%v\n", d.Name, d.Version, d.Enabled, d.Binary, d.Capabilities)
				}
				return nil
			})
		},
	})

	driver.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Validate driver checksums and lifecycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, false, func(ctx context.Context, app *bootstrap.App) error {
				results, err := app.DriverCLI.Doctor(ctx)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no drivers configured")
					return nil
				}
				for _, r := range results {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s checksum=%t binary=%t lifecycle=%t", r.Name, r.ChecksumValid, r.BinaryReachable, r.LifecycleOK)
					if r.Error != "" {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), " error=%q", r.Error)
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout())
				}
				return nil
			})
		},
	})
	return driver
}

func newTUICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal dashboard",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withApp(flags, true, func(_ context.Context, app *bootstrap.App) error {
				return bootstrap.RunTUI(app)
			})
		},
	}
}
