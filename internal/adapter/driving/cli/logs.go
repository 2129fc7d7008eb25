package cli

import (
	"context"
	"errors"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

// errCredentialRejected reports a 401 from the log endpoint. The saved
// session is kept; the user decides whether to log in again.
var errCredentialRejected = errors.New(`server rejected the saved credential: run "scipguard login" to sign in again`)

func newLogsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Print the audit log once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}

			loop := application.NewLogSyncLoop(a.api, a.cfg.PollInterval, a.logger)
			defer loop.Close()

			ev, err := firstSync(cmd.Context(), loop, a.store.Token())
			if err != nil {
				return err
			}

			switch ev.Kind {
			case application.SyncUnauthorized:
				return errCredentialRejected
			case application.SyncFailed:
				return ev.Err
			}

			a.output().Print(toLogsView(loop.Snapshot()))
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the audit log and print it when it changes",
		Long: `Poll the audit log every poll interval and print it whenever the list
changes. Fetch failures are reported on stderr and polling continues.

Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			return a.watch(cmd.Context())
		},
	}
}

// watch prints the snapshot after each successful fetch that changed it. All
// printing happens on the calling goroutine.
func (a *app) watch(ctx context.Context) error {
	loop := application.NewLogSyncLoop(a.api, a.cfg.PollInterval, a.logger)
	defer loop.Close()

	events := make(chan application.SyncEvent, 8)
	unsubscribe := loop.Subscribe(func(ev application.SyncEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	loop.Arm(a.store.Token())

	out := a.output()
	var last []model.LogRecord
	printed := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.Kind {
			case application.SyncSucceeded:
				snap := loop.Snapshot()
				if printed && slices.Equal(last, snap.Records) {
					continue
				}
				out.Print(toLogsView(snap))
				last, printed = snap.Records, true
			case application.SyncUnauthorized:
				out.PrintError(errCredentialRejected)
			case application.SyncFailed:
				out.PrintError(ev.Err)
			}
		}
	}
}

// firstSync arms loop and waits for the first attempt of the new epoch.
func firstSync(ctx context.Context, loop *application.LogSyncLoop, token model.Credential) (application.SyncEvent, error) {
	events := make(chan application.SyncEvent, 1)
	unsubscribe := loop.Subscribe(func(ev application.SyncEvent) {
		if ev.Kind == application.SyncDiscarded {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	loop.Arm(token)

	select {
	case ev := <-events:
		return ev, nil
	case <-ctx.Done():
		return application.SyncEvent{}, ctx.Err()
	}
}
