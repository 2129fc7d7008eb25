package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/scipguard/internal/application"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := application.NewHealthService(a.api, a.store, nil).Check(cmd.Context())

			a.output().Print(toHealthView(report))
			if report.Server != application.ServerOK {
				return fmt.Errorf("server is %s", report.Server)
			}
			return nil
		},
	}
}
