package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/scipguard/internal/application"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [file]",
		Short: "Submit code for analysis",
		Long: `Submit a file for risk analysis. With no file, or with "-", the code is
read from stdin. The analyzed commit appears in the audit log.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}

			code, err := a.readCode(args)
			if err != nil {
				return err
			}

			svc := application.NewAnalysisService(a.api, a.store, nil, a.logger)
			res, err := svc.Submit(cmd.Context(), code)
			if err != nil {
				return err
			}

			a.output().Print(toAnalysisView(res))
			return nil
		},
	}
}

func (a *app) readCode(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(b), nil
}
