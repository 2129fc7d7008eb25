package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Long: `Log in with email and password. The password is read from the terminal
without echo, or from the first line of stdin when it is piped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.promptLine("Email"); err != nil {
					return err
				}
			}
			password, err := a.promptPassword()
			if err != nil {
				return err
			}

			res := a.store.Login(cmd.Context(), strings.TrimSpace(email), password)
			if !res.OK() {
				return errors.New(res.Message)
			}

			a.output().Print(toSessionView(a.store.Current()))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")

	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, username string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long:  `Create an account on the server. Registering does not log you in.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || username == "" {
				return errors.New("--email and --username are required")
			}
			password, err := a.promptPassword()
			if err != nil {
				return err
			}

			res := a.store.Register(cmd.Context(), strings.TrimSpace(email), password, strings.TrimSpace(username))
			if !res.OK() {
				return errors.New(res.Message)
			}

			a.output().PrintMessage(res.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&username, "username", "", "Display name (required)")

	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Logout(cmd.Context()); err != nil {
				return err
			}
			a.output().PrintMessage("Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the saved session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a.output().Print(toSessionView(a.store.Current()))
			return nil
		},
	}
}
