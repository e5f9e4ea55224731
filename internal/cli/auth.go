package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type credentials struct {
	Email    string
	Password string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&c.Password, "password", "", "Account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
}

func (c *credentials) password(cmd *cobra.Command) (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	pw := readLine(cmd.InOrStdin())
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

func (a *app) loginCmd() *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := creds.password(cmd)
			if err != nil {
				return err
			}
			sess, err := a.auth.SignIn(cmd.Context(), creds.Email, pw)
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", sess.User.Email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func (a *app) signupCmd() *cobra.Command {
	var (
		creds    credentials
		username string
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			pw, err := creds.password(cmd)
			if err != nil {
				return err
			}
			sess, err := a.auth.SignUp(cmd.Context(), creds.Email, pw, username)
			if err != nil {
				return fmt.Errorf("sign up failed: %w", err)
			}
			if sess == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Check your email to confirm the account, then run vaictl login.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up and signed in as %s\n", sess.User.Email)
			return nil
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&username, "username", "", "Public username")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// the local session is gone even when the server call fails
			if err := a.auth.SignOut(cmd.Context()); err != nil {
				a.log.WithError(err).Warn("remote sign out failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Send a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.auth.ResetPassword(cmd.Context(), email); err != nil {
				return fmt.Errorf("password reset failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset email sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
