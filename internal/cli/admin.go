package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yoockh/vaihub/internal/adminview"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/session"
)

var errNotAdmin = errors.New("admin panel is not reachable for this account")

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin panel: list users and services, change roles, ban, delete listings",
	}
	cmd.AddCommand(a.adminUsersCmd(), a.adminSetRoleCmd(), a.adminBanCmd(), a.adminDeleteServiceCmd())
	return cmd
}

// panel opens the admin panel if the resolved session may navigate to it.
func (a *app) panel(ctx context.Context) (*adminview.Panel, func(), error) {
	m, snap, err := a.resolve(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !m.CanNavigate(session.ScreenAdminPanel) {
		m.Stop()
		return nil, nil, fmt.Errorf("%w (state: %s)", errNotAdmin, snap.State)
	}
	return adminview.NewPanel(a.api), m.Stop, nil
}

func (a *app) adminUsersCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users and service listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, done, err := a.panel(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := p.Load(cmd.Context(), query); err != nil {
				return fmt.Errorf("failed to load admin overview: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER ID\tUSERNAME\tROLE")
			for _, u := range p.Users.Items() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Username, u.Role)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "SERVICE ID\tTITLE\tOWNER\tPRICE")
			for _, s := range p.Services.Items() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", s.ID, s.Title, s.Owner.Username, s.Price)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive filter on username and title")
	return cmd
}

func (a *app) adminSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <user-id> <free|premium|admin>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, ok := models.ParseRole(args[1])
			if !ok {
				return fmt.Errorf("unknown role %q", args[1])
			}
			p, done, err := a.panel(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := p.Load(cmd.Context(), ""); err != nil {
				return fmt.Errorf("failed to load admin overview: %w", err)
			}
			msg, err := p.ChangeRole(cmd.Context(), args[0], role)
			if errors.Is(err, adminview.ErrNotInList) {
				msg, err = a.api.SetUserRole(cmd.Context(), models.SetRoleRequest{TargetUserID: args[0], NewRole: string(role)})
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func (a *app) adminBanCmd() *cobra.Command {
	var (
		hours     float64
		permanent bool
	)
	cmd := &cobra.Command{
		Use:   "ban <user-id>",
		Short: "Ban a user for some hours or permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d models.BanDuration
			switch {
			case permanent && cmd.Flags().Changed("hours"):
				return errors.New("use either --hours or --permanent")
			case permanent:
				d = models.BanPermanently()
			case cmd.Flags().Changed("hours"):
				d = models.BanForHours(hours)
			default:
				return errors.New("--hours or --permanent is required")
			}

			p, done, err := a.panel(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			msg, err := p.Ban(cmd.Context(), args[0], d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "Ban length in hours")
	cmd.Flags().BoolVar(&permanent, "permanent", false, "Ban without end")
	return cmd
}

func (a *app) adminDeleteServiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-service <service-id>",
		Short: "Delete a marketplace listing and its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := a.panel(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := p.Load(cmd.Context(), ""); err != nil {
				return fmt.Errorf("failed to load admin overview: %w", err)
			}
			msg, err := p.DeleteService(cmd.Context(), args[0])
			if errors.Is(err, adminview.ErrNotInList) {
				msg, err = a.api.DeleteService(cmd.Context(), models.DeleteServiceRequest{ServiceID: args[0]})
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
