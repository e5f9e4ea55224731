package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session state, role and reachable screens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, snap, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:   %s\n", snap.State)
			if snap.Session != nil {
				fmt.Fprintf(out, "email:   %s\n", snap.Session.User.Email)
			}
			if snap.Profile != nil {
				fmt.Fprintf(out, "user:    %s (%s)\n", snap.Profile.Username, snap.Profile.ID)
			}
			if role := snap.Role(); role != "" {
				fmt.Fprintf(out, "role:    %s\n", role)
			}

			screens := m.Reachable()
			names := make([]string, 0, len(screens))
			for _, s := range screens {
				names = append(names, string(s))
			}
			fmt.Fprintf(out, "screens: %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}
