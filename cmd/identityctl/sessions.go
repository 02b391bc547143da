package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/spf13/cobra"
)

func newSessionsCmd(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke user sessions",
	}

	list := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List the sessions of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			sessions, err := d.engine.ListSessions(cmd.Context(), admin, args[0])
			if err != nil {
				return err
			}
			for _, s := range sessions {
				s.Secret = ""
				s.ProviderAccessToken = ""
				s.ProviderRefreshToken = ""
			}
			return o.print(cmd.OutOrStdout(), sessions, func(w io.Writer) {
				printSessions(w, sessions)
			})
		},
	}

	var all bool
	revoke := &cobra.Command{
		Use:   "revoke <user-id> [session-id]",
		Short: "Delete one session, or every session with --all",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 2) {
				return fmt.Errorf("give either a session id or --all")
			}
			d, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if all {
				if _, err := d.engine.DeleteSessions(cmd.Context(), admin, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked all sessions of %s\n", args[0])
				return nil
			}
			if _, err := d.engine.DeleteSession(cmd.Context(), admin, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[1])
			return nil
		},
	}
	revoke.Flags().BoolVar(&all, "all", false, "revoke every session of the user")

	cmd.AddCommand(list, revoke)
	return cmd
}

func printSessions(w io.Writer, sessions []*identity.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tFACTORS\tCLIENT\tIP\tEXPIRES")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s %s\t%s\t%s\n",
			s.ID, s.Provider, s.Factors, s.ClientName, s.OSName, s.IP, s.Expire.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
