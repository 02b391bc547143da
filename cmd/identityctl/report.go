package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/spf13/cobra"
)

func newReportCmd(o *globalOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the effective security posture and config lint warnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			rep := d.engine.SecurityReport()
			cfg := d.engine.Config()
			lint := cfg.Lint()
			if err := o.print(cmd.OutOrStdout(), rep, func(w io.Writer) { printReport(w, rep, lint) }); err != nil {
				return err
			}
			if strict && len(rep.Warnings) > 0 {
				return fmt.Errorf("%d lint warnings", len(rep.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when there are lint warnings")
	return cmd
}

func printReport(w io.Writer, r identity.SecurityReport, lint identity.LintWarnings) {
	fmt.Fprintf(w, "project              %s\n", r.Project)
	fmt.Fprintf(w, "password algorithm   %s (upgrade on login: %t)\n", r.PasswordAlgorithm, r.UpgradeOnLogin)
	fmt.Fprintf(w, "password history     %d\n", r.PasswordHistory)
	fmt.Fprintf(w, "session duration     %s (max sessions %d)\n", r.SessionDuration, r.MaxSessions)
	fmt.Fprintf(w, "cookie               secure=%t samesite=%s\n", r.CookieSecure, r.CookieSameSite)
	fmt.Fprintf(w, "oauth2 providers     %v\n", r.OAuth2Providers)
	fmt.Fprintf(w, "rate limiting        %t\n", r.RateLimitingActive)
	fmt.Fprintf(w, "audit / metrics      %t / %t\n", r.AuditEnabled, r.MetricsEnabled)
	for _, role := range sortedKeys(r.Roles) {
		fmt.Fprintf(w, "role %-15s %s\n", role, strings.Join(r.Roles[role], ", "))
	}
	if len(lint) == 0 {
		return
	}
	fmt.Fprintln(w, "\nCONFIG LINT")
	for _, lw := range lint {
		fmt.Fprintf(w, "  %-30s %s\n", lw.Code, lw.Message)
	}
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
