// Command identityctl administers an identity deployment: password hashes,
// sessions, the notification worker, config reports and load tests.
//
// Settings come from flags, then IDENTITY_* environment variables, which
// may be placed in a .env file in the working directory.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{
		configPath:  envOr("IDENTITY_CONFIG", ""),
		redisAddr:   envOr("REDIS_ADDR", ""),
		postgresDSN: envOr("IDENTITY_POSTGRES_DSN", ""),
		logLevel:    envOr("IDENTITY_LOG_LEVEL", "info"),
		out:         envOr("IDENTITY_OUT", "text"),
	}

	root := &cobra.Command{
		Use:           "identityctl",
		Short:         "Administer an identity deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "YAML config file (env IDENTITY_CONFIG)")
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", opts.redisAddr, "Redis address (env REDIS_ADDR)")
	root.PersistentFlags().StringVar(&opts.postgresDSN, "postgres-dsn", opts.postgresDSN, "Postgres DSN; takes precedence over Redis (env IDENTITY_POSTGRES_DSN)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.out, "out", opts.out, "Output format: text|json")

	root.AddCommand(
		newHashCmd(opts),
		newVerifyCmd(opts),
		newSessionsCmd(opts),
		newMailerCmd(opts),
		newReportCmd(opts),
		newLoadtestCmd(opts),
	)
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
