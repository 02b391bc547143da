package main

import (
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/MrEthical07/goIdentity/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMailerCmd(o *globalOptions) *cobra.Command {
	var (
		templatesDir string
		queueKey     string
	)
	cmd := &cobra.Command{
		Use:   "mailer",
		Short: "Deliver queued emails over SMTP until interrupted",
		Long: `Drains the Redis notification queue the engine writes to and delivers
each message over SMTP. SMTP settings come from SMTP_HOST, SMTP_PORT,
SMTP_FROM, SMTP_USER, SMTP_PASS and SMTP_TLS (auto|starttls|ssl|none).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rdb := o.redisClient()
			if rdb == nil {
				return errors.New("mailer needs --redis-addr")
			}
			defer rdb.Close()

			log, err := o.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			templates := notify.DefaultTemplates()
			if templatesDir != "" {
				if templates, err = notify.LoadTemplates(templatesDir); err != nil {
					return err
				}
			}

			port, err := strconv.Atoi(envOr("SMTP_PORT", "587"))
			if err != nil {
				return err
			}
			sender := &notify.SMTPSender{
				Host:    os.Getenv("SMTP_HOST"),
				Port:    port,
				From:    os.Getenv("SMTP_FROM"),
				User:    os.Getenv("SMTP_USER"),
				Pass:    os.Getenv("SMTP_PASS"),
				TLSMode: envOr("SMTP_TLS", "auto"),
			}
			if sender.Host == "" || sender.From == "" {
				return errors.New("SMTP_HOST and SMTP_FROM are required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("mailer started", zap.String("queue", queueKey), zap.String("smtp_host", sender.Host))
			m := notify.NewMailer(notify.NewRedisQueue(rdb, queueKey), templates, sender, nil, log)
			return m.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&templatesDir, "templates", "", "directory of <template>.txt overrides")
	cmd.Flags().StringVar(&queueKey, "queue", notify.DefaultQueueKey, "Redis list the engine enqueues to")
	return cmd
}
