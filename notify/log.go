package notify

import (
	"context"
	"sort"

	identity "github.com/MrEthical07/goIdentity"
	"go.uber.org/zap"
)

// LogNotifier writes one log line per message instead of delivering it.
// Variable values are never logged since they carry codes and links.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) EnqueueEmail(_ context.Context, msg identity.EmailMessage) error {
	n.log.Info("email enqueued",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
		zap.Strings("vars", varNames(msg.Vars)),
	)
	return nil
}

func (n *LogNotifier) EnqueueSMS(_ context.Context, msg identity.SMSMessage) error {
	n.log.Info("sms enqueued",
		zap.String("to", msg.To),
		zap.String("template", msg.Template),
		zap.Strings("vars", varNames(msg.Vars)),
	)
	return nil
}

func varNames(v map[string]string) []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
