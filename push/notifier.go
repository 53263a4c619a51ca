package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/novojourney/novo/models"
)

// Recipients is the profile access the daily job needs.
type Recipients interface {
	ListWithPushToken(ctx context.Context) ([]models.UserProfile, error)
	ClearPushToken(ctx context.Context, token string) (int64, error)
}

// Report summarizes one reminder run.
type Report struct {
	Recipients    int `json:"recipients"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
	TokensCleared int `json:"tokensCleared"`
}

// Notifier sends the daily reminder to every profile with a push token and
// removes tokens the provider reports as invalid. Retries are left to the provider.
type Notifier struct {
	recipients Recipients
	sender     Sender
	message    Message
	logger     *zap.Logger
}

func NewNotifier(recipients Recipients, sender Sender, message Message, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{recipients: recipients, sender: sender, message: message, logger: logger}
}

// SendDailyReminders runs one reminder pass.
func (n *Notifier) SendDailyReminders(ctx context.Context) (Report, error) {
	var report Report
	profiles, err := n.recipients.ListWithPushToken(ctx)
	if err != nil {
		return report, fmt.Errorf("list recipients: %w", err)
	}

	seen := map[string]struct{}{}
	tokens := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.FCMToken == nil || *p.FCMToken == "" {
			continue
		}
		if _, dup := seen[*p.FCMToken]; dup {
			continue
		}
		seen[*p.FCMToken] = struct{}{}
		tokens = append(tokens, *p.FCMToken)
	}
	report.Recipients = len(tokens)
	if len(tokens) == 0 {
		n.logger.Info("no push recipients")
		return report, nil
	}

	batch, err := n.sender.SendMulticast(ctx, n.message, tokens)
	if batch != nil {
		report.Sent = batch.SuccessCount
		report.Failed = batch.FailureCount
		for _, r := range batch.Responses {
			if !r.InvalidToken() {
				continue
			}
			cleared, cerr := n.recipients.ClearPushToken(ctx, r.Token)
			if cerr != nil {
				n.logger.Warn("clear invalid push token failed", zap.Error(cerr))
				continue
			}
			report.TokensCleared += int(cleared)
		}
	}
	if err != nil {
		return report, fmt.Errorf("send reminders: %w", err)
	}

	n.logger.Info("daily reminders sent",
		zap.Int("recipients", report.Recipients),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("tokens_cleared", report.TokensCleared))
	return report, nil
}
