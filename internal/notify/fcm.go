// README: FCM-backed Notifier; resolves users to device tokens and sends.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"haven/internal/types"
)

// TokenSource resolves users to their registered device tokens.
type TokenSource interface {
	Tokens(ctx context.Context, userIDs []types.ID) ([]string, error)
}

// FCMNotifier sends one push message per registered device token. A bad
// token counts as a failure in the receipt, never as a batch error.
type FCMNotifier struct {
	client *messaging.Client
	tokens TokenSource
	logger *zap.Logger
}

func NewFCMNotifier(client *messaging.Client, tokens TokenSource, logger *zap.Logger) *FCMNotifier {
	return &FCMNotifier{client: client, tokens: tokens, logger: logger}
}

func (n *FCMNotifier) Notify(ctx context.Context, userIDs []types.ID, title, body string, data map[string]string) (Receipt, error) {
	tokens, err := n.tokens.Tokens(ctx, userIDs)
	if err != nil {
		return Receipt{}, fmt.Errorf("resolve device tokens: %w", err)
	}

	var receipt Receipt
	for _, token := range tokens {
		msg := &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
		}
		if _, err := n.client.Send(ctx, msg); err != nil {
			receipt.Failed++
			n.logger.Debug("push send failed", zap.Error(err))
			continue
		}
		receipt.Sent++
	}
	return receipt, nil
}
