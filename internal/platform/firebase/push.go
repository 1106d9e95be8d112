package firebase

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/phrazzld/clientflow/internal/events"
)

// MessageSender is the part of *messaging.Client the notifier uses.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NewMessagingClient returns the app's Cloud Messaging client.
func NewMessagingClient(ctx context.Context, app *firebase.App) (*messaging.Client, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %w", err)
	}
	return client, nil
}

// PushNotifier sends workflow events as push notifications. Admin devices
// subscribe to the admin topic; each client's devices subscribe to
// ClientTopic(clientID).
type PushNotifier struct {
	sender     MessageSender
	adminTopic string
	logger     *slog.Logger
}

// NewPushNotifier creates an events.EventHandler that pushes through sender.
func NewPushNotifier(sender MessageSender, adminTopic string, logger *slog.Logger) *PushNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushNotifier{
		sender:     sender,
		adminTopic: adminTopic,
		logger:     logger.With(slog.String("component", "push_notifier")),
	}
}

// ClientTopic is the topic a client's devices subscribe to.
func ClientTopic(clientID fmt.Stringer) string {
	return "client-" + clientID.String()
}

// HandleEvent implements events.EventHandler.
func (n *PushNotifier) HandleEvent(ctx context.Context, event *events.Event) error {
	topics := []string{n.adminTopic}
	if !event.AdminOnly() {
		topics = append(topics, ClientTopic(event.ClientID))
	}

	var firstErr error
	for _, topic := range topics {
		msg := &messaging.Message{
			Topic: topic,
			Data: map[string]string{
				"event_id": event.ID.String(),
				"kind":     string(event.Kind),
				"task_id":  event.TaskID.String(),
			},
			Notification: &messaging.Notification{
				Title: "Task update",
				Body:  event.Message,
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		}

		id, err := n.sender.Send(ctx, msg)
		if err != nil {
			n.logger.Error("failed to send push notification",
				slog.String("error", err.Error()),
				slog.String("topic", topic),
				slog.String("event_id", event.ID.String()))
			if firstErr == nil {
				firstErr = fmt.Errorf("error sending push to %s: %w", topic, err)
			}
			continue
		}
		n.logger.Debug("push notification sent", slog.String("topic", topic), slog.String("message_id", id))
	}
	return firstErr
}
