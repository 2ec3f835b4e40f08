// README: Firebase Cloud Messaging notifier; pushes to a per-tour topic that carrier and client apps subscribe to.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"firebase.google.com/go/v4/messaging"
)

// Sender is the part of *messaging.Client the notifier uses.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMNotifier struct {
	client Sender
}

func NewFCMNotifier(client Sender) *FCMNotifier {
	return &FCMNotifier{client: client}
}

func TourTopic(tourID int64) string {
	return fmt.Sprintf("tour-%d", tourID)
}

func (n *FCMNotifier) Notify(ctx context.Context, e Event) error {
	ids := make([]string, len(e.BookingIDs))
	for i, id := range e.BookingIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	msg := &messaging.Message{
		Topic: TourTopic(e.TourID),
		Data: map[string]string{
			"kind":        string(e.Kind),
			"tour_id":     strconv.FormatInt(e.TourID, 10),
			"booking_ids": strings.Join(ids, ","),
			"from":        e.From,
			"to":          e.To,
		},
	}
	if _, err := n.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send %s: %w", e.Kind, err)
	}
	return nil
}
