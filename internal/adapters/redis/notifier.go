package redis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/roomstay/booking-service/internal/notify"
)

// Notifier fans booking events out over redis pub/sub, one channel per user.
// Pub/sub gives the delivery contract the core wants: no persistence, no
// replay, silent drop when nobody is subscribed.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func userChannel(userID uuid.UUID) string {
	return "notify:user:" + userID.String()
}

func (n *Notifier) Publish(ctx context.Context, userID uuid.UUID, event notify.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, userChannel(userID), payload).Err()
}

// Subscribe opens the user's channel. The caller owns the returned PubSub
// and must close it when the client disconnects.
func (n *Notifier) Subscribe(ctx context.Context, userID uuid.UUID) *redis.PubSub {
	return n.client.Subscribe(ctx, userChannel(userID))
}
