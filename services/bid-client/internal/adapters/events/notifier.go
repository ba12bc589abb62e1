package events

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	pkgevents "github.com/floroz/gavel-live/pkg/events"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
)

// OutboxNotifier implements bids.Notifier by queueing notifications in an
// outbox that a relay publishes to the broker.
type OutboxNotifier struct {
	outbox pkgevents.OutboxRepository
}

// NewOutboxNotifier creates a notifier writing to outbox.
func NewOutboxNotifier(outbox pkgevents.OutboxRepository) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox}
}

// Notify encodes n and queues it under its notification type.
func (n *OutboxNotifier) Notify(ctx context.Context, notification bids.Notification) error {
	payload, err := EncodeNotification(notification)
	if err != nil {
		return err
	}

	err = n.outbox.SaveEvent(ctx, &pkgevents.OutboxEvent{
		EventType: string(notification.Type),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// EncodeNotification renders n as a protobuf Struct.
func EncodeNotification(n bids.Notification) ([]byte, error) {
	body, err := structpb.NewStruct(map[string]interface{}{
		"type":         string(n.Type),
		"recipient_id": n.RecipientID,
		"auction_id":   n.AuctionID.String(),
		"title":        n.Title,
		"bidder_id":    n.BidderID,
		"bidder_name":  n.BidderName,
		"amount":       n.Amount,
		"occurred_at":  n.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build notification payload: %w", err)
	}

	payload, err := proto.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return payload, nil
}

// DecodeNotification reverses EncodeNotification.
func DecodeNotification(payload []byte) (map[string]interface{}, error) {
	var body structpb.Struct
	if err := proto.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return body.AsMap(), nil
}
