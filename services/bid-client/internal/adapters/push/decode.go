package push

import (
	"encoding/json"
	"fmt"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// DefaultTopic is the broadcast topic every auction update is published on.
const DefaultTopic = "auction-updates"

var errMissingID = fmt.Errorf("push message has no auction id")

// DecodeUpdate parses a push message body.
func DecodeUpdate(body []byte) (auctions.Update, error) {
	var u auctions.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return auctions.Update{}, fmt.Errorf("failed to decode push message: %w", err)
	}
	if u.ID == "" {
		return auctions.Update{}, errMissingID
	}
	return u, nil
}
