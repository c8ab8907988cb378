package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
	"github.com/canopy-network/ledgerx/pkg/indexer/types"
)

// Publisher is the part of Client the Notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
	XAdd(ctx context.Context, stream string, values map[string]any) (string, error)
}

var _ Publisher = (*Client)(nil)

// Notifier publishes every committed range on the chain's range.committed channel and
// appends it to the matching stream, so late subscribers can catch up.
type Notifier struct {
	pub     Publisher
	chainID string
	now     func() time.Time
}

// NewNotifier returns a Notifier publishing through pub for chainID.
func NewNotifier(pub Publisher, chainID string) *Notifier {
	return &Notifier{pub: pub, chainID: chainID, now: time.Now}
}

// Notify publishes res. Both the channel and the stream are attempted; their errors are joined.
func (n *Notifier) Notify(ctx context.Context, res processor.Result) error {
	event := types.NewRangeCommittedEvent(n.chainID, res, n.now())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Event, err)
	}

	var errs []error
	if err := n.pub.Publish(ctx, types.GetRangeCommittedChannel(n.chainID), payload); err != nil {
		errs = append(errs, fmt.Errorf("publish: %w", err))
	}
	if _, err := n.pub.XAdd(ctx, types.GetRangeCommittedStream(n.chainID), map[string]any{
		"processor": res.Name,
		"data":      string(payload),
	}); err != nil {
		errs = append(errs, fmt.Errorf("xadd: %w", err))
	}
	return errors.Join(errs...)
}
