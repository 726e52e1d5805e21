package bot

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/batchbot/batchbot/pkg/record"
	"github.com/batchbot/batchbot/pkg/transport"
)

// deliverBatch sends every item of the batch in order. One undeliverable
// item (typically a forwarded reference whose source is gone) produces a
// per-item notice for the viewer and a diagnostic for the operator log, and
// delivery continues with the remaining items.
func (d *Dispatcher) deliverBatch(ctx context.Context, log *slog.Logger, conv int64, b *record.Batch) error {
	ctx, span := d.tracer.Start(ctx, "bot.deliver_batch")
	span.SetAttributes(
		attribute.String("batch.token", b.Token),
		attribute.Int("batch.items", len(b.Items)),
	)
	defer span.End()

	if b.DisplayName != "" {
		if _, err := d.messenger.SendText(ctx, conv, b.DisplayName); err != nil {
			return err
		}
	}

	failed := 0
	for i, item := range b.Items {
		if _, err := d.messenger.SendItem(ctx, conv, item, item.Caption); err != nil {
			failed++
			deliveryErr := &transport.DeliveryError{Index: i, Err: err}
			log.Error("item delivery failed", "token", b.Token, "item", i, "kind", item.Kind, "error", err)
			notice := fmt.Sprintf("Item %d of %d could not be delivered.", i+1, len(b.Items))
			if _, sendErr := d.messenger.SendText(ctx, conv, notice); sendErr != nil {
				// The conversation itself is unreachable; no point
				// continuing the batch.
				return fmt.Errorf("bot: notify delivery failure: %w (original: %v)", sendErr, deliveryErr)
			}
			continue
		}
	}
	span.SetAttributes(attribute.Int("batch.failed_items", failed))
	if failed > 0 {
		log.Warn("batch delivered with failures", "token", b.Token, "failed", failed, "total", len(b.Items))
	}
	return nil
}
