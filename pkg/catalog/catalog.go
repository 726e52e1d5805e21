// Package catalog exposes token-addressed operations over the durable record
// store: redemption, deletion, item edits, reordering, and ratings. All
// mutations run through the store's per-key serialization.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/batchbot/batchbot/pkg/record"
)

var (
	// ErrTokenNotFound indicates the token has no index entry.
	ErrTokenNotFound = errors.New("catalog: token not found")
	// ErrItemIndex indicates an item position outside the batch.
	ErrItemIndex = errors.New("catalog: item index out of range")
	// ErrScore indicates a rating outside the 1..10 range.
	ErrScore = errors.New("catalog: score must be between 1 and 10")
)

// Direction selects a reorder neighbor.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Catalog composes the record store with naming-aware batch operations.
type Catalog struct {
	store  *record.FileStore
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New wires a catalog over the given store.
func New(store *record.FileStore) *Catalog {
	return &Catalog{
		store:  store,
		logger: slog.Default().With("component", "catalog"),
		tracer: otel.Tracer("github.com/batchbot/batchbot/catalog"),
		now:    time.Now,
	}
}

// Store exposes the underlying record store.
func (c *Catalog) Store() *record.FileStore { return c.store }

// Resolve redeems a token for its batch.
func (c *Catalog) Resolve(ctx context.Context, token string) (*record.Batch, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.resolve",
		trace.WithAttributes(attribute.String("batch.token", token)))
	defer span.End()

	filename, err := c.Filename(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.resolveByFilename(ctx, filename, token)
}

// ResolveByFilename loads the batch stored under filename.
func (c *Catalog) ResolveByFilename(ctx context.Context, filename string) (*record.Batch, error) {
	return c.resolveByFilename(ctx, filename, "")
}

func (c *Catalog) resolveByFilename(ctx context.Context, filename, token string) (*record.Batch, error) {
	b, err := c.store.ReadBatch(ctx, filename)
	if err != nil {
		return nil, err
	}
	if b == nil {
		// Index entry without a record: treat as not found rather than
		// exposing the inconsistency to the caller.
		c.logger.Warn("index entry points at missing batch", "filename", filename, "token", token)
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}
	return b, nil
}

// Filename resolves a token to its storage key via the index.
func (c *Catalog) Filename(ctx context.Context, token string) (string, error) {
	idx := c.store.ReadIndex(ctx)
	filename, ok := idx.FilenameFor(token)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}
	return filename, nil
}

// Order returns the current publication order, oldest first.
func (c *Catalog) Order(ctx context.Context) []string {
	return c.store.ReadIndex(ctx).Order
}

// Create persists an empty batch and registers it in the index in one index
// update. When the requested storage key is already occupied a numeric
// disambiguator is appended until a free key is found; the batch returned
// carries the filename actually used.
func (c *Catalog) Create(ctx context.Context, token, filename, displayName string, ownerID int64) (*record.Batch, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.create",
		trace.WithAttributes(attribute.String("batch.filename", filename)))
	defer span.End()

	newFilename := filename
	for n := 2; c.store.BatchExists(ctx, newFilename); n++ {
		newFilename = filename + "_" + strconv.Itoa(n)
	}

	b := &record.Batch{
		Token:       token,
		Filename:    newFilename,
		DisplayName: displayName,
		CreatedAt:   c.now().UTC(),
		OwnerID:     ownerID,
	}
	if err := c.store.WriteBatch(ctx, newFilename, b); err != nil {
		return nil, err
	}
	err := c.store.UpdateIndex(ctx, func(idx *record.Index) error {
		idx.Register(token, newFilename)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("batch created", "token", token, "filename", newFilename)
	return b, nil
}

// AppendItem adds one item to the end of the stored batch.
func (c *Catalog) AppendItem(ctx context.Context, filename string, item record.Item) error {
	ctx, span := c.tracer.Start(ctx, "catalog.append_item",
		trace.WithAttributes(attribute.String("batch.filename", filename)))
	defer span.End()

	return c.store.UpdateBatch(ctx, filename, func(b *record.Batch) error {
		b.Items = append(b.Items, item)
		return nil
	})
}

// Rename moves the batch to a new storage key derived from base, appending a
// numeric disambiguator until the key is free, updates the display name, and
// rewrites the index entry in place. It returns the filename actually used.
func (c *Catalog) Rename(ctx context.Context, token, oldFilename, base, displayName string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.rename",
		trace.WithAttributes(attribute.String("batch.token", token)))
	defer span.End()

	newFilename := base
	for n := 2; c.store.BatchExists(ctx, newFilename); n++ {
		newFilename = base + "_" + strconv.Itoa(n)
	}

	b, err := c.store.ReadBatch(ctx, oldFilename)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", fmt.Errorf("%w: %s", record.ErrBatchNotFound, oldFilename)
	}
	b.Filename = newFilename
	b.DisplayName = displayName
	if err := c.store.WriteBatch(ctx, newFilename, b); err != nil {
		return "", err
	}
	err = c.store.UpdateIndex(ctx, func(idx *record.Index) error {
		idx.Rename(token, newFilename)
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := c.store.DeleteBatch(ctx, oldFilename); err != nil {
		// The new record and index entry are already in place; the stale
		// file is unreachable and only wastes space.
		c.logger.Warn("stale batch file left behind", "filename", oldFilename, "error", err)
	}
	c.logger.Info("batch renamed", "token", token, "from", oldFilename, "to", newFilename)
	return newFilename, nil
}

// Delete removes the batch record together with its token and order entries.
func (c *Catalog) Delete(ctx context.Context, token string) error {
	ctx, span := c.tracer.Start(ctx, "catalog.delete",
		trace.WithAttributes(attribute.String("batch.token", token)))
	defer span.End()

	filename, err := c.Filename(ctx, token)
	if err != nil {
		return err
	}
	err = c.store.UpdateIndex(ctx, func(idx *record.Index) error {
		idx.Remove(token)
		return nil
	})
	if err != nil {
		return err
	}
	if err := c.store.DeleteBatch(ctx, filename); err != nil {
		return err
	}
	c.logger.Info("batch deleted", "token", token, "filename", filename)
	return nil
}

// EditCaption replaces the caption of one item.
func (c *Catalog) EditCaption(ctx context.Context, token string, itemIndex int, text string) error {
	filename, err := c.Filename(ctx, token)
	if err != nil {
		return err
	}
	return c.store.UpdateBatch(ctx, filename, func(b *record.Batch) error {
		if itemIndex < 0 || itemIndex >= len(b.Items) {
			return fmt.Errorf("%w: %d of %d", ErrItemIndex, itemIndex, len(b.Items))
		}
		b.Items[itemIndex].Caption = text
		return nil
	})
}

// ReorderItem swaps the item with its neighbor in the given direction.
func (c *Catalog) ReorderItem(ctx context.Context, token string, itemIndex int, dir Direction) error {
	filename, err := c.Filename(ctx, token)
	if err != nil {
		return err
	}
	return c.store.UpdateBatch(ctx, filename, func(b *record.Batch) error {
		other := itemIndex - 1
		if dir == DirectionDown {
			other = itemIndex + 1
		}
		if itemIndex < 0 || itemIndex >= len(b.Items) || other < 0 || other >= len(b.Items) {
			return fmt.Errorf("%w: %d (%s) of %d", ErrItemIndex, itemIndex, dir, len(b.Items))
		}
		b.Items[itemIndex], b.Items[other] = b.Items[other], b.Items[itemIndex]
		return nil
	})
}

// Rate records one user's score for a batch, replacing any earlier score
// from the same user.
func (c *Catalog) Rate(ctx context.Context, token string, userID int64, score int) error {
	if score < 1 || score > 10 {
		return fmt.Errorf("%w: got %d", ErrScore, score)
	}
	filename, err := c.Filename(ctx, token)
	if err != nil {
		return err
	}
	return c.store.UpdateBatch(ctx, filename, func(b *record.Batch) error {
		if b.Ratings == nil {
			b.Ratings = map[int64]record.Rating{}
		}
		b.Ratings[userID] = record.Rating{Score: score, RatedAt: c.now().UTC()}
		return nil
	})
}
