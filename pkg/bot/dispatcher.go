// Package bot is the thin dispatch layer between the chat-platform
// collaborator and the core: it routes commands, items, and control
// activations to the authoring, browse, and catalog components, checks the
// admin allowlist, and keeps unexpected failures from crashing the process.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/batchbot/batchbot/pkg/authoring"
	"github.com/batchbot/batchbot/pkg/browse"
	"github.com/batchbot/batchbot/pkg/catalog"
	"github.com/batchbot/batchbot/pkg/config"
	"github.com/batchbot/batchbot/pkg/record"
	"github.com/batchbot/batchbot/pkg/telemetry"
	"github.com/batchbot/batchbot/pkg/tokencache"
	"github.com/batchbot/batchbot/pkg/transport"
)

var (
	// ErrNotAdmin indicates a non-admin attempted an authoring operation.
	ErrNotAdmin = errors.New("bot: user is not an admin")
	// ErrUnknownAction indicates a control activation the core cannot route.
	ErrUnknownAction = errors.New("bot: unknown control action")
)

// Dispatcher wires the core components behind the transport surface.
type Dispatcher struct {
	cfg       *config.Runtime
	catalog   *catalog.Catalog
	authoring *authoring.Manager
	browse    *browse.Manager
	cache     *tokencache.Cache
	messenger transport.Messenger
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New assembles a dispatcher.
func New(cfg *config.Runtime, cat *catalog.Catalog, auth *authoring.Manager,
	br *browse.Manager, cache *tokencache.Cache, messenger transport.Messenger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		catalog:   cat,
		authoring: auth,
		browse:    br,
		cache:     cache,
		messenger: messenger,
		logger:    slog.Default().With("component", "dispatcher"),
		tracer:    telemetry.Tracer(),
	}
}

// guard runs one update handler with a correlation ID and top-level panic
// recovery: a fault is logged and reported as an error, never a crash. Any
// in-flight session stays in whatever partial state it reached.
func (d *Dispatcher) guard(ctx context.Context, op string, fn func(context.Context, *slog.Logger) error) (err error) {
	log := d.logger.With("op", op, "request_id", uuid.NewString())
	ctx, span := d.tracer.Start(ctx, "bot."+op)
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("handler panicked", "panic", rec)
			err = fmt.Errorf("bot: %s: panic: %v", op, rec)
		}
	}()
	if err := fn(ctx, log); err != nil {
		log.Warn("handler failed", "error", err)
		return err
	}
	return nil
}

// OpenBatch starts an authoring session for an admin conversation.
func (d *Dispatcher) OpenBatch(ctx context.Context, conv, user int64, name string) error {
	return d.guard(ctx, "open_batch", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		sess, err := d.authoring.Open(ctx, conv, user, name)
		if err != nil {
			return err
		}
		_, err = d.messenger.SendText(ctx, conv,
			fmt.Sprintf("Batch opened. Token: %s — send items, then finalize.", sess.Token))
		return err
	})
}

// AppendIncoming routes an incoming item to whichever authoring mode the
// conversation has active. Items of unrecognized shape arrive as
// record.KindUnknown and are stored, not rejected.
func (d *Dispatcher) AppendIncoming(ctx context.Context, conv, user int64, item record.Item) error {
	return d.guard(ctx, "append_item", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		if _, ok := d.authoring.Session(conv); ok {
			_, err := d.authoring.AppendItem(ctx, conv, item)
			return err
		}
		_, err := d.authoring.AppendExisting(ctx, conv, item)
		return err
	})
}

// FinalizeBatch closes the authoring session and confirms publication.
func (d *Dispatcher) FinalizeBatch(ctx context.Context, conv, user int64) error {
	return d.guard(ctx, "finalize_batch", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		b, err := d.authoring.Finalize(ctx, conv)
		if err != nil {
			return err
		}
		_, err = d.messenger.SendText(ctx, conv,
			fmt.Sprintf("Published %q: %d items, token %s", b.DisplayName, len(b.Items), b.Token))
		return err
	})
}

// AbortBatch discards the authoring session. The partially built batch
// remains addressable by its token.
func (d *Dispatcher) AbortBatch(ctx context.Context, conv, user int64) error {
	return d.guard(ctx, "abort_batch", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		return d.authoring.Abort(conv)
	})
}

// AppendTo opens append-to-existing mode against the given token.
func (d *Dispatcher) AppendTo(ctx context.Context, conv, user int64, token string) error {
	return d.guard(ctx, "append_to", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		sess, err := d.authoring.OpenAppend(ctx, conv, token)
		if errors.Is(err, catalog.ErrTokenNotFound) {
			_, sendErr := d.messenger.SendText(ctx, conv, "No batch found for that token.")
			if sendErr != nil {
				return sendErr
			}
			return err
		}
		if err != nil {
			return err
		}
		_, err = d.messenger.SendText(ctx, conv,
			fmt.Sprintf("Appending to %s — send items, then finalize.", sess.Filename))
		return err
	})
}

// FinalizeAppend closes the append run.
func (d *Dispatcher) FinalizeAppend(ctx context.Context, conv, user int64) error {
	return d.guard(ctx, "finalize_append", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		b, err := d.authoring.FinalizeAppend(ctx, conv)
		if err != nil {
			return err
		}
		_, err = d.messenger.SendText(ctx, conv,
			fmt.Sprintf("%q now has %d items.", b.DisplayName, len(b.Items)))
		return err
	})
}

// DeleteBatch removes a published batch and its index entry.
func (d *Dispatcher) DeleteBatch(ctx context.Context, conv, user int64, token string) error {
	return d.guard(ctx, "delete_batch", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		return d.catalog.Delete(ctx, token)
	})
}

// EditCaption rewrites one item's caption.
func (d *Dispatcher) EditCaption(ctx context.Context, conv, user int64, token string, itemIndex int, text string) error {
	return d.guard(ctx, "edit_caption", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		return d.catalog.EditCaption(ctx, token, itemIndex, text)
	})
}

// ReorderItem swaps an item with its neighbor.
func (d *Dispatcher) ReorderItem(ctx context.Context, conv, user int64, token string, itemIndex int, dir catalog.Direction) error {
	return d.guard(ctx, "reorder_item", func(ctx context.Context, log *slog.Logger) error {
		if !d.cfg.IsAdmin(user) {
			return ErrNotAdmin
		}
		return d.catalog.ReorderItem(ctx, token, itemIndex, dir)
	})
}

// RedeemToken resolves a token and delivers the batch to the conversation.
// An unknown token is a user-visible outcome, never a fault.
func (d *Dispatcher) RedeemToken(ctx context.Context, conv int64, token string) error {
	return d.guard(ctx, "redeem", func(ctx context.Context, log *slog.Logger) error {
		b, err := d.catalog.Resolve(ctx, token)
		if errors.Is(err, catalog.ErrTokenNotFound) {
			_, sendErr := d.messenger.SendText(ctx, conv, "No batch found for that token.")
			return sendErr
		}
		if err != nil {
			return err
		}
		return d.deliverBatch(ctx, log, conv, b)
	})
}

// RateBatch records a viewer's score.
func (d *Dispatcher) RateBatch(ctx context.Context, conv, user int64, token string, score int) error {
	return d.guard(ctx, "rate", func(ctx context.Context, log *slog.Logger) error {
		err := d.catalog.Rate(ctx, token, user, score)
		if errors.Is(err, catalog.ErrTokenNotFound) {
			_, sendErr := d.messenger.SendText(ctx, conv, "No batch found for that token.")
			return sendErr
		}
		if errors.Is(err, catalog.ErrScore) {
			_, sendErr := d.messenger.SendText(ctx, conv, "Scores go from 1 to 10.")
			return sendErr
		}
		if err != nil {
			return err
		}
		_, err = d.messenger.SendText(ctx, conv, "Thanks for rating!")
		return err
	})
}

// OpenBrowse starts a browse session.
func (d *Dispatcher) OpenBrowse(ctx context.Context, conv int64) error {
	return d.guard(ctx, "browse_open", func(ctx context.Context, log *slog.Logger) error {
		_, err := d.browse.Open(ctx, conv)
		if errors.Is(err, browse.ErrNothingPublished) {
			_, sendErr := d.messenger.SendText(ctx, conv, "Nothing published yet.")
			return sendErr
		}
		return err
	})
}

// Control routes a browse-surface activation identified by an opaque action
// name plus an optional argument.
func (d *Dispatcher) Control(ctx context.Context, conv, user int64, action string, arg string) error {
	return d.guard(ctx, "control_"+action, func(ctx context.Context, log *slog.Logger) error {
		switch action {
		case "older":
			return d.browse.StepBack(ctx, conv)
		case "newer":
			return d.browse.StepForward(ctx, conv)
		case "random":
			return d.browse.JumpRandom(ctx, conv)
		case "list":
			return d.browse.ShowList(ctx, conv)
		case "files":
			return d.browse.ShowFiles(ctx, conv)
		case "detail":
			idx, err := parseIndex(arg)
			if err != nil {
				return err
			}
			return d.browse.ShowDetail(ctx, conv, idx)
		case "preview":
			return d.browse.BackToPreview(ctx, conv)
		case "close":
			return d.browse.Close(ctx, conv)
		case "token":
			return d.revealToken(ctx, conv, arg)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAction, action)
		}
	})
}

// IndexEntry is one row of the published-batch listing. Key references the
// batch's token through the ephemeral cache so controls stay small.
type IndexEntry struct {
	Key   string
	Label string
}

// IndexListing enumerates published batches newest first, registering each
// token in the lookup cache.
func (d *Dispatcher) IndexListing(ctx context.Context) ([]IndexEntry, error) {
	idx := d.catalog.Store().ReadIndex(ctx)
	entries := make([]IndexEntry, 0, len(idx.Order))
	for i := len(idx.Order) - 1; i >= 0; i-- {
		filename := idx.Order[i]
		token, ok := idx.TokenFor(filename)
		if !ok {
			continue
		}
		label := filename
		if b, err := d.catalog.ResolveByFilename(ctx, filename); err == nil {
			label = b.DisplayName
		}
		entries = append(entries, IndexEntry{Key: d.cache.Put(token, label), Label: label})
	}
	return entries, nil
}

func (d *Dispatcher) revealToken(ctx context.Context, conv int64, key string) error {
	entry, ok := d.cache.Resolve(key)
	if !ok {
		_, err := d.messenger.SendText(ctx, conv, "That listing expired, please reopen the index.")
		return err
	}
	_, err := d.messenger.SendText(ctx, conv, fmt.Sprintf("%s — token: %s", entry.Label, entry.Token))
	return err
}

func parseIndex(arg string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(arg, "%d", &idx); err != nil {
		return 0, fmt.Errorf("bot: bad item index %q: %w", arg, err)
	}
	return idx, nil
}
