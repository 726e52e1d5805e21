// Package browse runs the per-viewer navigation session: a cursor over an
// immutable snapshot of the publication order, paging between batches and
// switching between preview, list, and detail views. Each transition
// replaces the previously displayed message so the conversation shows
// exactly one current item.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/batchbot/batchbot/pkg/catalog"
	"github.com/batchbot/batchbot/pkg/record"
	"github.com/batchbot/batchbot/pkg/sessions"
	"github.com/batchbot/batchbot/pkg/transport"
)

var (
	// ErrNoSession indicates the conversation has no active browse session.
	ErrNoSession = errors.New("browse: no active session")
	// ErrNothingPublished indicates the index holds no batches to browse.
	ErrNothingPublished = errors.New("browse: nothing published")
)

// View names what the session currently displays.
type View string

const (
	ViewPreview View = "preview"
	ViewList    View = "list"
	ViewDetail  View = "detail"
)

// Session is one viewer's transient navigation state. The order snapshot is
// taken once at session start and never refreshed, so the session stays
// stable while batches are added, removed, or reordered concurrently.
// Position counts back from the newest batch: 0 is the most recent, len-1
// the oldest.
type Session struct {
	Position  int
	Order     []string
	Displayed transport.MessageRef
	View      View
}

// Current returns the filename under the cursor. The snapshot is newest
// last, so the cursor counts from the end.
func (s *Session) Current() string {
	return s.Order[len(s.Order)-1-s.Position]
}

// Manager owns browse sessions for all viewer conversations.
type Manager struct {
	catalog   *catalog.Catalog
	messenger transport.Messenger
	sessions  sessions.Store[*Session]
	logger    *slog.Logger
	randIntN  func(int) int
}

// NewManager builds a browse manager delivering through messenger.
func NewManager(cat *catalog.Catalog, messenger transport.Messenger) *Manager {
	return &Manager{
		catalog:   cat,
		messenger: messenger,
		sessions:  sessions.NewMemory[*Session](),
		logger:    slog.Default().With("component", "browse"),
		randIntN:  rand.IntN,
	}
}

// Open snapshots the publication order and shows the most recent batch.
func (m *Manager) Open(ctx context.Context, conv int64) (*Session, error) {
	order := m.catalog.Order(ctx)
	if len(order) == 0 {
		return nil, ErrNothingPublished
	}
	sess := &Session{
		Position: 0,
		Order:    append([]string(nil), order...),
		View:     ViewPreview,
	}
	if err := m.renderPreview(ctx, conv, sess); err != nil {
		return nil, err
	}
	m.sessions.Put(conv, sess)
	m.logger.Info("browse session opened", "conv", conv, "batches", len(order))
	return sess, nil
}

// StepBack moves the cursor one batch older; at the oldest it is a no-op.
func (m *Manager) StepBack(ctx context.Context, conv int64) error {
	return m.step(ctx, conv, func(sess *Session) int {
		return min(len(sess.Order)-1, sess.Position+1)
	})
}

// StepForward moves the cursor one batch newer; at the newest it is a no-op.
func (m *Manager) StepForward(ctx context.Context, conv int64) error {
	return m.step(ctx, conv, func(sess *Session) int {
		return max(0, sess.Position-1)
	})
}

// JumpRandom moves the cursor to a uniformly random batch.
func (m *Manager) JumpRandom(ctx context.Context, conv int64) error {
	return m.step(ctx, conv, func(sess *Session) int {
		return m.randIntN(len(sess.Order))
	})
}

func (m *Manager) step(ctx context.Context, conv int64, next func(*Session) int) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	pos := next(sess)
	if pos == sess.Position && sess.View == ViewPreview {
		return nil
	}
	prevPos, prevView := sess.Position, sess.View
	sess.Position = pos
	sess.View = ViewPreview
	if err := m.renderPreview(ctx, conv, sess); err != nil {
		sess.Position, sess.View = prevPos, prevView
		return err
	}
	m.sessions.Put(conv, sess)
	return nil
}

// ShowList replaces the displayed content with a numbered list of the
// current batch's item titles.
func (m *Manager) ShowList(ctx context.Context, conv int64) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	b, err := m.current(ctx, sess)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(b.DisplayName)
	sb.WriteString("\n")
	for i, item := range b.Items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, itemTitle(item, i))
	}
	if err := m.replaceWithText(ctx, conv, sess, sb.String()); err != nil {
		return err
	}
	sess.View = ViewList
	m.sessions.Put(conv, sess)
	return nil
}

// ShowFiles renders one line per item position, the surface the item-level
// controls (detail, reorder, caption edit) hang off.
func (m *Manager) ShowFiles(ctx context.Context, conv int64) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	b, err := m.current(ctx, sess)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s — %d items\n", b.DisplayName, len(b.Items))
	for i, item := range b.Items {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n", i, itemTitle(item, i), item.Kind)
	}
	if err := m.replaceWithText(ctx, conv, sess, sb.String()); err != nil {
		return err
	}
	sess.View = ViewList
	m.sessions.Put(conv, sess)
	return nil
}

// ShowDetail displays one specific item of the current batch.
func (m *Manager) ShowDetail(ctx context.Context, conv int64, itemIndex int) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	b, err := m.current(ctx, sess)
	if err != nil {
		return err
	}
	if itemIndex < 0 || itemIndex >= len(b.Items) {
		return fmt.Errorf("%w: item %d of %d", catalog.ErrItemIndex, itemIndex, len(b.Items))
	}
	if err := m.replaceWithItem(ctx, conv, sess, b.Items[itemIndex]); err != nil {
		return err
	}
	sess.View = ViewDetail
	m.sessions.Put(conv, sess)
	return nil
}

// BackToPreview re-renders the first item of the current batch.
func (m *Manager) BackToPreview(ctx context.Context, conv int64) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	if err := m.renderPreview(ctx, conv, sess); err != nil {
		return err
	}
	sess.View = ViewPreview
	m.sessions.Put(conv, sess)
	return nil
}

// Close removes the displayed message. The session itself persists and can
// be resumed from its cursor.
func (m *Manager) Close(ctx context.Context, conv int64) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	if !sess.Displayed.None() {
		if err := m.messenger.Delete(ctx, conv, sess.Displayed); err != nil {
			m.logger.Warn("close: delete displayed message", "conv", conv, "error", err)
		}
		sess.Displayed = transport.MessageRef{}
	}
	m.sessions.Put(conv, sess)
	return nil
}

// Session returns the conversation's browse session, if any.
func (m *Manager) Session(conv int64) (*Session, bool) {
	return m.sessions.Get(conv)
}

func (m *Manager) current(ctx context.Context, sess *Session) (*record.Batch, error) {
	return m.catalog.ResolveByFilename(ctx, sess.Current())
}

func (m *Manager) renderPreview(ctx context.Context, conv int64, sess *Session) error {
	b, err := m.current(ctx, sess)
	if err != nil {
		return err
	}
	if len(b.Items) == 0 {
		return m.replaceWithText(ctx, conv, sess, b.DisplayName+" (empty)")
	}
	return m.replaceWithItem(ctx, conv, sess, b.Items[0])
}

// replaceWithItem swaps the displayed message for the given item: in place
// when the platform can edit it, delete-and-resend otherwise.
func (m *Manager) replaceWithItem(ctx context.Context, conv int64, sess *Session, item record.Item) error {
	if !sess.Displayed.None() && item.Kind == record.KindPhoto {
		ref, err := m.messenger.ReplaceItem(ctx, conv, sess.Displayed, item, item.Caption)
		if err == nil {
			sess.Displayed = ref
			return nil
		}
		m.logger.Debug("in-place replace refused, falling back", "conv", conv, "error", err)
	}
	m.deleteDisplayed(ctx, conv, sess)
	ref, err := m.messenger.SendItem(ctx, conv, item, item.Caption)
	if err != nil {
		return err
	}
	sess.Displayed = ref
	return nil
}

func (m *Manager) replaceWithText(ctx context.Context, conv int64, sess *Session, text string) error {
	m.deleteDisplayed(ctx, conv, sess)
	ref, err := m.messenger.SendText(ctx, conv, text)
	if err != nil {
		return err
	}
	sess.Displayed = ref
	return nil
}

func (m *Manager) deleteDisplayed(ctx context.Context, conv int64, sess *Session) {
	if sess.Displayed.None() {
		return
	}
	if err := m.messenger.Delete(ctx, conv, sess.Displayed); err != nil {
		m.logger.Warn("delete displayed message", "conv", conv, "error", err)
	}
	sess.Displayed = transport.MessageRef{}
}

func itemTitle(item record.Item, pos int) string {
	if caption := strings.TrimSpace(item.Caption); caption != "" {
		line, _, _ := strings.Cut(caption, "\n")
		return line
	}
	if item.OriginalName != "" {
		return item.OriginalName
	}
	return fmt.Sprintf("item %d", pos+1)
}
