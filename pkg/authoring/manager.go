// Package authoring runs the per-admin batch authoring state machine: open a
// batch, accumulate incoming items, auto-derive a name from the first item,
// and finalize or abort. A parallel append mode extends existing batches.
package authoring

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/batchbot/batchbot/pkg/catalog"
	"github.com/batchbot/batchbot/pkg/naming"
	"github.com/batchbot/batchbot/pkg/record"
	"github.com/batchbot/batchbot/pkg/sessions"
)

var (
	// ErrNoSession indicates the conversation has no active authoring session.
	ErrNoSession = errors.New("authoring: no active session")
	// ErrSessionExists indicates the conversation already has a session open.
	ErrSessionExists = errors.New("authoring: session already active")
)

const maxDisplayName = 200

// Session is the transient state of one batch under construction. It lives
// only in process memory and is discarded on finalize, abort, or restart;
// the batch record itself is durable from the moment the session opens.
type Session struct {
	Token           string
	Filename        string
	Count           int
	CreatedAt       time.Time
	AutoNamePending bool
}

// AppendSession is the transient state of an append-to-existing run. No
// naming logic applies.
type AppendSession struct {
	Token    string
	Filename string
	Count    int
}

// Manager owns authoring sessions for all admin conversations.
type Manager struct {
	catalog  *catalog.Catalog
	sessions sessions.Store[*Session]
	appends  sessions.Store[*AppendSession]
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager builds a manager with in-memory session stores.
func NewManager(cat *catalog.Catalog) *Manager {
	return &Manager{
		catalog:  cat,
		sessions: sessions.NewMemory[*Session](),
		appends:  sessions.NewMemory[*AppendSession](),
		logger:   slog.Default().With("component", "authoring"),
		now:      time.Now,
	}
}

// Open starts a new authoring session. With an explicit name the batch is
// named immediately; otherwise a provisional token-derived name is used and
// the first appended item triggers auto-naming.
func (m *Manager) Open(ctx context.Context, conv, ownerID int64, explicitName string) (*Session, error) {
	if _, ok := m.sessions.Get(conv); ok {
		return nil, ErrSessionExists
	}

	token := naming.GenerateToken()
	explicitName = strings.TrimSpace(explicitName)
	filename := "batch_" + token
	displayName := filename
	if explicitName != "" {
		filename = naming.SlugForStorage(explicitName)
		displayName = truncateDisplayName(explicitName)
	}

	// Create resolves storage-key collisions with a numeric disambiguator,
	// so two batches opened under the same explicit name stay distinct.
	b, err := m.catalog.Create(ctx, token, filename, displayName, ownerID)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Token:           token,
		Filename:        b.Filename,
		CreatedAt:       m.now().UTC(),
		AutoNamePending: explicitName == "",
	}
	m.sessions.Put(conv, sess)
	m.logger.Info("authoring session opened", "conv", conv, "token", token, "filename", b.Filename)
	return sess, nil
}

// AppendItem pushes an item into the session's batch. The first item of an
// unnamed batch triggers auto-naming exactly once, whether or not a usable
// name can be derived.
func (m *Manager) AppendItem(ctx context.Context, conv int64, item record.Item) (*Session, error) {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return nil, ErrNoSession
	}

	if item.Kind == "" {
		item.Kind = record.KindUnknown
	}
	if err := m.catalog.AppendItem(ctx, sess.Filename, item); err != nil {
		return nil, err
	}
	sess.Count++

	if sess.AutoNamePending {
		sess.AutoNamePending = false
		m.autoName(ctx, sess, item)
	}
	m.sessions.Put(conv, sess)
	return sess, nil
}

// autoName derives a display name from the first item and renames the batch.
// Derivation failure keeps the provisional name; the attempt is never
// repeated for the session.
func (m *Manager) autoName(ctx context.Context, sess *Session, item record.Item) {
	raw := rawLabel(item)
	slug, ok := naming.SanitizeForDisplay(raw)
	if !ok {
		m.logger.Info("auto-name skipped, nothing usable in first item",
			"token", sess.Token, "filename", sess.Filename)
		return
	}

	// The slug carries the token as a suffix so distinct batches with equal
	// titles land on distinct storage keys. The display name stays the full
	// raw label, never the truncated slug and never the token.
	newFilename, err := m.catalog.Rename(ctx, sess.Token, sess.Filename,
		slug+"_"+sess.Token, truncateDisplayName(raw))
	if err != nil {
		m.logger.Error("auto-name rename failed", "token", sess.Token, "error", err)
		return
	}
	sess.Filename = newFilename
}

// Finalize returns the finished batch for publication confirmation and
// discards the session.
func (m *Manager) Finalize(ctx context.Context, conv int64) (*record.Batch, error) {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return nil, ErrNoSession
	}
	b, err := m.catalog.Resolve(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	m.sessions.Delete(conv)
	m.logger.Info("authoring session finalized", "conv", conv, "token", sess.Token, "items", sess.Count)
	return b, nil
}

// Abort discards the session. The already-persisted batch and index entry
// remain addressable by their token; that is the accepted trade-off.
func (m *Manager) Abort(conv int64) error {
	sess, ok := m.sessions.Get(conv)
	if !ok {
		return ErrNoSession
	}
	m.sessions.Delete(conv)
	m.logger.Info("authoring session aborted", "conv", conv, "token", sess.Token)
	return nil
}

// Session returns the conversation's active session, if any.
func (m *Manager) Session(conv int64) (*Session, bool) {
	return m.sessions.Get(conv)
}

// OpenAppend starts an append-to-existing run against the batch addressed by
// token.
func (m *Manager) OpenAppend(ctx context.Context, conv int64, token string) (*AppendSession, error) {
	if _, ok := m.appends.Get(conv); ok {
		return nil, ErrSessionExists
	}
	filename, err := m.catalog.Filename(ctx, token)
	if err != nil {
		return nil, err
	}
	sess := &AppendSession{Token: token, Filename: filename}
	m.appends.Put(conv, sess)
	m.logger.Info("append session opened", "conv", conv, "token", token)
	return sess, nil
}

// AppendExisting pushes an item into the append-mode batch.
func (m *Manager) AppendExisting(ctx context.Context, conv int64, item record.Item) (*AppendSession, error) {
	sess, ok := m.appends.Get(conv)
	if !ok {
		return nil, ErrNoSession
	}
	if item.Kind == "" {
		item.Kind = record.KindUnknown
	}
	if err := m.catalog.AppendItem(ctx, sess.Filename, item); err != nil {
		return nil, err
	}
	sess.Count++
	m.appends.Put(conv, sess)
	return sess, nil
}

// FinalizeAppend closes the append run and returns the extended batch.
func (m *Manager) FinalizeAppend(ctx context.Context, conv int64) (*record.Batch, error) {
	sess, ok := m.appends.Get(conv)
	if !ok {
		return nil, ErrNoSession
	}
	b, err := m.catalog.Resolve(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	m.appends.Delete(conv)
	m.logger.Info("append session finalized", "conv", conv, "token", sess.Token, "items", sess.Count)
	return b, nil
}

// rawLabel picks the naming source for a first item: the caption's first
// line when present, else the original name without its extension.
func rawLabel(item record.Item) string {
	if caption := strings.TrimSpace(item.Caption); caption != "" {
		line, _, _ := strings.Cut(caption, "\n")
		return strings.TrimSpace(line)
	}
	name := strings.TrimSpace(item.OriginalName)
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

func truncateDisplayName(s string) string {
	if len(s) <= maxDisplayName {
		return s
	}
	trimmed := s[:maxDisplayName]
	// Avoid splitting a multi-byte rune at the cut.
	for len(trimmed) > 0 && !utf8.ValidString(trimmed) {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed
}
