// Package record defines the durable data model (the singleton Index and
// per-batch records) and a file-backed store with atomic single-record
// replace semantics.
package record

import "time"

// ItemKind classifies the media carried by an Item.
type ItemKind string

const (
	KindDocument  ItemKind = "document"
	KindPhoto     ItemKind = "photo"
	KindVideo     ItemKind = "video"
	KindAudio     ItemKind = "audio"
	KindText      ItemKind = "text"
	KindForwarded ItemKind = "forwarded"
	KindUnknown   ItemKind = "unknown"
)

// Item is one media or text unit inside a batch. Items are immutable once
// appended except for caption edits and position swaps.
type Item struct {
	Kind         ItemKind `json:"kind"`
	ContentRef   string   `json:"content_ref,omitempty"`
	Caption      string   `json:"caption,omitempty"`
	OriginalName string   `json:"original_name,omitempty"`
	SizeBytes    int64    `json:"size_bytes,omitempty"`

	// Forwarded items carry a source reference instead of a content ref.
	// Resolution of that reference may fail independently at delivery time.
	SourceChannel   string `json:"source_channel,omitempty"`
	SourceMessageID int64  `json:"source_message_id,omitempty"`
}

// Rating is one user's score for a batch.
type Rating struct {
	Score   int       `json:"score"`
	RatedAt time.Time `json:"rated_at"`
}

// Batch is an ordered, named collection of items published under one token.
type Batch struct {
	Token       string           `json:"token"`
	Filename    string           `json:"filename"`
	DisplayName string           `json:"display_name"`
	CreatedAt   time.Time        `json:"created_at"`
	OwnerID     int64            `json:"owner_id"`
	Items       []Item           `json:"items"`
	Ratings     map[int64]Rating `json:"ratings,omitempty"`
}

// Index is the singleton token→filename map plus the insertion-ordered
// filename list. Every filename in Order has exactly one token mapping to it
// in Tokens and vice versa; the pair is updated together.
type Index struct {
	Tokens map[string]string `json:"tokens"`
	Order  []string          `json:"order"`
}

// NewIndex returns an empty but fully initialized index.
func NewIndex() Index {
	return Index{Tokens: map[string]string{}}
}

// FilenameFor resolves a token to its batch filename.
func (i Index) FilenameFor(token string) (string, bool) {
	name, ok := i.Tokens[token]
	return name, ok
}

// TokenFor performs the reverse lookup from filename to token.
func (i Index) TokenFor(filename string) (string, bool) {
	for tok, name := range i.Tokens {
		if name == filename {
			return tok, true
		}
	}
	return "", false
}

// Register adds a token→filename pair and appends the filename to the order.
func (i *Index) Register(token, filename string) {
	if i.Tokens == nil {
		i.Tokens = map[string]string{}
	}
	i.Tokens[token] = filename
	i.Order = append(i.Order, filename)
}

// Remove drops the token mapping and its order entry.
func (i *Index) Remove(token string) {
	filename, ok := i.Tokens[token]
	if !ok {
		return
	}
	delete(i.Tokens, token)
	for pos, name := range i.Order {
		if name == filename {
			i.Order = append(i.Order[:pos], i.Order[pos+1:]...)
			break
		}
	}
}

// Rename points token at a new filename and rewrites the order entry in
// place, preserving the batch's position.
func (i *Index) Rename(token, newFilename string) {
	old, ok := i.Tokens[token]
	if !ok {
		return
	}
	i.Tokens[token] = newFilename
	for pos, name := range i.Order {
		if name == old {
			i.Order[pos] = newFilename
			break
		}
	}
}
