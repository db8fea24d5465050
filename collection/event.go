package collection

import (
	"context"

	"github.com/stevemurr/termstore/document"
)

// Kind names the operation an Event reports.
type Kind string

const (
	KindCreate Kind = "create"
	KindRead   Kind = "read"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindCreate, KindRead, KindUpdate, KindDelete}

// Event is published after a storage call succeeds. For create, update and
// delete the documents are the post-operation state (for delete, what was
// removed); for read they are what was returned.
type Event struct {
	Kind       Kind
	Collection string
	Documents  []document.Document
}

// Handler receives events. It runs synchronously inside the publishing call.
type Handler func(ctx context.Context, ev Event)
