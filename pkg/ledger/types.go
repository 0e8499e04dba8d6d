// Package ledger defines the bounded client pool, backend abstraction and
// entity model used to talk to the external content-addressed ledger that
// backs every chunk, file-metadata and quota record the system persists.
package ledger

import "time"

// EntityType discriminates the three kinds of record the system persists on
// the ledger. It is always carried as the "type" string attribute.
type EntityType string

const (
	EntityMetadata EntityType = "metadata"
	EntityChunk    EntityType = "chunk"
	EntityQuota    EntityType = "quota"
)

// Entity is one ledger-addressable record: a payload plus the string and
// numeric attributes the ledger indexes it by. Key is empty until the
// backend assigns one on Create/CreateBatch.
type Entity struct {
	Key              string
	Type             EntityType
	Payload          []byte
	StringAttrs      map[string]string
	NumericAttrs     map[string]int64
	ExpirationBlock  int64
	CreatedAt        time.Time
}

// AttributeQuery selects entities of Type whose string attributes match
// Equals exactly. Limit caps the number of results per page; a zero Limit
// means "use the backend's default page size".
type AttributeQuery struct {
	Type   EntityType
	Equals map[string]string
	Limit  int
	Cursor string
}

// Page is one page of an AttributeQuery; NextCursor is empty when there are
// no further pages.
type Page struct {
	Entities   []Entity
	NextCursor string
}
