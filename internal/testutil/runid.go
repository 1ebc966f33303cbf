package testutil

// DefaultRunID is returned by a StaticRunID created with an empty id.
const DefaultRunID = "test-run-default"

// StaticRunID returns the same run id on every call, so a test may create
// any number of schedulers and still get byte-identical traces.
//
// Thread-safety: StaticRunID is immutable and safe for concurrent use.
type StaticRunID struct {
	id string
}

// NewStaticRunID returns a generator for id, or DefaultRunID if id is "".
func NewStaticRunID(id string) *StaticRunID {
	if id == "" {
		id = DefaultRunID
	}
	return &StaticRunID{id: id}
}

// Generate returns the fixed run id.
func (g *StaticRunID) Generate() string {
	return g.id
}
