package testutil

// DefaultContainerID is used when a scenario does not name its container.
const DefaultContainerID = "test-container"

// FixedIDGenerator returns the same container id every time, so golden
// traces do not depend on generated UUIDs.
//
// Implements container.IDGenerator. Stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id, or DefaultContainerID when
// id is empty.
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = DefaultContainerID
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
