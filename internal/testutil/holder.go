package testutil

// FixedHolderGenerator returns the same lock-holder id every time.
//
// Unlike lock.FixedGenerator which returns ids in sequence, this generator
// always returns the same id. Useful when every invocation in a test should
// act as one request, such as a retried delivery of the same notification.
//
// Thread-safety: FixedHolderGenerator is stateless and safe for concurrent use.
type FixedHolderGenerator struct {
	holder string
}

// NewFixedHolderGenerator creates a new fixed holder generator.
//
// If holder is empty, Generate() returns "test-holder-default".
func NewFixedHolderGenerator(holder string) *FixedHolderGenerator {
	if holder == "" {
		holder = "test-holder-default"
	}
	return &FixedHolderGenerator{holder: holder}
}

// Generate returns the fixed holder id.
//
// Implements lock.HolderGenerator interface.
func (g *FixedHolderGenerator) Generate() string {
	return g.holder
}
