package driven

import "github.com/custodia-labs/sercha-sync/internal/core/domain"

// PostProcessor rewrites extracted content before it is indexed.
type PostProcessor interface {
	// Process modifies content in place
	Process(content *domain.ExtractedContent)

	// Name returns the processor name
	Name() string

	// Order returns the position in the pipeline (lower runs first)
	Order() int
}

// PostProcessorPipeline applies post-processors in order.
type PostProcessorPipeline interface {
	// Process runs every processor over content
	Process(content *domain.ExtractedContent)

	// List returns processor names in order
	List() []string
}
