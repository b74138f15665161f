package domain

// SourceKind identifies which corpus a chunk was ingested from.
type SourceKind string

const (
	// SourceDiscourse marks chunks ingested from the course forum.
	SourceDiscourse SourceKind = "discourse"
	// SourceDocumentation marks chunks ingested from the course notes.
	SourceDocumentation SourceKind = "documentation"
)

// Label returns the human-readable source name used in prompts.
func (k SourceKind) Label() string {
	if k == SourceDiscourse {
		return "Forum post"
	}
	return "Documentation"
}

// Chunk is an immutable passage of source text with provenance.
// Chunks are created and embedded by the offline ingestion job;
// the query path never mutates them. A nil Embedding means the
// chunk is not eligible for retrieval.
type Chunk struct {
	ID        int64
	Source    SourceKind
	Title     string
	Ordinal   int
	Content   string
	URL       string
	Embedding []float32
}

// Embedded reports whether the chunk carries a usable vector.
func (c Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}

// ScoredChunk pairs a chunk with its cosine similarity to a query,
// in [-1, 1]. Produced per request and discarded after assembly.
type ScoredChunk struct {
	Chunk
	Score float64
}

// RetrievalResult is the outcome of one similarity search.
// Ranked is threshold-filtered, score-descending (ties keep scan
// order) and truncated to the policy's max results.
type RetrievalResult struct {
	Ranked    []ScoredChunk
	Scanned   int // rows read from the store
	Evaluated int // rows actually scored (embedded rows)
}

// Empty reports whether no candidate cleared the threshold.
// An empty result is a normal outcome, not an error.
func (r RetrievalResult) Empty() bool {
	return len(r.Ranked) == 0
}
