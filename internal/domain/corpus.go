package domain

// CorpusStats summarizes the ingested corpus for health reporting.
type CorpusStats struct {
	DiscourseChunks       int `json:"discourse_chunks"`
	DiscourseEmbedded     int `json:"discourse_embeddings"`
	DocumentationChunks   int `json:"documentation_chunks"`
	DocumentationEmbedded int `json:"documentation_embeddings"`
}

// Total returns the number of chunks across all sources.
func (s CorpusStats) Total() int {
	return s.DiscourseChunks + s.DocumentationChunks
}
