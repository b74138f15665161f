package domain

import "strings"

// Question is one inbound request to the answer pipeline.
// Image, when present, is a data-URL-encoded image accompanying
// the question.
type Question struct {
	Text  string
	Image string
}

// Blank reports whether the question carries no text after trimming.
func (q Question) Blank() bool {
	return strings.TrimSpace(q.Text) == ""
}

// Link points a reader at the source a piece of context came from.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Answer is the assembled response: the generated text plus the
// deduplicated source links of the ranked candidates. Links may be
// empty when the answer was generated without retrieved context.
type Answer struct {
	Text  string `json:"answer"`
	Links []Link `json:"links"`
}
