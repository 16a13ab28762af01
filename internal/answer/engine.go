// Package answer implements question answering over one collection:
// embed the question, retrieve candidate chunks, rank their source
// documents, and walk the ranking asking an LLM for a verbatim extraction
// until one document yields a usable answer.
package answer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/internal/vectorstore"
)

const (
	// searchLimit is how many nearest chunks are pulled per question.
	searchLimit = 20
	// contextHits is how many of a document's best chunks feed one
	// extraction attempt.
	contextHits = 5
)

// Terminal answer texts. Neither is an error.
const (
	NoInformationText = "No relevant information found."
	NotFoundText      = "Not found in document."
)

const extractionSystemPrompt = "You are a strict document extraction assistant. " +
	"Locate the field relevant to the question and return the COMPLETE line value exactly as it appears in the context. " +
	"Do NOT shorten the answer. Do NOT correct spelling. Do NOT infer. " +
	"If the field is not present verbatim, reply: 'Not found in document'."

// failurePhrases mark an extraction reply as "answer not in this
// document", triggering fallback to the next-ranked document. The list is
// empirically tuned; treat it as a tunable alongside the scoring below.
var failurePhrases = []string{
	"not found",
	"does not contain",
	"not present",
	"no information",
	"cannot find",
}

// Embedder embeds a batch of texts with a named model.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Searcher returns the nearest stored points for a query vector.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error)
}

// Completer runs one synchronous LLM completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Source cites where an answer came from.
type Source struct {
	File string `json:"file"`
	Page int    `json:"page"`
}

// Answer is the outcome of one question.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Engine holds the collaborators for question answering.
type Engine struct {
	embedder Embedder
	vectors  Searcher
	llm      Completer
}

// New creates an Engine.
func New(embedder Embedder, vectors Searcher, llm Completer) *Engine {
	return &Engine{embedder: embedder, vectors: vectors, llm: llm}
}

// Ask answers a question against one collection. Zero retrieval hits and
// exhausting every candidate document are terminal answers, not errors;
// only collaborator failures return an error.
func (e *Engine) Ask(ctx context.Context, collection storage.Collection, question string) (Answer, error) {
	vectors, err := e.embedder.Embed(ctx, []string{question}, collection.EmbeddingModel)
	if err != nil {
		return Answer{}, fmt.Errorf("embedding question: %w", err)
	}

	hits, err := e.vectors.Search(ctx, collection.Name, vectors[0], searchLimit)
	if err != nil {
		return Answer{}, fmt.Errorf("searching collection: %w", err)
	}
	if len(hits) == 0 {
		return Answer{Text: NoInformationText, Sources: []Source{}}, nil
	}

	for _, docID := range rankDocuments(hits) {
		docHits := topHitsForDocument(hits, docID, contextHits)

		contexts := make([]string, len(docHits))
		sources := make([]Source, len(docHits))
		for i, hit := range docHits {
			contexts[i] = hit.Payload.Text
			sources[i] = Source{File: hit.Payload.DocumentTitle, Page: hit.Payload.PageNumber}
		}

		user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(contexts, "\n\n"), question)
		reply, err := e.llm.Complete(ctx, extractionSystemPrompt, user)
		if err != nil {
			return Answer{}, fmt.Errorf("extraction completion: %w", err)
		}

		if !containsFailurePhrase(reply) {
			return Answer{Text: reply, Sources: sources}, nil
		}
		// The top-ranked document does not necessarily hold the answer;
		// keep walking down the ranking.
	}

	return Answer{Text: NotFoundText, Sources: []Source{}}, nil
}

// rankDocuments groups hits by source document and orders document ids by
// accumulated relevance, best first. Each hit contributes its score
// squared, which biases toward documents with at least one very strong
// match over documents with many weak ones.
func rankDocuments(hits []vectorstore.ScoredPoint) []string {
	scores := make(map[string]float64)
	var order []string
	for _, hit := range hits {
		id := hit.Payload.DocumentID
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] += hit.Score * hit.Score
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}

// topHitsForDocument returns the document's hits ordered by individual
// score descending, capped at limit.
func topHitsForDocument(hits []vectorstore.ScoredPoint, docID string, limit int) []vectorstore.ScoredPoint {
	var docHits []vectorstore.ScoredPoint
	for _, hit := range hits {
		if hit.Payload.DocumentID == docID {
			docHits = append(docHits, hit)
		}
	}
	sort.SliceStable(docHits, func(i, j int) bool {
		return docHits[i].Score > docHits[j].Score
	})
	if len(docHits) > limit {
		docHits = docHits[:limit]
	}
	return docHits
}

func containsFailurePhrase(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range failurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
