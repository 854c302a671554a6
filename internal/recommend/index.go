// Package recommend answers free-text queries with the most similar artists
// using TF-IDF vectors and cosine similarity.
package recommend

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/artharvest/internal/record"
)

// minTokenLen is the shortest token kept by the tokenizer.
const minTokenLen = 3

var wordRun = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Document is one recommendable item.
type Document struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Text  string `json:"-"`
}

// Match is a scored recommendation.
type Match struct {
	Document
	Score float64 `json:"score"`
}

type term struct {
	id     int
	weight float64
}

// Index is an immutable TF-IDF index. It is safe for concurrent reads.
type Index struct {
	docs    []Document
	vocab   map[string]int
	idf     []float64
	vectors [][]term
}

// Tokenize lowercases text and returns its word tokens of three or more
// characters.
func Tokenize(text string) []string {
	var out []string
	for _, w := range wordRun.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) >= minTokenLen {
			out = append(out, w)
		}
	}
	return out
}

// Build fits the vocabulary and IDF weights on docs and vectorizes them.
func Build(docs []Document) *Index {
	ix := &Index{docs: append([]Document(nil), docs...), vocab: map[string]int{}}
	df := []int{}
	tokenized := make([][]string, len(docs))
	for i, d := range docs {
		tokenized[i] = Tokenize(d.Text)
		seen := map[int]struct{}{}
		for _, tok := range tokenized[i] {
			id, ok := ix.vocab[tok]
			if !ok {
				id = len(df)
				ix.vocab[tok] = id
				df = append(df, 0)
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				df[id]++
			}
		}
	}
	// Smoothed IDF: ln((1+n)/(1+df)) + 1.
	n := float64(len(docs))
	ix.idf = make([]float64, len(df))
	for id, f := range df {
		ix.idf[id] = math.Log((1+n)/(1+float64(f))) + 1
	}
	ix.vectors = make([][]term, len(docs))
	for i, toks := range tokenized {
		ix.vectors[i] = ix.vectorize(toks)
	}
	return ix
}

// FromTable builds an index over a table with an ind column. A document's
// text is its textFields joined by spaces. Rows without a usable ind are
// skipped.
func FromTable(t *record.Table, titleField string, textFields ...string) *Index {
	docs := make([]Document, 0, t.Len())
	parts := make([]string, len(textFields))
	for _, r := range t.Rows() {
		ind, err := r.Ind()
		if err != nil {
			continue
		}
		for i, f := range textFields {
			parts[i] = r.GetString(f)
		}
		docs = append(docs, Document{ID: ind, Title: r.GetString(titleField), Text: strings.Join(parts, " ")})
	}
	return Build(docs)
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.docs) }

// VocabularySize returns the number of distinct terms.
func (ix *Index) VocabularySize() int { return len(ix.vocab) }

func (ix *Index) vectorize(tokens []string) []term {
	counts := map[int]float64{}
	for _, tok := range tokens {
		if id, ok := ix.vocab[tok]; ok {
			counts[id]++
		}
	}
	vec := make([]term, 0, len(counts))
	var norm float64
	for id, c := range counts {
		w := c * ix.idf[id]
		vec = append(vec, term{id: id, weight: w})
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i].weight /= norm
		}
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].id < vec[j].id })
	return vec
}

// dot multiplies two l2-normalized sparse vectors, which is their cosine.
func dot(a, b []term) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].id == b[j].id:
			sum += a[i].weight * b[j].weight
			i++
			j++
		case a[i].id < b[j].id:
			i++
		default:
			j++
		}
	}
	return sum
}

// Recommend returns up to n documents ranked by cosine similarity to query.
// Ties keep index order. An empty query returns the first n documents.
func (ix *Index) Recommend(query string, n int) []Match {
	if n <= 0 || len(ix.docs) == 0 {
		return nil
	}
	if n > len(ix.docs) {
		n = len(ix.docs)
	}
	matches := make([]Match, len(ix.docs))
	if strings.TrimSpace(query) == "" {
		for i := 0; i < n; i++ {
			matches[i] = Match{Document: ix.docs[i]}
		}
		return matches[:n]
	}
	q := ix.vectorize(Tokenize(query))
	for i, d := range ix.docs {
		matches[i] = Match{Document: d, Score: dot(q, ix.vectors[i])}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches[:n]
}
