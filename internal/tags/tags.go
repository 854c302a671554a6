// Package tags normalizes free-text art movement descriptions into a
// controlled vocabulary.
//
// A table of raw comma-separated movement tags is counted over the whole
// corpus. Each raw tag is then segmented greedily into the longest known tags
// it contains, so "post impressionism socialist realism" becomes the two
// tags "post impressionism" and "socialist realism".
package tags

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/artharvest/internal/record"
)

// Defaults used by the segmentation.
const (
	// MaxTagLength is the exclusive upper bound, in characters, on a tag
	// accepted during segmentation.
	MaxTagLength = 20
	// MinKnownCount is the count a tag needs to join the known vocabulary.
	MinKnownCount = 2
	// MaxNGram is the longest word n-gram considered.
	MaxNGram = 3
)

// Columns of the tag table artifact.
const (
	FieldTag       = "tag"
	FieldCount     = "cnt"
	FieldMultiWord = "is_multi_word"
	FieldLength    = "char_length"
	FieldSplit     = "splitted_tags"
)

// Entry is one raw tag with its corpus statistics.
type Entry struct {
	Tag       string
	Count     int
	MultiWord bool
	Length    int
	// Split is the normalized form, filled by Resolve.
	Split string
}

// Table holds raw tags ordered by descending count, first appearance
// breaking ties.
type Table struct {
	entries []Entry
	index   map[string]int
}

// SplitRaw lowercases a movement description and splits it into its
// comma-separated raw tags.
func SplitRaw(movement string) []string {
	var out []string
	for _, part := range strings.Split(strings.ToLower(movement), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BuildTable counts the raw tags of every movement description.
func BuildTable(corpus []string) *Table {
	counts := map[string]int{}
	var order []string
	for _, movement := range corpus {
		for _, tag := range SplitRaw(movement) {
			if _, ok := counts[tag]; !ok {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	return fromCounts(order, counts)
}

// NewTable builds a table from explicit counts, in the given order before
// sorting by count.
func NewTable(tags []string, counts []int) *Table {
	m := make(map[string]int, len(tags))
	var order []string
	for i, tag := range tags {
		if _, ok := m[tag]; !ok {
			order = append(order, tag)
		}
		if i < len(counts) {
			m[tag] += counts[i]
		}
	}
	return fromCounts(order, m)
}

func fromCounts(order []string, counts map[string]int) *Table {
	t := &Table{index: make(map[string]int, len(order))}
	for _, tag := range order {
		t.entries = append(t.entries, Entry{
			Tag:       tag,
			Count:     counts[tag],
			MultiWord: len(strings.Fields(tag)) > 1,
			Length:    utf8.RuneCountInString(tag),
		})
	}
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Count > t.entries[j].Count
	})
	for i, e := range t.entries {
		t.index[e.Tag] = i
	}
	return t
}

// Entries returns a copy of the table rows.
func (t *Table) Entries() []Entry {
	cp := make([]Entry, len(t.entries))
	copy(cp, t.entries)
	return cp
}

// Len returns the number of distinct raw tags.
func (t *Table) Len() int { return len(t.entries) }

// Lookup returns the entry for tag.
func (t *Table) Lookup(tag string) (Entry, bool) {
	i, ok := t.index[tag]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Known reports whether tag is frequent enough to be vocabulary.
func (t *Table) Known(tag string) bool {
	e, ok := t.Lookup(tag)
	return ok && e.Count >= MinKnownCount
}

// Resolve fills Split for every entry by segmenting it against the table.
func (t *Table) Resolve() {
	for i := range t.entries {
		t.entries[i].Split = GreedySplit(t.entries[i].Tag, t)
	}
}

// Mapping returns raw tag to normalized tags. Resolve must run first.
func (t *Table) Mapping() map[string]string {
	m := make(map[string]string, len(t.entries))
	for _, e := range t.entries {
		m[e.Tag] = e.Split
	}
	return m
}

// Records renders entries with at least minCount occurrences as a table.
func (t *Table) Records(minCount int) *record.Table {
	out := record.NewTable(FieldTag, FieldCount, FieldMultiWord, FieldLength, FieldSplit)
	for _, e := range t.entries {
		if e.Count < minCount {
			continue
		}
		r := record.New()
		r.SetString(FieldTag, e.Tag)
		r.Set(FieldCount, record.Int(e.Count))
		r.Set(FieldMultiWord, record.Bool(e.MultiWord))
		r.Set(FieldLength, record.Int(e.Length))
		r.SetString(FieldSplit, e.Split)
		out.Append(r)
	}
	return out
}

// NGrams returns every contiguous word n-gram of s with minN <= n <= maxN,
// shortest first and in reading order.
func NGrams(s string, minN, maxN int) []string {
	words := strings.Fields(s)
	if minN < 1 {
		minN = 1
	}
	var out []string
	for n := minN; n <= maxN && n <= len(words); n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}

// candidates are the known n-grams of s other than s itself, longest first.
// Equal lengths keep the table's frequency order.
func candidates(s string, t *Table) []string {
	seen := map[string]struct{}{}
	var found []Entry
	for _, g := range NGrams(s, 1, MaxNGram) {
		if g == s {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		if e, ok := t.Lookup(g); ok && e.Count >= MinKnownCount {
			found = append(found, e)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return t.index[found[i].Tag] < t.index[found[j].Tag]
	})
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Length > found[j].Length
	})
	out := make([]string, len(found))
	for i, e := range found {
		out[i] = e.Tag
	}
	return out
}

type segment struct {
	text string
	at   int
}

// Segment splits s into known tags, longest match first. Each accepted tag
// is cut out of the remaining text, so no input character is used twice.
// Segments are returned in the order they occur in s. When nothing matches
// the whole input is the single segment.
func Segment(s string, t *Table) []string {
	remaining := s
	origin := make([]int, len(s))
	for i := range origin {
		origin[i] = i
	}

	var accepted []segment
	for _, c := range candidates(s, t) {
		if utf8.RuneCountInString(c) >= MaxTagLength {
			continue
		}
		k := findContiguous(remaining, origin, c)
		if k < 0 {
			continue
		}
		accepted = append(accepted, segment{text: c, at: origin[k]})
		remaining = remaining[:k] + remaining[k+len(c):]
		origin = append(origin[:k], origin[k+len(c):]...)
		if consumed(remaining) {
			break
		}
	}
	if len(accepted) == 0 {
		return []string{s}
	}
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].at < accepted[j].at })
	out := make([]string, len(accepted))
	for i, a := range accepted {
		out[i] = a.text
	}
	return out
}

// findContiguous returns the byte offset in remaining of the first
// occurrence of c that was also contiguous in the original input.
func findContiguous(remaining string, origin []int, c string) int {
	from := 0
	for from <= len(remaining)-len(c) {
		k := strings.Index(remaining[from:], c)
		if k < 0 {
			return -1
		}
		k += from
		if origin[k+len(c)-1]-origin[k] == len(c)-1 {
			return k
		}
		from = k + 1
	}
	return -1
}

func consumed(remaining string) bool {
	return strings.IndexFunc(remaining, func(r rune) bool {
		return !unicode.IsSpace(r) && r != ','
	}) < 0
}

// Canonical dedupes the words of one tag and sorts them.
func Canonical(tag string) string {
	return sortedSet(strings.Fields(tag))
}

// GreedySplit segments s and renders the result as comma-joined canonical
// tags.
func GreedySplit(s string, t *Table) string {
	segs := Segment(s, t)
	for i, seg := range segs {
		segs[i] = Canonical(seg)
	}
	return strings.Join(segs, ",")
}

// Normalize builds the tag table from movement descriptions and returns each
// description's normalized tags, comma-joined, alongside the resolved table.
func Normalize(corpus []string) ([]string, *Table) {
	t := BuildTable(corpus)
	t.Resolve()
	mapping := t.Mapping()
	out := make([]string, len(corpus))
	for i, movement := range corpus {
		raw := SplitRaw(movement)
		parts := make([]string, 0, len(raw))
		for _, tag := range raw {
			parts = append(parts, mapping[tag])
		}
		out[i] = strings.Join(parts, ",")
	}
	return out, t
}

// ProcessField canonicalizes a free-text field: words with commas removed,
// deduplicated and sorted.
func ProcessField(raw string) string {
	var words []string
	for _, w := range strings.Split(raw, " ") {
		if w = strings.ReplaceAll(strings.TrimSpace(w), ",", ""); w != "" {
			words = append(words, w)
		}
	}
	return sortedSet(words)
}

// ProcessMovement canonicalizes a movement description into its sorted set
// of words.
func ProcessMovement(raw string) string {
	var words []string
	for _, part := range strings.Split(raw, ",") {
		words = append(words, strings.Fields(part)...)
	}
	return sortedSet(words)
}

func sortedSet(words []string) string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// FromRecords loads a table written by Records.
func FromRecords(tbl *record.Table) *Table {
	var names []string
	var counts []int
	splits := map[string]string{}
	for _, row := range tbl.Rows() {
		tag := row.GetString(FieldTag)
		if tag == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(row.GetString(FieldCount)))
		if err != nil {
			n = 0
		}
		names = append(names, tag)
		counts = append(counts, n)
		splits[tag] = row.GetString(FieldSplit)
	}
	t := NewTable(names, counts)
	for i := range t.entries {
		t.entries[i].Split = splits[t.entries[i].Tag]
	}
	return t
}
