package recommend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artharvest/internal/record"
)

func corpus() []Document {
	return []Document{
		{ID: 10, Title: "Monet", Text: "French impressionist painter of water lilies and gardens."},
		{ID: 11, Title: "Picasso", Text: "Spanish painter, co-founder of Cubism; cubist portraits."},
		{ID: 12, Title: "Braque", Text: "French painter who developed Cubism with Picasso."},
		{ID: 13, Title: "Hokusai", Text: "Japanese ukiyo-e artist known for The Great Wave."},
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"the", "great", "wave", "ukiyo", "école"}, Tokenize("The Great Wave, ukiyo-e (a) École"))
	assert.Empty(t, Tokenize("a an to"))
}

func TestRecommendRanksByCosine(t *testing.T) {
	t.Parallel()

	ix := Build(corpus())
	got := ix.Recommend("cubism picasso", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "Braque", got[0].Title)
	assert.Equal(t, "Picasso", got[1].Title)
	assert.Greater(t, got[0].Score, 0.0)
	assert.LessOrEqual(t, got[0].Score, 1.0+1e-9)

	wave := ix.Recommend("great wave", 1)
	require.Len(t, wave, 1)
	assert.Equal(t, 13, wave[0].ID)
}

func TestRecommendSelfSimilarityIsOne(t *testing.T) {
	t.Parallel()

	docs := corpus()
	ix := Build(docs)
	got := ix.Recommend(docs[3].Text, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 13, got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestRecommendEdgeCases(t *testing.T) {
	t.Parallel()

	ix := Build(corpus())
	empty := ix.Recommend("", 3)
	require.Len(t, empty, 3)
	assert.Equal(t, []int{10, 11, 12}, []int{empty[0].ID, empty[1].ID, empty[2].ID})

	unknown := ix.Recommend("zzzz qqqq", 2)
	require.Len(t, unknown, 2)
	assert.Equal(t, 10, unknown[0].ID)
	assert.Zero(t, unknown[0].Score)

	assert.Len(t, ix.Recommend("painter", 50), 4)
	assert.Nil(t, ix.Recommend("painter", 0))
	assert.Nil(t, Build(nil).Recommend("painter", 3))
}

func TestFromTable(t *testing.T) {
	t.Parallel()

	tbl := record.NewTable()
	for _, d := range corpus() {
		r := record.WithInd(d.ID)
		r.SetString("artist_name", d.Title)
		r.SetString("wiki_text", d.Text)
		tbl.Append(r)
	}
	noInd := record.New()
	noInd.SetString("artist_name", "ghost")
	tbl.Append(noInd)

	ix := FromTable(tbl, "artist_name", "wiki_text")
	assert.Equal(t, 4, ix.Len())
	assert.Positive(t, ix.VocabularySize())
}

func TestRecommendConcurrentReads(t *testing.T) {
	t.Parallel()

	ix := Build(corpus())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := ix.Recommend("french painter", 2)
			assert.Len(t, got, 2)
		}()
	}
	wg.Wait()
}

func TestFromTableJoinsTextFields(t *testing.T) {
	t.Parallel()

	tbl := record.NewTable()
	a := record.WithInd(0)
	a.SetString("artist_name", "Ivan Shishkin")
	a.SetString("art_tags", "realism")
	a.SetString("artist_field", "landscape")
	b := record.WithInd(1)
	b.SetString("artist_name", "Claude Monet")
	b.SetString("art_tags", "impressionism")
	b.SetString("artist_field", "painting")
	tbl.Append(a, b)

	ix := FromTable(tbl, "artist_name", "art_tags", "artist_field")
	got := ix.Recommend("landscape", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Ivan Shishkin", got[0].Title)
}
