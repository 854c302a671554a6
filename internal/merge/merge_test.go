package merge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artharvest/internal/record"
)

func artistRow(ind int, name string) record.Record {
	r := record.WithInd(ind)
	r.SetString("artist_name", name)
	r.SetString("nationality", "French")
	return r
}

func artworkRow(ind int, name string, works ...string) record.Record {
	r := record.WithInd(ind)
	r.SetString("artist_name", name)
	r.Set("artworks", record.List(works))
	return r
}

func table(rows ...record.Record) *record.Table {
	t := record.NewTable()
	t.Append(rows...)
	return t
}

func TestIndexJoinKeepsLeftOrderAndMatches(t *testing.T) {
	t.Parallel()

	left := table(artistRow(0, "Monet"), artistRow(1, "Manet"), artistRow(2, "Degas"))
	right := table(artworkRow(2, "Degas", "d.jpg"), artworkRow(0, "Monet", "m1.jpg", "m2.jpg"))

	got, err := IndexJoin(left, right)
	require.NoError(t, err)
	inds, err := got.Inds()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, inds)
	assert.Equal(t, []string{"ind", "artist_name", "nationality", "artist_name_right", "artworks"}, got.Columns())

	works, _ := got.Rows()[0].Get("artworks")
	assert.Equal(t, []string{"m1.jpg", "m2.jpg"}, works.Items())
	assert.Equal(t, "Monet", got.Rows()[0].GetString("artist_name_right"))

	// Inputs are untouched.
	assert.False(t, left.Rows()[0].Has("artworks"))
}

func TestIndexJoinRejectsDuplicateIndices(t *testing.T) {
	t.Parallel()

	left := table(artistRow(0, "Monet"), artistRow(1, "Manet"))
	dupRight := table(artworkRow(1, "Manet"), artworkRow(1, "Manet again"))
	_, err := IndexJoin(left, dupRight)
	require.ErrorIs(t, err, ErrDuplicateKey)

	dupLeft := table(artistRow(0, "Monet"), artistRow(0, "Monet"))
	_, err = IndexJoin(dupLeft, table(artworkRow(0, "Monet")))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func exhibition(i int) record.Record {
	r := record.WithInd(i)
	r.SetString("galery_name", fmt.Sprintf("gallery-%03d", i))
	r.SetString("exhibition_name", fmt.Sprintf("show-%d", i))
	return r
}

func gallery(i int) record.Record {
	r := record.WithInd(i)
	r.SetString("galery_name", fmt.Sprintf("gallery-%03d", i))
	r.Set("gallery_imgs", record.List([]string{fmt.Sprintf("img-%d.jpg", i)}))
	return r
}

func TestLeftJoinPreservesAllLeftRows(t *testing.T) {
	t.Parallel()

	left := record.NewTable()
	for i := 0; i < 100; i++ {
		left.Append(exhibition(i))
	}
	right := record.NewTable()
	for i := 0; i < 60; i++ {
		right.Append(gallery(i))
	}

	got, err := LeftJoin(left, right, "galery_name")
	require.NoError(t, err)
	require.Equal(t, 100, got.Len())

	empty := 0
	for _, r := range got.Rows() {
		v, ok := r.Get("gallery_imgs")
		require.True(t, ok)
		if v.IsEmpty() {
			empty++
			assert.Empty(t, r.GetString("ind_right"))
		}
	}
	assert.Equal(t, 40, empty)
	assert.Equal(t, "gallery-099", got.Rows()[99].GetString("galery_name"))
}

func TestLeftJoinRejectsDuplicateRightKeys(t *testing.T) {
	t.Parallel()

	left := table(exhibition(0))
	right := table(gallery(0), gallery(0))
	_, err := LeftJoin(left, right, "galery_name")
	require.ErrorIs(t, err, ErrDuplicateKey)

	missing := record.New()
	missing.SetString("other", "x")
	_, err = LeftJoin(left, table(missing), "galery_name")
	require.ErrorIs(t, err, ErrMissingKey)
}

func TestStampAndUnion(t *testing.T) {
	t.Parallel()

	london := StampPartition(table(exhibition(0), exhibition(1)), "london")
	paris := StampPartition(table(gallery(0)), "paris")

	got := Union(london, paris, london)
	assert.Equal(t, 5, got.Len())
	assert.Equal(t, []string{"ind", "galery_name", "exhibition_name", PartitionField, "gallery_imgs"}, got.Columns())
	assert.Equal(t, "london", got.Rows()[0].GetString(PartitionField))
	assert.Equal(t, "paris", got.Rows()[2].GetString(PartitionField))
	assert.Equal(t, 0, Union().Len())
}

func TestProject(t *testing.T) {
	t.Parallel()

	got := Project(table(artistRow(3, "Monet")), "artist_name", "field")
	assert.Equal(t, []string{"artist_name", "field"}, got.Columns())
	assert.Equal(t, "Monet", got.Rows()[0].GetString("artist_name"))
	assert.True(t, got.Rows()[0].Has("field"))
}

func TestPartitionLabel(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"https://www.galleriesnow.net/exhibitions/london/", "london"},
		{"https://www.galleriesnow.net/exhibitions/new-york?p=2", "new-york"},
		{"https://www.galleriesnow.net/shows/Los%20Angeles", "los_angeles"},
		{"https://www.galleriesnow.net", "www_galleriesnow_net"},
		{"", "default"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PartitionLabel(tc.in), tc.in)
	}
}
