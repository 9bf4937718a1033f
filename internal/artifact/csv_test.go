package artifact

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/movieroi/internal/domain"
)

func TestEncodeCSV_HeaderAndRow(t *testing.T) {
	rows := []domain.FlatRow{{
		ID:          1,
		Title:       "A",
		ReleaseDate: "2026-08-01",
		Revenue:     200,
		Budget:      100,
		ROI:         1.0,
		Genres:      "Action,Drama",
		Cast:        [3]string{"X", "Y", ""},
		PosterURL:   "https://img.test/a.jpg",
	}}

	b, err := EncodeCSV(rows, false)
	require.NoError(t, err)

	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, Columns, recs[0])
	require.Equal(t, []string{
		"1", "A", "2026-08-01", "200", "100", "1", "Action,Drama", "X", "Y", "", "https://img.test/a.jpg",
	}, recs[1])

	require.NotContains(t, string(b), "null")
}

func TestEncodeCSV_PlainDecimalNumbers(t *testing.T) {
	rows := []domain.FlatRow{{ID: 7, Title: "Big", Revenue: 1_500_000_000, Budget: 250_000_000, ROI: 5}}

	b, err := EncodeCSV(rows, false)
	require.NoError(t, err)
	require.Contains(t, string(b), "1500000000,250000000,5,")
	require.NotContains(t, string(b), "e+")
}

func TestEncodeCSV_HeaderOnlyWhenEmpty(t *testing.T) {
	b, err := EncodeCSV(nil, false)
	require.NoError(t, err)
	require.Equal(t, "id,title,release_date,revenue,budget,roi,genres,cast_1,cast_2,cast_3,poster_url\n", string(b))
}

func TestEncodeCSV_ExtendedAppendsColumns(t *testing.T) {
	rows := []domain.FlatRow{{
		ID: 1, Title: "A", Revenue: 3, Budget: 2, ROI: 0.5,
		VoteAverage: 7.25,
		Overview:    "line one, with comma",
		CastImages:  [3]string{"https://img.test/x.jpg", "", ""},
	}}

	b, err := EncodeCSV(rows, true)
	require.NoError(t, err)

	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, append(append([]string(nil), Columns...), ExtendedColumns...), recs[0])
	require.Equal(t, Columns, recs[0][:len(Columns)])
	require.Equal(t, "0.5", recs[1][5])
	require.Equal(t, []string{"7.25", "line one, with comma", "https://img.test/x.jpg", "", ""}, recs[1][len(Columns):])
}
