package tmdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/movieroi/internal/domain"
)

func TestDump_RoundTripKeepsMissingMoney(t *testing.T) {
	in := []domain.RawMovie{
		{
			ID: 1, Title: "A", ReleaseDate: "2026-08-01",
			Budget: domain.Int64(100), Revenue: domain.Int64(200),
			Genres:     []string{"Action"},
			Cast:       []domain.CastMember{{Name: "X", Order: 0, ProfilePath: "/x.jpg"}},
			PosterPath: "/a.jpg",
		},
		{ID: 2, Title: "B", Genres: []string{}, Cast: []domain.CastMember{}},
	}

	b, err := EncodeDump(in)
	require.NoError(t, err)

	out, err := ParseDump(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Nil(t, out[1].Budget)
}

func TestParseDump_AcceptsDetailsShape(t *testing.T) {
	out, err := ParseDump([]byte("[" + detailsFixture + "]"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Cast, 2)
}

func TestParseDump_Malformed(t *testing.T) {
	for _, in := range []string{`{"id":1}`, `not json`, `null`, ``, `"movies"`} {
		_, err := ParseDump([]byte(in))
		require.Error(t, err, in)
		require.Equal(t, domain.ErrCodeMalformedInput, domain.Code(err), in)
	}
}

func TestParseDump_BadRecordBecomesUnidentified(t *testing.T) {
	in := `[
  {"id":1,"title":"A","release_date":"2026-08-01","budget":100,"revenue":200},
  {"id":2,"title":"B","budget":"unknown"},
  7
]`
	out, err := ParseDump([]byte(in))
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, int64(1), out[0].ID)
	require.Equal(t, int64(200), *out[0].Revenue)
	require.Equal(t, domain.RawMovie{}, out[1])
	require.Equal(t, domain.RawMovie{}, out[2])
}

func TestParseDump_EmptyArray(t *testing.T) {
	out, err := ParseDump([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, out)
}
