package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/gocomet/internal/errors"
	"github.com/amaumene/gocomet/internal/models"
)

func TestApiBaySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/q.php", r.URL.Path)
		assert.Equal(t, "The Matrix 1999", r.URL.Query().Get("q"))
		w.Write([]byte(`[
			{"id":"1","name":"The.Matrix.1999.1080p.BluRay.x264-SPARKS","info_hash":"DEADBEEFDEADBEEFDEADBEEFDEADBEEFDEADBEEF","seeders":"120","leechers":"4","size":"9663676416","category":"207"},
			{"id":"2","name":"The Matrix CAM","info_hash":"not-a-hash","seeders":"3","leechers":"1","size":"734003200","category":"201"}
		]`))
	}))
	defer server.Close()

	source := NewApiBay(server.URL)
	query := models.SearchQuery{Title: "The Matrix", Year: 1999, MediaType: models.MediaTypeMovie}

	raw, err := source.Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, raw, 2)

	good := source.Extract(raw[0])
	require.Len(t, good, 1)
	assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", good[0].InfoHash)
	assert.Equal(t, 120, good[0].Seeders)
	assert.Equal(t, int64(9663676416), good[0].SizeBytes)
	assert.Equal(t, "apibay", good[0].SourceName)

	bad := source.Extract(raw[1])
	assert.Empty(t, bad, "row without a recoverable hash extracts to nothing")
}

func TestApiBayNoResultsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"0","name":"No results returned","info_hash":"0000000000000000000000000000000000000000","seeders":"0","leechers":"0","size":"0","category":"0"}]`))
	}))
	defer server.Close()

	source := NewApiBay(server.URL)
	raw, err := source.Search(context.Background(), models.SearchQuery{Title: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestApiBayMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer server.Close()

	source := NewApiBay(server.URL)
	_, err := source.Search(context.Background(), models.SearchQuery{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeSourceMalformed, apperrors.TypeOf(err))
}

func TestApiBayServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewApiBay(server.URL)
	_, err := source.Search(context.Background(), models.SearchQuery{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeSourceUnavailable, apperrors.TypeOf(err))
}

func TestApiBayTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	source := NewApiBay(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := source.Search(ctx, models.SearchQuery{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeSourceTimeout, apperrors.TypeOf(err))
}
