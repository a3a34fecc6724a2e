package debrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/gocomet/internal/errors"
	"github.com/amaumene/gocomet/internal/models"
)

const adTestHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

func TestAllDebridCheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"magnets":[
			{"id":1,"hash":"deadbeefdeadbeefdeadbeefdeadbeefdeadbeef","statusCode":4},
			{"id":2,"hash":"cafebabecafebabecafebabecafebabecafebabe","statusCode":1}
		]}}`))
	}))
	defer server.Close()

	provider := NewAllDebrid("key", server.URL)
	avail, err := provider.CheckAvailability(context.Background(),
		adTestHash,
		"cafebabecafebabecafebabecafebabecafebabe",
		"0123456789abcdef0123456789abcdef01234567",
	)
	require.NoError(t, err)

	assert.Equal(t, AvailabilityReady, avail[adTestHash])
	assert.Equal(t, AvailabilityUnavailable, avail["cafebabecafebabecafebabecafebabecafebabe"])
	assert.Equal(t, AvailabilityUnknown, avail["0123456789abcdef0123456789abcdef01234567"],
		"hashes the API omits are unknown, not unavailable")
}

func TestAllDebridAddAndResolveReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/magnet/upload":
			w.Write([]byte(`{"status":"success","data":{"magnets":[{"id":77,"hash":"` + adTestHash + `","name":"movie","ready":true}]}}`))
		case "/magnet/files":
			w.Write([]byte(`{"status":"success","data":{"magnets":[{"id":77,"ready":true,"links":[
				{"link":"https://host.example/f/big","filename":"movie.mkv","size":8589934592},
				{"link":"https://host.example/f/sample","filename":"sample.mkv","size":1048576}
			]}]}}`))
		case "/link/unlock":
			assert.Equal(t, "https://host.example/f/big", r.URL.Query().Get("link"))
			w.Write([]byte(`{"status":"success","data":{"link":"https://cdn.example/movie.mkv","filename":"movie.mkv","filesize":8589934592}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	provider := NewAllDebrid("key", server.URL)
	result, err := provider.AddAndResolve(context.Background(), adTestHash, SelectLargestVideo())
	require.NoError(t, err)

	assert.Equal(t, models.StatusReady, result.Status)
	assert.Equal(t, "https://cdn.example/movie.mkv", result.PlayableURL)
	assert.Equal(t, "movie.mkv", result.FileName)
	assert.False(t, result.ExpiresAt.IsZero())
}

func TestAllDebridAddAndResolveQueued(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/magnet/upload", r.URL.Path, "an uncached magnet must not trigger file listing")
		w.Write([]byte(`{"status":"success","data":{"magnets":[{"id":77,"hash":"` + adTestHash + `","name":"movie","ready":false}]}}`))
	}))
	defer server.Close()

	provider := NewAllDebrid("key", server.URL)
	result, err := provider.AddAndResolve(context.Background(), adTestHash, SelectLargestVideo())
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, result.Status)
}

func TestAllDebridAuthErrorNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"status":"error","error":{"code":"AUTH_BAD_APIKEY","message":"Invalid token"}}`))
	}))
	defer server.Close()

	provider := NewAllDebrid("bad-key", server.URL)
	_, err := provider.CheckAvailability(context.Background(), adTestHash)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthError(err))
	assert.Equal(t, 1, calls, "credential rejections are terminal")
}
