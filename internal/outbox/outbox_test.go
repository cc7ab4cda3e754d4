package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/consolidation/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(258), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestEveryRoutedEventHasSchema(t *testing.T) {
	for eventType := range routes {
		meta, ok := schemaCatalog[eventType]
		require.Truef(t, ok, "missing schema for %s", eventType)
		require.True(t, json.Valid([]byte(meta.Schema)), eventType)
	}
	route, ok := RouteFor(events.TypeAchievementUnlocked)
	require.True(t, ok)
	require.Equal(t, "achievement_events", route.Topic)

	_, ok = RouteFor("achievement.revoked")
	require.False(t, ok)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	m := NewDLQManager(nil, 0, 0, nil)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/leaderboard_events-value/versions/latest":
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/leaderboard_events-value/versions":
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			require.NoError(t, json.Unmarshal(body, &req))
			require.Equal(t, "JSON", req["schemaType"])
			registered.Add(1)
			_, _ = w.Write([]byte(`{"id": 11}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "leaderboard_events-value", leaderboardRefreshedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Equal(t, int32(1), registered.Load())
}

func TestSchemaRegistryReturnsExistingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"id": 4, "version": 2}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "achievement_events-value", achievementUnlockedSchema)
	require.NoError(t, err)
	require.Equal(t, 4, id)
}

func TestSchemaRegistryDoesNotRegisterOnServerError(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.Error(t, err)
	require.Zero(t, posts.Load())
}
