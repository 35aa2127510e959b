package markstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/0xSardius/castmark/errors"
	"github.com/0xSardius/castmark/natsclient"
	"github.com/0xSardius/castmark/registry"
)

func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)
	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	return natsContainer, fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func newIntegrationStore(ctx context.Context, t *testing.T, bucket string) (*Store, func()) {
	t.Helper()

	natsContainer, natsURL := startNATSContainer(ctx, t)

	client, err := natsclient.NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))

	store, err := NewStore(ctx, client, bucket)
	require.NoError(t, err)

	cleanup := func() {
		_ = client.Close(ctx)
		_ = natsContainer.Terminate(ctx)
	}
	return store, cleanup
}

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(context.Background(), nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestIntegration_PutGetRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	store, cleanup := newIntegrationStore(ctx, t, "marks_roundtrip")
	defer cleanup()

	key := registry.KeyFor("my-mark").Hex()
	mark := registry.Mark{
		Name:      "My Mark",
		URL:       "https://example.com",
		Owner:     "alice",
		UpdatedAt: 1700000000000,
		Exists:    true,
	}

	require.NoError(t, store.Put(ctx, key, mark))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, mark, got)

	// Overwrite with the removed state, last writer wins
	mark.Exists = false
	require.NoError(t, store.Put(ctx, key, mark))

	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, got.Exists)
}

func TestIntegration_GetMissingKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	store, cleanup := newIntegrationStore(ctx, t, "marks_missing")
	defer cleanup()

	_, err := store.Get(ctx, registry.KeyFor("never-stored").Hex())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestIntegration_LoadAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	store, cleanup := newIntegrationStore(ctx, t, "marks_loadall")
	defer cleanup()

	// Empty bucket loads cleanly
	marks, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, marks)

	keyA := registry.KeyFor("mark-a").Hex()
	keyB := registry.KeyFor("mark-b").Hex()
	require.NoError(t, store.Put(ctx, keyA, registry.Mark{Name: "A", URL: "https://a", Owner: "alice", Exists: true}))
	require.NoError(t, store.Put(ctx, keyB, registry.Mark{Name: "B", URL: "https://b", Owner: "bob", Exists: false}))

	marks, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.Equal(t, "A", marks[keyA].Name)
	assert.False(t, marks[keyB].Exists)
}

func TestPutRejectsBadKey(t *testing.T) {
	// Key validation happens before any KV traffic, so no server is needed
	store := &Store{}
	err := store.Put(context.Background(), "not-a-digest", registry.Mark{})
	require.Error(t, err)

	_, err = store.Get(context.Background(), "not-a-digest")
	require.Error(t, err)
}
