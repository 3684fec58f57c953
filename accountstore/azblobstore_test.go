//go:build integration && azurite

package accountstore

import (
	"context"
	"testing"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContainer = "batchedtree-test"

func newAzuriteStore(t *testing.T) *AzblobStore {
	t.Helper()
	logger.New("TEST")
	storer, err := azblob.NewDev(azblob.NewDevConfigFromEnv(), testContainer)
	if err != nil {
		t.Fatalf("failed to connect to blob store emulator: %v", err)
	}
	// Note: we expect a 'already exists' error here and ignore it.
	_, _ = storer.GetServiceClient().CreateContainer(context.Background(), testContainer, nil)
	return NewAzblobStore(logger.Sugar.WithServiceName("accountstore-test"), storer, t.Name()+"/")
}

func TestAzblobStoreEtagConcurrency(t *testing.T) {
	ctx := context.Background()
	s := newAzuriteStore(t)
	id := batched.NewAccountID()

	_, _, err := s.Get(ctx, id)
	require.ErrorIs(t, err, ErrAccountNotFound)

	v1, err := s.Create(ctx, id, accountBytes(1))
	require.NoError(t, err)
	_, err = s.Create(ctx, id, accountBytes(1))
	require.ErrorIs(t, err, ErrAccountExists)

	v2, err := s.Put(ctx, id, accountBytes(2), v1)
	require.NoError(t, err)
	_, err = s.Put(ctx, id, accountBytes(3), v1)
	require.ErrorIs(t, err, ErrVersionConflict)

	data, v, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v2, v)
	assert.Equal(t, accountBytes(2), data)
}
