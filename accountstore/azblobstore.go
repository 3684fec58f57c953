package accountstore

import (
	"context"
	"fmt"
	"io"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-batchedmerkle/batched"
)

// AzblobStore keeps each account in its own blob. The blob etag is the
// version: creates require that no blob exists and updates require the etag
// read by the caller, so racing writers cannot overwrite each other.
type AzblobStore struct {
	Log    logger.Logger
	Store  *azblob.Storer
	Prefix string
}

func NewAzblobStore(log logger.Logger, store *azblob.Storer, prefix string) *AzblobStore {
	return &AzblobStore{Log: log, Store: store, Prefix: prefix}
}

func (s *AzblobStore) blobPath(id batched.AccountID) string {
	return s.Prefix + AccountKey(id)
}

func (s *AzblobStore) write(
	ctx context.Context, id batched.AccountID, data []byte, opts ...azblob.Option) (Version, error) {

	wr, err := s.Store.Put(ctx, s.blobPath(id), azblob.NewBytesReaderCloser(encodePayload(data)), opts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", id, translateBlobError(err))
	}
	if wr == nil || wr.ETag == nil {
		return "", fmt.Errorf("%w: no etag returned for %s", ErrCorruptRecord, id)
	}
	s.Log.Debugf("account %s written, etag %s", id, *wr.ETag)
	return Version(*wr.ETag), nil
}

func (s *AzblobStore) Create(ctx context.Context, id batched.AccountID, data []byte) (Version, error) {
	// The way to spell 'fail if the blob exists' is to require that no blob
	// matches any etag.
	return s.write(ctx, id, data, azblob.WithEtagNoneMatch("*"))
}

func (s *AzblobStore) Get(ctx context.Context, id batched.AccountID) ([]byte, Version, error) {
	rr, err := s.Store.Reader(ctx, s.blobPath(id))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", id, translateBlobError(err))
	}
	if c, ok := any(rr.Reader).(io.Closer); ok {
		defer c.Close()
	}
	payload, err := io.ReadAll(rr.Reader)
	if err != nil {
		return nil, "", err
	}
	if rr.ETag == nil {
		return nil, "", fmt.Errorf("%w: no etag read for %s", ErrCorruptRecord, id)
	}
	data, err := decodePayload(payload)
	if err != nil {
		return nil, "", err
	}
	return data, Version(*rr.ETag), nil
}

func (s *AzblobStore) Put(ctx context.Context, id batched.AccountID, data []byte, expect Version) (Version, error) {
	if expect == "" {
		return "", fmt.Errorf("%w: an etag is required when updating %s", ErrVersionConflict, id)
	}
	return s.write(ctx, id, data, azblob.WithEtagMatch(string(expect)))
}
