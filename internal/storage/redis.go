package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFinalStatusTTL is how long processed/error records stay readable
// after processing finishes. In-flight records never expire.
const DefaultFinalStatusTTL = 24 * time.Hour

// RedisDocumentStore keeps document records in Redis so the status survives
// process restarts and is visible to both the API process and the worker.
type RedisDocumentStore struct {
	client   *redis.Client
	finalTTL time.Duration
}

// NewRedisDocumentStore connects to Redis and verifies the connection.
func NewRedisDocumentStore(addr string, db int) (*RedisDocumentStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisDocumentStore{
		client:   client,
		finalTTL: DefaultFinalStatusTTL,
	}, nil
}

func documentKey(id string) string {
	return "doc:status:" + id
}

func (s *RedisDocumentStore) Put(ctx context.Context, doc *Document) error {
	d := *doc
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&d)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := s.client.Set(ctx, documentKey(d.ID), data, s.ttlFor(d.Status)).Err(); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

func (s *RedisDocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	data, err := s.client.Get(ctx, documentKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

func (s *RedisDocumentStore) SetStatus(ctx context.Context, id string, status DocumentStatus, errorMessage string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ValidTransition(doc.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.Status, status)
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	return s.Put(ctx, doc)
}

func (s *RedisDocumentStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, documentKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func blobKey(id string) string {
	return "doc:blob:" + id
}

// PutBlob stores the raw uploaded bytes. Blobs never expire on their own;
// they are deleted with the document.
func (s *RedisDocumentStore) PutBlob(ctx context.Context, id string, data []byte) error {
	if err := s.client.Set(ctx, blobKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

func (s *RedisDocumentStore) GetBlob(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, blobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, nil
}

func (s *RedisDocumentStore) DeleteBlob(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, blobKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Client exposes the underlying Redis client so other components can share
// the connection.
func (s *RedisDocumentStore) Client() *redis.Client {
	return s.client
}

// Close releases the Redis connection.
func (s *RedisDocumentStore) Close() error {
	return s.client.Close()
}

// ttlFor expires terminal records after finalTTL; in-flight records persist
// until their next transition.
func (s *RedisDocumentStore) ttlFor(status DocumentStatus) time.Duration {
	if status == StatusProcessed || status == StatusError {
		return s.finalTTL
	}
	return 0
}
