package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/skehlet/dailymail/internal/domain"
)

const jsonContentType = "application/json"

// Stager writes records into the staging area and reads them back.
type Stager struct {
	store  ObjectStore
	prefix string
}

// NewStager creates a Stager writing under prefix, e.g. "incoming/".
func NewStager(store ObjectStore, prefix string) *Stager {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Stager{store: store, prefix: prefix}
}

// NewKey returns a fresh staging key.
func (s *Stager) NewKey() string {
	return s.prefix + uuid.NewString() + ".json"
}

// Stage stores rec under a new key and returns the key.
func (s *Stager) Stage(ctx context.Context, rec domain.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("serialize record: %w", err)
	}

	key := s.NewKey()
	if err = s.store.Put(ctx, key, data, jsonContentType); err != nil {
		return "", err
	}

	return key, nil
}

// Load reads the record stored under key.
func (s *Stager) Load(ctx context.Context, key string) (domain.Record, error) {
	var rec domain.Record

	data, err := s.store.Get(ctx, key)
	if err != nil {
		return rec, err
	}

	if err = json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode staged record %s: %w", key, err)
	}

	return rec, nil
}

// Remove deletes the record stored under key.
func (s *Stager) Remove(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}
