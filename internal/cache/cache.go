// Package cache is the content-addressed recognition cache. Results are
// keyed solely by image fingerprint; writes are last-write-wins per key, so
// a reader always sees the most recent successful result. Only successful
// results are stored — the pipeline never puts failures, which keeps retries
// honest.
package cache

import (
	"context"

	"docintel/pkg/models"
)

// Store maps image fingerprints to prior successful recognition results.
type Store interface {
	// Get returns the cached result for a fingerprint, or (nil, nil) on a miss.
	Get(ctx context.Context, fingerprint string) (*models.RecognitionResult, error)

	// Put stores a result under the fingerprint, replacing any prior entry.
	Put(ctx context.Context, fingerprint string, result *models.RecognitionResult) error
}
