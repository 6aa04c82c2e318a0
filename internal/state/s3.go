package state

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/imamik/stagehand/internal/platform/s3"
)

// ObjectStore is the subset of the S3 client S3Store needs. PutObject must
// replace the object atomically and GetObject must wrap s3.ErrNotFound for
// a missing key.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3Store keeps state documents as objects under Prefix in Bucket.
type S3Store struct {
	Client ObjectStore
	Bucket string
	Prefix string
}

// NewS3Store returns a store backed by client.
func NewS3Store(client ObjectStore, bucket, prefix string) *S3Store {
	return &S3Store{Client: client, Bucket: bucket, Prefix: prefix}
}

func (s *S3Store) key(planID string) string {
	return path.Join(s.Prefix, planID+".json")
}

// Load fetches and decodes the state object.
func (s *S3Store) Load(ctx context.Context, planID string) (*DeploymentState, error) {
	data, err := s.Client.GetObject(ctx, s.Bucket, s.key(planID))
	if err != nil {
		if errors.Is(err, s3.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch state s3://%s/%s: %w", s.Bucket, s.key(planID), err)
	}
	st, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if st.PlanID != planID {
		return nil, fmt.Errorf("%w: object for %q holds plan %q", ErrCorrupt, planID, st.PlanID)
	}
	return st, nil
}

// Save uploads the encoded state in a single PUT.
func (s *S3Store) Save(ctx context.Context, st *DeploymentState) error {
	data, err := Marshal(st)
	if err != nil {
		return err
	}
	if err := s.Client.PutObject(ctx, s.Bucket, s.key(st.PlanID), data); err != nil {
		return fmt.Errorf("failed to upload state s3://%s/%s: %w", s.Bucket, s.key(st.PlanID), err)
	}
	return nil
}

// Delete removes the state object.
func (s *S3Store) Delete(ctx context.Context, planID string) error {
	if err := s.Client.DeleteObject(ctx, s.Bucket, s.key(planID)); err != nil && !errors.Is(err, s3.ErrNotFound) {
		return fmt.Errorf("failed to delete state s3://%s/%s: %w", s.Bucket, s.key(planID), err)
	}
	return nil
}
