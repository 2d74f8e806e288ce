// Package remote defines the document store that course datasets are read
// from and written to.
package remote

import "context"

// Store reads and writes whole documents by path. Implementations perform no
// retry or credential refresh; callers pass a fresh access token each time.
//
// Errors:
//   - errors.ErrRemoteNotFound when Download targets a missing document
//   - errors.ErrRemoteAuth when the access token is rejected
//   - errors.ErrRemoteTransient (wrapped) for everything else
type Store interface {
	Download(ctx context.Context, accessToken, path string) ([]byte, error)

	// Upload unconditionally overwrites the document at path.
	Upload(ctx context.Context, accessToken, path string, data []byte) error
}
