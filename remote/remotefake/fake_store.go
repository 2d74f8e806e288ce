package remotefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/remote"
)

var _ remote.Store = (*FakeStore)(nil)

// Upload records one Upload call.
type Upload struct {
	AccessToken string
	Path        string
	Data        []byte
}

// FakeStore is an in-memory remote.Store. Failures can be queued so that the
// next calls return them in order.
type FakeStore struct {
	files          map[string][]byte
	uploads        []Upload
	uploadErrors   []error
	downloadErrors []error
	onUpload       func(Upload)
	lock           sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		files: make(map[string][]byte),
	}
}

// Put seeds a document.
func (fs *FakeStore) Put(path string, data []byte) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.files[path] = append([]byte(nil), data...)
}

// FailUploads queues errors returned by the next Upload calls.
func (fs *FakeStore) FailUploads(errs ...error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.uploadErrors = append(fs.uploadErrors, errs...)
}

// FailDownloads queues errors returned by the next Download calls.
func (fs *FakeStore) FailDownloads(errs ...error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.downloadErrors = append(fs.downloadErrors, errs...)
}

// OnUpload registers a hook that runs inside Upload before it returns.
func (fs *FakeStore) OnUpload(hook func(Upload)) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.onUpload = hook
}

func (fs *FakeStore) Download(_ context.Context, _ string, path string) ([]byte, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if len(fs.downloadErrors) > 0 {
		err := fs.downloadErrors[0]
		fs.downloadErrors = fs.downloadErrors[1:]
		return nil, err
	}
	data, ok := fs.files[path]
	if !ok {
		return nil, errors.ErrRemoteNotFound
	}
	return append([]byte(nil), data...), nil
}

func (fs *FakeStore) Upload(_ context.Context, accessToken, path string, data []byte) error {
	fs.lock.Lock()
	up := Upload{AccessToken: accessToken, Path: path, Data: append([]byte(nil), data...)}
	fs.uploads = append(fs.uploads, up)
	hook := fs.onUpload

	var err error
	if len(fs.uploadErrors) > 0 {
		err = fs.uploadErrors[0]
		fs.uploadErrors = fs.uploadErrors[1:]
	} else {
		fs.files[path] = up.Data
	}
	fs.lock.Unlock()

	if hook != nil {
		hook(up)
	}
	return err
}

// Uploads returns every Upload call made so far, failed ones included.
func (fs *FakeStore) Uploads() []Upload {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return append([]Upload(nil), fs.uploads...)
}

// Get returns the stored document.
func (fs *FakeStore) Get(path string) ([]byte, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	data, ok := fs.files[path]
	return data, ok
}
