package tameng

import (
	"context"
	"time"
)

// RemoteStore is the placeholder for an external backing store. No protocol
// is implemented; every operation returns ErrRemoteStoreUnsupported. A Cache
// configured with it degrades to a pass-through because the orchestrator
// swallows store errors, which keeps the variant selectable without a
// working backend.
type RemoteStore struct {
	addr string
}

// NewRemoteStore creates the unsupported remote variant for the given
// address.
func NewRemoteStore(addr string) *RemoteStore {
	return &RemoteStore{addr: addr}
}

// Addr returns the configured remote address.
func (s *RemoteStore) Addr() string { return s.addr }

func (s *RemoteStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrRemoteStoreUnsupported
}

func (s *RemoteStore) Set(context.Context, string, []byte, time.Duration) error {
	return ErrRemoteStoreUnsupported
}

func (s *RemoteStore) Delete(context.Context, string) (bool, error) {
	return false, ErrRemoteStoreUnsupported
}

func (s *RemoteStore) Exists(context.Context, string) (bool, error) {
	return false, ErrRemoteStoreUnsupported
}

func (s *RemoteStore) Keys(context.Context, string) ([]string, error) {
	return nil, ErrRemoteStoreUnsupported
}

func (s *RemoteStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, ErrRemoteStoreUnsupported
}

func (s *RemoteStore) IncrBy(context.Context, string, int64) (int64, error) {
	return 0, ErrRemoteStoreUnsupported
}

func (s *RemoteStore) Clear(context.Context) error {
	return ErrRemoteStoreUnsupported
}

func (s *RemoteStore) Len() int { return 0 }

func (s *RemoteStore) MemoryBytes() int64 { return 0 }

func (s *RemoteStore) Close() error { return nil }
