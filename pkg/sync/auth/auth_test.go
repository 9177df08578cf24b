package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quentier-go/notesync/pkg/types"
)

type fakeAuthenticator struct {
	calls int32
	mu    sync.Mutex
	delay time.Duration
	err   error
}

func (f *fakeAuthenticator) AuthenticateAccount(ctx context.Context, account string) (types.AuthInfo, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return types.AuthInfo{}, f.err
	}
	return types.AuthInfo{
		UserID:                  1,
		AuthToken:               "token-" + account,
		AuthTokenExpirationTime: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAuthenticator) AuthenticateLinkedNotebook(ctx context.Context, account string, ln types.LinkedNotebook) (types.AuthInfo, error) {
	atomic.AddInt32(&f.calls, 1)
	return types.AuthInfo{
		UserID:                  1,
		AuthToken:               "token-" + ln.Guid,
		AuthTokenExpirationTime: time.Now().Add(time.Hour),
	}, nil
}

func TestAuthenticateAccountCaches(t *testing.T) {
	fa := &fakeAuthenticator{}
	m, err := NewManager(Config{Authenticator: fa})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	info1, err := m.AuthenticateAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	info2, err := m.AuthenticateAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if info1.AuthToken != info2.AuthToken {
		t.Errorf("cached token differs: %q vs %q", info1.AuthToken, info2.AuthToken)
	}
	if got := atomic.LoadInt32(&fa.calls); got != 1 {
		t.Errorf("Authenticator called %d times, want 1 (cache hit expected)", got)
	}
}

func TestAuthenticateAccountRefreshesAfterInvalidate(t *testing.T) {
	fa := &fakeAuthenticator{}
	m, _ := NewManager(Config{Authenticator: fa})

	if _, err := m.AuthenticateAccount(context.Background(), "acct-1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	m.Invalidate("acct-1", types.UserOwnScope())
	if _, err := m.AuthenticateAccount(context.Background(), "acct-1"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := atomic.LoadInt32(&fa.calls); got != 2 {
		t.Errorf("Authenticator called %d times, want 2", got)
	}
}

func TestAuthenticateAccountDedupsConcurrentCallers(t *testing.T) {
	fa := &fakeAuthenticator{delay: 50 * time.Millisecond}
	m, _ := NewManager(Config{Authenticator: fa})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.AuthenticateAccount(context.Background(), "acct-1"); err != nil {
				t.Errorf("concurrent call: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fa.calls); got != 1 {
		t.Errorf("Authenticator called %d times concurrently, want 1 (dedup expected)", got)
	}
}

func TestAuthenticateLinkedNotebookSeparateScope(t *testing.T) {
	fa := &fakeAuthenticator{}
	m, _ := NewManager(Config{Authenticator: fa})

	if _, err := m.AuthenticateAccount(context.Background(), "acct-1"); err != nil {
		t.Fatalf("account auth: %v", err)
	}
	if _, err := m.AuthenticateLinkedNotebook(context.Background(), "acct-1", types.LinkedNotebook{EntityMeta: types.EntityMeta{Guid: "ln-1"}}); err != nil {
		t.Fatalf("linked notebook auth: %v", err)
	}
	if got := atomic.LoadInt32(&fa.calls); got != 2 {
		t.Errorf("Authenticator called %d times, want 2 (distinct scopes)", got)
	}
}

func TestNewManagerRequiresAuthenticator(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error when Authenticator is nil")
	}
}
