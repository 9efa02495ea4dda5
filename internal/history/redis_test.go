package history_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/torosent/vuload/internal/history"
)

const testRedisKey = "vuload:test:history"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedisBackendRoundTrip(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	backend := history.NewRedisBackend(client, testRedisKey)
	if _, err := backend.Read(ctx); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing key, got %v", err)
	}

	s, _ := newStore(t, backend)
	if err := s.AddRun(ctx, sampleReport(5, time.Now(), 0)); err != nil {
		t.Fatalf("AddRun() error = %v", err)
	}

	again, _ := newStore(t, history.NewRedisBackend(client, testRedisKey))
	if got := len(again.Snapshot().Runs); got != 1 {
		t.Errorf("expected 1 run in redis, got %d", got)
	}
}

func TestRedisBackendDefaultKey(t *testing.T) {
	srv, client := newRedis(t)
	s, _ := newStore(t, history.NewRedisBackend(client, ""))
	if err := s.AddRun(context.Background(), sampleReport(1, time.Now(), 0)); err != nil {
		t.Fatalf("AddRun() error = %v", err)
	}
	if !srv.Exists(history.DefaultRedisKey) {
		t.Errorf("expected history under %q, keys: %v", history.DefaultRedisKey, srv.Keys())
	}
}

func TestRedisConcurrentStoresKeepEveryRun(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	const perStore = 5
	stores := make([]*history.Store, 2)
	for i := range stores {
		stores[i], _ = newStore(t, history.NewRedisBackend(client, testRedisKey))
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	errs := make(chan error, len(stores)*perStore)
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s *history.Store) {
			defer wg.Done()
			for j := 0; j < perStore; j++ {
				ts := base.Add(time.Duration(i*perStore+j) * time.Minute)
				if err := s.AddRun(ctx, sampleReport(i+1, ts, 0)); err != nil {
					errs <- err
				}
			}
		}(i, s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AddRun() error = %v", err)
	}

	reader, _ := newStore(t, history.NewRedisBackend(client, testRedisKey))
	doc := reader.Snapshot()
	if got, want := len(doc.Runs), len(stores)*perStore; got != want {
		t.Fatalf("expected %d runs, got %d", want, got)
	}
	ids := map[string]bool{}
	for _, r := range doc.Runs {
		ids[r.ID] = true
	}
	if len(ids) != len(stores)*perStore {
		t.Errorf("expected distinct runs, got %d unique ids", len(ids))
	}
}

func TestRedisLockWaitsUntilContextEnds(t *testing.T) {
	srv, client := newRedis(t)
	ctx := context.Background()
	lockKey := testRedisKey + ":lock"

	unlock, err := history.NewRedisBackend(client, testRedisKey).Lock(ctx)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if ttl := srv.TTL(lockKey); ttl <= 0 {
		t.Errorf("lock must carry a lease, ttl = %v", ttl)
	}

	short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = history.NewRedisBackend(client, testRedisKey).Lock(short)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second lock should wait for the deadline, got %v", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	if srv.Exists(lockKey) {
		t.Error("unlock should delete the lock key")
	}
	unlock, err = history.NewRedisBackend(client, testRedisKey).Lock(ctx)
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	_ = unlock()
}

func TestRedisUnlockLeavesForeignLease(t *testing.T) {
	srv, client := newRedis(t)
	lockKey := testRedisKey + ":lock"

	unlock, err := history.NewRedisBackend(client, testRedisKey).Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	// The lease expired and another writer took it.
	if err := srv.Set(lockKey, "other-writer"); err != nil {
		t.Fatal(err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	if got, err := srv.Get(lockKey); err != nil || got != "other-writer" {
		t.Errorf("foreign lease must survive unlock, got %q (%v)", got, err)
	}
}

func TestRedisCorruptValueIsQuarantined(t *testing.T) {
	srv, client := newRedis(t)
	ctx := context.Background()
	if err := srv.Set(testRedisKey, "{not json"); err != nil {
		t.Fatal(err)
	}

	s, hook := newStore(t, history.NewRedisBackend(client, testRedisKey))
	if got := len(s.Snapshot().Runs); got != 0 {
		t.Fatalf("corrupt history should load empty, got %d runs", got)
	}
	if hook.LastEntry() == nil {
		t.Error("expected the recovery to be logged")
	}

	var quarantined string
	for _, k := range srv.Keys() {
		if strings.HasPrefix(k, testRedisKey+":corrupt:") {
			quarantined = k
		}
	}
	if quarantined == "" {
		t.Fatalf("expected a quarantined key, keys: %v", srv.Keys())
	}
	if got, _ := srv.Get(quarantined); got != "{not json" {
		t.Errorf("quarantined value = %q, want the original bytes", got)
	}

	if err := s.AddRun(ctx, sampleReport(3, time.Now(), 0)); err != nil {
		t.Fatalf("AddRun() after quarantine error = %v", err)
	}
	again, _ := newStore(t, history.NewRedisBackend(client, testRedisKey))
	if got := len(again.Snapshot().Runs); got != 1 {
		t.Errorf("expected 1 run after recovery, got %d", got)
	}
}
