package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rickgao/quotedesk/internal/config"
)

// backends returns every Store implementation that can run without external services.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	mr := miniredis.RunT(t)
	redisStore := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	t.Cleanup(func() { redisStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, KeyToken); err != nil || ok {
				t.Fatalf("Get on empty store = (ok=%v, err=%v), want absent", ok, err)
			}

			if err := s.Set(ctx, KeyToken, "T1"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Set(ctx, KeyToken, "T2"); err != nil {
				t.Fatalf("Set overwrite failed: %v", err)
			}

			got, ok, err := s.Get(ctx, KeyToken)
			if err != nil || !ok {
				t.Fatalf("Get = (ok=%v, err=%v), want present", ok, err)
			}
			if got != "T2" {
				t.Errorf("Get = %q, want %q (last write wins)", got, "T2")
			}

			if err := s.Set(ctx, KeyTokenExpire, "2099"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Delete(ctx, SessionKeys...); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			for _, key := range []string{KeyToken, KeyTokenExpire} {
				if _, ok, _ := s.Get(ctx, key); ok {
					t.Errorf("key %q still present after Delete", key)
				}
			}

			if err := s.Delete(ctx); err != nil {
				t.Errorf("Delete with no keys failed: %v", err)
			}
		})
	}
}

func TestStore_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := []string{"EURUSD", "USDJPY", "BTCUSD"}
			if err := SetJSON(ctx, s, KeySubscriptions, want); err != nil {
				t.Fatalf("SetJSON failed: %v", err)
			}

			var got []string
			ok, err := GetJSON(ctx, s, KeySubscriptions, &got)
			if err != nil || !ok {
				t.Fatalf("GetJSON = (ok=%v, err=%v), want present", ok, err)
			}
			if len(got) != len(want) {
				t.Fatalf("len(got) = %d, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
				}
			}
		})
	}
}

func TestGetJSON_Corrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Set(ctx, KeyCatalog, "{not json")

	var v []string
	ok, err := GetJSON(ctx, s, KeyCatalog, &v)
	if ok {
		t.Error("expected ok=false for corrupt value")
	}

	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if storeErr.Key != KeyCatalog {
		t.Errorf("Error.Key = %q, want %q", storeErr.Key, KeyCatalog)
	}
}

func TestRedisStore_Prefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "quotedesk:")
	defer s.Close()

	if err := s.Set(ctx, KeyToken, "T1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := mr.Get("quotedesk:" + KeyToken)
	if err != nil {
		t.Fatalf("miniredis Get failed: %v", err)
	}
	if got != "T1" {
		t.Errorf("stored value = %q, want %q", got, "T1")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "")
	defer s.Close()

	mr.Close()

	_, _, err := s.Get(ctx, KeyToken)
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if storeErr.Op != "get" {
		t.Errorf("Error.Op = %q, want %q", storeErr.Op, "get")
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.Set(ctx, KeyTokenExpire, "2099"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, KeyTokenExpire)
	if err != nil || !ok {
		t.Fatalf("Get after reopen = (ok=%v, err=%v)", ok, err)
	}
	if got != "2099" {
		t.Errorf("Get = %q, want %q", got, "2099")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, config.StorageConfig{Driver: config.DriverMemory}, nil)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*MemoryStore); !ok {
			t.Errorf("Open returned %T, want *MemoryStore", s)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.StorageConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "kv.db")}
		s, err := Open(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*SQLiteStore); !ok {
			t.Errorf("Open returned %T, want *SQLiteStore", s)
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.StorageConfig{Driver: config.DriverRedis, Redis: config.RedisConfig{Addr: mr.Addr()}}
		s, err := Open(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*RedisStore); !ok {
			t.Errorf("Open returned %T, want *RedisStore", s)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := Open(ctx, config.StorageConfig{Driver: "bolt"}, nil); err == nil {
			t.Error("expected error for unknown driver")
		}
	})
}
