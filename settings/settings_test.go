package settings

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	values map[string]string
	err    error
}

func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func TestCacheFallsBackToNamedDefault(t *testing.T) {
	c := New(nil)
	if got := c.Get(context.Background(), KeyMinCodeBlockLength); got != "250" {
		t.Fatalf("want default 250, got %q", got)
	}
}

func TestCacheReadsStoreBeforeDefault(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyMinCodeBlockLength: "42"}}
	c := New(store)
	if got := c.GetInt(context.Background(), KeyMinCodeBlockLength, 250); got != 42 {
		t.Fatalf("want 42, got %d", got)
	}
}

func TestCacheFailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("boom")}
	c := New(store)
	if got := c.GetInt(context.Background(), KeyMinCodeBlockLength, -1); got != 250 {
		t.Fatalf("want named default 250 on store error, got %d", got)
	}
}

func TestCacheRespectsTTL(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyModelChoice: "v1"}}
	c := New(store)
	c.SetTTL(10 * time.Millisecond)

	if got := c.Get(context.Background(), KeyModelChoice); got != "v1" {
		t.Fatalf("want v1, got %q", got)
	}

	store.values[KeyModelChoice] = "v2"
	if got := c.Get(context.Background(), KeyModelChoice); got != "v1" {
		t.Fatalf("expected cached v1 within TTL, got %q", got)
	}

	time.Sleep(15 * time.Millisecond)
	if got := c.Get(context.Background(), KeyModelChoice); got != "v2" {
		t.Fatalf("expected refreshed v2 after TTL, got %q", got)
	}
}

func TestPresetBypassesStore(t *testing.T) {
	c := New(nil)
	c.Preset(map[string]string{KeyUseHybridSearch: "false"})
	if c.GetBool(context.Background(), KeyUseHybridSearch, true) {
		t.Fatal("expected preset override to win")
	}
}
