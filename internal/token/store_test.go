package token

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, ok := store.Get(); ok {
		t.Fatal("fresh store must report no credentials")
	}

	creds := Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}
	if err := store.Set(creds); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := store.Get()
	if !ok || got != creds {
		t.Fatalf("expected %+v, got %+v ok=%v", creds, got, ok)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	creds := Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}
	if err := store.Set(creds); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	got, ok := reopened.Get()
	if !ok || got != creds {
		t.Fatalf("expected persisted %+v, got %+v ok=%v", creds, got, ok)
	}
}

func TestStoreClear(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Set(Credentials{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("expected no credentials after clear")
	}
	if _, err := os.Stat(filepath.Join(dir, credentialsFile)); !os.IsNotExist(err) {
		t.Fatal("expected credential file removed")
	}

	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestStoreToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), []byte("not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store on corrupt file: %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("corrupt file must read as logged out")
	}
}
