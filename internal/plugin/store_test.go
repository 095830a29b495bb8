package plugin_test

import (
	"context"
	"path/filepath"
	"testing"

	"spate/internal/plugin"
)

func openStore(t *testing.T) *plugin.Store {
	t.Helper()
	store, err := plugin.OpenStore(filepath.Join(t.TempDir(), "plugins.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestStoreEnabledRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.SetEnabled(ctx, "label", "1.0", true); err != nil {
		t.Fatalf("SetEnabled label: %v", err)
	}
	if err := store.SetEnabled(ctx, "stats", "0.2", true); err != nil {
		t.Fatalf("SetEnabled stats: %v", err)
	}
	if err := store.SetEnabled(ctx, "extractor", "2.1", false); err != nil {
		t.Fatalf("SetEnabled extractor: %v", err)
	}

	names, err := store.Enabled(ctx)
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	if len(names) != 2 || names[0] != "label" || names[1] != "stats" {
		t.Fatalf("enabled = %v, want [label stats]", names)
	}
}

func TestStoreDisableRemovesFromEnabled(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.SetEnabled(ctx, "label", "1.0", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := store.SetEnabled(ctx, "label", "1.0", false); err != nil {
		t.Fatalf("SetEnabled disable: %v", err)
	}

	names, err := store.Enabled(ctx)
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("enabled = %v, want empty", names)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.db")
	ctx := context.Background()

	store, err := plugin.OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := store.SetEnabled(ctx, "label", "1.0", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := plugin.OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	names, err := reopened.Enabled(ctx)
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	if len(names) != 1 || names[0] != "label" {
		t.Fatalf("enabled after reopen = %v, want [label]", names)
	}
}
