package calibration

import (
	"path/filepath"
	"testing"
)

func TestStoreUpdateAndGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.yaml")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}
	defer store.Close()

	profile := Profile{HookWeights: map[string]float64{"score": 0.5}, DominantStyle: "tiktok_short"}
	if err := store.Update("user-1", profile); err != nil {
		t.Fatalf("unexpected error updating store: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error reopening store: %v", err)
	}
	defer reloaded.Close()

	got := reloaded.Get("user-1")
	if got.DominantStyle != "tiktok_short" {
		t.Errorf("expected persisted profile to round-trip, got %+v", got)
	}
}

func TestStoreGetReturnsDefaultForUnknownUser(t *testing.T) {
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	profile := store.Get("unknown-user")
	if !profile.IsDefault {
		t.Error("expected default calibration for an unknown user")
	}
}
