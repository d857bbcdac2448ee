package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tessera.estate/internal/sim/network"
)

func TestArchiveYearOnlyAtYearEnd(t *testing.T) {
	base := t.TempDir()
	netDir := filepath.Join(base, "net-a")
	if err := os.MkdirAll(netDir, 0o755); err != nil {
		t.Fatal(err)
	}
	journal := filepath.Join(netDir, "ticks-Y0001.jsonl.zst")
	if err := os.WriteFile(journal, []byte("bundle"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, archived, err := ArchiveYear(base, network.TickRecord{NetworkID: "net-a", Month: 7}); err != nil || archived {
		t.Fatalf("mid-year archived=%v err=%v, want false, nil", archived, err)
	}

	year, path, archived, err := ArchiveYear(base, network.TickRecord{NetworkID: "net-a", Month: 12, Digest: "d12"})
	if err != nil || !archived || year != 1 {
		t.Fatalf("year-end: year=%d archived=%v err=%v", year, archived, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archived bundle missing: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "meta.json"))
	if err != nil {
		t.Fatalf("meta.json: %v", err)
	}
	var meta YearMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Year != 1 || meta.EndMonth != 12 || meta.Digest != "d12" {
		t.Fatalf("meta = %+v", meta)
	}
}
