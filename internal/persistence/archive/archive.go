// Package archive freezes completed years: when month 12k commits, the
// year's journal bundle is copied under archives/ with a meta.json, so a
// finished year can be shipped or replayed without touching the live
// journal directory.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tessera.estate/internal/sim/network"
)

type YearMeta struct {
	NetworkID string `json:"network_id"`
	Year      int    `json:"year"`
	EndMonth  int    `json:"end_month"`
	Digest    string `json:"digest"`
	Journal   string `json:"journal"`
	CreatedAt string `json:"created_at"`
}

// ArchiveYear copies the just-finished year's journal bundle into
// `baseDir/<network>/archives/year_<NNN>/`. It reports archived=false when
// rec does not close a year.
func ArchiveYear(baseDir string, rec network.TickRecord) (year int, archivedPath string, archived bool, err error) {
	if rec.Month <= 0 || rec.Month%12 != 0 {
		return 0, "", false, nil
	}
	year = rec.Month / 12

	src := filepath.Join(baseDir, rec.NetworkID, fmt.Sprintf("ticks-Y%04d.jsonl.zst", year))
	if _, err := os.Stat(src); err != nil {
		return 0, "", false, fmt.Errorf("year %d journal missing: %w", year, err)
	}

	dir := filepath.Join(baseDir, rec.NetworkID, "archives", fmt.Sprintf("year_%03d", year))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return 0, "", false, err
	}

	meta := YearMeta{
		NetworkID: rec.NetworkID,
		Year:      year,
		EndMonth:  rec.Month,
		Digest:    rec.Digest,
		Journal:   filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return year, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
