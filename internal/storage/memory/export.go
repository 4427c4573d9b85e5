// internal/storage/memory/export.go
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/OCAP2/vehicles/pkg/core"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

const (
	snapshotName           = "vehicles.json"
	compressedSnapshotName = "vehicles.json.zst"
)

// SnapshotExport is the root JSON structure of a snapshot file
type SnapshotExport struct {
	Version  int           `json:"version"`
	SavedAt  time.Time     `json:"savedAt"`
	Vehicles []VehicleJSON `json:"vehicles"`
}

// VehicleJSON is one stored vehicle. Data is the encoded record, base64 in JSON.
type VehicleJSON struct {
	UUID     uuid.UUID  `json:"uuid"`
	Preset   string     `json:"preset"`
	Design   string     `json:"design"`
	Type     string     `json:"type"`
	Owner    *uuid.UUID `json:"owner,omitempty"`
	Locked   bool       `json:"locked"`
	Level    string     `json:"level"`
	Position [3]float64 `json:"position"`
	Data     []byte     `json:"data"`
	SavedAt  time.Time  `json:"savedAt"`
}

func toJSON(v core.StoredVehicle) VehicleJSON {
	out := VehicleJSON{
		UUID:     v.UUID,
		Preset:   v.Preset,
		Design:   v.Design,
		Type:     v.Type,
		Locked:   v.Locked,
		Level:    v.Level,
		Position: [3]float64{v.Position.X, v.Position.Y, v.Position.Z},
		Data:     v.Data,
		SavedAt:  v.SavedAt,
	}
	if v.Owner.Valid {
		owner := v.Owner.UUID
		out.Owner = &owner
	}
	return out
}

func fromJSON(v VehicleJSON) core.StoredVehicle {
	out := core.StoredVehicle{
		UUID:     v.UUID,
		Preset:   v.Preset,
		Design:   v.Design,
		Type:     v.Type,
		Locked:   v.Locked,
		Level:    v.Level,
		Position: core.Position3D{X: v.Position[0], Y: v.Position[1], Z: v.Position[2]},
		Data:     v.Data,
		SavedAt:  v.SavedAt,
	}
	if v.Owner != nil {
		out.Owner = uuid.NullUUID{UUID: *v.Owner, Valid: true}
	}
	return out
}

// export writes the snapshot. Callers hold b.mu.
func (b *Backend) export() error {
	snap := SnapshotExport{
		Version:  SnapshotVersion,
		SavedAt:  time.Now().UTC(),
		Vehicles: make([]VehicleJSON, 0, len(b.vehicles)),
	}
	for _, v := range b.sorted() {
		snap.Vehicles = append(snap.Vehicles, toJSON(v))
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	name := snapshotName
	if b.cfg.CompressOutput {
		name = compressedSnapshotName
	}
	outputPath := filepath.Join(b.cfg.OutputDir, name)

	if err := writeSnapshot(outputPath, snap, b.cfg.CompressOutput); err != nil {
		return err
	}

	// Only one snapshot form may exist, or Init could pick up a stale one.
	other := snapshotName
	if !b.cfg.CompressOutput {
		other = compressedSnapshotName
	}
	if err := os.Remove(filepath.Join(b.cfg.OutputDir, other)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale snapshot: %w", err)
	}

	b.lastExportPath = outputPath
	return nil
}

// writeSnapshot writes to a temp file and renames it into place.
func writeSnapshot(path string, snap SnapshotExport, compress bool) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	if err := encodeSnapshot(f, snap, compress); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func encodeSnapshot(w io.Writer, snap SnapshotExport, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return zw.Close()
}

// readSnapshot loads whichever snapshot form exists in dir. A missing
// snapshot is not an error.
func readSnapshot(dir string) ([]core.StoredVehicle, error) {
	for _, name := range []string{compressedSnapshotName, snapshotName} {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()

		var r io.Reader = f
		if name == compressedSnapshotName {
			dec, err := zstd.NewReader(f)
			if err != nil {
				return nil, fmt.Errorf("failed to create zstd reader: %w", err)
			}
			defer dec.Close()
			r = dec
		}

		var snap SnapshotExport
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
		}
		if snap.Version != SnapshotVersion {
			return nil, fmt.Errorf("snapshot %s has version %d, want %d", path, snap.Version, SnapshotVersion)
		}

		out := make([]core.StoredVehicle, 0, len(snap.Vehicles))
		for _, v := range snap.Vehicles {
			out = append(out, fromJSON(v))
		}
		return out, nil
	}
	return nil, nil
}
