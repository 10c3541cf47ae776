// Package snapshot stores a save slot as a single zstd-compressed file: a
// JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"brainlink.ai/internal/party"
	"brainlink.ai/internal/persistence/savedb"
)

const Version = 1

// Ext marks a save path as a snapshot file rather than a sqlite database.
const Ext = ".zst"

type Header struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Actors  int       `json:"actors"`
	Notes   int       `json:"notes"`
}

type SnapshotV1 struct {
	Header Header
	Actors []party.ActorState
	Notes  map[string]string
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is for humans and tooling; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	// gob drops empty slices and maps.
	for i := range snap.Actors {
		if snap.Actors[i].Inventory == nil {
			snap.Actors[i].Inventory = []string{}
		}
	}
	if snap.Notes == nil {
		snap.Notes = map[string]string{}
	}
	return snap, nil
}

// FileStore is a save slot backed by one snapshot file.
type FileStore struct {
	Path string
}

func (s FileStore) Save(_ context.Context, snap savedb.Snapshot) error {
	return WriteSnapshot(s.Path, SnapshotV1{
		Header: Header{Version: Version, SavedAt: snap.SavedAt, Actors: len(snap.Actors), Notes: len(snap.Notes)},
		Actors: snap.Actors,
		Notes:  snap.Notes,
	})
}

// Load returns savedb.ErrNoSave when the file does not exist yet.
func (s FileStore) Load(_ context.Context) (savedb.Snapshot, error) {
	snap, err := ReadSnapshot(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return savedb.Snapshot{}, savedb.ErrNoSave
	}
	if err != nil {
		return savedb.Snapshot{}, err
	}
	return savedb.Snapshot{SavedAt: snap.Header.SavedAt, Actors: snap.Actors, Notes: snap.Notes}, nil
}
