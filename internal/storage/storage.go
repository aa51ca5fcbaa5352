package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

const (
	recordsDir   = "records"
	metaFileName = "collection-meta.json"
)

var ErrInvalidID = errors.New("invalid id")

// Store persists records and per-collection metadata.
type Store interface {
	Write(ctx context.Context, rec models.Record) error
	LoadKnownIDs(ctx context.Context, collectionID string) (map[string]struct{}, error)
	WriteMeta(ctx context.Context, meta models.CollectionMeta) error
	// LoadMeta returns nil when the collection has never completed a run.
	LoadMeta(ctx context.Context, collectionID string) (*models.CollectionMeta, error)
	ListRecords(ctx context.Context, collectionID string) ([]models.Record, error)
}

// FileStore keeps one JSON file per record under
// <root>/<collectionID>/records/<id>.json and the metadata next to it.
type FileStore struct {
	mu   sync.RWMutex
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("data dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data dir %s", root)
	}
	return &FileStore{root: root}, nil
}

func (fs *FileStore) Root() string {
	return fs.root
}

func (fs *FileStore) Write(ctx context.Context, rec models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(rec.CollectionID); err != nil {
		return errors.Wrap(err, "collection id")
	}
	if err := validateID(rec.ID); err != nil {
		return errors.Wrap(err, "record id")
	}

	data, err := json.MarshalIndent(rec.Attributes, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode record %s", rec.ID)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := filepath.Join(fs.root, rec.CollectionID, recordsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	return writeAtomic(filepath.Join(dir, rec.ID+".json"), data)
}

func (fs *FileStore) LoadKnownIDs(ctx context.Context, collectionID string) (map[string]struct{}, error) {
	if err := validateID(collectionID); err != nil {
		return nil, errors.Wrap(err, "collection id")
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	names, err := fs.recordFiles(collectionID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(names))
	for _, name := range names {
		ids[strings.TrimSuffix(name, ".json")] = struct{}{}
	}
	return ids, ctx.Err()
}

func (fs *FileStore) WriteMeta(ctx context.Context, meta models.CollectionMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(meta.CollectionID); err != nil {
		return errors.Wrap(err, "collection id")
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode collection meta")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := filepath.Join(fs.root, meta.CollectionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	return writeAtomic(filepath.Join(dir, metaFileName), data)
}

func (fs *FileStore) LoadMeta(ctx context.Context, collectionID string) (*models.CollectionMeta, error) {
	if err := validateID(collectionID); err != nil {
		return nil, errors.Wrap(err, "collection id")
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(fs.root, collectionID, metaFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read collection meta")
	}

	var meta models.CollectionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(err, "failed to decode collection meta")
	}
	return &meta, ctx.Err()
}

// ListRecords returns the stored records ordered by id.
func (fs *FileStore) ListRecords(ctx context.Context, collectionID string) ([]models.Record, error) {
	if err := validateID(collectionID); err != nil {
		return nil, errors.Wrap(err, "collection id")
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	names, err := fs.recordFiles(collectionID)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(fs.root, collectionID, recordsDir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", name)
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var attrs map[string]any
		if err := dec.Decode(&attrs); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", name)
		}

		records = append(records, models.Record{
			ID:           strings.TrimSuffix(name, ".json"),
			CollectionID: collectionID,
			Attributes:   attrs,
		})
	}
	return records, nil
}

func (fs *FileStore) recordFiles(collectionID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.root, collectionID, recordsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to rename %s", tmp)
	}
	return nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return nil
}
