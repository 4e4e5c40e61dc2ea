package rotation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"credvault/internal/fsutil"
	"credvault/internal/logging"
)

// Metadata records the last completed key rotation
type Metadata struct {
	LastRotation time.Time
	KeyID        string
}

// metadataFile is the on-disk shape: {"last_rotation": <unix seconds>, "key_id": "..."}
type metadataFile struct {
	LastRotation *float64 `json:"last_rotation"`
	KeyID        string   `json:"key_id,omitempty"`
}

// maxUnixSeconds is the latest timestamp time.Unix can represent in nanoseconds
const maxUnixSeconds = float64(math.MaxInt64 / int64(time.Second))

// MetadataStore reads and writes the rotation timestamp file
type MetadataStore struct {
	path   string
	logger *logging.Logger
}

// NewMetadataStore creates a store for path
func NewMetadataStore(path string, logger *logging.Logger) *MetadataStore {
	return &MetadataStore{path: path, logger: logger}
}

// Path returns the timestamp file location
func (m *MetadataStore) Path() string {
	return m.path
}

// Load returns nil when no rotation has been recorded. A file that exists but
// cannot be parsed is a StorageError, never "no rotation".
func (m *MetadataStore) Load() (*Metadata, error) {
	data, found, err := fsutil.ReadFileIfExists(m.path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var file metadataFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &fsutil.StorageError{Op: "parse rotation metadata", Path: m.path, Err: err}
	}
	if file.LastRotation == nil {
		return nil, nil
	}
	if v := *file.LastRotation; v < 0 || v > maxUnixSeconds || math.IsNaN(v) {
		return nil, &fsutil.StorageError{Op: "parse rotation metadata", Path: m.path,
			Err: fmt.Errorf("invalid last_rotation %v", *file.LastRotation)}
	}

	return &Metadata{
		LastRotation: fromUnixSeconds(*file.LastRotation),
		KeyID:        file.KeyID,
	}, nil
}

// Save atomically records a completed rotation
func (m *MetadataStore) Save(meta Metadata) error {
	seconds := toUnixSeconds(meta.LastRotation)
	data, err := json.Marshal(metadataFile{
		LastRotation: &seconds,
		KeyID:        meta.KeyID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rotation metadata: %w", err)
	}

	if err := fsutil.AtomicWriteFile(m.path, data, fsutil.DefaultFilePermissions, m.logger); err != nil {
		return err
	}

	m.logger.Debug("rotation.metadata.saved", "Rotation metadata saved", map[string]interface{}{
		"path":          m.path,
		"last_rotation": seconds,
	})
	return nil
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
