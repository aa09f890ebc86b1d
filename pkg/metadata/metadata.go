package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Suffix is appended to an artifact path to name its sidecar
const Suffix = ".meta.json"

// ArtifactMetadata describes one downloaded archive file
type ArtifactMetadata struct {
	// Identifiers
	Key     string `json:"key"`
	Mission string `json:"mission"`
	Product string `json:"product"`

	// Timing
	SampleTime   time.Time `json:"sample_time"`
	RangeStart   time.Time `json:"range_start"`
	RangeEnd     time.Time `json:"range_end"`
	DownloadedAt time.Time `json:"downloaded_at"`

	// File
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	SHA256       string `json:"sha256,omitempty"`
	Decompressed bool   `json:"decompressed,omitempty"`
	Source       string `json:"source,omitempty"`

	// Mirror location, when mirroring is enabled
	MirrorURI string `json:"mirror_uri,omitempty"`
}

// PathFor returns the sidecar path for an artifact
func PathFor(artifactPath string) string {
	return artifactPath + Suffix
}

// Save writes the metadata next to the artifact
func (m *ArtifactMetadata) Save(artifactPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(PathFor(artifactPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads the sidecar of an artifact
func Load(artifactPath string) (*ArtifactMetadata, error) {
	data, err := os.ReadFile(PathFor(artifactPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta ArtifactMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// Exists checks if a sidecar exists for an artifact
func Exists(artifactPath string) bool {
	_, err := os.Stat(PathFor(artifactPath))
	return err == nil
}

// CleanOrphaned removes sidecars under directory whose artifact is gone
// and returns how many were removed.
func CleanOrphaned(directory string) (int, error) {
	removed := 0
	err := filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, Suffix) {
			return nil
		}

		artifactPath := strings.TrimSuffix(path, Suffix)
		if _, err := os.Stat(artifactPath); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
