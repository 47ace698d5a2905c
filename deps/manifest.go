package deps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stevecastle/yoro/platform"
)

// installRecord is what setup writes after installing a dependency, so
// -deps can report versions without re-probing the install.
type installRecord struct {
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installedAt"`
}

var manifestMu sync.Mutex

func manifestPath() string {
	return filepath.Join(platform.GetDataDir(), "installed.json")
}

func loadManifest() map[string]installRecord {
	m := map[string]installRecord{}
	data, err := os.ReadFile(manifestPath())
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]installRecord{}
	}
	return m
}

// recordInstall remembers the version an installer just put on disk.
func recordInstall(id, version string) error {
	manifestMu.Lock()
	defer manifestMu.Unlock()

	m := loadManifest()
	m[id] = installRecord{Version: version, InstalledAt: time.Now()}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(manifestPath()), 0755); err != nil {
		return err
	}
	return os.WriteFile(manifestPath(), data, 0644)
}

// installedVersion returns the recorded version for id, or "" when the
// installer has never run.
func installedVersion(id string) string {
	manifestMu.Lock()
	defer manifestMu.Unlock()
	return loadManifest()[id].Version
}
