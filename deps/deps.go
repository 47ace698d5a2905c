// Package deps installs and locates the external pieces yoro needs: the
// ffmpeg binaries used for video work and the ONNX depth model bundle.
// Both live under the platform data directory and are checked on demand.
package deps

import (
	"context"
	"path/filepath"

	"github.com/stevecastle/yoro/platform"
)

// Dependency is one managed external component.
type Dependency struct {
	ID       string
	Name     string
	Optional bool

	check   func(ctx context.Context) (installed bool, version string, err error)
	install func(ctx context.Context, report ProgressFunc) error
}

// Check reports whether the dependency is usable and, if so, which
// version is present.
func (d *Dependency) Check(ctx context.Context) (bool, string, error) {
	return d.check(ctx)
}

// Install downloads and installs the dependency, reporting progress
// through report when it is non-nil.
func (d *Dependency) Install(ctx context.Context, report ProgressFunc) error {
	return d.install(ctx, report)
}

// All returns the managed dependencies in display order.
func All() []*Dependency {
	return []*Dependency{ffmpegDep, depthDep}
}

// MissingRequired returns the non-optional dependencies that are not
// currently usable. A check error counts as missing.
func MissingRequired(ctx context.Context) []*Dependency {
	var missing []*Dependency
	for _, d := range All() {
		if d.Optional {
			continue
		}
		ok, _, err := d.Check(ctx)
		if err != nil || !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

// depDir returns the install directory for one dependency. Computed per
// call so tests can redirect the data directory.
func depDir(sub string) string {
	return filepath.Join(platform.GetDataDir(), sub)
}
