package deps

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/stevecastle/yoro/platform"
)

// Depth model bundle: the ONNX model file plus the ONNX Runtime shared
// library it needs at inference time.
const (
	depthModelVersion = "depth-anything-v2-small"
	depthModelFile    = "depth_anything_v2_vits.onnx"
	depthModelURL     = "https://huggingface.co/onnx-community/depth-anything-v2-small/resolve/main/onnx/model.onnx"
	onnxVersion       = "1.22.0"
)

var depthDep = &Dependency{
	ID:       "depth-bundle",
	Name:     "Depth Model",
	Optional: true, // conversion falls back to the gradient heuristic
	check:    checkDepthModel,
	install:  installDepthModel,
}

func onnxLibName() string {
	return "onnxruntime" + platform.SharedLibExtension()
}

// onnxRuntimeURL returns the Microsoft release archive for this platform.
func onnxRuntimeURL(version, arch string) string {
	const base = "https://github.com/microsoft/onnxruntime/releases/download/v"
	switch runtime.GOOS {
	case "windows":
		if arch == "arm64" {
			return base + version + "/onnxruntime-win-arm64-" + version + ".zip"
		}
		return base + version + "/onnxruntime-win-x64-" + version + ".zip"
	case "darwin":
		if arch == "arm64" {
			return base + version + "/onnxruntime-osx-arm64-" + version + ".tgz"
		}
		return base + version + "/onnxruntime-osx-x86_64-" + version + ".tgz"
	default: // linux
		if arch == "arm64" {
			return base + version + "/onnxruntime-linux-aarch64-" + version + ".tgz"
		}
		return base + version + "/onnxruntime-linux-x64-" + version + ".tgz"
	}
}

// checkDepthModel verifies both the model file and the runtime library
// are on disk.
func checkDepthModel(ctx context.Context) (bool, string, error) {
	dir := depDir("depth")
	for _, name := range []string{depthModelFile, onnxLibName()} {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return false, "", nil
		} else if err != nil {
			return false, "", fmt.Errorf("error checking %s: %w", name, err)
		}
	}
	v := installedVersion("depth-bundle")
	if v == "" {
		v = depthModelVersion
	}
	return true, v, nil
}

// GetDepthModelPath returns the installed model path, or "" if not installed.
func GetDepthModelPath() string {
	p := filepath.Join(depDir("depth"), depthModelFile)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// GetOnnxRuntimeLibPath returns the installed ONNX Runtime library path,
// or "" if not installed.
func GetOnnxRuntimeLibPath() string {
	p := filepath.Join(depDir("depth"), onnxLibName())
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// installDepthModel downloads the model file and the ONNX Runtime
// library into the managed directory.
func installDepthModel(ctx context.Context, report ProgressFunc) error {
	send := func(p Progress) {
		if report != nil {
			report(p)
		}
	}

	dir := depDir("depth")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	modelPath := filepath.Join(dir, depthModelFile)
	meter := &rateMeter{}
	err := fetch(ctx, modelPath, depthModelURL, func(done, total int64) {
		send(Progress{Stage: StageDownloading, Done: done, Total: total, Speed: meter.observe(done)})
	})
	if err != nil {
		return fmt.Errorf("failed to download depth model: %w", err)
	}

	libPath := filepath.Join(dir, onnxLibName())
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		send(Progress{Stage: StageError, Message: fmt.Sprintf("No ONNX Runtime build for %s; skipping", arch)})
	} else if err := installOnnxRuntime(ctx, dir, libPath, onnxRuntimeURL(onnxVersion, arch), send); err != nil {
		// The model alone is still useful once a runtime is provided
		// manually, so report rather than fail.
		send(Progress{Stage: StageError, Message: fmt.Sprintf("ONNX Runtime install failed: %v", err)})
	}

	if err := recordInstall("depth-bundle", depthModelVersion); err != nil {
		return fmt.Errorf("failed to record install: %w", err)
	}
	send(Progress{Stage: StageDone, Message: "Depth model installed"})
	return nil
}

// installOnnxRuntime fetches the release archive and pulls out the
// shared libraries the inference session loads.
func installOnnxRuntime(ctx context.Context, dir, libPath, url string, send ProgressFunc) error {
	if strings.HasSuffix(url, ".zip") {
		archive := filepath.Join(dir, "onnxruntime.zip")
		if err := fetch(ctx, archive, url, nil); err != nil {
			return err
		}
		defer os.Remove(archive)
		send(Progress{Stage: StageExtracting, Message: "Extracting ONNX Runtime..."})
		return extractOnnxRuntimeFromZip(archive, libPath, onnxLibName())
	}

	archive := filepath.Join(dir, "onnxruntime.tgz")
	if err := fetch(ctx, archive, url, nil); err != nil {
		return err
	}
	defer os.Remove(archive)
	send(Progress{Stage: StageExtracting, Message: "Extracting ONNX Runtime..."})
	return extractOnnxRuntimeFromTarGz(archive, libPath, dir)
}

// extractOnnxRuntimeFromZip extracts the runtime DLL from a release ZIP (Windows).
func extractOnnxRuntimeFromZip(zipPath, outputPath, libName string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer reader.Close()

	var libFile *zip.File
	for _, file := range reader.File {
		if strings.HasSuffix(strings.ToLower(file.Name), strings.ToLower(libName)) {
			libFile = file
			break
		}
	}
	if libFile == nil {
		return fmt.Errorf("%s not found in archive", libName)
	}

	return copyZipFile(libFile, outputPath)
}

// extractOnnxRuntimeFromTarGz extracts the runtime shared library from a
// release tgz (Linux/macOS).
func extractOnnxRuntimeFromTarGz(tgzPath, outputPath, targetDir string) error {
	file, err := os.Open(tgzPath)
	if err != nil {
		return fmt.Errorf("failed to open tar.gz: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	var foundMainLib bool
	libExt := platform.SharedLibExtension()

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag == tar.TypeDir {
			continue
		}

		// Main library:
		// Linux: lib/libonnxruntime.so.{version}
		// macOS: lib/libonnxruntime.{version}.dylib
		isMainLib := false
		if runtime.GOOS == "darwin" {
			isMainLib = strings.Contains(header.Name, "/lib/libonnxruntime.") &&
				strings.HasSuffix(header.Name, ".dylib") &&
				!strings.Contains(header.Name, "_providers_")
		} else {
			isMainLib = strings.Contains(header.Name, "/lib/libonnxruntime.so.") &&
				!strings.Contains(header.Name, "_providers_")
		}

		if isMainLib {
			if err := writeTarEntry(tarReader, outputPath); err != nil {
				return err
			}
			foundMainLib = true
		}

		// The providers shared library is required for CUDA on Linux
		if strings.Contains(header.Name, "/lib/libonnxruntime_providers_shared"+libExt) {
			providerPath := filepath.Join(targetDir, "libonnxruntime_providers_shared"+libExt)
			if err := writeTarEntry(tarReader, providerPath); err != nil {
				return err
			}
		}

		if foundMainLib && runtime.GOOS == "darwin" {
			break
		}
	}

	if !foundMainLib {
		return fmt.Errorf("libonnxruntime%s not found in archive", libExt)
	}
	return nil
}

func writeTarEntry(r io.Reader, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("failed to extract %s: %w", filepath.Base(dest), err)
	}
	platform.EnsureExecutable(dest)
	return nil
}
