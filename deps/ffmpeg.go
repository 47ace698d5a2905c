package deps

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/stevecastle/yoro/platform"
)

// ffmpegVersion is the BtbN autobuild installed by setup.
var ffmpegVersion = "N-122344-g649a4e98f4-20260103"

var ffmpegDep = &Dependency{
	ID:      "ffmpeg",
	Name:    "FFmpeg",
	check:   checkFFmpeg,
	install: installFFmpeg,
}

// exeName appends the platform executable extension.
func exeName(tool string) string {
	return tool + platform.BinaryExtension()
}

// ffTool builds a command for an ffmpeg-suite tool, preferring the
// managed install and falling back to whatever is on PATH.
func ffTool(ctx context.Context, tool string, args ...string) (*exec.Cmd, error) {
	path := filepath.Join(depDir("ffmpeg"), exeName(tool))
	if _, err := os.Stat(path); err != nil {
		systemPath, lookErr := exec.LookPath(tool)
		if lookErr != nil {
			return nil, fmt.Errorf("%s is not installed: %w", tool, lookErr)
		}
		path = systemPath
	}
	cmd := exec.CommandContext(ctx, path, args...)
	configureSysProcAttr(cmd)
	return cmd, nil
}

// FFmpeg builds an ffmpeg command ready to run.
func FFmpeg(ctx context.Context, args ...string) (*exec.Cmd, error) {
	return ffTool(ctx, "ffmpeg", args...)
}

// FFprobe builds an ffprobe command ready to run.
func FFprobe(ctx context.Context, args ...string) (*exec.Cmd, error) {
	return ffTool(ctx, "ffprobe", args...)
}

// checkFFmpeg verifies an ffmpeg binary exists and can run.
func checkFFmpeg(ctx context.Context) (bool, string, error) {
	versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := ffTool(versionCtx, "ffmpeg", "-version")
	if err != nil {
		return false, "", nil
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		// Present but the version probe failed; report it installed so
		// setup does not re-download a working tree.
		return true, installedVersion("ffmpeg"), nil
	}
	v := parseFFmpegVersion(string(out))
	if v == "unknown" {
		v = installedVersion("ffmpeg")
	}
	return true, v, nil
}

// parseFFmpegVersion extracts the version token from ffmpeg -version output.
func parseFFmpegVersion(output string) string {
	re := regexp.MustCompile(`ffmpeg version (\S+)`)
	matches := re.FindStringSubmatch(output)
	if len(matches) > 1 {
		return matches[1]
	}
	return "unknown"
}

// ffmpegArchiveURL returns the BtbN autobuild archive for this platform,
// or "" when no prebuilt archive exists.
func ffmpegArchiveURL() string {
	const base = "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/"
	switch runtime.GOOS {
	case "windows":
		return base + "ffmpeg-master-latest-win64-gpl.zip"
	case "darwin":
		// BtbN does not publish macOS builds.
		return ""
	default:
		if runtime.GOARCH == "arm64" {
			return base + "ffmpeg-master-latest-linuxarm64-gpl.tar.xz"
		}
		return base + "ffmpeg-master-latest-linux64-gpl.tar.xz"
	}
}

// installFFmpeg downloads the archive for this platform and unpacks the
// ffmpeg and ffprobe binaries into the managed directory.
func installFFmpeg(ctx context.Context, report ProgressFunc) error {
	url := ffmpegArchiveURL()
	if url == "" {
		return fmt.Errorf("no prebuilt ffmpeg for %s; install it from your package manager", runtime.GOOS)
	}

	dir := depDir("ffmpeg")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	archive := filepath.Join(dir, "ffmpeg.tar.xz")
	if strings.HasSuffix(url, ".zip") {
		archive = filepath.Join(dir, "ffmpeg.zip")
	}

	meter := &rateMeter{}
	err := fetch(ctx, archive, url, func(done, total int64) {
		if report == nil {
			return
		}
		report(Progress{Stage: StageDownloading, Done: done, Total: total, Speed: meter.observe(done)})
	})
	if err != nil {
		return fmt.Errorf("ffmpeg download failed: %w", err)
	}

	if report != nil {
		report(Progress{Stage: StageExtracting, Message: "Extracting FFmpeg..."})
	}
	if strings.HasSuffix(archive, ".zip") {
		err = extractFFmpegZip(archive, dir)
	} else {
		err = untarFFmpegBin(ctx, archive, dir)
	}
	if err != nil {
		return fmt.Errorf("ffmpeg extraction failed: %w", err)
	}
	os.Remove(archive)

	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		p := filepath.Join(dir, exeName(tool))
		if _, statErr := os.Stat(p); statErr != nil {
			return fmt.Errorf("%s missing after extraction", tool)
		}
		platform.EnsureExecutable(p)
	}

	if err := recordInstall("ffmpeg", ffmpegVersion); err != nil {
		return fmt.Errorf("failed to record install: %w", err)
	}
	if report != nil {
		report(Progress{Stage: StageDone, Message: "FFmpeg installed"})
	}
	return nil
}

// untarFFmpegBin unpacks the bin/ directory of a BtbN tar.xz using the
// system tar, which handles xz everywhere the archive is offered.
func untarFFmpegBin(ctx context.Context, archive, dir string) error {
	cmd := exec.CommandContext(ctx, "tar", "-xJf", archive, "-C", dir,
		"--strip-components=2", "--wildcards", "*/bin/*")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tar failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// extractFFmpegZip copies the bin/ contents of a BtbN ZIP (Windows) into
// the managed directory.
func extractFFmpegZip(archive, dir string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	// The archive nests everything under a release-named directory,
	// e.g. ffmpeg-master-latest-win64-gpl/bin/ffmpeg.exe.
	var binPrefix string
	for _, file := range reader.File {
		if idx := strings.Index(file.Name, "/bin/ffmpeg"); idx >= 0 {
			binPrefix = file.Name[:idx] + "/bin/"
			break
		}
	}
	if binPrefix == "" {
		return fmt.Errorf("no bin directory in %s", filepath.Base(archive))
	}

	for _, file := range reader.File {
		rel := strings.TrimPrefix(file.Name, binPrefix)
		if rel == file.Name || rel == "" || file.FileInfo().IsDir() {
			continue
		}
		if err := copyZipFile(file, filepath.Join(dir, rel)); err != nil {
			return err
		}
	}
	return nil
}

func copyZipFile(file *zip.File, dest string) error {
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return nil
}
