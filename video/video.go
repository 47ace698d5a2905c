// Package video wraps ffmpeg and ffprobe for frame-accurate raw RGB
// extraction, chunk encoding, and stream assembly.
package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stevecastle/yoro/deps"
	"github.com/stevecastle/yoro/frame"
)

// Info describes a probed video stream.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Duration   float64
	HasAudio   bool
}

// EncoderSettings selects the output codec parameters for encoded chunks.
type EncoderSettings struct {
	Codec  string
	CRF    int
	Preset string
}

// ffprobe JSON output shapes
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// probeArgs builds the ffprobe argument list for a source file.
func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	}
}

// Probe inspects a video file and returns its stream parameters.
func Probe(ctx context.Context, path string) (*Info, error) {
	cmd, err := deps.FFprobe(ctx, probeArgs(path)...)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not available: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				info.FPS = parseFrameRate(s.RFrameRate)
				if info.FPS == 0 {
					info.FPS = parseFrameRate(s.AvgFrameRate)
				}
				if n, convErr := strconv.Atoi(s.NbFrames); convErr == nil {
					info.FrameCount = n
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("no video stream found in %s", path)
	}

	if d, convErr := strconv.ParseFloat(parsed.Format.Duration, 64); convErr == nil {
		info.Duration = d
	}

	// Some containers don't record nb_frames; estimate from duration
	if info.FrameCount == 0 && info.FPS > 0 && info.Duration > 0 {
		info.FrameCount = int(info.Duration*info.FPS + 0.5)
	}
	if info.FrameCount == 0 {
		return nil, fmt.Errorf("could not determine frame count for %s", path)
	}

	return info, nil
}

// parseFrameRate converts an ffprobe rational like "30000/1001" to a float.
func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
		return 0
	}
	v, err := strconv.ParseFloat(r, 64)
	if err != nil {
		return 0
	}
	return v
}

// extractArgs builds the ffmpeg argument list for extracting a frame range
// as raw RGB24 on stdout.
func extractArgs(path string, startFrame, frameCount int, fps float64) []string {
	args := []string{"-v", "error"}
	if startFrame > 0 && fps > 0 {
		startTime := float64(startFrame) / fps
		args = append(args, "-ss", strconv.FormatFloat(startTime, 'f', 6, 64))
	}
	args = append(args,
		"-i", path,
		"-frames:v", strconv.Itoa(frameCount),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	return args
}

// ExtractChunk decodes frameCount frames starting at startFrame and invokes
// fn for each decoded frame in order. The frame buffer is reused between
// calls; fn must copy if it retains the data.
func ExtractChunk(ctx context.Context, path string, info *Info, startFrame, frameCount int, fn func(index int, f *frame.Frame) error) error {
	cmd, err := deps.FFmpeg(ctx, extractArgs(path, startFrame, frameCount, info.FPS)...)
	if err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe error: %w", err)
	}

	var errLines []string
	doneErr := make(chan struct{})
	go func() {
		s := bufio.NewScanner(stderr)
		for s.Scan() {
			errLines = append(errLines, s.Text())
		}
		close(doneErr)
	}()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	frameBytes := info.Width * info.Height * frame.BytesPerPixel
	buf := make([]byte, frameBytes)
	f := &frame.Frame{Width: info.Width, Height: info.Height, Pix: buf}

	var fnErr error
	reader := bufio.NewReaderSize(stdout, frameBytes)
	for i := 0; i < frameCount; i++ {
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				// Source had fewer frames than requested; stop cleanly
				break
			}
			fnErr = fmt.Errorf("failed to read frame %d: %w", startFrame+i, err)
			break
		}
		if err := fn(i, f); err != nil {
			fnErr = err
			break
		}
	}

	// Drain remaining output so ffmpeg can exit
	io.Copy(io.Discard, reader)
	waitErr := cmd.Wait()
	<-doneErr

	if fnErr != nil {
		return fnErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg exited with error: %w (%s)", waitErr, strings.Join(errLines, "; "))
	}
	return nil
}

// encodeArgs builds the ffmpeg argument list for encoding raw RGB24 frames
// from stdin into a video file.
func encodeArgs(outPath string, width, height int, fps float64, enc EncoderSettings) []string {
	codec := enc.Codec
	if codec == "" {
		codec = "libx265"
	}
	preset := enc.Preset
	if preset == "" {
		preset = "medium"
	}
	crf := enc.CRF
	if crf <= 0 {
		crf = 23
	}
	return []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "pipe:0",
		"-c:v", codec,
		"-crf", strconv.Itoa(crf),
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		outPath,
	}
}

// ChunkEncoder streams raw frames into an ffmpeg encode process.
type ChunkEncoder struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	errLines *[]string
	doneErr  chan struct{}
	frameLen int
}

// NewChunkEncoder starts an ffmpeg process that encodes written frames to outPath.
func NewChunkEncoder(ctx context.Context, outPath string, width, height int, fps float64, enc EncoderSettings) (*ChunkEncoder, error) {
	cmd, err := deps.FFmpeg(ctx, encodeArgs(outPath, width, height, fps, enc)...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe error: %w", err)
	}

	var errLines []string
	doneErr := make(chan struct{})
	go func() {
		s := bufio.NewScanner(stderr)
		for s.Scan() {
			errLines = append(errLines, s.Text())
		}
		close(doneErr)
	}()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &ChunkEncoder{
		cmd:      cmd,
		stdin:    stdin,
		errLines: &errLines,
		doneErr:  doneErr,
		frameLen: width * height * frame.BytesPerPixel,
	}, nil
}

// WriteFrame streams one raw frame to the encoder.
func (e *ChunkEncoder) WriteFrame(f *frame.Frame) error {
	if len(f.Pix) != e.frameLen {
		return fmt.Errorf("frame is %d bytes, encoder expects %d", len(f.Pix), e.frameLen)
	}
	if _, err := e.stdin.Write(f.Pix); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close finishes the encode and waits for ffmpeg to exit.
func (e *ChunkEncoder) Close() error {
	e.stdin.Close()
	waitErr := e.cmd.Wait()
	<-e.doneErr
	if waitErr != nil {
		return fmt.Errorf("encode failed: %w (%s)", waitErr, strings.Join(*e.errLines, "; "))
	}
	return nil
}

// concatArgs builds the ffmpeg argument list for lossless chunk concatenation.
func concatArgs(listPath, outPath string) []string {
	return []string{
		"-v", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
}

// Concat losslessly joins encoded chunks into a single file.
func Concat(ctx context.Context, chunkPaths []string, outPath string) error {
	if len(chunkPaths) == 0 {
		return fmt.Errorf("no chunks to concatenate")
	}

	listPath := outPath + ".txt"
	var list strings.Builder
	for _, p := range chunkPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd, err := deps.FFmpeg(ctx, concatArgs(listPath, outPath)...)
	if err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("concat failed: %w (%s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// remuxArgs builds the ffmpeg argument list for copying the audio track from
// the source onto the converted video.
func remuxArgs(videoPath, sourcePath, outPath string) []string {
	return []string{
		"-v", "error",
		"-y",
		"-i", videoPath,
		"-i", sourcePath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
		"-shortest",
		outPath,
	}
}

// RemuxAudio copies the audio stream from sourcePath onto videoPath,
// producing outPath. Streams are copied without re-encoding.
func RemuxAudio(ctx context.Context, videoPath, sourcePath, outPath string) error {
	cmd, err := deps.FFmpeg(ctx, remuxArgs(videoPath, sourcePath, outPath)...)
	if err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("audio remux failed: %w (%s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}
