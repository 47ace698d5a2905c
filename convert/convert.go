// Package convert orchestrates a 2D to stereoscopic 3D conversion. A
// Session owns the depth source and a pool of reprojection engines and
// exposes one-shot image conversion and chunked, resumable video
// conversion built on ffmpeg and the checkpoint store.
package convert

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/stevecastle/yoro/appconfig"
	"github.com/stevecastle/yoro/camera"
	"github.com/stevecastle/yoro/checkpoint"
	"github.com/stevecastle/yoro/depth"
	"github.com/stevecastle/yoro/frame"
	"github.com/stevecastle/yoro/platform"
	"github.com/stevecastle/yoro/reproject"
	"github.com/stevecastle/yoro/video"
)

// Session holds the state shared across every frame of a conversion run.
// A session is safe for use by the worker pool it creates internally; the
// exported methods themselves are not meant to be called concurrently.
type Session struct {
	cfg  appconfig.Config
	mode reproject.Mode

	// Resume controls whether ConvertVideo picks up an interrupted job
	// from the checkpoint store. Defaults to true.
	Resume bool

	srcMu    sync.Mutex
	source   depth.Source
	fellBack bool
}

// NewSession validates the config, selects the depth source, and returns
// a ready session. Close must be called when the session is done.
func NewSession(cfg appconfig.Config) (*Session, error) {
	if err := appconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("convert: invalid config: %w", err)
	}

	mode := reproject.ModeQuality
	if cfg.Mode == "performance" {
		mode = reproject.ModePerformance
	}

	src := depth.Open(depth.ModelOptions{
		ModelPath:            cfg.DepthModel.ModelPath,
		ORTSharedLibraryPath: cfg.DepthModel.ORTSharedLibraryPath,
		InputName:            cfg.DepthModel.InputName,
		OutputName:           cfg.DepthModel.OutputName,
		InputSize:            cfg.DepthModel.InputSize,
		HardwareAcceleration: cfg.DepthModel.HardwareAcceleration,
	})

	return &Session{cfg: cfg, mode: mode, source: src, Resume: true}, nil
}

// Close releases the depth source.
func (s *Session) Close() error {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	if s.source == nil {
		return nil
	}
	err := s.source.Close()
	s.source = nil
	return err
}

// estimateDepth runs the active depth source. An inference failure demotes
// the session to the gradient estimator for all remaining frames; the
// demotion is logged once and never re-evaluated.
func (s *Session) estimateDepth(f *frame.Frame) (frame.DepthMap, error) {
	s.srcMu.Lock()
	src := s.source
	s.srcMu.Unlock()

	d, err := src.EstimateDepth(f)
	if err == nil {
		return d, nil
	}

	s.srcMu.Lock()
	if !s.fellBack {
		s.fellBack = true
		log.Printf("convert: depth estimation failed, falling back to gradient estimator: %v", err)
		src.Close()
		s.source = depth.NewGradient()
	}
	src = s.source
	s.srcMu.Unlock()

	return src.EstimateDepth(f)
}

// newEngine builds a reprojection engine for one worker. Engines reuse
// internal buffers and must not be shared between goroutines.
func (s *Session) newEngine() (*reproject.Engine, error) {
	return reproject.NewEngine(s.mode, s.cfg.ReprojectionScale)
}

// rig returns the stereo camera matrices for a frame of the given
// dimensions.
func (s *Session) rig(width, height int) camera.EyePair {
	return camera.Rig(
		float32(s.cfg.IPD),
		float32(s.cfg.FOVDegrees),
		float32(width)/float32(height),
		float32(s.cfg.NearClip),
		float32(s.cfg.FarClip),
	)
}

// processFrame converts one source frame into a side-by-side stereo frame.
// A degraded frame (zero disparity after a reprojection failure) is still
// returned; only the first degradation per session is logged.
func (s *Session) processFrame(eng *reproject.Engine, f *frame.Frame, eyes camera.EyePair, warnOnce *sync.Once) (*frame.Frame, error) {
	d, err := s.estimateDepth(f)
	if err != nil {
		return nil, err
	}
	out, err := eng.ProcessFrame(f, d, f.Width, f.Height,
		eyes.RightView, eyes.RightProjection, eyes.LeftView, eyes.LeftProjection)
	if err != nil {
		if out == nil {
			return nil, err
		}
		warnOnce.Do(func() {
			log.Printf("convert: %v", err)
		})
	}
	return out, nil
}

// ConvertImage converts a single image file into a side-by-side stereo
// image. The output format follows the output path extension; .jpg and
// .jpeg produce JPEG, anything else PNG.
func (s *Session) ConvertImage(inPath, outPath string) error {
	f, err := frame.Load(inPath)
	if err != nil {
		return fmt.Errorf("convert: load %s: %w", inPath, err)
	}

	eng, err := s.newEngine()
	if err != nil {
		return err
	}

	var warnOnce sync.Once
	out, err := s.processFrame(eng, f, s.rig(f.Width, f.Height), &warnOnce)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".jpg", ".jpeg":
		err = out.SaveJPEG(outPath, 95)
	default:
		err = out.SavePNG(outPath)
	}
	if err != nil {
		return fmt.Errorf("convert: save %s: %w", outPath, err)
	}
	return nil
}

// workers returns the conversion parallelism, substituting the CPU count
// when the config leaves it at zero.
func (s *Session) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.NumCPU()
}

// frameJob is one frame handed to the worker pool during video conversion.
type frameJob struct {
	index int
	f     *frame.Frame
}

// processChunk extracts frameCount frames starting at startFrame, converts
// each through the worker pool, and writes the results in order to a
// freshly encoded chunk file.
func (s *Session) processChunk(ctx context.Context, inPath, chunkPath string, info *video.Info, startFrame, frameCount int, eyes camera.EyePair, warnOnce *sync.Once) (int, error) {
	results := make([]*frame.Frame, frameCount)
	jobs := make(chan frameJob, s.workers())

	var (
		wg      sync.WaitGroup
		procMu  sync.Mutex
		procErr error
	)
	for w := 0; w < s.workers(); w++ {
		eng, err := s.newEngine()
		if err != nil {
			close(jobs)
			return 0, err
		}
		wg.Add(1)
		go func(eng *reproject.Engine) {
			defer wg.Done()
			for j := range jobs {
				out, err := s.processFrame(eng, j.f, eyes, warnOnce)
				if err != nil {
					procMu.Lock()
					if procErr == nil {
						procErr = err
					}
					procMu.Unlock()
					continue
				}
				results[j.index] = out
			}
		}(eng)
	}

	decoded := 0
	extractErr := video.ExtractChunk(ctx, inPath, info, startFrame, frameCount, func(index int, f *frame.Frame) error {
		select {
		case jobs <- frameJob{index: index, f: f.Clone()}:
		case <-ctx.Done():
			return ctx.Err()
		}
		decoded++
		return nil
	})
	close(jobs)
	wg.Wait()

	if extractErr != nil {
		return 0, extractErr
	}
	if procErr != nil {
		return 0, procErr
	}
	if decoded == 0 {
		return 0, nil
	}

	enc, err := video.NewChunkEncoder(ctx, chunkPath, info.Width*2, info.Height, info.FPS, video.EncoderSettings{
		Codec:  s.cfg.Encoder.Codec,
		CRF:    s.cfg.Encoder.CRF,
		Preset: s.cfg.Encoder.Preset,
	})
	if err != nil {
		return 0, err
	}
	for i := 0; i < decoded; i++ {
		if results[i] == nil {
			enc.Close()
			return 0, fmt.Errorf("convert: frame %d of chunk was not produced", startFrame+i)
		}
		if err := enc.WriteFrame(results[i]); err != nil {
			enc.Close()
			return 0, err
		}
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return decoded, nil
}

// ConvertVideo converts a video file into a side-by-side stereo video.
// Work proceeds in chunks of the configured size; completed chunks are
// recorded in the checkpoint store so an interrupted run resumes instead
// of starting over. Audio from the source is remuxed into the output when
// present.
func (s *Session) ConvertVideo(ctx context.Context, inPath, outPath string) error {
	info, err := video.Probe(ctx, inPath)
	if err != nil {
		return err
	}
	if info.FrameCount <= 0 {
		return fmt.Errorf("convert: %s has no video frames", inPath)
	}

	chunkSize := s.cfg.ChunkSize
	totalChunks := (info.FrameCount + chunkSize - 1) / chunkSize

	store, err := checkpoint.Open(s.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("convert: open checkpoint store: %w", err)
	}
	defer store.Close()

	job, resumed, err := store.OpenJob(inPath, outPath, s.cfg.Mode, chunkSize, totalChunks)
	if err != nil {
		return err
	}
	if resumed && !s.Resume {
		if err := store.DeleteJob(job.ID); err != nil {
			return err
		}
		job, resumed, err = store.OpenJob(inPath, outPath, s.cfg.Mode, chunkSize, totalChunks)
		if err != nil {
			return err
		}
	}
	done, err := store.DoneChunks(job.ID)
	if err != nil {
		return err
	}
	if resumed {
		log.Printf("convert: resuming job %s, %d/%d chunks already done", job.ID, len(done), totalChunks)
	}

	workDir := filepath.Join(platform.GetTempDir(), "job-"+job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("convert: create work dir: %w", err)
	}

	eyes := s.rig(info.Width, info.Height)
	var warnOnce sync.Once

	chunkPaths := make([]string, totalChunks)
	for i := 0; i < totalChunks; i++ {
		if p, ok := done[i]; ok {
			if _, statErr := os.Stat(p); statErr == nil {
				chunkPaths[i] = p
				continue
			}
			// Chunk file was cleaned up since the last run; redo it.
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		startFrame := i * chunkSize
		frameCount := chunkSize
		if startFrame+frameCount > info.FrameCount {
			frameCount = info.FrameCount - startFrame
		}

		chunkPath := filepath.Join(workDir, fmt.Sprintf("chunk_%05d.mp4", i))
		written, err := s.processChunk(ctx, inPath, chunkPath, info, startFrame, frameCount, eyes, &warnOnce)
		if err != nil {
			return fmt.Errorf("convert: chunk %d: %w", i, err)
		}
		if written == 0 {
			// Probe overestimated the frame count; the remaining chunks
			// are empty too.
			chunkPaths = chunkPaths[:i]
			break
		}
		if err := store.MarkChunkDone(job.ID, i, written, chunkPath); err != nil {
			return err
		}
		chunkPaths[i] = chunkPath
		log.Printf("convert: chunk %d/%d done (%d frames)", i+1, totalChunks, written)
	}

	if len(chunkPaths) == 0 {
		return fmt.Errorf("convert: no frames decoded from %s", inPath)
	}

	videoOnly := outPath
	if info.HasAudio {
		videoOnly = filepath.Join(workDir, "video-"+uuid.New().String()+filepath.Ext(outPath))
	}
	if err := video.Concat(ctx, chunkPaths, videoOnly); err != nil {
		return err
	}
	if info.HasAudio {
		if err := video.RemuxAudio(ctx, videoOnly, inPath, outPath); err != nil {
			return err
		}
	}

	if err := store.CompleteJob(job.ID); err != nil {
		return err
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Printf("convert: failed to remove work dir %s: %v", workDir, err)
	}
	return nil
}
