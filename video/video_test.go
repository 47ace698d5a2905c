package video

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

// TestParseFrameRate verifies rational frame rate parsing
func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
		{"", 0},
	}

	for _, tt := range tests {
		got := parseFrameRate(tt.input)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v; want %v", tt.input, got, tt.want)
		}
	}
}

// TestProbeOutputParsing verifies ffprobe JSON decoding
func TestProbeOutputParsing(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001", "nb_frames": "900"},
			{"codec_type": "audio"}
		],
		"format": {"duration": "30.030000"}
	}`

	var parsed probeOutput
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("json.Unmarshal error = %v", err)
	}

	if len(parsed.Streams) != 2 {
		t.Fatalf("parsed %d streams; want 2", len(parsed.Streams))
	}
	if parsed.Streams[0].Width != 1920 || parsed.Streams[0].Height != 1080 {
		t.Errorf("video stream = %dx%d; want 1920x1080", parsed.Streams[0].Width, parsed.Streams[0].Height)
	}
	if parsed.Streams[1].CodecType != "audio" {
		t.Errorf("second stream codec_type = %q; want audio", parsed.Streams[1].CodecType)
	}
	if parsed.Format.Duration != "30.030000" {
		t.Errorf("format duration = %q; want 30.030000", parsed.Format.Duration)
	}
}

// TestExtractArgs verifies the raw extraction command line
func TestExtractArgs(t *testing.T) {
	args := extractArgs("/video/in.mp4", 300, 100, 30)

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-ss 10.000000") {
		t.Errorf("extractArgs should seek to 10s for frame 300 at 30fps; got %q", joined)
	}
	if !strings.Contains(joined, "-frames:v 100") {
		t.Errorf("extractArgs should limit to 100 frames; got %q", joined)
	}
	if !strings.Contains(joined, "-pix_fmt rgb24") {
		t.Errorf("extractArgs should request rgb24; got %q", joined)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("extractArgs should output to pipe:1; got %q", args[len(args)-1])
	}
}

// TestExtractArgsNoSeekAtStart verifies frame 0 skips the seek flag
func TestExtractArgsNoSeekAtStart(t *testing.T) {
	args := extractArgs("/video/in.mp4", 0, 50, 30)
	for _, a := range args {
		if a == "-ss" {
			t.Error("extractArgs should not seek when starting at frame 0")
		}
	}
}

// TestEncodeArgs verifies the chunk encode command line
func TestEncodeArgs(t *testing.T) {
	args := encodeArgs("/tmp/chunk_000.mp4", 3840, 1080, 29.97, EncoderSettings{
		Codec:  "libx265",
		CRF:    20,
		Preset: "fast",
	})

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-s 3840x1080") {
		t.Errorf("encodeArgs missing frame size; got %q", joined)
	}
	if !strings.Contains(joined, "-c:v libx265") {
		t.Errorf("encodeArgs missing codec; got %q", joined)
	}
	if !strings.Contains(joined, "-crf 20") {
		t.Errorf("encodeArgs missing crf; got %q", joined)
	}
	if !strings.Contains(joined, "-preset fast") {
		t.Errorf("encodeArgs missing preset; got %q", joined)
	}
	if !strings.Contains(joined, "-i pipe:0") {
		t.Errorf("encodeArgs should read from pipe:0; got %q", joined)
	}
	if args[len(args)-1] != "/tmp/chunk_000.mp4" {
		t.Errorf("encodeArgs last arg = %q; want output path", args[len(args)-1])
	}
}

// TestEncodeArgsDefaults verifies fallback encoder settings
func TestEncodeArgsDefaults(t *testing.T) {
	args := encodeArgs("/tmp/out.mp4", 1280, 720, 24, EncoderSettings{})

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-c:v libx265") {
		t.Errorf("default codec should be libx265; got %q", joined)
	}
	if !strings.Contains(joined, "-crf 23") {
		t.Errorf("default crf should be 23; got %q", joined)
	}
	if !strings.Contains(joined, "-preset medium") {
		t.Errorf("default preset should be medium; got %q", joined)
	}
}

// TestConcatArgs verifies lossless concatenation flags
func TestConcatArgs(t *testing.T) {
	args := concatArgs("/tmp/list.txt", "/tmp/out.mp4")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-f concat") {
		t.Errorf("concatArgs missing concat demuxer; got %q", joined)
	}
	if !strings.Contains(joined, "-c copy") {
		t.Errorf("concatArgs should stream-copy; got %q", joined)
	}
}

// TestRemuxArgs verifies audio mapping flags
func TestRemuxArgs(t *testing.T) {
	args := remuxArgs("/tmp/video.mp4", "/in/source.mp4", "/out/final.mp4")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-map 0:v:0") {
		t.Errorf("remuxArgs should map video from first input; got %q", joined)
	}
	if !strings.Contains(joined, "-map 1:a:0") {
		t.Errorf("remuxArgs should map audio from second input; got %q", joined)
	}
	if !strings.Contains(joined, "-c copy") {
		t.Errorf("remuxArgs should stream-copy; got %q", joined)
	}
}
