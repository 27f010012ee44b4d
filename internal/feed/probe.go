package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata is the technical audio metadata of one file.
type Metadata struct {
	Codec       string  `json:"codec"`
	SampleRate  int     `json:"samplerate"`
	Container   string  `json:"container"`
	DurationSec float64 `json:"duration_sec"`
}

// Prober extracts audio metadata from a file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// FFProbe shells out to ffprobe with its own timeout, independent of any
// HTTP client deadline.
type FFProbe struct {
	Binary  string
	Timeout time.Duration
}

func NewFFProbe(timeout time.Duration) *FFProbe {
	return &FFProbe{Binary: "ffprobe", Timeout: timeout}
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

func (f *FFProbe) Probe(ctx context.Context, path string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, f.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("parsing ffprobe output for %s: %w", path, err)
	}

	meta := Metadata{
		// format_name can be a list like "mov,mp4,m4a"; the first entry is
		// the canonical container
		Container: strings.SplitN(parsed.Format.FormatName, ",", 2)[0],
	}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		meta.DurationSec = d
	}
	for _, s := range parsed.Streams {
		if s.CodecType != "audio" {
			continue
		}
		meta.Codec = s.CodecName
		if sr, err := strconv.Atoi(s.SampleRate); err == nil {
			meta.SampleRate = sr
		}
		break
	}
	if meta.Codec == "" {
		return Metadata{}, fmt.Errorf("ffprobe %s: no audio stream", path)
	}
	return meta, nil
}

// mimeFor maps a probed codec/container pair to a MIME type, defaulting to
// audio/mpeg.
func mimeFor(codec, container string) string {
	switch codec {
	case "flac":
		return "audio/flac"
	case "vorbis":
		return "audio/ogg"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/mp4"
	case "pcm_s16le", "pcm_s24le", "pcm_f32le":
		return "audio/x-wav"
	case "mp3":
		return "audio/mpeg"
	}
	switch container {
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/x-wav"
	case "flac":
		return "audio/flac"
	}
	return "audio/mpeg"
}
