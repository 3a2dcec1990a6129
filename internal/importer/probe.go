package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/cinequeue/cinequeue/internal/catalog"
)

// Prober extracts technical metadata from a media file, the bounded-
// timeout probe of spec.md §4.7 step 2. Grounded on the teacher's
// internal/mediainfo.Service, trimmed to the ffprobe path only (the
// teacher's mediainfo-CLI-vs-ffprobe fallback selection is out of scope
// for a single-container build where ffprobe is the one dependency this
// module asks operators to install).
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber builds a Prober. ffprobePath may be empty to search PATH.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath, timeout: 30 * time.Second}
}

// Available reports whether the configured ffprobe binary is runnable.
func (p *Prober) Available() bool {
	_, err := exec.LookPath(p.ffprobePath)
	return err == nil
}

// Probe runs ffprobe against path and returns the catalog's MediaInfo
// shape directly, so the pipeline never needs an intermediate type.
func (p *Prober) Probe(ctx context.Context, path string) (catalog.MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return catalog.MediaInfo{}, fmt.Errorf("ffprobe: %w: %s", err, stderr.String())
	}
	return parseFFprobeJSON(stdout.Bytes())
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
}

func parseFFprobeJSON(data []byte) (catalog.MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return catalog.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := catalog.MediaInfo{Container: out.Format.FormatName}
	if out.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			info.RuntimeSecs = int(secs)
		}
	}

	var sawVideo, sawAudio bool
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if sawVideo {
				continue
			}
			sawVideo = true
			info.VideoCodec = s.CodecName
			if s.Width > 0 && s.Height > 0 {
				info.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
			}
		case "audio":
			if sawAudio {
				continue
			}
			sawAudio = true
			info.AudioCodec = s.CodecName
			info.AudioChannels = s.Channels
		}
	}
	return info, nil
}
