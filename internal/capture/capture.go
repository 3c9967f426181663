package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"bitzomax/internal/logging"
	"bitzomax/internal/transcoder"
)

var log = logging.For("capture")

// encoderFor maps recorder MIME types to ffmpeg encoder names.
var encoderFor = map[string]string{
	transcoder.MimeVP9: "libvpx-vp9",
	transcoder.MimeVP8: "libvpx",
}

// Config locates the ffmpeg binaries.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// TempDir receives spooled in-memory uploads. Empty means os.TempDir().
	TempDir string
	// FrameRate is the rate frames are decoded and captured at.
	FrameRate int
}

// FFmpeg is a transcoder.MediaCapture backed by ffmpeg subprocesses.
type FFmpeg struct {
	cfg Config

	encodersOnce sync.Once
	encoders     map[string]bool

	processes map[*exec.Cmd]string
	processMu sync.Mutex
}

var _ transcoder.MediaCapture = (*FFmpeg)(nil)

// New creates an FFmpeg capture facade.
func New(cfg Config) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return &FFmpeg{
		cfg:       cfg,
		processes: make(map[*exec.Cmd]string),
	}
}

// Available reports whether both binaries can be found.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.cfg.FFmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(f.cfg.FFprobePath)
	return err == nil
}

type source struct {
	path string
	temp bool
	info *transcoder.SourceInfo
	mu   sync.Mutex
}

func (s *source) URL() string {
	return "file://" + s.path
}

func asSource(src transcoder.Source) (*source, error) {
	s, ok := src.(*source)
	if !ok || s == nil {
		return nil, fmt.Errorf("capture: foreign source %T", src)
	}
	return s, nil
}

// Open materializes file as a readable path.
func (f *FFmpeg) Open(ctx context.Context, file *transcoder.File) (transcoder.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if file.Path != "" {
		if _, err := os.Stat(file.Path); err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		return &source{path: file.Path}, nil
	}
	if len(file.Data) == 0 {
		return nil, errors.New("capture: file has neither path nor data")
	}

	tmp, err := os.CreateTemp(f.cfg.TempDir, "bitzomax-src-*")
	if err != nil {
		return nil, fmt.Errorf("capture: spool upload: %w", err)
	}
	if _, err := tmp.Write(file.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("capture: spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("capture: spool upload: %w", err)
	}
	return &source{path: tmp.Name(), temp: true}, nil
}

// Revoke releases src. Spooled copies are deleted.
func (f *FFmpeg) Revoke(src transcoder.Source) {
	s, err := asSource(src)
	if err != nil || !s.temp {
		return
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove spooled source %s: %v", s.path, err)
	}
}

type probeOutput struct {
	Streams []struct {
		Width        int `json:"width"`
		Height       int `json:"height"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
		Tags struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the dimensions and duration of the first video stream.
func (f *FFmpeg) Probe(ctx context.Context, src transcoder.Source) (transcoder.SourceInfo, error) {
	s, err := asSource(src)
	if err != nil {
		return transcoder.SourceInfo{}, err
	}

	cmd := exec.CommandContext(ctx, f.cfg.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-print_format", "json",
		s.path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return transcoder.SourceInfo{}, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := parseProbe(stdout.Bytes())
	if err != nil {
		return transcoder.SourceInfo{}, err
	}

	s.mu.Lock()
	s.info = &info
	s.mu.Unlock()
	return info, nil
}

func parseProbe(data []byte) (transcoder.SourceInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return transcoder.SourceInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return transcoder.SourceInfo{}, errors.New("no video stream")
	}

	stream := out.Streams[0]
	info := transcoder.SourceInfo{
		Width:  stream.Width,
		Height: stream.Height,
	}

	// ffmpeg autorotates on decode, so report the displayed size.
	rotation := 0.0
	for _, sd := range stream.SideDataList {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
			break
		}
	}
	if rotation == 0 && stream.Tags.Rotate != "" {
		if r, err := strconv.ParseFloat(stream.Tags.Rotate, 64); err == nil {
			rotation = r
		}
	}
	if quarterTurn(rotation) {
		info.Width, info.Height = info.Height, info.Width
	}

	if out.Format.Duration != "" {
		secs, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err == nil && secs > 0 {
			info.Duration = secondsToDuration(secs)
		}
	}
	return info, nil
}

// quarterTurn reports whether a rotation in degrees is an odd multiple of 90.
func quarterTurn(degrees float64) bool {
	turns := int(math.Round(degrees/90)) % 4
	return turns == 1 || turns == -1 || turns == 3 || turns == -3
}

// SupportsType reports whether ffmpeg has an encoder for mimeType.
func (f *FFmpeg) SupportsType(mimeType string) bool {
	f.encodersOnce.Do(func() {
		f.encoders = f.listEncoders()
	})

	if mimeType == transcoder.MimeWebM {
		return f.encoders["libvpx-vp9"] || f.encoders["libvpx"]
	}
	name, ok := encoderFor[mimeType]
	return ok && f.encoders[name]
}

func (f *FFmpeg) listEncoders() map[string]bool {
	out, err := exec.Command(f.cfg.FFmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		log.Warn("unable to list ffmpeg encoders: %v", err)
		return map[string]bool{}
	}
	return parseEncoders(out)
}

// parseEncoders reads the table printed by `ffmpeg -encoders`. Each row is
// a flags column followed by the encoder name.
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	pastHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !pastHeader {
			pastHeader = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

// CreateSurface allocates a width×height RGBA raster.
func (f *FFmpeg) CreateSurface(width, height int) (transcoder.Surface, error) {
	return NewSurface(width, height)
}

func (f *FFmpeg) track(cmd *exec.Cmd, label string) {
	f.processMu.Lock()
	f.processes[cmd] = label
	f.processMu.Unlock()
}

func (f *FFmpeg) untrack(cmd *exec.Cmd) {
	f.processMu.Lock()
	delete(f.processes, cmd)
	f.processMu.Unlock()
}

// Cleanup kills every ffmpeg process still running.
func (f *FFmpeg) Cleanup() {
	f.processMu.Lock()
	defer f.processMu.Unlock()

	for cmd, label := range f.processes {
		if cmd.Process != nil {
			log.Info("Killing ffmpeg process for: %s", label)
			if err := cmd.Process.Kill(); err != nil {
				log.Warn("failed to kill ffmpeg process for %s: %v", label, err)
			}
		}
	}
}
