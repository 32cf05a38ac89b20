// Package writer builds and runs the video encoder/muxer. Configuration is
// validated up front and never touches the filesystem; opening the output is
// a separate, later step so config can be unit-tested in isolation.
package writer

import (
	"errors"
	"fmt"

	"github.com/reelcap/reelcap/internal/config"
)

var (
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrOpenFailed      = errors.New("writer open failed")
	ErrAppendFailed    = errors.New("writer append failed")
	ErrCloseFailed     = errors.New("writer close failed")
)

// Geometry describes the incoming frame shape as reported by the capture
// configuration.
type Geometry struct {
	Width  int
	Height int
	HDR    bool
	Scale  float64 // retina backing scale; 0 means 1
}

// Config is the user-selected format, immutable once a session starts.
type Config struct {
	Container config.Container
	Codec     config.VideoCodec
	Quality   float64 // (0, 1]
	FrameRate int
}

// Spec is the fully derived writer configuration the orchestrator uses to
// open the output. Immutable once built.
type Spec struct {
	Container        config.Container
	Codec            config.VideoCodec
	Width            int
	Height           int
	FrameRate        int
	BitrateBps       int
	KeyframeInterval int // frames
	HDRTagging       bool
	PixelFormat      string
}

// Build derives a writer spec from format settings and frame geometry.
// Container and codec selection are total mappings; HDR colour tagging is
// engaged only for h265 sources that report high dynamic range. Non-positive
// geometry or frame rate is rejected before anything is opened.
func Build(streamType string, cfg Config, geo Geometry) (*Spec, error) {
	if geo.Width <= 0 || geo.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, geo.Width, geo.Height)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: frame rate %d", ErrInvalidGeometry, cfg.FrameRate)
	}
	if cfg.Quality <= 0 || cfg.Quality > 1 {
		return nil, fmt.Errorf("%w: quality %v", ErrInvalidGeometry, cfg.Quality)
	}

	scale := geo.Scale
	if scale <= 0 {
		scale = 1
	}
	width := int(float64(geo.Width) * scale)
	height := int(float64(geo.Height) * scale)

	spec := &Spec{
		Container:        cfg.Container,
		Codec:            cfg.Codec,
		Width:            width,
		Height:           height,
		FrameRate:        cfg.FrameRate,
		BitrateBps:       targetBitrate(width, height, cfg.FrameRate, cfg.Quality),
		KeyframeInterval: cfg.FrameRate * 2,
		PixelFormat:      "yuv420p",
	}

	if cfg.Codec == config.CodecH265 && geo.HDR {
		spec.HDRTagging = true
		spec.PixelFormat = "p010le"
	}
	_ = streamType // all stream types share the same video path today
	return spec, nil
}

// targetBitrate scales a perceptual baseline of ~0.1 bits per pixel per
// frame by the quality factor.
func targetBitrate(width, height, fps int, quality float64) int {
	base := float64(width*height*fps) * 0.1
	bps := int(base * quality)
	const floor = 1_000_000
	if bps < floor {
		bps = floor
	}
	return bps
}

// EncoderName maps the codec to its ffmpeg encoder.
func (s *Spec) EncoderName() string {
	if s.Codec == config.CodecH265 {
		return "libx265"
	}
	return "libx264"
}

// ContainerFormat maps the container to its ffmpeg muxer name. A total,
// side-effect-free mapping.
func (s *Spec) ContainerFormat() string {
	if s.Container == config.ContainerMOV {
		return "mov"
	}
	return "mp4"
}

// Extension returns the output file extension including the dot.
func (s *Spec) Extension() string {
	if s.Container == config.ContainerMOV {
		return ".mov"
	}
	return ".mp4"
}
