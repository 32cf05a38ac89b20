// Package config loads and validates recorder settings. Settings are read
// once at startup and re-read between sessions; an active session never sees
// a settings change (the orchestrator snapshots what it needs at prepare).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrUnsupportedFormat reports a container/codec/tier value outside the
	// supported set.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Container is the output container family.
type Container string

const (
	ContainerMP4 Container = "mp4"
	ContainerMOV Container = "mov"
)

// VideoCodec selects the video compression standard.
type VideoCodec string

const (
	CodecH264 VideoCodec = "h264"
	CodecH265 VideoCodec = "h265"
)

// AudioCodec selects the audio encoder.
type AudioCodec string

const (
	AudioAAC  AudioCodec = "aac"
	AudioALAC AudioCodec = "alac"
	AudioFLAC AudioCodec = "flac"
	AudioOpus AudioCodec = "opus"
)

// Lossless reports whether the codec ignores bitrate tiers.
func (c AudioCodec) Lossless() bool {
	return c == AudioALAC || c == AudioFLAC
}

// AudioQuality is the lossy bitrate tier.
type AudioQuality string

const (
	QualityNormal  AudioQuality = "normal"
	QualityGood    AudioQuality = "good"
	QualityHigh    AudioQuality = "high"
	QualityExtreme AudioQuality = "extreme"
)

// BitrateKbps maps the tier to its target bitrate. Only meaningful for lossy
// codecs; lossless encoders ignore it.
func (q AudioQuality) BitrateKbps() int {
	switch q {
	case QualityGood:
		return 192
	case QualityHigh:
		return 256
	case QualityExtreme:
		return 320
	default:
		return 128
	}
}

// Settings is the full option set consumed from the preference layer.
type Settings struct {
	StreamType    string       `mapstructure:"stream_type"`
	Container     Container    `mapstructure:"container"`
	VideoCodec    VideoCodec   `mapstructure:"video_codec"`
	VideoQuality  float64      `mapstructure:"video_quality"` // (0, 1]
	FrameRate     int          `mapstructure:"frame_rate"`
	RecordMic     bool         `mapstructure:"record_mic"`
	AudioCodec    AudioCodec   `mapstructure:"audio_codec"`
	AudioQuality  AudioQuality `mapstructure:"audio_quality"`
	AECEnabled    bool         `mapstructure:"aec_enabled"`
	SaveDirectory string       `mapstructure:"save_directory"`
	Microphone    string       `mapstructure:"microphone"` // saved device name
	Camera        string       `mapstructure:"camera"`
	EventAddr     string       `mapstructure:"event_addr"` // lifecycle event hub bind address
	TapDumpPath   string       `mapstructure:"tap_dump_path"`
}

// Default returns the settings used when no config file exists.
func Default() Settings {
	return Settings{
		StreamType:    "screen",
		Container:     ContainerMP4,
		VideoCodec:    CodecH264,
		VideoQuality:  0.7,
		FrameRate:     60,
		RecordMic:     false,
		AudioCodec:    AudioAAC,
		AudioQuality:  QualityGood,
		AECEnabled:    true,
		SaveDirectory: filepath.Join(os.Getenv("HOME"), "Movies"),
		Microphone:    "default",
		Camera:        "default",
		EventAddr:     "127.0.0.1:43110",
	}
}

// DefaultPath is the standard settings file location.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "reelcap", "settings.yaml")
}

// Load reads settings from path, applying defaults for missing keys. A
// missing file is not an error; defaults are returned.
func Load(path string) (Settings, error) {
	def := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("stream_type", def.StreamType)
	v.SetDefault("container", string(def.Container))
	v.SetDefault("video_codec", string(def.VideoCodec))
	v.SetDefault("video_quality", def.VideoQuality)
	v.SetDefault("frame_rate", def.FrameRate)
	v.SetDefault("record_mic", def.RecordMic)
	v.SetDefault("audio_codec", string(def.AudioCodec))
	v.SetDefault("audio_quality", string(def.AudioQuality))
	v.SetDefault("aec_enabled", def.AECEnabled)
	v.SetDefault("save_directory", def.SaveDirectory)
	v.SetDefault("microphone", def.Microphone)
	v.SetDefault("camera", def.Camera)
	v.SetDefault("event_addr", def.EventAddr)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects option values that cannot be mapped onto an encoder
// configuration. Detected before any resource is opened.
func (s Settings) Validate() error {
	switch s.Container {
	case ContainerMP4, ContainerMOV:
	default:
		return fmt.Errorf("%w: container %q", ErrUnsupportedFormat, s.Container)
	}
	switch s.VideoCodec {
	case CodecH264, CodecH265:
	default:
		return fmt.Errorf("%w: video codec %q", ErrUnsupportedFormat, s.VideoCodec)
	}
	switch s.AudioCodec {
	case AudioAAC, AudioALAC, AudioFLAC, AudioOpus:
	default:
		return fmt.Errorf("%w: audio codec %q", ErrUnsupportedFormat, s.AudioCodec)
	}
	switch s.AudioQuality {
	case QualityNormal, QualityGood, QualityHigh, QualityExtreme:
	default:
		return fmt.Errorf("%w: audio quality %q", ErrUnsupportedFormat, s.AudioQuality)
	}
	if s.VideoQuality <= 0 || s.VideoQuality > 1 {
		return fmt.Errorf("%w: video quality %v outside (0,1]", ErrUnsupportedFormat, s.VideoQuality)
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate %d", ErrUnsupportedFormat, s.FrameRate)
	}
	return nil
}
