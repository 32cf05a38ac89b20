// Package orchestrator coordinates one recording session end to end: it owns
// the lifecycle state machine, the media writer, the audio engine's files and
// the timestamp rebaser. All public methods are safe for concurrent use; a
// single mutex serialises lifecycle changes while appends stay cheap.
package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/reelcap/reelcap/internal/audioengine"
	"github.com/reelcap/reelcap/internal/config"
	"github.com/reelcap/reelcap/internal/diaglog"
	"github.com/reelcap/reelcap/internal/events"
	"github.com/reelcap/reelcap/internal/fileutil"
	"github.com/reelcap/reelcap/internal/ipc"
	"github.com/reelcap/reelcap/internal/rebase"
	"github.com/reelcap/reelcap/internal/session"
	"github.com/reelcap/reelcap/internal/statemachine"
	"github.com/reelcap/reelcap/internal/writer"
)

var (
	// ErrNoSession reports a lifecycle call with no session prepared.
	ErrNoSession = errors.New("no active session")
)

// appendFailureLimit is the number of consecutive append failures that
// escalates into an abort of the whole session.
const appendFailureLimit = 3

// AudioSource identifies which capture path a PCM buffer came from.
type AudioSource int

const (
	// SourceSystem is the system output loopback.
	SourceSystem AudioSource = iota
	// SourceMicrophone is the bound input device.
	SourceMicrophone
)

// Stream names used for per-stream timestamp monotonicity.
const (
	streamVideo = "video"
	streamSys   = "system"
	streamMic   = "mic"
)

// WriterOpener opens the media writer for a session. Injected so tests can
// substitute a stub for the encoder process.
type WriterOpener func(spec *writer.Spec, path string, mic *writer.AudioFormat) (writer.MediaWriter, error)

// Orchestrator drives a single recording session at a time.
type Orchestrator struct {
	engine     *audioengine.Engine
	hub        *events.Hub
	dlog       *diaglog.Logger
	openWriter WriterOpener

	machine *statemachine.Machine

	mu         sync.Mutex
	sess       *session.Session
	settings   config.Settings
	rebaser    *rebase.Rebaser
	failures   *statemachine.FailureStreak
	audioFiles []*audioengine.AudioFile
	resumeFlag bool
	lastErr    string
}

// New creates an idle orchestrator. hub and dlog may be nil.
func New(engine *audioengine.Engine, hub *events.Hub, dlog *diaglog.Logger) *Orchestrator {
	if dlog == nil {
		dlog = diaglog.NewNoOp()
	}
	return &Orchestrator{
		engine:  engine,
		hub:     hub,
		dlog:    dlog,
		machine: statemachine.New(),
		openWriter: func(spec *writer.Spec, path string, mic *writer.AudioFormat) (writer.MediaWriter, error) {
			return writer.OpenFFmpeg(spec, path, mic)
		},
	}
}

// SetWriterOpener replaces the media writer factory. Takes effect on the next
// prepare.
func (o *Orchestrator) SetWriterOpener(open WriterOpener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openWriter = open
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() statemachine.State {
	return o.machine.Current()
}

// Session returns a copy of the active session, or nil when idle.
func (o *Orchestrator) Session() *session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return nil
	}
	s := *o.sess
	return &s
}

// Prepare validates the settings and destination and creates the session
// aggregate. Legal from idle or aborted; a previous abort is cleared here. No
// writer or audio resource is opened yet, so a validation failure leaves
// nothing to clean up.
func (o *Orchestrator) Prepare(settings config.Settings) error {
	if !o.machine.Is(statemachine.StateIdle, statemachine.StateAborted) {
		return fmt.Errorf("%w: prepare while %s", statemachine.ErrInvalidTransition, o.machine.Current())
	}

	streamType, err := session.ParseStreamType(settings.StreamType)
	if err != nil {
		return err
	}
	if err := session.ValidateDestination(settings.SaveDirectory); err != nil {
		return err
	}

	if err := o.machine.To(statemachine.StatePreparing); err != nil {
		return err
	}

	base := session.BasePath(settings.SaveDirectory, streamType, time.Now())

	o.mu.Lock()
	o.sess = &session.Session{
		StreamType:      streamType,
		OutputDirectory: settings.SaveDirectory,
		BasePath:        base,
	}
	o.settings = settings
	o.rebaser = nil
	o.failures = statemachine.NewFailureStreak(appendFailureLimit)
	o.audioFiles = nil
	o.resumeFlag = false
	o.lastErr = ""
	o.writeStatusLocked()
	o.mu.Unlock()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentOrchestrator,
		Event:     diaglog.EventSessionPrepare,
		SessionID: filepath.Base(base),
		Payload:   map[string]interface{}{"stream_type": string(streamType)},
	})
	o.publish(events.Event{State: events.StatePrepared, Path: base})
	return nil
}

// InitVideo builds the writer spec from the session settings and frame
// geometry and opens the media writer. Legal only while preparing and only
// for stream types that carry video. On failure the partially opened writer
// is closed and the session stays in preparing so the caller can retry or
// abort.
func (o *Orchestrator) InitVideo(geo writer.Geometry) error {
	if !o.machine.Is(statemachine.StatePreparing) {
		return fmt.Errorf("%w: init video while %s", statemachine.ErrInvalidTransition, o.machine.Current())
	}

	o.mu.Lock()
	sess := o.sess
	settings := o.settings
	open := o.openWriter
	o.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	if sess.StreamType.IsAudioOnly() {
		return fmt.Errorf("stream type %s has no video track", sess.StreamType)
	}

	spec, err := writer.Build(string(sess.StreamType), writer.Config{
		Container: settings.Container,
		Codec:     settings.VideoCodec,
		Quality:   settings.VideoQuality,
		FrameRate: settings.FrameRate,
	}, geo)
	if err != nil {
		return err
	}

	var mic *writer.AudioFormat
	if settings.RecordMic {
		mic = &writer.AudioFormat{SampleRate: audioengine.DefaultSampleRate, Channels: 2}
		if o.engine != nil {
			if f := o.engine.CurrentInputFormat(); f != nil {
				mic = &writer.AudioFormat{SampleRate: f.SampleRate, Channels: f.Channels}
			}
		}
	}

	path := sess.BasePath + spec.Extension()
	w, err := open(spec, path, mic)
	if err != nil {
		if w != nil {
			_ = w.Close()
		}
		return err
	}

	o.mu.Lock()
	o.sess.VideoWriter = w
	o.mu.Unlock()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentWriter,
		Event:     diaglog.EventWriterOpen,
		SessionID: filepath.Base(sess.BasePath),
		Payload:   map[string]interface{}{"path": path, "codec": string(spec.Codec)},
	})
	return nil
}

// PrepareAudioRecording resolves the audio file layout and opens every member
// through the audio engine. All-or-nothing: if any member fails to open, the
// ones already opened are released and no paths are recorded on the session.
func (o *Orchestrator) PrepareAudioRecording() error {
	if !o.machine.Is(statemachine.StatePreparing) {
		return fmt.Errorf("%w: prepare audio while %s", statemachine.ErrInvalidTransition, o.machine.Current())
	}
	if o.engine == nil {
		return errors.New("no audio engine configured")
	}

	o.mu.Lock()
	sess := o.sess
	settings := o.settings
	o.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	layout := session.ResolveAudioLayout(sess.BasePath, settings.AudioCodec, settings.RecordMic)

	spec := audioengine.FormatSpec{
		SampleRate:  audioengine.DefaultSampleRate,
		Channels:    2,
		Codec:       settings.AudioCodec,
		BitrateKbps: settings.AudioQuality.BitrateKbps(),
	}
	if f := o.engine.CurrentInputFormat(); f != nil {
		spec.SampleRate = f.SampleRate
		spec.Channels = f.Channels
	}

	var paths []string
	switch layout.Kind {
	case session.LayoutSingle:
		paths = []string{layout.PrimaryPath}
	case session.LayoutPackage:
		if err := os.MkdirAll(layout.PrimaryPath, 0755); err != nil {
			return fmt.Errorf("create audio package: %w", err)
		}
		paths = []string{layout.FilePath1, layout.FilePath2}
	}

	var opened []*audioengine.AudioFile
	for _, p := range paths {
		f, err := o.engine.CreateAudioFile(p, spec)
		if err != nil {
			for _, g := range opened {
				_ = g.Close()
			}
			o.engine.CleanupAudioFiles()
			return err
		}
		opened = append(opened, f)
	}

	o.mu.Lock()
	o.audioFiles = opened
	o.sess.AudioPaths = paths
	o.mu.Unlock()
	return nil
}

// Start moves the session into recording and anchors the rebaser at rawClock,
// the capture clock value at this instant. Every later append is rebased
// against this anchor.
func (o *Orchestrator) Start(rawClock time.Duration) error {
	if err := o.machine.To(statemachine.StateRecording); err != nil {
		return err
	}

	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return ErrNoSession
	}
	o.sess.StartEpoch = time.Now()
	o.rebaser = rebase.New(rawClock)
	base := o.sess.BasePath
	o.writeStatusLocked()
	o.mu.Unlock()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentOrchestrator,
		Event:     diaglog.EventSessionRecord,
		SessionID: filepath.Base(base),
	})
	o.publish(events.Event{State: events.StateRecording, Path: base})
	return nil
}

// AppendVideoFrame rebases raw and hands the frame to the media writer.
// Frames arriving while paused or outside recording are dropped without
// error. Three consecutive writer failures abort the session.
func (o *Orchestrator) AppendVideoFrame(frame []byte, raw time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.machine.Is(statemachine.StateRecording) || o.sess == nil || o.sess.VideoWriter == nil {
		return nil
	}
	pts, ok := o.rebaser.Adjust(streamVideo, raw)
	if !ok {
		return nil
	}
	return o.observeAppendLocked(o.sess.VideoWriter.AppendVideo(frame, pts))
}

// AppendAudioSample routes PCM from the named source into the right sink:
// the muxed track of the video writer, or the matching member file of an
// audio-only session. Samples are dropped while paused, and microphone
// samples are dropped while muted.
func (o *Orchestrator) AppendAudioSample(source AudioSource, pcm []byte, raw time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.machine.Is(statemachine.StateRecording) || o.sess == nil {
		return nil
	}
	if source == SourceMicrophone && o.sess.IsMuted {
		return nil
	}

	if o.sess.StreamType.IsAudioOnly() {
		idx := 0
		stream := streamSys
		if source == SourceMicrophone {
			idx = 1
			stream = streamMic
		}
		if idx >= len(o.audioFiles) {
			return nil
		}
		if _, ok := o.rebaser.Adjust(stream, raw); !ok {
			return nil
		}
		return o.observeAppendLocked(o.audioFiles[idx].Append(pcm))
	}

	// Video sessions carry only the microphone on the muxed track.
	if source != SourceMicrophone || o.sess.VideoWriter == nil {
		return nil
	}
	pts, ok := o.rebaser.Adjust(streamMic, raw)
	if !ok {
		return nil
	}
	return o.observeAppendLocked(o.sess.VideoWriter.AppendAudio(pcm, pts))
}

// observeAppendLocked feeds the append outcome into the failure streak and
// escalates to an abort when the limit is hit. Caller holds o.mu.
func (o *Orchestrator) observeAppendLocked(err error) error {
	if o.failures.Observe(err == nil) {
		o.dlog.Log(diaglog.LogEntry{
			Component: diaglog.ComponentOrchestrator,
			Event:     diaglog.EventAppendDrop,
			SessionID: o.sessionIDLocked(),
			Reason:    fmt.Sprintf("%d consecutive append failures", appendFailureLimit),
		})
		o.abortLocked(fmt.Sprintf("append failures: %v", err))
	}
	return err
}

// Pause suspends the session at rawClock. Legal only while recording.
func (o *Orchestrator) Pause(rawClock time.Duration) error {
	if err := o.machine.To(statemachine.StatePaused); err != nil {
		return err
	}
	o.mu.Lock()
	o.rebaser.Pause(rawClock)
	o.sess.IsPaused = true
	o.resumeFlag = true
	base := o.sess.BasePath
	o.writeStatusLocked()
	o.mu.Unlock()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentOrchestrator,
		Event:     diaglog.EventSessionPause,
		SessionID: filepath.Base(base),
	})
	o.publish(events.Event{State: events.StatePaused, Path: base})
	return nil
}

// Resume continues a paused session at rawClock. The pause interval is
// excised from the output timeline.
func (o *Orchestrator) Resume(rawClock time.Duration) error {
	if !o.machine.Is(statemachine.StatePaused) {
		return fmt.Errorf("%w: resume while %s", statemachine.ErrInvalidTransition, o.machine.Current())
	}
	if err := o.machine.To(statemachine.StateRecording); err != nil {
		return err
	}
	o.mu.Lock()
	o.rebaser.Resume(rawClock)
	o.sess.IsPaused = false
	o.sess.PausedDuration = o.rebaser.PausedDuration()
	discontinuity := o.resumeFlag
	o.resumeFlag = false
	base := o.sess.BasePath
	o.writeStatusLocked()
	o.mu.Unlock()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentOrchestrator,
		Event:     diaglog.EventSessionResume,
		SessionID: filepath.Base(base),
	})
	ev := events.Event{State: events.StateRecording, Path: base}
	if discontinuity {
		// Downstream consumers treat this as a forced discontinuity boundary.
		ev.Reason = "resumed"
	}
	o.publish(ev)
	return nil
}

// SetMuted toggles the microphone track. Muting drops samples; it does not
// stop the capture device, so unmuting is instant.
func (o *Orchestrator) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != nil {
		o.sess.IsMuted = muted
		o.writeStatusLocked()
	}
}

// Finalize stops the session and closes every output in fixed order: the
// media writer first, then the audio files. Close errors are aggregated and
// the session lands in aborted rather than idle, but partial files are always
// left on disk for recovery. A metadata sidecar is written next to the
// primary output.
func (o *Orchestrator) Finalize() error {
	if err := o.machine.To(statemachine.StateFinalizing); err != nil {
		return err
	}

	o.mu.Lock()
	sess := o.sess
	files := o.audioFiles
	settings := o.settings
	o.mu.Unlock()
	if sess == nil {
		_ = o.machine.To(statemachine.StateIdle)
		return ErrNoSession
	}

	var result *multierror.Error
	if sess.VideoWriter != nil {
		if err := sess.VideoWriter.Close(); err != nil {
			result = multierror.Append(result, err)
			o.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentWriter,
				Event:     diaglog.EventWriterCloseFailed,
				SessionID: filepath.Base(sess.BasePath),
				Reason:    err.Error(),
			})
		}
	}
	for _, f := range files {
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if o.engine != nil {
		o.engine.CleanupAudioFiles()
	}

	stopped := time.Now()
	meta := &fileutil.RecordingMetadata{
		Version:          "1",
		StreamType:       string(sess.StreamType),
		StartedAt:        sess.StartEpoch,
		StoppedAt:        stopped,
		Container:        string(settings.Container),
		VideoCodec:       string(settings.VideoCodec),
		AudioCodec:       string(settings.AudioCodec),
		PausedDurationMs: sess.PausedDuration.Milliseconds(),
		Aborted:          result.ErrorOrNil() != nil,
	}
	if !sess.StartEpoch.IsZero() {
		elapsed := stopped.Sub(sess.StartEpoch) - sess.PausedDuration
		meta.Duration = elapsed.Round(time.Millisecond).String()
		meta.DurationMs = elapsed.Milliseconds()
	}
	primary := o.primaryOutput(sess, settings)
	meta.OutputFiles = o.outputFiles(sess, settings)
	if primary != "" {
		if err := fileutil.WriteMetadata(primary, meta); err != nil {
			slog.Warn("metadata sidecar write failed", "error", err)
		}
	}

	finalErr := result.ErrorOrNil()
	next := statemachine.StateIdle
	ev := events.Event{State: events.StateFinalized, Path: primary}
	if finalErr != nil {
		next = statemachine.StateAborted
		ev = events.Event{State: events.StateAborted, Path: primary, Reason: finalErr.Error()}
	}
	_ = o.machine.To(next)

	o.mu.Lock()
	if finalErr != nil {
		o.lastErr = finalErr.Error()
	}
	o.sess = nil
	o.audioFiles = nil
	o.rebaser = nil
	o.writeStatusLocked()
	o.mu.Unlock()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentOrchestrator,
		Event:     diaglog.EventSessionFinalize,
		SessionID: filepath.Base(sess.BasePath),
		Payload:   map[string]interface{}{"output": primary, "clean": finalErr == nil},
	})
	o.publish(ev)
	return finalErr
}

// Abort discards the session, force-closing every resource without flushing.
// Always succeeds; partial files stay on disk. A no-op while idle.
func (o *Orchestrator) Abort(reason string) {
	if o.machine.Is(statemachine.StateIdle) {
		return
	}
	o.mu.Lock()
	o.abortLocked(reason)
	o.mu.Unlock()
}

// abortLocked does the abort work. Caller holds o.mu.
func (o *Orchestrator) abortLocked(reason string) {
	if err := o.machine.To(statemachine.StateAborted); err != nil {
		return
	}

	sess := o.sess
	base := ""
	if sess != nil {
		base = sess.BasePath
		if sess.VideoWriter != nil {
			if killer, ok := sess.VideoWriter.(interface{ Abort() }); ok {
				killer.Abort()
			} else {
				_ = sess.VideoWriter.Close()
			}
		}
	}
	if o.engine != nil {
		o.engine.CleanupAudioFiles()
	}

	o.sess = nil
	o.audioFiles = nil
	o.rebaser = nil
	o.lastErr = reason
	o.writeStatusLocked()

	o.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentOrchestrator,
		Event:     diaglog.EventSessionAbort,
		SessionID: filepath.Base(base),
		Reason:    reason,
	})
	o.publish(events.Event{State: events.StateAborted, Path: base, Reason: reason})
}

// primaryOutput is the path the UI should surface for the finished session.
func (o *Orchestrator) primaryOutput(sess *session.Session, settings config.Settings) string {
	if sess.StreamType.IsAudioOnly() {
		layout := session.ResolveAudioLayout(sess.BasePath, settings.AudioCodec, settings.RecordMic)
		return layout.PrimaryPath
	}
	if w, ok := sess.VideoWriter.(interface{ Path() string }); ok && w != nil {
		return w.Path()
	}
	if len(sess.AudioPaths) > 0 {
		return sess.AudioPaths[0]
	}
	return ""
}

func (o *Orchestrator) outputFiles(sess *session.Session, settings config.Settings) []string {
	if sess.StreamType.IsAudioOnly() {
		return append([]string(nil), sess.AudioPaths...)
	}
	if p := o.primaryOutput(sess, settings); p != "" {
		return []string{p}
	}
	return nil
}

func (o *Orchestrator) sessionIDLocked() string {
	if o.sess == nil {
		return ""
	}
	return filepath.Base(o.sess.BasePath)
}

// writeStatusLocked mirrors the current state to the IPC status file. Caller
// holds o.mu.
func (o *Orchestrator) writeStatusLocked() {
	snap := &ipc.StatusSnapshot{
		SessionState: string(o.machine.Current()),
		LastError:    o.lastErr,
	}
	if o.sess != nil {
		snap.StreamType = string(o.sess.StreamType)
		snap.OutputPath = o.sess.BasePath
		snap.Paused = o.sess.IsPaused
		snap.Muted = o.sess.IsMuted
		snap.StartedAt = o.sess.StartEpoch
		snap.PausedDuration = o.sess.PausedDuration
	}
	if err := ipc.WriteStatus(snap); err != nil {
		slog.Debug("status write failed", "error", err)
	}
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.hub != nil {
		o.hub.Publish(ev)
	}
}
