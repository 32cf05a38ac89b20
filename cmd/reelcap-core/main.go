// reelcap-core is the headless recording daemon. It owns the capture and
// encode pipeline and is driven by file-based commands from the UI process;
// lifecycle events stream out over a local websocket.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/internal/audioengine"
	"github.com/reelcap/reelcap/internal/config"
	"github.com/reelcap/reelcap/internal/device"
	"github.com/reelcap/reelcap/internal/diaglog"
	"github.com/reelcap/reelcap/internal/events"
	"github.com/reelcap/reelcap/internal/ipc"
	"github.com/reelcap/reelcap/internal/orchestrator"
	"github.com/reelcap/reelcap/internal/pidfile"
	"github.com/reelcap/reelcap/internal/session"
	"github.com/reelcap/reelcap/internal/statemachine"
	"github.com/reelcap/reelcap/internal/writer"
)

// version is overridden at link time.
var version = "0.1.0-dev"

const commandPollInterval = 200 * time.Millisecond

var (
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "reelcap-core",
	Short: "Screen and audio recording daemon",
	Long: `reelcap-core records the screen, individual windows or system audio
into mp4/mov/m4a outputs. It runs headless: the UI process sends commands
through the cache directory and subscribes to lifecycle events over a local
websocket.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verboseLevel)
	},
}

func main() {
	diaglog.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is ~/.config/reelcap/settings.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(diagCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}

func settingsPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// ── record ───────────────────────────────────────────────────────────────────

var (
	flagWidth      int
	flagHeight     int
	flagScale      float64
	flagHDR        bool
	flagStdinVideo bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run the recording daemon",
	Long: `Run the daemon loop: poll for commands, watch the settings file and
drive recording sessions. With --stdin-video, raw BGRA frames of the given
geometry are read from stdin and fed to the encoder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	recordCmd.Flags().IntVar(&flagWidth, "width", 1920, "capture width in points")
	recordCmd.Flags().IntVar(&flagHeight, "height", 1080, "capture height in points")
	recordCmd.Flags().Float64Var(&flagScale, "scale", 1, "backing scale factor")
	recordCmd.Flags().BoolVar(&flagHDR, "hdr", false, "source reports high dynamic range")
	recordCmd.Flags().BoolVar(&flagStdinVideo, "stdin-video", false, "read raw BGRA frames from stdin")
}

// daemon bundles the long-lived pipeline pieces for the record loop.
type daemon struct {
	orch   *orchestrator.Orchestrator
	engine *audioengine.Engine
	hub    *events.Hub
	dlog   *diaglog.Logger

	epoch time.Time

	mu       sync.Mutex
	settings config.Settings

	stopFrames chan struct{}
}

// clock is the raw capture clock all timestamps are expressed in.
func (d *daemon) clock() time.Duration {
	return time.Since(d.epoch)
}

func (d *daemon) currentSettings() config.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *daemon) updateSettings(s config.Settings) {
	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
	// Device and AEC changes apply to the next engine start; an active
	// session keeps the snapshot it was prepared with.
	d.engine.SetInputDevice(s.Microphone)
	d.engine.SetCameraDevice(s.Camera)
	d.engine.SetAECEnabled(s.AECEnabled)
	slog.Info("settings reloaded")
}

func runDaemon() error {
	settings, err := config.Load(settingsPath())
	if err != nil {
		return err
	}

	if probe := writer.ProbeFFmpeg(); !probe.OK {
		for _, issue := range probe.Issues {
			slog.Error("encoder probe failed", "issue", issue)
		}
		for _, fix := range probe.Fixes {
			slog.Info("suggested fix", "fix", fix)
		}
		return fmt.Errorf("encoder toolchain unusable: %s", probe.Message)
	}

	pf, err := pidfile.Acquire(pidfile.Path("reelcap-core"))
	if err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	dlog, err := diaglog.New(diaglog.DefaultPath())
	if err != nil {
		slog.Warn("diagnostic log unavailable", "error", err)
		dlog = diaglog.NewNoOp()
	}
	defer func() { _ = dlog.Close() }()

	enum, err := device.NewMalgoEnumerator()
	if err != nil {
		return err
	}
	defer enum.Close()
	registry := device.NewRegistry(enum)

	engine := audioengine.New(registry)
	hub := events.NewHub()
	defer hub.Close()

	d := &daemon{
		orch:     orchestrator.New(engine, hub, dlog),
		engine:   engine,
		hub:      hub,
		dlog:     dlog,
		epoch:    time.Now(),
		settings: settings,
	}
	d.updateSettings(settings)

	if settings.TapDumpPath != "" {
		tap, err := audioengine.NewTapDump(settings.TapDumpPath, audioengine.DefaultSampleRate, 2)
		if err != nil {
			slog.Warn("tap dump unavailable", "path", settings.TapDumpPath, "error", err)
		} else {
			engine.SetTapDump(tap)
		}
	}

	// Input capture is labelled by session shape; the loopback capture, when
	// running, always carries the system mix.
	engine.SetSampleSink(func(pcm []byte, _ uint32) {
		s := d.orch.Session()
		if s == nil {
			return
		}
		source := captureSourceFor(s.StreamType, d.currentSettings().RecordMic)
		_ = d.orch.AppendAudioSample(source, pcm, d.clock())
	})
	engine.SetLoopbackSink(func(pcm []byte, _ uint32) {
		_ = d.orch.AppendAudioSample(orchestrator.SourceSystem, pcm, d.clock())
	})

	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	srv := &http.Server{Addr: settings.EventAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("event hub server stopped", "error", err)
		}
	}()
	defer func() { _ = srv.Close() }()

	watchStop := make(chan struct{})
	defer close(watchStop)
	go func() {
		if err := config.Watch(settingsPath(), d.updateSettings, watchStop); err != nil {
			slog.Warn("settings watch unavailable", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	dlog.Log(diaglog.LogEntry{Component: diaglog.ComponentCore, Event: diaglog.EventEngineStart,
		Payload: map[string]interface{}{"version": version}})
	slog.Info("daemon started", "version", version, "events", settings.EventAddr)

	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			slog.Info("shutting down")
			d.stopActiveSession()
			return nil

		case <-ticker.C:
			cmd, err := ipc.ReadCommand()
			if err != nil {
				slog.Warn("command read failed", "error", err)
				continue
			}
			if cmd == "" {
				continue
			}
			if quit := d.dispatch(cmd); quit {
				return nil
			}
		}
	}
}

// dispatch runs one UI command. Returns true on quit.
func (d *daemon) dispatch(cmd ipc.Command) bool {
	slog.Debug("command received", "command", string(cmd))
	switch cmd {
	case ipc.CmdStart:
		if err := d.startSession(); err != nil {
			slog.Error("session start failed", "error", err)
			d.orch.Abort(err.Error())
			d.engine.Stop()
		}
	case ipc.CmdStop:
		d.stopActiveSession()
	case ipc.CmdPause:
		if err := d.orch.Pause(d.clock()); err != nil {
			slog.Warn("pause rejected", "error", err)
		}
	case ipc.CmdResume:
		if err := d.orch.Resume(d.clock()); err != nil {
			slog.Warn("resume rejected", "error", err)
		}
	case ipc.CmdMute:
		if s := d.orch.Session(); s != nil {
			d.orch.SetMuted(!s.IsMuted)
		}
	case ipc.CmdAbort:
		d.abortActiveSession("user requested abort")
	case ipc.CmdQuit:
		d.stopActiveSession()
		return true
	default:
		slog.Warn("unknown command ignored", "command", string(cmd))
	}
	return false
}

func (d *daemon) startSession() error {
	settings := d.currentSettings()
	if err := d.orch.Prepare(settings); err != nil {
		return err
	}

	streamType, _ := session.ParseStreamType(settings.StreamType)
	needsEngine := streamType.IsAudioOnly() || settings.RecordMic

	if streamType.IsAudioOnly() {
		if err := d.orch.PrepareAudioRecording(); err != nil {
			return err
		}
	} else {
		geo := writer.Geometry{Width: flagWidth, Height: flagHeight, HDR: flagHDR, Scale: flagScale}
		if err := d.orch.InitVideo(geo); err != nil {
			return err
		}
	}

	if needsEngine {
		if err := d.engine.Start(); err != nil {
			return err
		}
	}
	if streamType.IsAudioOnly() && settings.RecordMic {
		// Split-track bundle: the input device feeds the mic member, so the
		// system member needs its own loopback capture.
		if err := d.engine.StartLoopback(); err != nil {
			slog.Warn("system loopback capture unavailable, system track will be silent", "error", err)
		}
	}

	if err := d.orch.Start(d.clock()); err != nil {
		return err
	}

	if flagStdinVideo && !streamType.IsAudioOnly() {
		d.startFrameReader()
	}
	return nil
}

// captureSourceFor labels PCM from the bound input device for a session
// shape. The input is the system feed only for audio-only sessions without a
// microphone track; once record_mic is set the input is the microphone and
// the system member is fed by the loopback capture instead.
func captureSourceFor(t session.StreamType, recordMic bool) orchestrator.AudioSource {
	if t.IsAudioOnly() && !recordMic {
		return orchestrator.SourceSystem
	}
	return orchestrator.SourceMicrophone
}

// startFrameReader feeds raw BGRA stdin frames into the session until EOF or
// the session ends.
func (d *daemon) startFrameReader() {
	frameSize := int(float64(flagWidth)*scaleOr1()) * int(float64(flagHeight)*scaleOr1()) * 4
	stop := make(chan struct{})
	d.stopFrames = stop

	go func() {
		buf := make([]byte, frameSize)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := io.ReadFull(os.Stdin, buf); err != nil {
				if err != io.EOF {
					slog.Warn("frame input ended", "error", err)
				}
				return
			}
			frame := make([]byte, frameSize)
			copy(frame, buf)
			_ = d.orch.AppendVideoFrame(frame, d.clock())
		}
	}()
}

func scaleOr1() float64 {
	if flagScale > 0 {
		return flagScale
	}
	return 1
}

func (d *daemon) stopFrameReader() {
	if d.stopFrames != nil {
		close(d.stopFrames)
		d.stopFrames = nil
	}
}

func (d *daemon) stopActiveSession() {
	if d.orch.State() != statemachine.StateRecording && d.orch.State() != statemachine.StatePaused {
		return
	}
	d.stopFrameReader()
	d.engine.Stop()
	if err := d.orch.Finalize(); err != nil {
		slog.Error("finalize failed, outputs kept for recovery", "error", err)
	}
}

func (d *daemon) abortActiveSession(reason string) {
	d.stopFrameReader()
	d.engine.Stop()
	d.orch.Abort(reason)
}

// ── devices ──────────────────────────────────────────────────────────────────

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		enum, err := device.NewMalgoEnumerator()
		if err != nil {
			return err
		}
		defer enum.Close()
		registry := device.NewRegistry(enum)

		mics := registry.ListMicrophones()
		if len(mics) == 0 {
			fmt.Println("no microphones found")
			return nil
		}
		fmt.Println("Microphones:")
		for _, m := range mics {
			marker := " "
			if m.IsDefault {
				marker = "*"
			}
			if m.SampleRate > 0 {
				fmt.Printf("  %s %s (%d Hz)\n", marker, m.LocalizedName, m.SampleRate)
			} else {
				fmt.Printf("  %s %s\n", marker, m.LocalizedName)
			}
		}
		return nil
	},
}

// ── probe ────────────────────────────────────────────────────────────────────

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check the encoder toolchain",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := writer.ProbeFFmpeg()
		fmt.Println(result.Message)
		for _, issue := range result.Issues {
			fmt.Println("  issue:", issue)
		}
		for _, fix := range result.Fixes {
			fmt.Println("  fix:", fix)
		}
		if !result.OK {
			os.Exit(1)
		}
		return nil
	},
}

// ── diag ─────────────────────────────────────────────────────────────────────

var diagDest string

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Export the diagnostic log bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, lines, err := diaglog.Export(diaglog.DefaultPath(), diagDest)
		if err != nil {
			return err
		}
		fmt.Printf("exported %d entries to %s\n", lines, path)
		return nil
	},
}

func init() {
	diagCmd.Flags().StringVarP(&diagDest, "dest", "d", ".", "destination directory")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reelcap-core %s\n", version)
	},
}
