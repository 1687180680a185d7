package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lightshow/internal/audio"
	"lightshow/internal/cache"
	"lightshow/internal/config"
	"lightshow/internal/hardware"
	applog "lightshow/internal/log"
	"lightshow/internal/playlist"
	"lightshow/internal/show"
	"lightshow/internal/state"
	"lightshow/internal/transport"
	"lightshow/internal/transport/udp"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Execute loads the configuration and runs the requested command until it
// finishes or ctx is cancelled.
func Execute(ctx context.Context, opts *Options) error {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if lvl, ok := applog.ParseLevel(level); ok {
		applog.SetLevel(lvl)
	} else {
		applog.Warnf("unknown log level %q, using %s", level, applog.GetLevel())
	}
	if opts.Playlist != "" {
		cfg.Lightshow.PlaylistPath = opts.Playlist
	}

	switch opts.Command {
	case CommandDevices:
		devices, err := audio.GetDevices()
		if err != nil {
			return err
		}
		audio.ListDevices(os.Stdout, devices)
		return nil
	case CommandCache:
		return runCache(ctx, cfg, opts)
	}

	// Everything else drives lights.
	lights, closeLights, err := openLights(cfg)
	if err != nil {
		return err
	}
	defer closeLights()

	switch opts.Command {
	case CommandPlay:
		return runPlay(ctx, cfg, opts, lights)
	case CommandClient:
		return runClient(ctx, cfg, lights)
	case CommandAudioIn:
		return runAudioIn(ctx, cfg, lights)
	case CommandLights:
		pub, err := openPublisher(cfg)
		if err != nil {
			return err
		}
		if pub != nil {
			defer pub.Close()
			return show.SwitchLights(lights, pub, opts.LightsOn)
		}
		return show.SwitchLights(lights, nil, opts.LightsOn)
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

// openLights returns the configured channels over the configured pin
// driver. The returned func forces every light dark and releases the driver.
func openLights(cfg *config.Config) (*hardware.Lights, func(), error) {
	driver, err := transport.NewDriver(cfg.Hardware)
	if err != nil {
		return nil, nil, err
	}
	lights := hardware.FromConfig(cfg.Hardware, driver)
	return lights, func() {
		if err := lights.Off(false); err != nil {
			applog.Warnf("turning lights off: %v", err)
		}
		if err := driver.Close(); err != nil {
			applog.Warnf("closing light driver: %v", err)
		}
	}, nil
}

// openPublisher returns the broadcast publisher in server mode, nil
// otherwise.
func openPublisher(cfg *config.Config) (*udp.Publisher, error) {
	if cfg.Network.Mode != config.NetworkServer {
		return nil, nil
	}
	return udp.NewBroadcastPublisher(cfg.Network)
}

func openState(ctx context.Context, cfg *config.Config) (*state.Store, error) {
	st, err := state.Open(cfg.StatePath())
	if err != nil {
		return nil, err
	}
	go func() {
		if err := st.Watch(ctx); err != nil {
			applog.Warnf("State: watching unavailable, reading from disk: %v", err)
		}
	}()
	return st, nil
}

// outputFactory opens PortAudio plus the optional FM pipe and recorder.
func outputFactory(cfg *config.Config) show.OutputFactory {
	return func(sampleRate, channels int) (audio.Output, error) {
		var outs audio.MultiOutput
		fail := func(err error) (audio.Output, error) {
			outs.Close()
			return nil, err
		}

		pa, err := audio.NewPortAudioOutput(cfg.Audio.OutputDevice, sampleRate, channels, cfg.Audio.ChunkSize)
		if err != nil {
			return nil, err
		}
		outs = append(outs, pa)

		if cfg.Audio.FMCommand != "" {
			fm, err := audio.NewPipeOutput(cfg.Audio.FMCommand, sampleRate, channels)
			if err != nil {
				return fail(err)
			}
			outs = append(outs, fm)
		}
		if cfg.Audio.RecordPath != "" {
			rec, err := audio.NewRecorder(cfg.ExpandHome(cfg.Audio.RecordPath), sampleRate, channels)
			if err != nil {
				return fail(err)
			}
			outs = append(outs, rec)
		}
		return outs, nil
	}
}

func runPlay(ctx context.Context, cfg *config.Config, opts *Options, lights *hardware.Lights) error {
	st, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := cache.NewStore()
	if err != nil {
		return err
	}
	defer store.Close()

	engineOpts := show.Options{
		Audio:     cfg.Audio,
		Opener:    audio.FileOpener{},
		Output:    outputFactory(cfg),
		Sink:      lights,
		Cache:     store,
		Interrupt: st,
		ReadCache: opts.ReadCache,
	}
	seq := &show.Sequencer{Sink: lights, Interrupt: st}

	pub, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
		engineOpts.Publisher = pub
		seq.Publisher = pub
	}

	engine, err := show.NewEngine(engineOpts)
	if err != nil {
		return err
	}

	next := func() (string, error) { return opts.File, nil }
	if opts.File == "" {
		selector := playlist.NewSelector(cfg.PlaylistFile(), st, cfg.Lightshow.Randomize, cfg.ExpandHome)
		next = func() (string, error) {
			sel, err := selector.Next()
			return sel.File, err
		}
	}

	s := &show.Show{
		Engine:    engine,
		Sequencer: seq,
		State:     st,
		Next:      next,
		Preshow:   cfg.Lightshow.Preshow,
		Postshow:  cfg.Lightshow.Postshow,
	}

	for {
		res, err := s.PlaySong(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil && (opts.File != "" || errors.Is(err, playlist.ErrEmpty)):
			return err
		case err != nil:
			applog.Errorf("%s: %v", filepath.Base(res.Song), err)
		default:
			applog.Infof("%s %s after %d chunks", filepath.Base(res.Song), res.Outcome, res.Chunks)
		}
		if !opts.Continuous {
			return err
		}
	}
}

func runCache(ctx context.Context, cfg *config.Config, opts *Options) error {
	songs := []string{opts.File}
	if opts.File == "" {
		p, err := playlist.Load(cfg.PlaylistFile())
		if err != nil {
			return err
		}
		songs = songs[:0]
		for _, song := range p.Songs {
			songs = append(songs, cfg.ExpandHome(song.Path))
		}
	}

	store, err := cache.NewStore()
	if err != nil {
		return err
	}
	defer store.Close()

	progress := mpb.NewWithContext(ctx, mpb.WithWidth(64))
	var failed []error
	for _, song := range songs {
		var bar *mpb.Bar
		engine, err := show.NewEngine(show.Options{
			Audio:     cfg.Audio,
			Channels:  cfg.ChannelCount(),
			Opener:    audio.FileOpener{},
			Cache:     store,
			CacheOnly: true,
			Progress: func(done, total int) {
				if bar == nil {
					bar = progress.AddBar(int64(max(total, 0)),
						mpb.PrependDecorators(
							decor.Name(filepath.Base(song)+": "),
							decor.CountersNoUnit("%d / %d"),
						),
						mpb.AppendDecorators(
							decor.Percentage(),
							decor.AverageETA(decor.ET_STYLE_GO),
						),
					)
				}
				bar.SetCurrent(int64(done))
			},
		})
		if err != nil {
			return err
		}

		res, err := engine.Play(ctx, song)
		if bar != nil {
			if res.Outcome == show.CompletedNormally {
				bar.SetTotal(-1, true)
			} else {
				bar.Abort(false)
			}
		}
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", song, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	progress.Wait()
	return errors.Join(failed...)
}

func runClient(ctx context.Context, cfg *config.Config, lights *hardware.Lights) error {
	r, err := udp.NewReceiver(cfg.Network.Port, lights, cfg.Network.Channels)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

func runAudioIn(ctx context.Context, cfg *config.Config, lights *hardware.Lights) error {
	capture, err := audio.NewCapture(cfg.Audio.InputDevice, cfg.Audio.InputRate, cfg.Audio.InputChannels, cfg.Audio.ChunkSize)
	if err != nil {
		return err
	}
	defer capture.Close()

	liveOpts := show.LiveOptions{
		Audio: cfg.Audio,
		Sink:  lights,
		Gate:  audio.NewGate(cfg.Audio.InputGate),
	}
	pub, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
		liveOpts.Publisher = pub
	}

	live, err := show.NewLive(liveOpts, capture.SampleRate())
	if err != nil {
		return err
	}
	return live.Run(ctx, capture)
}
