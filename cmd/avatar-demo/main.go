// Command avatar-demo holds a spoken conversation with a Simli avatar from
// the terminal: type a line to say it, "/mic" to toggle the microphone and
// "/quit" to leave.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/simli-avatar/pkg/agent"
	"github.com/realtime-ai/simli-avatar/pkg/asr"
	"github.com/realtime-ai/simli-avatar/pkg/audio"
	"github.com/realtime-ai/simli-avatar/pkg/avatar"
	"github.com/realtime-ai/simli-avatar/pkg/config"
	"github.com/realtime-ai/simli-avatar/pkg/identity"
	"github.com/realtime-ai/simli-avatar/pkg/orchestrator"
	"github.com/realtime-ai/simli-avatar/pkg/server"
	"github.com/realtime-ai/simli-avatar/pkg/simli"
	"github.com/realtime-ai/simli-avatar/pkg/sink"
	"github.com/realtime-ai/simli-avatar/pkg/trace"
	"github.com/realtime-ai/simli-avatar/pkg/tts"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if err := run(ctx, cancel, cfg); err != nil {
		log.Fatal().Err(err).Msg("avatar-demo failed")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	traceCfg := trace.DefaultConfig()
	traceCfg.ExporterType = cfg.Trace.Exporter
	traceCfg.OTLPEndpoint = cfg.Trace.OTLPEndpoint
	if err := trace.Initialize(ctx, traceCfg); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("trace shutdown failed")
		}
	}()

	id, err := identity.Load(cfg.Identity.Path)
	if err != nil {
		return err
	}

	videoSink, audioSink := newSink(cfg.Media.VideoOut), newSink(cfg.Media.AudioOut)
	defer videoSink.Close()
	defer audioSink.Close()

	client := avatar.New(
		simli.New(simli.WithBaseURL(cfg.Simli.BaseURL)),
		avatar.WithICEServers(cfg.Simli.STUNURLs...),
	)
	if err := client.Configure(avatar.Config{
		APIKey:        cfg.Simli.APIKey,
		FaceID:        cfg.Simli.FaceID,
		HandleSilence: cfg.Simli.HandleSilence,
		VideoSink:     videoSink,
		AudioSink:     audioSink,
	}); err != nil {
		return err
	}

	replier, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return err
	}
	defer recognizer.Close()
	speech, err := tts.NewElevenLabsHTTPTTSProvider(tts.ElevenLabsHTTPTTSConfig{
		APIKey:  cfg.ElevenLabs.APIKey,
		VoiceID: cfg.ElevenLabs.VoiceID,
		Model:   cfg.ElevenLabs.Model,
	})
	if err != nil {
		return err
	}

	mic := audio.NewRecorder()
	orch := orchestrator.New(orchestrator.Deps{
		Session:  client,
		Agent:    replier,
		TTS:      speech,
		ASR:      recognizer,
		Recorder: mic,
	}, orchestrator.Options{
		Identity:    id,
		UserName:    cfg.Agent.UserName,
		Voice:       cfg.ElevenLabs.VoiceID,
		ChunkSize:   cfg.Audio.ChunkSize,
		StreamTTS:   cfg.ElevenLabs.Stream,
		AudioConfig: asr.PCMConfig(mic.Format()),
	})
	defer orch.Close()

	orch.Subscribe(func(s orchestrator.State) {
		if s.Error != "" {
			fmt.Fprintln(os.Stderr, "!", s.Error)
		}
	})

	if cfg.Control.Addr != "" {
		srv := server.New(server.Config{Addr: cfg.Control.Addr, Debug: cfg.Log.Level == "debug"}, orch)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("control API stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("control API shutdown failed")
			}
		}()
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	go readCommands(ctx, cancel, orch)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

func readCommands(ctx context.Context, quit context.CancelFunc, orch *orchestrator.Orchestrator) {
	fmt.Println(`Type to talk to the avatar. "/mic" toggles the microphone, "/quit" exits.`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit":
			quit()
			return
		case "/mic":
			go func() {
				if err := orch.ToggleListening(ctx); err != nil {
					log.Warn().Err(err).Msg("toggle listening failed")
				}
			}()
		default:
			go func() {
				if err := orch.Say(ctx, line); err != nil {
					log.Warn().Err(err).Msg("say failed")
				}
			}()
		}
	}
	quit()
}

func newSink(path string) sink.MediaSink {
	if path == "" {
		return sink.Discard()
	}
	return sink.NewFileSink(path)
}

func newAgent(ctx context.Context, cfg *config.Config) (agent.Agent, error) {
	switch cfg.Agent.Provider {
	case "openai":
		return agent.NewOpenAIAgent(agent.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
	case "gemini":
		return agent.NewGeminiAgent(ctx, agent.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Gemini.Model,
		})
	}
	return agent.NewHTTPAgent(cfg.Agent.Endpoint, cfg.Agent.ID), nil
}

func newRecognizer(cfg *config.Config) (asr.Provider, error) {
	if cfg.ASR.Provider == "openai" {
		return asr.NewWhisperProvider(cfg.OpenAI.APIKey, asr.WithWhisperBaseURL(cfg.OpenAI.BaseURL))
	}
	return asr.NewAgentWhisperProvider(cfg.Agent.Endpoint, cfg.Agent.ID)
}
