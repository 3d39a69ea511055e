// Package config loads the avatar demo settings from .env, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/realtime-ai/simli-avatar/pkg/identity"
)

const (
	DefaultFaceID   = "370b1e0f-86b9-4040-aaba-dab636f11f53"
	DefaultVoiceID  = "21m00Tcm4TlvDq8ikWAM"
	DefaultAgentID  = "b850bc30-45f8-0041-a00a-83df46d8555d"
	DefaultEndpoint = "http://localhost:3000"
)

type Config struct {
	Simli      SimliConfig      `mapstructure:"simli"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Agent      AgentConfig      `mapstructure:"agent"`
	ASR        ASRConfig        `mapstructure:"asr"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Media      MediaConfig      `mapstructure:"media"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Control    ControlConfig    `mapstructure:"control"`
	Trace      TraceConfig      `mapstructure:"trace"`
	Log        LogConfig        `mapstructure:"log"`
}

type SimliConfig struct {
	APIKey        string   `mapstructure:"api_key"`
	FaceID        string   `mapstructure:"face_id"`
	HandleSilence bool     `mapstructure:"handle_silence"`
	BaseURL       string   `mapstructure:"base_url"`
	STUNURLs      []string `mapstructure:"stun_urls"`
}

type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	Model   string `mapstructure:"model"`
	Stream  bool   `mapstructure:"stream"`
}

type AgentConfig struct {
	Provider string `mapstructure:"provider"`
	Endpoint string `mapstructure:"endpoint"`
	ID       string `mapstructure:"id"`
	UserName string `mapstructure:"user_name"`
}

type ASRConfig struct {
	Provider string `mapstructure:"provider"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type AudioConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

type MediaConfig struct {
	VideoOut string `mapstructure:"video_out"`
	AudioOut string `mapstructure:"audio_out"`
}

type IdentityConfig struct {
	Path string `mapstructure:"path"`
}

type ControlConfig struct {
	Addr string `mapstructure:"addr"`
}

type TraceConfig struct {
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simli.api_key", "")
	v.SetDefault("simli.face_id", DefaultFaceID)
	v.SetDefault("simli.handle_silence", true)
	v.SetDefault("simli.base_url", "https://api.simli.ai")
	v.SetDefault("simli.stun_urls", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("elevenlabs.api_key", "")
	v.SetDefault("elevenlabs.voice_id", DefaultVoiceID)
	v.SetDefault("elevenlabs.model", "eleven_turbo_v2_5")
	v.SetDefault("elevenlabs.stream", false)

	v.SetDefault("agent.provider", "http")
	v.SetDefault("agent.endpoint", DefaultEndpoint)
	v.SetDefault("agent.id", DefaultAgentID)
	v.SetDefault("agent.user_name", "User")

	v.SetDefault("asr.provider", "agent")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")

	v.SetDefault("audio.chunk_size", 6000)

	v.SetDefault("media.video_out", "")
	v.SetDefault("media.audio_out", "")

	v.SetDefault("identity.path", identity.DefaultPath())

	v.SetDefault("control.addr", "")

	v.SetDefault("trace.exporter", "none")
	v.SetDefault("trace.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
}

// aliases are extra environment names honoured for a key, in order.
var aliases = map[string][]string{
	"simli.api_key":      {"SIMLI_API_KEY", "VITE_SIMLI_API_KEY"},
	"elevenlabs.api_key": {"ELEVENLABS_API_KEY", "VITE_ELEVENLABS_API_KEY"},
	"agent.endpoint":     {"AGENT_ENDPOINT", "COMPLETION_ENDPOINT", "VITE_COMPLETION_ENDPOINT"},
	"openai.api_key":     {"OPENAI_API_KEY"},
	"openai.base_url":    {"OPENAI_BASE_URL"},
	"gemini.api_key":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// flags maps command-line flags to config keys.
var flags = []struct {
	name, key, usage string
}{
	{"face-id", "simli.face_id", "avatar face ID"},
	{"voice-id", "elevenlabs.voice_id", "ElevenLabs voice ID"},
	{"agent-endpoint", "agent.endpoint", "agent server base URL"},
	{"agent-id", "agent.id", "agent ID"},
	{"agent-provider", "agent.provider", "agent backend: http, openai or gemini"},
	{"asr-provider", "asr.provider", "transcription backend: agent or openai"},
	{"video-out", "media.video_out", "record avatar video to this file"},
	{"audio-out", "media.audio_out", "record avatar audio to this file"},
	{"identity", "identity.path", "identity file path"},
	{"control-addr", "control.addr", "control API listen address, empty to disable"},
	{"trace", "trace.exporter", "trace exporter: stdout, otlp or none"},
	{"log-level", "log.level", "log level"},
}

// NewFlagSet declares the command-line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	for _, f := range flags {
		fs.String(f.name, "", f.usage)
	}
	return fs
}

// Load parses args and resolves the configuration.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("module", "config").Err(err).Msg("failed to load .env")
	}

	fs := NewFlagSet("avatar-demo")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}
	return load(fs)
}

func load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	for _, f := range flags {
		if flag := fs.Lookup(f.name); flag != nil && flag.Changed {
			if err := v.BindPFlag(f.key, flag); err != nil {
				return nil, fmt.Errorf("config: bind flag %s: %w", f.name, err)
			}
		}
	}

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Validate reports missing credentials and unknown provider names.
func (c *Config) Validate() error {
	var errs []error
	if c.Simli.APIKey == "" {
		errs = append(errs, errors.New("simli.api_key is required"))
	}
	if c.ElevenLabs.APIKey == "" {
		errs = append(errs, errors.New("elevenlabs.api_key is required"))
	}

	switch c.Agent.Provider {
	case "http":
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required for agent.provider=openai"))
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("gemini.api_key is required for agent.provider=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown agent.provider %q", c.Agent.Provider))
	}

	switch c.ASR.Provider {
	case "agent":
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required for asr.provider=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown asr.provider %q", c.ASR.Provider))
	}

	if c.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size must be positive, got %d", c.Audio.ChunkSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
