package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONFSFU"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Log   LogConfig   `mapstructure:"log"`
	Room  RoomConfig  `mapstructure:"room"`
	Media MediaConfig `mapstructure:"media"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type RoomConfig struct {
	HostPolicy     string     `mapstructure:"host_policy"`
	CloseWhenEmpty bool       `mapstructure:"close_when_empty"`
	Backpressure   string     `mapstructure:"backpressure"`
	JoinRate       RateConfig `mapstructure:"join_rate"`
}

type MediaConfig struct {
	Engine             string               `mapstructure:"engine"`
	NumWorkers         int                  `mapstructure:"num_workers"`
	Worker             media.WorkerSettings `mapstructure:"worker"`
	Router             RouterConfig         `mapstructure:"router"`
	WebRtcTransport    TransportConfig      `mapstructure:"webrtc_transport"`
	AudioLevelObserver ObserverConfig       `mapstructure:"audio_level_observer"`
}

type RouterConfig struct {
	MediaCodecs []media.CodecConfig `mapstructure:"media_codecs"`
}

type TransportConfig struct {
	ListenIPs                       []media.ListenIP `mapstructure:"listen_ips"`
	EnableUDP                       bool             `mapstructure:"enable_udp"`
	EnableTCP                       bool             `mapstructure:"enable_tcp"`
	InitialAvailableOutgoingBitrate uint32           `mapstructure:"initial_available_outgoing_bitrate"`
}

type ObserverConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	Threshold  int           `mapstructure:"threshold"`
	Interval   time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "change-me")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("room.host_policy", "legacy")
	v.SetDefault("room.close_when_empty", false)
	v.SetDefault("room.backpressure", "kick")
	v.SetDefault("room.join_rate.limit", 5)
	v.SetDefault("room.join_rate.interval", "10s")

	v.SetDefault("media.engine", "ortc")
	v.SetDefault("media.num_workers", 1)
	v.SetDefault("media.worker.log_level", "warn")
	v.SetDefault("media.worker.rtc_min_port", 40000)
	v.SetDefault("media.worker.rtc_max_port", 49999)
	v.SetDefault("media.router.media_codecs", []map[string]any{
		{"kind": "audio", "mime_type": "audio/opus", "clock_rate": 48000, "channels": 2},
		{"kind": "video", "mime_type": "video/VP8", "clock_rate": 90000},
		{
			"kind": "video", "mime_type": "video/H264", "clock_rate": 90000,
			"parameters": map[string]any{
				"packetization-mode":      1,
				"profile-level-id":        "42e01f",
				"level-asymmetry-allowed": 1,
			},
		},
	})
	v.SetDefault("media.webrtc_transport.listen_ips", []map[string]any{{"ip": "0.0.0.0"}})
	v.SetDefault("media.webrtc_transport.enable_udp", true)
	v.SetDefault("media.webrtc_transport.enable_tcp", false)
	v.SetDefault("media.webrtc_transport.initial_available_outgoing_bitrate", 1000000)
	v.SetDefault("media.audio_level_observer.max_entries", media.DefaultObserverMaxEntries)
	v.SetDefault("media.audio_level_observer.threshold", media.DefaultObserverThreshold)
	v.SetDefault("media.audio_level_observer.interval", media.DefaultObserverInterval.String())
}

// Load reads config/config.<CONFIG_ENV>.yaml, or file when set, over the
// defaults. Environment variables prefixed with CONFSFU_ override both.
func Load(v *viper.Viper, file string) (*Config, error) {
	v.SetConfigType("yaml")
	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("engine", cfg.Media.Engine).Int("workers", cfg.Media.NumWorkers).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if _, err := core.HostPolicyByName(c.Room.HostPolicy); err != nil {
		errs = append(errs, err)
	}
	switch c.Room.Backpressure {
	case "kick", "drop":
	default:
		errs = append(errs, fmt.Errorf("unknown backpressure policy %q", c.Room.Backpressure))
	}
	switch c.Media.Engine {
	case "ortc", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown media engine %q", c.Media.Engine))
	}
	if c.Media.NumWorkers <= 0 {
		errs = append(errs, errors.New("media.num_workers must be positive"))
	}
	w := c.Media.Worker
	if w.RtcMinPort == 0 || w.RtcMaxPort < w.RtcMinPort {
		errs = append(errs, fmt.Errorf("bad rtc port range %d-%d", w.RtcMinPort, w.RtcMaxPort))
	}
	if len(c.Media.Router.MediaCodecs) == 0 {
		errs = append(errs, errors.New("media.router.media_codecs is empty"))
	}
	if len(c.Media.WebRtcTransport.ListenIPs) == 0 {
		errs = append(errs, errors.New("media.webrtc_transport.listen_ips is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (m MediaConfig) RouterOptions() media.RouterOptions {
	return media.RouterOptions{MediaCodecs: m.Router.MediaCodecs}
}

func (m MediaConfig) TransportOptions() media.WebRtcTransportOptions {
	t := m.WebRtcTransport
	return media.WebRtcTransportOptions{
		ListenIPs:                       t.ListenIPs,
		EnableUDP:                       t.EnableUDP,
		EnableTCP:                       t.EnableTCP,
		InitialAvailableOutgoingBitrate: t.InitialAvailableOutgoingBitrate,
	}
}

func (m MediaConfig) ObserverOptions() media.AudioLevelObserverOptions {
	o := m.AudioLevelObserver
	return media.AudioLevelObserverOptions{
		MaxEntries: o.MaxEntries,
		Threshold:  o.Threshold,
		Interval:   o.Interval,
	}
}
