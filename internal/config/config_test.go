package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, "legacy", cfg.Room.HostPolicy)
	assert.False(t, cfg.Room.CloseWhenEmpty)
	assert.Equal(t, 1, cfg.Media.NumWorkers)
	require.Len(t, cfg.Media.Router.MediaCodecs, 3)
	assert.Equal(t, media.KindAudio, cfg.Media.Router.MediaCodecs[0].Kind)
	assert.Equal(t, uint32(48000), cfg.Media.Router.MediaCodecs[0].ClockRate)
	assert.Equal(t, media.DefaultObserverInterval, cfg.Media.ObserverOptions().Interval)
	assert.Equal(t, "0.0.0.0", cfg.Media.TransportOptions().ListenIPs[0].IP)
}

func TestLoad_FileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
port: 9090
room:
  host_policy: creator
  close_when_empty: true
media:
  engine: memory
  num_workers: 4
  webrtc_transport:
    listen_ips:
      - ip: 10.0.0.5
        announced_ip: 203.0.113.7
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o600))
	t.Setenv("CONFSFU_MEDIA_NUM_WORKERS", "2")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "creator", cfg.Room.HostPolicy)
	assert.True(t, cfg.Room.CloseWhenEmpty)
	assert.Equal(t, "memory", cfg.Media.Engine)
	assert.Equal(t, 2, cfg.Media.NumWorkers)
	assert.Equal(t, "203.0.113.7", cfg.Media.WebRtcTransport.ListenIPs[0].AnnouncedIP)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	bad := *cfg
	bad.Media.NumWorkers = 0
	bad.Media.Engine = "gstreamer"
	bad.Room.HostPolicy = "oldest"
	bad.Media.Worker.RtcMaxPort = 1
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_workers")
	assert.Contains(t, err.Error(), "gstreamer")
	assert.Contains(t, err.Error(), "oldest")
	assert.Contains(t, err.Error(), "port range")
}
