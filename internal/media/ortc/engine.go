// Package ortc is the media engine backed by pion's ORTC API. Each transport
// runs its own ICE-lite agent and DTLS session; producers relay RTP to the
// consumers of the same router.
package ortc

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/dkeye/confsfu/internal/media"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return "ortc" }

// CreateWorker returns an in-process worker; every worker reports the server
// pid.
func (e *Engine) CreateWorker(ctx context.Context, settings media.WorkerSettings) (media.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &Worker{
		settings: settings,
		logs:     newLoggerFactory(settings.LogLevel),
		routers:  make(map[string]*Router),
	}
	// fail fast on a bad port range
	if _, err := w.settingEngine(media.WebRtcTransportOptions{}); err != nil {
		return nil, err
	}
	log.Debug().Str("module", "media.ortc").Uint16("minPort", settings.RtcMinPort).Uint16("maxPort", settings.RtcMaxPort).Msg("worker created")
	return w, nil
}

type Worker struct {
	settings media.WorkerSettings
	logs     loggerFactory

	mu      sync.Mutex
	closed  bool
	routers map[string]*Router
}

func (w *Worker) PID() int { return os.Getpid() }

func (w *Worker) CreateRouter(ctx context.Context, opts media.RouterOptions) (media.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	caps, err := media.NewRtpCapabilities(opts.MediaCodecs)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, media.ErrClosed
	}
	r := &Router{
		id:         uuid.NewString(),
		worker:     w,
		caps:       caps,
		producers:  make(map[string]*Producer),
		transports: make(map[string]*Transport),
	}
	w.routers[r.id] = r
	return r, nil
}

// settingEngine builds the pion settings of one transport.
func (w *Worker) settingEngine(opts media.WebRtcTransportOptions) (webrtc.SettingEngine, error) {
	se := webrtc.SettingEngine{LoggerFactory: w.logs}
	se.SetLite(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6})
	if w.settings.RtcMinPort != 0 && w.settings.RtcMaxPort != 0 {
		if err := se.SetEphemeralUDPPortRange(w.settings.RtcMinPort, w.settings.RtcMaxPort); err != nil {
			return se, err
		}
	}
	var announced []string
	allowed := make(map[string]bool)
	wildcard := false
	for _, l := range opts.ListenIPs {
		if l.AnnouncedIP != "" {
			announced = append(announced, l.AnnouncedIP)
		}
		ip := net.ParseIP(l.IP)
		if ip == nil || ip.IsUnspecified() {
			wildcard = true
			continue
		}
		allowed[ip.String()] = true
	}
	if !wildcard && len(allowed) > 0 {
		se.SetIPFilter(func(ip net.IP) bool { return allowed[ip.String()] })
	}
	if len(announced) > 0 {
		se.SetNAT1To1IPs(announced, webrtc.ICECandidateTypeHost)
	}
	if opts.EnableTCP {
		log.Warn().Str("module", "media.ortc").Msg("tcp candidates are not supported, using udp only")
	}
	return se, nil
}

func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.mu.Unlock()
	for _, r := range routers {
		r.Close()
	}
}

func (w *Worker) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Worker) removeRouter(id string) {
	w.mu.Lock()
	delete(w.routers, id)
	w.mu.Unlock()
}
