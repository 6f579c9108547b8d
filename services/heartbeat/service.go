// Package heartbeat publishes a retained liveness beat so bus monitors can
// tell a stalled host from an idle one.
package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"time"

	"ip5306-hal/bus"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHeartbeat       = bus.T("sys", "heartbeat")
)

// Config is accepted on config/heartbeat to change the interval at runtime.
type Config struct {
	IntervalMs uint32 `json:"interval_ms" yaml:"interval_ms"`
}

// Beat is the retained payload on sys/heartbeat.
type Beat struct {
	Seq      uint64 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
	TSms     int64  `json:"ts_ms"`
}

type Service struct {
	log      *slog.Logger
	interval time.Duration
}

func New(log *slog.Logger, interval time.Duration) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{log: log.With(slog.String("service", "heartbeat")), interval: interval}
}

// Run beats until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	start := time.Now()
	var seq uint64
	beat := func(now time.Time) {
		seq++
		conn.Publish(conn.NewMessage(TopicHeartbeat, Beat{
			Seq:      seq,
			UptimeMs: now.Sub(start).Milliseconds(),
			TSms:     now.UnixMilli(),
		}, true))
	}

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	beat(start)

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("heartbeat service stopping")
			return
		case t := <-tick.C:
			beat(t)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			cfg, ok := msg.Payload.(Config)
			if !ok || cfg.IntervalMs == 0 {
				s.log.Warn("ignoring heartbeat config", slog.Any("payload", msg.Payload))
				continue
			}
			s.interval = time.Duration(cfg.IntervalMs) * time.Millisecond
			tick.Reset(s.interval)
			s.log.Info("heartbeat interval set", slog.Duration("interval", s.interval))
		}
	}
}
