package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	heartbeatTimeout         = 5 * time.Second
)

// Heartbeat periodically calls the relay's session-status endpoint so this
// machine's session stays fresh while no operator is active.
type Heartbeat struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger
}

// NewHeartbeat targets relayURL, e.g. "http://relay.lab:8000"
func NewHeartbeat(relayURL string, interval time.Duration, log zerolog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{
		url:      strings.TrimRight(relayURL, "/") + "/api/my-status",
		interval: interval,
		client:   &http.Client{Timeout: heartbeatTimeout},
		log:      log,
	}
}

// Beat sends one heartbeat
func (h *Heartbeat) Beat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: relay answered %s", resp.Status)
	}
	return nil
}

// Run beats immediately and then every interval until ctx is done
func (h *Heartbeat) Run(ctx context.Context) {
	h.log.Info().Str("url", h.url).Dur("interval", h.interval).Msg("heartbeat started")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.Beat(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Warn().Err(err).Msg("heartbeat failed")
		} else {
			h.log.Debug().Msg("heartbeat ok")
		}

		select {
		case <-ctx.Done():
			h.log.Info().Msg("heartbeat stopped")
			return
		case <-ticker.C:
		}
	}
}
