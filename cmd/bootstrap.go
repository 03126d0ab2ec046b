package main

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/tunemeld/internal/credentials"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/providers/lastfm"
	"github.com/desertthunder/tunemeld/internal/providers/lrclib"
	"github.com/desertthunder/tunemeld/internal/providers/musicbrainz"
	"github.com/desertthunder/tunemeld/internal/providers/qobuz"
	"github.com/desertthunder/tunemeld/internal/providers/spotify"
	"github.com/desertthunder/tunemeld/internal/registry"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// bootstrap registers every enabled service with a credential broker over the on-disk token cache.
func (r *Runner) bootstrap() (*registry.Registry, error) {
	cache, err := credentials.DefaultFileStore()
	if err != nil {
		r.logger.Warn("token cache unavailable, tokens will not persist", "error", err)
	}
	gateway := credentials.FromConfig(r.config, cache, r.logger)

	reg := registry.New(registry.PriorityFrom(r.config.Priority))
	for _, adapter := range enabledAdapters(r.config.Services, gateway, r.httpClient) {
		caps := providers.Detect(adapter)
		if err := reg.Register(adapter, caps); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", adapter.Name(), err)
		}
		r.logger.Debug("registered provider", "service", adapter.Name(), "capabilities", caps)
	}
	return reg, nil
}

// enabledAdapters builds the adapters switched on in [services.*], in discovery order.
func enabledAdapters(cfg shared.ServicesConfig, gateway credentials.Gateway, client *http.Client) []providers.Adapter {
	var adapters []providers.Adapter
	if cfg.Spotify.Enabled {
		adapters = append(adapters, spotify.New(cfg.Spotify, gateway, client))
	}
	if cfg.MusicBrainz.Enabled {
		adapters = append(adapters, musicbrainz.New(cfg.MusicBrainz, client))
	}
	if cfg.LRCLib.Enabled {
		adapters = append(adapters, lrclib.New(cfg.LRCLib, client))
	}
	if cfg.Qobuz.Enabled {
		adapters = append(adapters, qobuz.New(cfg.Qobuz, gateway, client))
	}
	if cfg.LastFM.Enabled {
		adapters = append(adapters, lastfm.New(cfg.LastFM, gateway))
	}
	return adapters
}
