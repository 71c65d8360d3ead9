/*
 * debrid-relay re-serves debrid streaming links through a single egress address.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lucasduport/debrid-relay/pkg/addon"
	"github.com/lucasduport/debrid-relay/pkg/cache"
	"github.com/lucasduport/debrid-relay/pkg/config"
	"github.com/lucasduport/debrid-relay/pkg/database"
	"github.com/lucasduport/debrid-relay/pkg/proxy"
	"github.com/lucasduport/debrid-relay/pkg/relay"
	"github.com/lucasduport/debrid-relay/pkg/resolver"
	"github.com/lucasduport/debrid-relay/pkg/session"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	historyQueueSize = 256
	shutdownTimeout  = 10 * time.Second
)

// Config represent the server configuration
type Config struct {
	*config.ProxyConfig

	proxy    *proxy.Proxy
	addon    *addon.Client
	manifest addon.Manifest
	sessions *session.SessionManager

	// optional relay history
	db      *database.DBManager
	history *database.HistoryWriter
}

// NewServer builds the resolution cache, the upstream clients and, when
// configured, the history store.
func NewServer(conf *config.ProxyConfig) (*Config, error) {
	transport := utils.NewUpstreamTransport()

	resolutions := cache.New(cache.Options{
		Capacity: conf.CacheCapacity,
		TTL:      conf.CacheTTL,
		LockTTL:  conf.LockTTL,
	})
	utils.InfoLog("Resolution cache: capacity=%d ttl=%s lock-ttl=%s", conf.CacheCapacity, conf.CacheTTL, conf.LockTTL)

	p := proxy.New(
		resolutions,
		resolver.New(conf.TorrentioBaseURL, conf.Provider, transport, conf.ResolverTimeout),
		relay.New(transport, conf.RelayTimeout, conf.BandwidthLimit),
	)

	serverConfig := &Config{
		ProxyConfig: conf,
		proxy:       p,
		addon:       addon.NewClient(conf, transport, conf.ResolverTimeout),
		manifest:    addon.DefaultManifest(),
		sessions:    session.NewSessionManager(),
	}

	if conf.Database.Enabled() {
		db, err := database.NewDBManager(conf.Database)
		if err != nil {
			return nil, utils.ErrorWithLocation(fmt.Errorf("failed to initialize database: %w", err))
		}
		serverConfig.db = db
		serverConfig.history = database.NewHistoryWriter(db, historyQueueSize)
		utils.InfoLog("Bootstrap: relay history is ENABLED")
	} else {
		utils.InfoLog("Bootstrap: db-host not set - relay history is DISABLED")
	}

	return serverConfig, nil
}

// Router builds the gin engine serving the addon and the internal API.
func (c *Config) Router() *gin.Engine {
	router := gin.New()
	router.Use(recovery(), requestID(), requestLogger(), cors.Default())

	c.setupInternalAPI(router)
	c.routes(router)

	return router
}

// Serve the debrid-relay api until ctx is done
func (c *Config) Serve(ctx context.Context) error {
	utils.InfoLog("[debrid-relay] Server is starting...")

	c.proxy.Cache().Start()
	defer c.proxy.Cache().Stop()
	defer c.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", c.HostConfig.Hostname, c.HostConfig.Port),
		Handler:           c.Router(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.InfoLog("[debrid-relay] Server is ready and listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.InfoLog("[debrid-relay] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.WarnLog("Graceful shutdown interrupted, closing remaining streams: %v", err)
			return srv.Close()
		}
		return nil
	})
	return g.Wait()
}

// Close flushes the relay history and closes the database.
func (c *Config) Close() {
	c.history.Close()
	if err := c.db.Close(); err != nil {
		utils.WarnLog("Closing database: %v", err)
	}
}
