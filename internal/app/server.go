package app

import (
	"errors"
	"net/http"
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeHeader = "Content-Type"

	apiPrefix = "/api/v3"
)

func (a *Application) startWebServer() {
	a.logger.Info("Starting WebServer...", "host", a.config.Server.Host, "port", a.config.Server.Port)

	mux := http.NewServeMux()

	a.registerRoutes()
	a.registry.WireUp(mux)
	a.server.Handler = mux

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	a.logger.Info("Started WebServer", "bind", a.server.Addr)
}

func (a *Application) registerRoutes() {
	a.registry.Register(apiPrefix+"/health", a.healthHandler, "Service liveness")
	a.registry.Register(apiPrefix+"/stats", a.statsHandler, "Dispatcher and account statistics")
	a.registry.Register(apiPrefix+"/tweets/{username}", a.tweetsHandler, "Recent tweets for a user")
	a.registry.Register(apiPrefix+"/tweets/{username}/latest", a.latestTweetHandler, "Most recent tweet for a user")
	a.registry.Register(apiPrefix+"/tweets/{username}/replies", a.repliesHandler, "Recent tweets including replies")
	a.registry.Register(apiPrefix+"/search", a.searchHandler, "Tweet search")
	a.registry.Register(apiPrefix+"/profile/{username}", a.profileHandler, "Public profile for a user")
	a.registry.Register(apiPrefix+"/followers/{username}", a.followersHandler, "Followers of a user")
	a.registry.Register(apiPrefix+"/following/{username}", a.followingHandler, "Accounts a user follows")
	a.registry.Register(apiPrefix+"/tweet/{id}", a.tweetByIDHandler, "One tweet by id")
}
