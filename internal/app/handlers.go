package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/core/ports"
	"github.com/kestrelworks/aviary/internal/version"
)

// Per-route count clamps.
const (
	defaultTweetCount  = 5
	maxTweetCount      = 100
	defaultSearchCount = 20
	maxSearchCount     = 100
	defaultFollowCount = 50
	maxFollowCount     = 200
)

// apiResponse is the envelope every endpoint returns.
type apiResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data"`
	Errors  []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: message,
		Data:    data,
		Errors:  []string{},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	message = domain.TruncateMessage(message)
	writeJSON(w, status, apiResponse{
		Success: false,
		Message: message,
		Errors:  []string{message},
	})
}

// writeDispatchError maps a dispatch failure to its external status.
func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrNoUsableAccounts):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, domain.ClassifyError(err).ExternalStatus(), err.Error())
	}
}

// clampCount reads the count query parameter, applying the route default
// and clamping to [1, max].
func clampCount(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return def
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if count < 1 {
		return 1
	}
	if count > max {
		return max
	}
	return count
}

// execute admits the operation and writes the enveloped result.
func (a *Application) execute(w http.ResponseWriter, r *http.Request, opName string, op ports.Operation) {
	priority := domain.ParsePriority(r.URL.Query().Get("priority"))

	data, err := a.dispatcher.Execute(r.Context(), opName, priority, op)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeSuccess(w, "ok", data)
}

func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "healthy", map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"accounts": a.accounts.Count(),
		"proxies":  a.proxies.Count(),
		"uptime":   time.Since(a.startTime).Round(time.Second).String(),
	})
}

func (a *Application) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "ok", a.dispatcher.GetStats())
}

func (a *Application) tweetsHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	count := clampCount(r, defaultTweetCount, maxTweetCount)

	a.execute(w, r, fmt.Sprintf("getTweets(%s)", username),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.UserTweets(ctx, username, count)
		})
}

func (a *Application) latestTweetHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	a.execute(w, r, fmt.Sprintf("getLatestTweet(%s)", username),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.LatestTweet(ctx, username)
		})
}

func (a *Application) repliesHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	count := clampCount(r, defaultTweetCount, maxTweetCount)

	a.execute(w, r, fmt.Sprintf("getReplies(%s)", username),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.UserTweetsAndReplies(ctx, username, count)
		})
}

func (a *Application) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}
	count := clampCount(r, defaultSearchCount, maxSearchCount)

	mode := domain.SearchModeLatest
	if r.URL.Query().Get("mode") == "top" {
		mode = domain.SearchModeTop
	}

	a.execute(w, r, fmt.Sprintf("search(%s)", query),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.Search(ctx, query, count, mode)
		})
}

func (a *Application) profileHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	a.execute(w, r, fmt.Sprintf("getProfile(%s)", username),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.Profile(ctx, username)
		})
}

func (a *Application) followersHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	count := clampCount(r, defaultFollowCount, maxFollowCount)

	a.execute(w, r, fmt.Sprintf("getFollowers(%s)", username),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.Followers(ctx, username, count)
		})
}

func (a *Application) followingHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	count := clampCount(r, defaultFollowCount, maxFollowCount)

	a.execute(w, r, fmt.Sprintf("getFollowing(%s)", username),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.Following(ctx, username, count)
		})
}

func (a *Application) tweetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	a.execute(w, r, fmt.Sprintf("getTweet(%s)", id),
		func(ctx context.Context, client ports.UpstreamClient, _ *domain.Account) (any, error) {
			return client.TweetByID(ctx, id)
		})
}
