package upstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kestrelworks/aviary/internal/core/domain"
)

// Feature switches the GraphQL endpoints insist on. The web client sends
// many more; this is the subset the read paths require.
const timelineFeatures = `{"responsive_web_graphql_timeline_navigation_enabled":true,"responsive_web_graphql_skip_user_profile_image_extensions_enabled":false,"responsive_web_edit_tweet_api_enabled":true,"graphql_is_translatable_rweb_tweet_is_translatable_enabled":true,"view_counts_everywhere_api_enabled":true,"longform_notetweets_consumption_enabled":true,"longform_notetweets_rich_text_read_enabled":true,"longform_notetweets_inline_media_enabled":true,"tweet_awards_web_tipping_enabled":false,"freedom_of_speech_not_reach_fetch_enabled":true,"standardized_nudges_misinfo":true,"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled":true,"creator_subscriptions_tweet_preview_api_enabled":true,"communities_web_enable_tweet_community_results_fetch":true,"c9s_tweet_anatomy_moderator_badge_enabled":true,"verified_phone_label_enabled":false,"hidden_profile_subscriptions_enabled":true,"highlights_tweets_tab_ui_enabled":true,"responsive_web_twitter_article_tweet_consumption_enabled":false,"responsive_web_enhance_cards_enabled":false}`

// upstreamTimeFormat is the legacy created_at layout, e.g.
// "Mon Jan 02 15:04:05 -0700 2006".
const upstreamTimeFormat = time.RubyDate

type userResult struct {
	RestID string `json:"rest_id"`
	Core   *struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
		CreatedAt  string `json:"created_at"`
	} `json:"core"`
	Legacy *userLegacy `json:"legacy"`
}

type userLegacy struct {
	Name           string `json:"name"`
	ScreenName     string `json:"screen_name"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	FollowersCount int    `json:"followers_count"`
	FriendsCount   int    `json:"friends_count"`
	StatusesCount  int    `json:"statuses_count"`
	Verified       bool   `json:"verified"`
	CreatedAt      string `json:"created_at"`
}

func (u *userResult) screenName() string {
	if u.Core != nil && u.Core.ScreenName != "" {
		return u.Core.ScreenName
	}
	if u.Legacy != nil {
		return u.Legacy.ScreenName
	}
	return ""
}

func (u *userResult) toProfile() domain.Profile {
	profile := domain.Profile{UserID: u.RestID}

	if u.Legacy != nil {
		profile.Username = u.Legacy.ScreenName
		profile.Name = u.Legacy.Name
		profile.Biography = u.Legacy.Description
		profile.Location = u.Legacy.Location
		profile.FollowersCount = u.Legacy.FollowersCount
		profile.FollowingCount = u.Legacy.FriendsCount
		profile.TweetsCount = u.Legacy.StatusesCount
		profile.Verified = u.Legacy.Verified
		if joined, err := time.Parse(upstreamTimeFormat, u.Legacy.CreatedAt); err == nil {
			profile.Joined = joined
		}
	}
	if u.Core != nil {
		if u.Core.Name != "" {
			profile.Name = u.Core.Name
		}
		if u.Core.ScreenName != "" {
			profile.Username = u.Core.ScreenName
		}
		if joined, err := time.Parse(upstreamTimeFormat, u.Core.CreatedAt); err == nil {
			profile.Joined = joined
		}
	}
	return profile
}

type tweetResult struct {
	RestID string `json:"rest_id"`
	// Limited-visibility tweets arrive wrapped one level deeper
	Tweet *tweetResult `json:"tweet"`
	Core  *struct {
		UserResults struct {
			Result *userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy *tweetLegacy `json:"legacy"`
	Views  *struct {
		Count string `json:"count"`
	} `json:"views"`
}

type tweetLegacy struct {
	FullText             string `json:"full_text"`
	CreatedAt            string `json:"created_at"`
	FavoriteCount        int    `json:"favorite_count"`
	RetweetCount         int    `json:"retweet_count"`
	ReplyCount           int    `json:"reply_count"`
	Retweeted            bool   `json:"retweeted"`
	ConversationIDStr    string `json:"conversation_id_str"`
	InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`
}

func (t *tweetResult) unwrap() *tweetResult {
	if t.Tweet != nil {
		return t.Tweet
	}
	return t
}

func (t *tweetResult) toTweet() (domain.Tweet, bool) {
	inner := t.unwrap()
	if inner.RestID == "" || inner.Legacy == nil {
		return domain.Tweet{}, false
	}

	tweet := domain.Tweet{
		ID:             inner.RestID,
		Text:           inner.Legacy.FullText,
		Likes:          inner.Legacy.FavoriteCount,
		Retweets:       inner.Legacy.RetweetCount,
		Replies:        inner.Legacy.ReplyCount,
		IsReply:        inner.Legacy.InReplyToStatusIDStr != "",
		IsRetweet:      inner.Legacy.Retweeted,
		ConversationID: inner.Legacy.ConversationIDStr,
	}
	if created, err := time.Parse(upstreamTimeFormat, inner.Legacy.CreatedAt); err == nil {
		tweet.CreatedAt = created
	}
	if inner.Core != nil && inner.Core.UserResults.Result != nil {
		tweet.Username = inner.Core.UserResults.Result.screenName()
	}
	if inner.Views != nil {
		if views, err := strconv.Atoi(inner.Views.Count); err == nil {
			tweet.Views = views
		}
	}
	return tweet, true
}

type timeline struct {
	Instructions []instruction `json:"instructions"`
}

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
}

type entry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string       `json:"entryType"`
		ItemContent *itemContent `json:"itemContent"`
	} `json:"content"`
}

type itemContent struct {
	ItemType     string `json:"itemType"`
	TweetResults struct {
		Result *tweetResult `json:"result"`
	} `json:"tweet_results"`
	UserResults struct {
		Result *userResult `json:"result"`
	} `json:"user_results"`
}

func (tl *timeline) tweets(limit int) []domain.Tweet {
	var out []domain.Tweet
	for _, instruction := range tl.Instructions {
		for _, e := range instruction.Entries {
			item := e.Content.ItemContent
			if item == nil || item.TweetResults.Result == nil {
				continue
			}
			if tweet, ok := item.TweetResults.Result.toTweet(); ok {
				out = append(out, tweet)
				if len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

func (tl *timeline) profiles(limit int) []domain.Profile {
	var out []domain.Profile
	for _, instruction := range tl.Instructions {
		for _, e := range instruction.Entries {
			item := e.Content.ItemContent
			if item == nil || item.UserResults.Result == nil {
				continue
			}
			out = append(out, item.UserResults.Result.toProfile())
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

type userTimelineResponse struct {
	Data struct {
		User struct {
			Result struct {
				TimelineV2 struct {
					Timeline timeline `json:"timeline"`
				} `json:"timeline_v2"`
				Timeline struct {
					Timeline timeline `json:"timeline"`
				} `json:"timeline"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

// UserTweets fetches a user's recent tweets, newest first.
func (c *Client) UserTweets(ctx context.Context, username string, count int) ([]domain.Tweet, error) {
	return c.userTimeline(ctx, opUserTweets, username, count)
}

// UserTweetsAndReplies fetches recent tweets including replies.
func (c *Client) UserTweetsAndReplies(ctx context.Context, username string, count int) ([]domain.Tweet, error) {
	return c.userTimeline(ctx, opUserTweetsReplies, username, count)
}

func (c *Client) userTimeline(ctx context.Context, operation, username string, count int) ([]domain.Tweet, error) {
	userID, err := c.ResolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}

	var resp userTimelineResponse
	err = c.graphql(ctx, operation, map[string]any{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
		"withVoice":              true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data.User.Result.TimelineV2.Timeline.tweets(count), nil
}

// LatestTweet fetches the user's most recent tweet.
func (c *Client) LatestTweet(ctx context.Context, username string) (*domain.Tweet, error) {
	tweets, err := c.UserTweets(ctx, username, 5)
	if err != nil {
		return nil, err
	}
	if len(tweets) == 0 {
		return nil, fmt.Errorf("no tweets found for %s", username)
	}
	return &tweets[0], nil
}

// Search runs a timeline search. Mode selects the Latest or Top product.
func (c *Client) Search(ctx context.Context, query string, count int, mode domain.SearchMode) ([]domain.Tweet, error) {
	product := "Latest"
	if mode == domain.SearchModeTop {
		product = "Top"
	}

	var resp struct {
		Data struct {
			SearchByRawQuery struct {
				SearchTimeline struct {
					Timeline timeline `json:"timeline"`
				} `json:"search_timeline"`
			} `json:"search_by_raw_query"`
		} `json:"data"`
	}
	err := c.graphql(ctx, opSearchTimeline, map[string]any{
		"rawQuery":    query,
		"count":       count,
		"querySource": "typed_query",
		"product":     product,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data.SearchByRawQuery.SearchTimeline.Timeline.tweets(count), nil
}

// Followers fetches a page of the user's followers.
func (c *Client) Followers(ctx context.Context, username string, count int) ([]domain.Profile, error) {
	return c.followTimeline(ctx, opFollowers, username, count)
}

// Following fetches a page of the accounts the user follows.
func (c *Client) Following(ctx context.Context, username string, count int) ([]domain.Profile, error) {
	return c.followTimeline(ctx, opFollowing, username, count)
}

func (c *Client) followTimeline(ctx context.Context, operation, username string, count int) ([]domain.Profile, error) {
	userID, err := c.ResolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}

	var resp userTimelineResponse
	err = c.graphql(ctx, operation, map[string]any{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data.User.Result.Timeline.Timeline.profiles(count), nil
}

// TweetByID fetches one tweet by its id.
func (c *Client) TweetByID(ctx context.Context, id string) (*domain.Tweet, error) {
	var resp struct {
		Data struct {
			ThreadedConversation struct {
				Instructions []instruction `json:"instructions"`
			} `json:"threaded_conversation_with_injections_v2"`
		} `json:"data"`
	}
	err := c.graphql(ctx, opTweetDetail, map[string]any{
		"focalTweetId":           id,
		"includePromotedContent": false,
		"withCommunity":          false,
	}, &resp)
	if err != nil {
		return nil, err
	}

	tl := timeline{Instructions: resp.Data.ThreadedConversation.Instructions}
	for _, tweet := range tl.tweets(50) {
		if tweet.ID == id {
			return &tweet, nil
		}
	}
	return nil, fmt.Errorf("tweet %s not found", id)
}
