package upstream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/logger"
)

func testUpstreamConfig() config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:           "https://api.x.com",
		CookieDomain:      ".x.com",
		UserAgent:         "test-agent",
		BearerToken:       "test-bearer",
		RequestsPerSecond: 100,
		Burst:             10,
	}
}

func testLogger(t *testing.T) *logger.StyledLogger {
	t.Helper()
	_, styled, cleanup, err := logger.NewWithTheme(&logger.Config{Level: "error", FileOutput: false})
	if err != nil {
		t.Fatalf("failed to initialise test logger: %v", err)
	}
	t.Cleanup(cleanup)
	return styled
}

func TestSetCookiesRoundTrip(t *testing.T) {
	client, err := NewClient(testUpstreamConfig(), nil, testLogger(t))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	client.SetCookies([]string{
		"ct0=csrfvalue; Domain=.x.com; Path=/; Secure",
		"auth_token=tokenvalue; Domain=.x.com; Path=/; Secure; HttpOnly",
	})

	if got := client.cookieValue("ct0"); got != "csrfvalue" {
		t.Errorf("ct0 = %q", got)
	}
	if got := client.cookieValue("auth_token"); got != "tokenvalue" {
		t.Errorf("auth_token = %q", got)
	}

	rendered := client.Cookies()
	if len(rendered) != 2 {
		t.Fatalf("rendered %d cookies, want 2", len(rendered))
	}
	for _, entry := range rendered {
		if !strings.Contains(entry, "Domain=.x.com") || !strings.Contains(entry, "Secure") {
			t.Errorf("cookie missing attributes: %q", entry)
		}
		if strings.HasPrefix(entry, "auth_token=") && !strings.Contains(entry, "HttpOnly") {
			t.Errorf("auth_token should be HttpOnly: %q", entry)
		}
	}
}

func TestSetCookiesAcceptsBarePairs(t *testing.T) {
	client, err := NewClient(testUpstreamConfig(), nil, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	client.SetCookies([]string{"ct0=bare"})
	if got := client.cookieValue("ct0"); got != "bare" {
		t.Errorf("ct0 = %q", got)
	}
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(testUpstreamConfig(), &domain.Proxy{URL: "://broken"}, testLogger(t))
	if err == nil {
		t.Error("expected an error for an unparsable proxy url")
	}
}

func TestSessionCookies(t *testing.T) {
	account := &domain.Account{Username: "alice", CT0: "csrf", AuthToken: "tok"}

	cookies := sessionCookies(account, ".x.com")
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	if cookies[0] != "ct0=csrf; Domain=.x.com; Path=/; Secure" {
		t.Errorf("ct0 cookie = %q", cookies[0])
	}
	if cookies[1] != "auth_token=tok; Domain=.x.com; Path=/; Secure; HttpOnly" {
		t.Errorf("auth_token cookie = %q", cookies[1])
	}
}

func TestTotpSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"JBSWY3DPEHPK3PXP", "JBSWY3DPEHPK3PXP"},
		{"Twitter:secret=ABC", "ABC"},
		{"totp/Twitter:secret=ABC&issuer=X", "ABC"},
	}
	for _, tc := range cases {
		if got := totpSecret(tc.in); got != tc.want {
			t.Errorf("totpSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBodySnippetTruncates(t *testing.T) {
	long := strings.Repeat("y", 500)
	if got := bodySnippet([]byte(long)); len(got) != maxErrorBodySnippet {
		t.Errorf("snippet length = %d, want %d", len(got), maxErrorBodySnippet)
	}
	if got := bodySnippet([]byte("  short  ")); got != "short" {
		t.Errorf("snippet = %q", got)
	}
}

const userTweetsFixture = `{
  "data": {
    "user": {
      "result": {
        "timeline_v2": {
          "timeline": {
            "instructions": [
              {
                "type": "TimelineAddEntries",
                "entries": [
                  {
                    "entryId": "tweet-100",
                    "content": {
                      "entryType": "TimelineTimelineItem",
                      "itemContent": {
                        "itemType": "TimelineTweet",
                        "tweet_results": {
                          "result": {
                            "rest_id": "100",
                            "core": {
                              "user_results": {
                                "result": {
                                  "rest_id": "7",
                                  "legacy": {"screen_name": "alice", "name": "Alice"}
                                }
                              }
                            },
                            "legacy": {
                              "full_text": "hello world",
                              "created_at": "Mon Sep 02 10:11:12 +0000 2024",
                              "favorite_count": 3,
                              "retweet_count": 1,
                              "reply_count": 2,
                              "conversation_id_str": "100"
                            },
                            "views": {"count": "42"}
                          }
                        }
                      }
                    }
                  },
                  {
                    "entryId": "cursor-top",
                    "content": {"entryType": "TimelineTimelineCursor"}
                  }
                ]
              }
            ]
          }
        }
      }
    }
  }
}`

func TestTimelineDecodesTweets(t *testing.T) {
	var resp userTimelineResponse
	if err := json.Unmarshal([]byte(userTweetsFixture), &resp); err != nil {
		t.Fatalf("fixture failed to decode: %v", err)
	}

	tweets := resp.Data.User.Result.TimelineV2.Timeline.tweets(10)
	if len(tweets) != 1 {
		t.Fatalf("decoded %d tweets, want 1", len(tweets))
	}

	tweet := tweets[0]
	if tweet.ID != "100" || tweet.Username != "alice" || tweet.Text != "hello world" {
		t.Errorf("tweet = %+v", tweet)
	}
	if tweet.Likes != 3 || tweet.Retweets != 1 || tweet.Replies != 2 || tweet.Views != 42 {
		t.Errorf("counts wrong: %+v", tweet)
	}
	if tweet.CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}
	if tweet.IsReply || tweet.IsRetweet {
		t.Errorf("flags wrong: %+v", tweet)
	}
}

func TestUserResultToProfile(t *testing.T) {
	raw := `{
      "rest_id": "7",
      "core": {"name": "Alice", "screen_name": "alice", "created_at": "Tue Jan 02 03:04:05 +0000 2018"},
      "legacy": {
        "name": "old name",
        "screen_name": "old",
        "description": "bio here",
        "location": "Somewhere",
        "followers_count": 10,
        "friends_count": 20,
        "statuses_count": 30,
        "verified": true
      }
    }`

	var result userResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatal(err)
	}

	profile := result.toProfile()
	if profile.UserID != "7" {
		t.Errorf("userID = %q", profile.UserID)
	}
	// Core fields win over legacy where both are present
	if profile.Username != "alice" || profile.Name != "Alice" {
		t.Errorf("identity = %q/%q", profile.Username, profile.Name)
	}
	if profile.Biography != "bio here" || profile.Location != "Somewhere" {
		t.Errorf("legacy fields lost: %+v", profile)
	}
	if profile.FollowersCount != 10 || profile.FollowingCount != 20 || profile.TweetsCount != 30 {
		t.Errorf("counts = %+v", profile)
	}
	if !profile.Verified {
		t.Error("verified lost")
	}
	if profile.Joined.IsZero() {
		t.Error("joined not parsed")
	}
}
