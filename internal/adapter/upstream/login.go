package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/kestrelworks/aviary/internal/core/domain"
)

// maxLoginSubtasks bounds the onboarding flow loop; a healthy login
// completes well inside this.
const maxLoginSubtasks = 12

type flowResponse struct {
	FlowToken string `json:"flow_token"`
	Subtasks  []struct {
		SubtaskID string `json:"subtask_id"`
	} `json:"subtasks"`
}

func (f *flowResponse) has(subtaskID string) bool {
	for _, st := range f.Subtasks {
		if st.SubtaskID == subtaskID {
			return true
		}
	}
	return false
}

// Login drives the upstream onboarding flow with the account's
// credentials, answering the TOTP challenge when a secret is present.
// On success the session cookies land in the client's jar.
func (c *Client) Login(ctx context.Context, account *domain.Account) error {
	if err := c.activateGuest(ctx); err != nil {
		return err
	}

	flow, err := c.startLoginFlow(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < maxLoginSubtasks; i++ {
		switch {
		case flow.has("LoginSuccessSubtask"):
			c.guestToken = ""
			c.logger.InfoWithAccount("Logged in as", account.Username)
			return nil

		case flow.has("DenyLoginSubtask"):
			return fmt.Errorf("authentication failed: login denied for %s", account.Username)

		case flow.has("LoginJsInstrumentationSubtask"):
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id": "LoginJsInstrumentationSubtask",
				"js_instrumentation": map[string]any{
					"response": "{}",
					"link":     "next_link",
				},
			})

		case flow.has("LoginEnterUserIdentifierSSO"):
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id": "LoginEnterUserIdentifierSSO",
				"settings_list": map[string]any{
					"setting_responses": []map[string]any{{
						"key":           "user_identifier",
						"response_data": map[string]any{"text_data": map[string]any{"result": account.Username}},
					}},
					"link": "next_link",
				},
			})

		case flow.has("LoginEnterAlternateIdentifierSubtask"):
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id": "LoginEnterAlternateIdentifierSubtask",
				"enter_text": map[string]any{"text": account.Email, "link": "next_link"},
			})

		case flow.has("LoginEnterPassword"):
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id":     "LoginEnterPassword",
				"enter_password": map[string]any{"password": account.Password, "link": "next_link"},
			})

		case flow.has("LoginTwoFactorAuthChallenge"):
			if account.TwoFactorSecret == "" {
				return fmt.Errorf("authentication failed: %s requires 2FA but no secret is configured", account.Username)
			}
			var code string
			code, err = totp.GenerateCode(totpSecret(account.TwoFactorSecret), time.Now())
			if err != nil {
				return fmt.Errorf("authentication failed: bad TOTP secret for %s: %w", account.Username, err)
			}
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id": "LoginTwoFactorAuthChallenge",
				"enter_text": map[string]any{"text": code, "link": "next_link"},
			})

		case flow.has("LoginAcid"):
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id": "LoginAcid",
				"enter_text": map[string]any{"text": account.Email, "link": "next_link"},
			})

		case flow.has("AccountDuplicationCheck"):
			flow, err = c.advanceFlow(ctx, flow.FlowToken, map[string]any{
				"subtask_id":              "AccountDuplicationCheck",
				"check_logged_in_account": map[string]any{"link": "AccountDuplicationCheck_false"},
			})

		default:
			names := make([]string, 0, len(flow.Subtasks))
			for _, st := range flow.Subtasks {
				names = append(names, st.SubtaskID)
			}
			return fmt.Errorf("authentication failed: unsupported login subtask %s", strings.Join(names, ","))
		}

		if err != nil {
			return err
		}
	}
	return fmt.Errorf("authentication failed: login flow for %s did not converge", account.Username)
}

func (c *Client) activateGuest(ctx context.Context) error {
	endpoint := *c.baseURL
	endpoint.Path = "/1.1/guest/activate.json"

	body, err := c.do(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return err
	}

	var resp struct {
		GuestToken string `json:"guest_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode guest activation: %w", err)
	}
	if resp.GuestToken == "" {
		return fmt.Errorf("authentication failed: no guest token issued")
	}
	c.guestToken = resp.GuestToken
	return nil
}

func (c *Client) startLoginFlow(ctx context.Context) (*flowResponse, error) {
	payload := map[string]any{
		"input_flow_data": map[string]any{
			"flow_context": map[string]any{
				"debug_overrides": map[string]any{},
				"start_location":  map[string]any{"location": "splash_screen"},
			},
		},
	}
	return c.postFlow(ctx, "/1.1/onboarding/task.json?flow_name=login", payload)
}

func (c *Client) advanceFlow(ctx context.Context, flowToken string, subtaskInput map[string]any) (*flowResponse, error) {
	payload := map[string]any{
		"flow_token":     flowToken,
		"subtask_inputs": []map[string]any{subtaskInput},
	}
	return c.postFlow(ctx, "/1.1/onboarding/task.json", payload)
}

func (c *Client) postFlow(ctx context.Context, pathAndQuery string, payload map[string]any) (*flowResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow payload: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+pathAndQuery, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var flow flowResponse
	if err := json.Unmarshal(body, &flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow response: %w", err)
	}
	return &flow, nil
}

// totpSecret extracts the base32 secret from whatever form the accounts
// file carried: a bare secret, or the query tail of an otpauth URI.
func totpSecret(raw string) string {
	if idx := strings.Index(raw, "secret="); idx >= 0 {
		secret := raw[idx+len("secret="):]
		if amp := strings.Index(secret, "&"); amp >= 0 {
			secret = secret[:amp]
		}
		return secret
	}
	return raw
}
