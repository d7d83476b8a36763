package kite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"kitetrader/internal/creds"
)

// enctoken sessions from web login are valid until the end of the trading
// day; a conservative lifetime is recorded so stale sessions are detected
// locally before the server rejects them.
const encTokenLifetime = 8 * time.Hour

// TwoFAFunc supplies the second-factor value for the web login flow. The
// argument is the 2FA type announced by the server ("totp", "sms", ...).
type TwoFAFunc func(twofaType string) (string, error)

// Bootstrap restores a persisted session, if one exists and has not
// expired. It returns true when the client is ready to issue calls.
func (c *Client) Bootstrap(ctx context.Context) (bool, error) {
	cr, err := c.creds.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("loading credentials: %w", err)
	}
	if cr == nil || cr.IsExpired() {
		return false, nil
	}

	c.applyAuth(cr)
	c.log.Debug("restored persisted session", "api_key", cr.APIKey != "")

	return true, nil
}

// LoginWithToken installs an enctoken obtained elsewhere (browser devtools,
// a previous web login) and persists it.
func (c *Client) LoginWithToken(ctx context.Context, enctoken string) error {
	cr := creds.Credentials{
		Token:  enctoken,
		Expiry: time.Now().Add(encTokenLifetime),
	}
	if err := c.creds.Save(ctx, cr); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	c.applyAuth(&cr)
	return nil
}

// LoginWithAPIKey installs an API key + access token pair from the
// programmatic OAuth-style flow and persists it. Access tokens expire at
// 6 AM the next day; expiry is left open and enforced by the server.
func (c *Client) LoginWithAPIKey(ctx context.Context, apiKey, accessToken string) error {
	cr := creds.Credentials{
		Token:  accessToken,
		APIKey: apiKey,
	}
	if err := c.creds.Save(ctx, cr); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	c.applyAuth(&cr)
	return nil
}

// Login runs the two-step web login: password auth, then the second factor
// supplied by twofa. On success the enctoken from the response cookie is
// installed and persisted.
func (c *Client) Login(ctx context.Context, userID, password string, twofa TwoFAFunc) error {
	payload := url.Values{
		"user_id":  {userID},
		"password": {password},
	}

	resp, err := c.governor.Execute(ctx, CategoryDefault, http.MethodPost, c.loginURL+"/api/login", payload, c.timeout, "Login")
	if err != nil {
		return err
	}

	var loginData struct {
		RequestID string `json:"request_id"`
		TwoFAType string `json:"twofa_type"`
	}
	if err := decodeData(resp.Body, "Login", &loginData); err != nil {
		return err
	}

	code, err := twofa(loginData.TwoFAType)
	if err != nil {
		return fmt.Errorf("obtaining %s code: %w", loginData.TwoFAType, err)
	}

	payload = url.Values{
		"user_id":      {userID},
		"request_id":   {loginData.RequestID},
		"twofa_value":  {code},
		"twofa_type":   {loginData.TwoFAType},
		"skip_session": {""},
	}

	resp, err = c.governor.Execute(ctx, CategoryDefault, http.MethodPost, c.loginURL+"/api/twofa", payload, c.timeout, "TwoFA")
	if err != nil {
		return err
	}

	var enctoken string
	for _, cookie := range resp.Cookies {
		if cookie.Name == "enctoken" {
			enctoken = cookie.Value
			break
		}
	}
	if enctoken == "" {
		return fmt.Errorf("twofa: no enctoken cookie in response")
	}

	if err := c.LoginWithToken(ctx, enctoken); err != nil {
		return err
	}

	c.log.Info("authorization success", "user_id", userID)
	return nil
}

// Logout drops the persisted session and clears the Authorization header.
// The server-side session is left to expire on its own.
func (c *Client) Logout(ctx context.Context) error {
	c.transport.SetAuth("")
	if err := c.creds.Delete(ctx); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

func (c *Client) applyAuth(cr *creds.Credentials) {
	if cr.APIKey != "" {
		c.transport.SetAuth("token " + cr.APIKey + ":" + cr.Token)
		return
	}
	c.transport.SetAuth("enctoken " + cr.Token)
}
