package sakura

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	clientCookie   = "__client"
	pendingSession = "0"

	DefaultLoginAttempts = 12
	DefaultLoginInterval = 3 * time.Second
)

// SendLoginEmail starts an email-link sign-in and returns the attempt to poll.
func (c *Client) SendLoginEmail(ctx context.Context, email string) (*SignInAttempt, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email %q: %v", ErrInvalidArgument, email, err)
	}

	cookies, err := c.session.Cookies(ctx, true)
	if err != nil {
		return nil, err
	}

	form := url.Values{"identifier": {email}}
	resp, err := c.postForm(ctx, "sign_in", c.clerkURL+"/v1/client/sign_ins", form, cookies)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, upstreamError(fmt.Sprintf("failed to send login link to email %s", email), resp)
	}

	body := gjson.ParseBytes(resp.Body)
	attemptID := body.Get("response.id").String()

	var emailID string
	body.Get("response.supported_first_factors").ForEach(func(_, factor gjson.Result) bool {
		emailID = factor.Get("email_address_id").String()
		return emailID == ""
	})

	if attemptID == "" || emailID == "" {
		return nil, newServiceError(fmt.Sprintf("failed to send login link to email %s: sign in attempt id or email id is missing", email), resp)
	}

	attemptCookies := mergeCookies(cookies, resp.cookies())

	form = url.Values{
		"email_address_id": {emailID},
		"redirect_url":     {c.frontendURL + "/sign-in#/verify"},
		"strategy":         {"email_link"},
	}
	prepareURL := fmt.Sprintf("%s/v1/client/sign_ins/%s/prepare_first_factor", c.clerkURL, url.PathEscape(attemptID))
	resp, err = c.postForm(ctx, "prepare_first_factor", prepareURL, form, attemptCookies)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, upstreamError(fmt.Sprintf("failed to prepare first factor %s", email), resp)
	}

	c.logger.WithField("attempt", attemptID).Info("Login email sent")

	return &SignInAttempt{
		ID:     attemptID,
		Email:  email,
		Cookie: attemptCookies,
	}, nil
}

// PollLogin checks a sign-in attempt once. It returns ErrLoginPending until the
// link in the email has been followed.
func (c *Client) PollLogin(ctx context.Context, attempt *SignInAttempt) (*AuthorizedUser, error) {
	if attempt == nil || attempt.ID == "" {
		return nil, fmt.Errorf("%w: empty sign in attempt", ErrInvalidArgument)
	}

	if _, err := c.session.Cookies(ctx, false); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/v1/client/sign_ins/%s", c.clerkURL, url.PathEscape(attempt.ID)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", attempt.Cookie)

	resp, err := c.do("sign_in_status", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
		return nil, upstreamError("failed to authorize user", resp)
	}

	token := ""
	for _, ck := range resp.cookies() {
		if ck.Name == clientCookie {
			token = ck.Value
			break
		}
	}
	if token == "" || token == pendingSession {
		return nil, ErrLoginPending
	}

	body := gjson.ParseBytes(resp.Body)
	session := body.Get("client.sessions.0")
	user := &AuthorizedUser{
		UserID:       session.Get("user.id").String(),
		Username:     session.Get("user.username").String(),
		Email:        body.Get("response.identifier").String(),
		ImageURL:     session.Get("user.image_url").String(),
		RefreshToken: token,
		ClientID:     body.Get("client.id").String(),
		SessionID:    session.Get("id").String(),
	}

	if user.SessionID == "" || user.UserID == "" || user.ClientID == "" {
		return nil, newServiceError("failed to authorize user: session is missing from response", resp)
	}

	c.logger.WithFields(logrus.Fields{
		"attempt": attempt.ID,
		"user_id": user.UserID,
	}).Info("Login completed")

	return user, nil
}

// WaitOptions bounds WaitForLogin.
type WaitOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

// WaitForLogin polls the attempt until it completes, the budget runs out
// (ErrNotAuthorized) or ctx is done.
func (c *Client) WaitForLogin(ctx context.Context, attempt *SignInAttempt, opts WaitOptions) (*AuthorizedUser, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultLoginAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultLoginInterval
	}

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)

	for i := 1; i <= opts.MaxAttempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}

		user, err := c.PollLogin(ctx, attempt)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrLoginPending) {
			return nil, err
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt.ID,
			"try":     i,
			"of":      opts.MaxAttempts,
		}).Debug("Login still pending")
	}

	return nil, ErrNotAuthorized
}

// GetAccessToken exchanges a refresh token for a short-lived JWT.
func (c *Client) GetAccessToken(ctx context.Context, sessionID, refreshToken string) (string, error) {
	if sessionID == "" || refreshToken == "" {
		return "", fmt.Errorf("%w: session id and refresh token are required", ErrInvalidArgument)
	}

	cookies, err := c.session.Cookies(ctx, false)
	if err != nil {
		return "", err
	}

	tokenURL := fmt.Sprintf("%s/v1/client/sessions/%s/tokens?_clerk_js_version=5.5.0", c.clerkURL, url.PathEscape(sessionID))
	req, err := c.newRequest(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", clientCookie+"="+refreshToken+";"+cookies)

	resp, err := c.do("token", req)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", upstreamError("failed to get access token", resp)
	}

	accessToken := gjson.GetBytes(resp.Body, "jwt").String()
	if accessToken == "" {
		return "", newServiceError("failed to get access token: jwt is missing", resp)
	}

	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		se := newServiceError("failed to get access token: malformed jwt", resp)
		se.Cause = err
		return "", se
	}
	if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
		c.logger.WithField("expires_in", time.Until(exp.Time).Round(time.Second)).Debug("Access token issued")
	}

	return accessToken, nil
}

func (c *Client) postForm(ctx context.Context, op, target string, form url.Values, cookies string) (*response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", cookies)

	return c.do(op, req)
}
