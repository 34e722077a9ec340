package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ehrlich-b/chatsync/internal/chat"
)

// Result is a successful login, whichever path produced it.
type Result struct {
	Token  string
	UserID string
}

// LoginFunc performs the one-shot HTTP login. It blocks and must not touch
// coordinator state.
type LoginFunc func(ctx context.Context, creds chat.Credentials) (Result, error)

type loginRequest struct {
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	WebsiteID string `json:"websiteId"`
}

type loginResponse struct {
	User *struct {
		ID flexID `json:"id"`
	} `json:"user"`
	Token string `json:"token"`
	Error string `json:"error,omitempty"`
}

// flexID accepts the user id as a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "user id")
	}
	*f = flexID(n.String())
	return nil
}

// HTTPLogin posts credentials to {apiURL}/api/auth/login. Only a body carrying
// both user.id and token counts as success, whatever the status code.
func HTTPLogin(client *http.Client, apiURL, websiteID string) LoginFunc {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(apiURL, "/") + "/api/auth/login"
	return func(ctx context.Context, creds chat.Credentials) (Result, error) {
		body, err := json.Marshal(loginRequest{Phone: creds.Phone, Password: creds.Password, WebsiteID: websiteID})
		if err != nil {
			return Result{}, errors.Wrap(err, "marshal request")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return Result{}, errors.Wrap(err, "build request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return Result{}, errors.Wrap(err, "http login")
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return Result{}, errors.Wrap(err, "read response")
		}
		var lr loginResponse
		if err := json.Unmarshal(raw, &lr); err != nil {
			return Result{}, errors.Wrapf(err, "decode response (%s)", resp.Status)
		}
		if lr.User == nil || lr.User.ID == "" || lr.Token == "" {
			if lr.Error != "" {
				return Result{}, errors.Errorf("http login failed: %s", lr.Error)
			}
			return Result{}, errors.Errorf("http login failed: %s", resp.Status)
		}
		return Result{Token: lr.Token, UserID: string(lr.User.ID)}, nil
	}
}

// statusOf is used in logs only.
func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return strconv.Quote(err.Error())
}
