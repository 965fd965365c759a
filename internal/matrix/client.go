// Package matrix implements the slice of the Matrix client-server API the
// quiz bot needs: password login, the /sync long-poll loop, and sending
// formatted room messages.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"matrix-quiz-bot/internal/bot"
)

const (
	clientAPIPrefix = "/_matrix/client/v3"
	syncTimeoutMS   = 30000
	retryBackoff    = 3 * time.Second
)

// Client is a logged-in Matrix bot account.
type Client struct {
	homeserver  string
	userID      string
	accessToken string
	httpClient  *http.Client
	log         *logrus.Entry
}

func NewClient(homeserver string, log *logrus.Entry) *Client {
	return &Client{
		homeserver: strings.TrimRight(homeserver, "/"),
		// sync long-polls for 30s; leave headroom before the client gives up
		httpClient: &http.Client{Timeout: time.Duration(syncTimeoutMS)*time.Millisecond + 15*time.Second},
		log:        log,
	}
}

// UserID returns the fully qualified user ID assigned at login.
func (c *Client) UserID() string {
	return c.userID
}

type loginRequest struct {
	Type       string          `json:"type"`
	Identifier loginIdentifier `json:"identifier"`
	Password   string          `json:"password"`
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

type matrixError struct {
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

// Login performs a password login and stores the access token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	reqBody := loginRequest{
		Type:       "m.login.password",
		Identifier: loginIdentifier{Type: "m.id.user", User: username},
		Password:   password,
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, clientAPIPrefix+"/login", reqBody, &resp); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	c.userID = resp.UserID
	c.accessToken = resp.AccessToken
	c.log.WithField("user", c.userID).Info("logged into matrix")
	return nil
}

type messageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// Send delivers one m.room.message with an HTML rendering where each line
// break maps to <br/>. Implements bot.Messenger.
func (c *Client) Send(ctx context.Context, roomID, body string) error {
	txnID := uuid.NewString()
	path := fmt.Sprintf("%s/rooms/%s/send/m.room.message/%s",
		clientAPIPrefix, url.PathEscape(roomID), txnID)

	content := messageContent{
		MsgType:       "m.text",
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: strings.ReplaceAll(html.EscapeString(body), "\n", "<br/>"),
	}

	if err := c.do(ctx, http.MethodPut, path, content, nil); err != nil {
		c.log.WithField("room", roomID).WithError(err).Error("sending matrix message failed")
		return err
	}
	return nil
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]joinedRoom `json:"join"`
	} `json:"rooms"`
}

type joinedRoom struct {
	Timeline struct {
		Events []roomEvent `json:"events"`
	} `json:"timeline"`
}

type roomEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Content struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	} `json:"content"`
}

// Sync runs the long-poll loop until the context is canceled, handing every
// text message to the handler. The first sync only establishes the batch
// token so the room backlog is not replayed as fresh commands.
func (c *Client) Sync(ctx context.Context, handle func(bot.Event)) error {
	since := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := c.syncOnce(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).Error("sync failed, retrying")
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if since != "" {
			c.deliver(resp, handle)
		}
		since = resp.NextBatch
	}
}

func (c *Client) syncOnce(ctx context.Context, since string) (*syncResponse, error) {
	query := url.Values{}
	query.Set("timeout", fmt.Sprint(syncTimeoutMS))
	if since != "" {
		query.Set("since", since)
	}

	var resp syncResponse
	if err := c.do(ctx, http.MethodGet, clientAPIPrefix+"/sync?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) deliver(resp *syncResponse, handle func(bot.Event)) {
	for roomID, room := range resp.Rooms.Join {
		for _, ev := range room.Timeline.Events {
			if ev.Type != "m.room.message" || ev.Content.MsgType != "m.text" {
				continue
			}
			handle(bot.Event{
				RoomID:   roomID,
				Sender:   ev.Sender,
				Body:     ev.Content.Body,
				FromSelf: ev.Sender == c.userID,
			})
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.homeserver+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		var mErr matrixError
		if err := json.Unmarshal(body, &mErr); err == nil && mErr.Code != "" {
			return fmt.Errorf("matrix api %s: %s (%s)", res.Status, mErr.Message, mErr.Code)
		}
		return fmt.Errorf("matrix api %s", res.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
