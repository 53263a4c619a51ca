package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
)

// Message is the notification shown on the device.
type Message struct {
	Title string
	Body  string
	Link  string
}

// SendResponse is the per-token outcome of a multicast.
type SendResponse struct {
	Token   string
	Success bool
	// Code is the FCM error code from the error details, e.g. UNREGISTERED.
	// Empty when the provider gave only a top-level status.
	Code    string
	Status  string
	Message string
	Err     error
}

// InvalidToken reports whether the provider rejected the token itself, in
// which case it should be removed from the profile. INVALID_ARGUMENT also
// covers malformed messages, so it only counts when it names the token.
func (r SendResponse) InvalidToken() bool {
	switch r.Code {
	case "UNREGISTERED":
		return true
	case "INVALID_ARGUMENT":
		return strings.Contains(strings.ToLower(r.Message), "registration token")
	}
	return false
}

// BatchResponse aggregates a multicast.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResponse
}

// Sender delivers one message to many device tokens.
type Sender interface {
	SendMulticast(ctx context.Context, msg Message, tokens []string) (*BatchResponse, error)
}

// FCMSender talks to the Firebase Cloud Messaging HTTP v1 API with a
// service-account token source.
type FCMSender struct {
	client   *http.Client
	endpoint string
}

// NewFCMSender loads the service-account credentials file.
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read fcm credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, fmt.Errorf("fcm project id missing")
	}
	return NewFCMSenderWithClient(oauth2.NewClient(ctx, creds.TokenSource), fmt.Sprintf(fcmEndpoint, projectID)), nil
}

// NewFCMSenderWithClient uses an already authorized client against endpoint.
func NewFCMSenderWithClient(client *http.Client, endpoint string) *FCMSender {
	return &FCMSender{client: client, endpoint: endpoint}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Webpush      *fcmWebpush       `json:"webpush,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmWebpush struct {
	FCMOptions struct {
		Link string `json:"link"`
	} `json:"fcm_options"`
}

type fcmError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// SendMulticast sends msg to every token. The returned error is only set when
// nothing could be attempted; per-token failures live in the response.
func (s *FCMSender) SendMulticast(ctx context.Context, msg Message, tokens []string) (*BatchResponse, error) {
	out := &BatchResponse{Responses: make([]SendResponse, 0, len(tokens))}
	for _, tok := range tokens {
		resp := s.sendOne(ctx, msg, tok)
		if resp.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
		out.Responses = append(out.Responses, resp)
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
	return out, nil
}

func (s *FCMSender) sendOne(ctx context.Context, msg Message, token string) SendResponse {
	body := fcmRequest{Message: fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
	}}
	if msg.Link != "" {
		body.Message.Data = map[string]string{"link": msg.Link}
		// FCM rejects the whole message for a non-https webpush link
		if strings.HasPrefix(msg.Link, "https://") {
			body.Message.Webpush = &fcmWebpush{}
			body.Message.Webpush.FCMOptions.Link = msg.Link
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return SendResponse{Token: token, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return SendResponse{Token: token, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResponse{Token: token, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusOK {
		return SendResponse{Token: token, Success: true}
	}
	var fe fcmError
	_ = json.Unmarshal(raw, &fe)
	code := ""
	for _, d := range fe.Error.Details {
		if d.ErrorCode != "" {
			code = d.ErrorCode
			break
		}
	}
	return SendResponse{
		Token:   token,
		Code:    code,
		Status:  fe.Error.Status,
		Message: fe.Error.Message,
		Err:     fmt.Errorf("fcm send failed: %s %s", resp.Status, fe.Error.Message),
	}
}
