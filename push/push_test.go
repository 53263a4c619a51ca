package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novojourney/novo/internal/testutil"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/store"
)

type fakeSender struct {
	invalid map[string]bool
	got     []string
	msg     Message
}

func (f *fakeSender) SendMulticast(_ context.Context, msg Message, tokens []string) (*BatchResponse, error) {
	f.msg = msg
	f.got = append(f.got, tokens...)
	out := &BatchResponse{}
	for _, tok := range tokens {
		if f.invalid[tok] {
			out.FailureCount++
			out.Responses = append(out.Responses, SendResponse{Token: tok, Code: "UNREGISTERED"})
			continue
		}
		out.SuccessCount++
		out.Responses = append(out.Responses, SendResponse{Token: tok, Success: true})
	}
	return out, nil
}

func seedProfiles(t *testing.T, profiles *store.ProfileStore, tokens map[string]string) {
	t.Helper()
	ctx := context.Background()
	for user, tok := range tokens {
		_, err := profiles.Create(ctx, &models.UserProfile{UserID: user})
		require.NoError(t, err)
		if tok != "" {
			require.NoError(t, profiles.SetPushToken(ctx, user, tok))
		}
	}
}

func TestSendDailyRemindersClearsInvalidTokens(t *testing.T) {
	ctx := context.Background()
	profiles := store.NewProfileStore(testutil.SetupTestDB(t))
	seedProfiles(t, profiles, map[string]string{"a": "tok-a", "b": "tok-b", "c": "", "d": "tok-a"})

	sender := &fakeSender{invalid: map[string]bool{"tok-b": true}}
	msg := Message{Title: "Your daily Novo reminder", Body: "Keep going"}
	report, err := NewNotifier(profiles, sender, msg, nil).SendDailyReminders(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"tok-a", "tok-b"}, sender.got)
	assert.Equal(t, msg, sender.msg)
	assert.Equal(t, Report{Recipients: 2, Sent: 1, Failed: 1, TokensCleared: 1}, report)

	remaining, err := profiles.ListWithPushToken(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	b, err := profiles.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, b.FCMToken)
}

func TestSendDailyRemindersWithoutRecipients(t *testing.T) {
	profiles := store.NewProfileStore(testutil.SetupTestDB(t))
	sender := &fakeSender{}
	report, err := NewNotifier(profiles, sender, Message{}, nil).SendDailyReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Recipients)
	assert.Empty(t, sender.got)
}

type failingTokens struct{}

func (failingTokens) SetPushToken(context.Context, string, string) error {
	return errors.New("store offline")
}

func TestRegistrarIsBestEffort(t *testing.T) {
	ctx := context.Background()
	profiles := store.NewProfileStore(testutil.SetupTestDB(t))
	seedProfiles(t, profiles, map[string]string{"u1": ""})

	res := NewRegistrar(profiles, nil).Register(ctx, "u1", " tok ")
	assert.True(t, res.Registered)
	p, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p.FCMToken)
	assert.Equal(t, "tok", *p.FCMToken)

	res = NewRegistrar(failingTokens{}, nil).Register(ctx, "u1", "tok")
	assert.False(t, res.Registered)
	assert.Error(t, res.Err)

	res = NewRegistrar(profiles, nil).Register(ctx, "u1", "")
	assert.False(t, res.Registered)

	var disabled *Registrar
	assert.False(t, disabled.Register(ctx, "u1", "tok").Registered)
}

func TestFCMSenderMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req fcmRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "Title", req.Message.Notification.Title)
		if strings.HasPrefix(req.Message.Token, "dead") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"projects/p/messages/1"}`))
	}))
	defer srv.Close()

	sender := NewFCMSenderWithClient(srv.Client(), srv.URL)
	batch, err := sender.SendMulticast(context.Background(), Message{Title: "Title", Body: "Body", Link: "/today"}, []string{"live-1", "dead-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	require.Len(t, batch.Responses, 2)
	assert.True(t, batch.Responses[0].Success)
	assert.Equal(t, "UNREGISTERED", batch.Responses[1].Code)
	assert.True(t, batch.Responses[1].InvalidToken())
}

func TestMalformedMessageKeepsTokens(t *testing.T) {
	var webpush []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fcmRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		webpush = append(webpush, req.Message.Webpush != nil)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid value at 'message.webpush.fcm_options.link' (HTTPS required)","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	profiles := store.NewProfileStore(testutil.SetupTestDB(t))
	seedProfiles(t, profiles, map[string]string{"a": "tok-a", "b": "tok-b"})

	sender := NewFCMSenderWithClient(srv.Client(), srv.URL)
	msg := Message{Title: "Reminder", Body: "Keep going", Link: "http://localhost:3000"}
	report, err := NewNotifier(profiles, sender, msg, nil).SendDailyReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Recipients: 2, Sent: 0, Failed: 2, TokensCleared: 0}, report)
	assert.Equal(t, []bool{false, false}, webpush)

	remaining, err := profiles.ListWithPushToken(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestInvalidTokenClassification(t *testing.T) {
	assert.True(t, SendResponse{Code: "UNREGISTERED"}.InvalidToken())
	assert.True(t, SendResponse{Code: "INVALID_ARGUMENT", Message: "The registration token is not a valid FCM registration token"}.InvalidToken())
	assert.False(t, SendResponse{Code: "INVALID_ARGUMENT", Message: "Invalid JSON payload received."}.InvalidToken())
	assert.False(t, SendResponse{Status: "INVALID_ARGUMENT"}.InvalidToken())
	assert.False(t, SendResponse{Status: "NOT_FOUND"}.InvalidToken())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(NewNotifier(nil, nil, Message{}, nil), "not a spec", nil)
	assert.Error(t, s.Start())

	ok := NewScheduler(NewNotifier(nil, nil, Message{}, nil), "@every 24h", nil)
	require.NoError(t, ok.Start())
	ok.Stop(context.Background())
}
