package repository

import (
	"context"
	"net/http"
	"time"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	pathConversations = "/api/chat/conversations"
	pathMessages      = "/api/chat/{kind}/{id}/messages"
	pathMessage       = "/api/chat/{kind}/{id}/messages/{mid}"
	pathRead          = "/api/chat/{kind}/{id}/read"
	pathMembers       = "/api/chat/{kind}/{id}/members"
	pathMember        = "/api/chat/{kind}/{id}/members/{uid}"
)

// RestAPI domain.MessageAPI over HTTP
type RestAPI struct {
	client *resty.Client
}

// NewRestAPI create RestAPI, token is sent as a bearer token when set
func NewRestAPI(baseURL, token string, timeout time.Duration) *RestAPI {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &RestAPI{client: client}
}

type editRequest struct {
	Body string `json:"body"`
}

type readRequest struct {
	MessageID string `json:"messageId"`
}

type memberRequest struct {
	UserID string `json:"userId"`
}

// ListConversations GET /api/chat/conversations
func (a *RestAPI) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var wire []WireConversation
	resp, err := a.client.R().SetContext(ctx).SetResult(&wire).Get(pathConversations)
	if err := checkResponse(resp, err, "list conversations"); err != nil {
		return nil, err
	}

	out := make([]domain.Conversation, 0, len(wire))
	for _, w := range wire {
		c, err := w.ToDomain()
		if err != nil {
			logger.Log.Warn("skip invalid conversation", zap.String("id", w.ID), zap.String("type", string(w.Type)))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// FetchMessages GET /api/chat/{kind}/{id}/messages
func (a *RestAPI) FetchMessages(ctx context.Context, ref domain.ConversationRef) ([]domain.Message, error) {
	var wire []WireMessage
	resp, err := a.request(ctx, ref).SetResult(&wire).Get(pathMessages)
	if err := checkResponse(resp, err, "fetch messages of %s", ref); err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(wire))
	for _, w := range wire {
		m, err := w.ToDomain()
		if err != nil {
			return nil, err
		}
		if m.Ref != ref {
			return nil, errors.Wrapf(domain.ErrInvalidConversationRef, "snapshot of %s contains message %s of %s", ref, m.ID, m.Ref)
		}
		out = append(out, m)
	}
	return out, nil
}

// PersistMessage POST /api/chat/{kind}/{id}/messages
func (a *RestAPI) PersistMessage(ctx context.Context, ref domain.ConversationRef, draft domain.Draft) (domain.Message, error) {
	var wire WireMessage
	resp, err := a.request(ctx, ref).SetBody(draft).SetResult(&wire).Post(pathMessages)
	if err := checkResponse(resp, err, "persist message %s", draft.TempID); err != nil {
		return domain.Message{}, err
	}
	return wire.ToDomain()
}

// EditMessage PATCH /api/chat/{kind}/{id}/messages/{mid}
func (a *RestAPI) EditMessage(ctx context.Context, ref domain.ConversationRef, messageID, body string) (domain.Message, error) {
	var wire WireMessage
	resp, err := a.request(ctx, ref).
		SetPathParam("mid", messageID).
		SetBody(editRequest{Body: body}).
		SetResult(&wire).
		Patch(pathMessage)
	if err := checkResponse(resp, err, "edit message %s", messageID); err != nil {
		return domain.Message{}, err
	}
	return wire.ToDomain()
}

// DeleteMessage DELETE /api/chat/{kind}/{id}/messages/{mid}
func (a *RestAPI) DeleteMessage(ctx context.Context, ref domain.ConversationRef, messageID string) error {
	resp, err := a.request(ctx, ref).SetPathParam("mid", messageID).Delete(pathMessage)
	return checkResponse(resp, err, "delete message %s", messageID)
}

// MarkRead POST /api/chat/{kind}/{id}/read
func (a *RestAPI) MarkRead(ctx context.Context, ref domain.ConversationRef, messageID string) error {
	resp, err := a.request(ctx, ref).SetBody(readRequest{MessageID: messageID}).Post(pathRead)
	return checkResponse(resp, err, "mark read %s", ref)
}

// AddMember POST /api/chat/{kind}/{id}/members
func (a *RestAPI) AddMember(ctx context.Context, ref domain.ConversationRef, userID string) error {
	resp, err := a.request(ctx, ref).SetBody(memberRequest{UserID: userID}).Post(pathMembers)
	return checkResponse(resp, err, "add member %s to %s", userID, ref)
}

// RemoveMember DELETE /api/chat/{kind}/{id}/members/{uid}
func (a *RestAPI) RemoveMember(ctx context.Context, ref domain.ConversationRef, userID string) error {
	resp, err := a.request(ctx, ref).SetPathParam("uid", userID).Delete(pathMember)
	return checkResponse(resp, err, "remove member %s from %s", userID, ref)
}

func (a *RestAPI) request(ctx context.Context, ref domain.ConversationRef) *resty.Request {
	return a.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"kind": string(ref.Kind),
			"id":   ref.ID,
		})
}

// checkResponse map transport errors and status codes onto domain errors
func checkResponse(resp *resty.Response, err error, format string, args ...interface{}) error {
	if err != nil {
		return errors.Wrapf(err, format, args...)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusForbidden:
		return errors.Wrapf(domain.ErrAccessDenied, format, args...)
	case code == http.StatusNotFound:
		return errors.Wrapf(domain.ErrNotFound, format, args...)
	case resp.IsError():
		return errors.Wrapf(errors.Errorf("status %d", code), format, args...)
	}
	return nil
}
