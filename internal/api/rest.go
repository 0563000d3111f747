package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// REST is the HTTP implementation of Client against one host.
type REST struct {
	baseURL string
	http    *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

var _ Client = (*REST)(nil)

// NewREST creates a request client for the host at baseURL (a normalized
// origin, no trailing slash).
func NewREST(baseURL string) *REST {
	return &REST{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetToken swaps the bearer credential used for subsequent calls.
func (r *REST) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// SetUnauthorizedHandler installs the process-wide callback fired whenever
// any call is rejected with an unauthorized status. The handler runs on the
// caller's goroutine after the typed error has been built.
func (r *REST) SetUnauthorizedHandler(fn func()) {
	r.mu.Lock()
	r.onUnauthorized = fn
	r.mu.Unlock()
}

// wireError is the error body hosts attach to non-2xx responses.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *REST) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return NewError(KindInternal, "encode request", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return NewError(KindInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return NewError(KindUnreachable, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(KindInternal, "decode response", err)
		}
		return nil
	}

	var wire wireError
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		json.Unmarshal(raw, &wire)
	}
	apiErr := NewError(kindForStatus(resp.StatusCode), wire.Message, nil)

	if resp.StatusCode == http.StatusUnauthorized {
		r.mu.RLock()
		fn := r.onUnauthorized
		r.mu.RUnlock()
		if fn != nil {
			glog.Infof("unauthorized response from %s, invalidating credential", r.baseURL)
			fn()
		}
	}
	return apiErr
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusConflict:
		return KindConflict
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindInternal
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *REST) Login(ctx context.Context, username, password string) (*Session, error) {
	var session Session
	if err := r.do(ctx, http.MethodPost, "/api/auth/login", credentials{username, password}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *REST) Register(ctx context.Context, username, password string) (*Session, error) {
	var session Session
	if err := r.do(ctx, http.MethodPost, "/api/auth/register", credentials{username, password}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *REST) InstanceInfo(ctx context.Context) (*models.InstanceInfo, error) {
	var info models.InstanceInfo
	if err := r.do(ctx, http.MethodGet, "/api/instance", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *REST) Servers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	if err := r.do(ctx, http.MethodGet, "/api/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (r *REST) CreateServer(ctx context.Context, name string) (*models.Server, error) {
	var server models.Server
	body := map[string]string{"name": name}
	if err := r.do(ctx, http.MethodPost, "/api/servers", body, &server); err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *REST) JoinServer(ctx context.Context, serverID string) error {
	return r.do(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(serverID)+"/join", nil, nil)
}

func (r *REST) Channels(ctx context.Context, serverID string) ([]models.Channel, error) {
	var channels []models.Channel
	if err := r.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(serverID)+"/channels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *REST) CreateChannel(ctx context.Context, serverID, name string, kind models.ChannelKind) (*models.Channel, error) {
	var channel models.Channel
	body := map[string]string{"name": name, "kind": string(kind)}
	if err := r.do(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(serverID)+"/channels", body, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *REST) Roles(ctx context.Context, serverID string) ([]models.Role, error) {
	var roles []models.Role
	if err := r.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(serverID)+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *REST) CreateRole(ctx context.Context, serverID, name string) (*models.Role, error) {
	var role models.Role
	body := map[string]string{"name": name}
	if err := r.do(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(serverID)+"/roles", body, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *REST) Messages(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	path := "/api/channels/" + url.PathEscape(channelID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var messages []models.Message
	if err := r.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *REST) SendMessage(ctx context.Context, channelID, content string) (*models.Message, error) {
	var message models.Message
	body := map[string]string{"content": content}
	if err := r.do(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/messages", body, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *REST) DeleteMessage(ctx context.Context, channelID string, messageID int64) error {
	path := "/api/channels/" + url.PathEscape(channelID) + "/messages/" + strconv.FormatInt(messageID, 10)
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

func (r *REST) Members(ctx context.Context, serverID string) ([]models.Member, error) {
	var members []models.Member
	if err := r.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(serverID)+"/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *REST) Member(ctx context.Context, serverID, userID string) (*models.Member, error) {
	var member models.Member
	path := "/api/servers/" + url.PathEscape(serverID) + "/members/" + url.PathEscape(userID)
	if err := r.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *REST) PatchMember(ctx context.Context, serverID, userID string, patch MemberPatch) (*models.Member, error) {
	var member models.Member
	path := "/api/servers/" + url.PathEscape(serverID) + "/members/" + url.PathEscape(userID)
	if err := r.do(ctx, http.MethodPatch, path, patch, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *REST) VoiceParticipants(ctx context.Context, channelID string) ([]models.VoiceParticipant, error) {
	var participants []models.VoiceParticipant
	if err := r.do(ctx, http.MethodGet, "/api/channels/"+url.PathEscape(channelID)+"/voice", nil, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *REST) JoinVoice(ctx context.Context, channelID string) error {
	return r.do(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/voice/join", nil, nil)
}

func (r *REST) LeaveVoice(ctx context.Context, channelID string) error {
	return r.do(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/voice/leave", nil, nil)
}

func (r *REST) UpdateVoice(ctx context.Context, channelID string, patch VoiceStatePatch) error {
	return r.do(ctx, http.MethodPatch, "/api/channels/"+url.PathEscape(channelID)+"/voice", patch, nil)
}

func (r *REST) UploadAvatar(ctx context.Context, data []byte, contentType string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/users/me/avatar", bytes.NewReader(data))
	if err != nil {
		return nil, NewError(KindInternal, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, NewError(KindUnreachable, "upload avatar", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewError(kindForStatus(resp.StatusCode), "upload avatar", nil)
	}
	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, NewError(KindInternal, "decode response", err)
	}
	return &user, nil
}
