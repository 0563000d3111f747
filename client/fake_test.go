package client

import (
	"context"
	"sync"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// fakeAPI is a scriptable request client shared by the package tests.
type fakeAPI struct {
	mu    sync.Mutex
	token string

	instanceInfo *models.InstanceInfo
	instanceErr  error
	servers      []models.Server
	serversErr   error
	channels     map[string][]models.Channel
	messages     []models.Message
	messagesErr  error
	sendResult   *models.Message
	sendErr      error
	members      []models.Member
	patchResult  *models.Member
	voiceList    []models.VoiceParticipant
	joinVoiceErr error
	voiceErr     error

	joinCalls        []string
	createdChannels  []string
	updateVoiceCalls []api.VoiceStatePatch
}

var _ api.Client = (*fakeAPI)(nil)

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeAPI) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (*api.Session, error) {
	return &api.Session{Token: "tok", User: models.User{ID: "me", Username: username}}, nil
}

func (f *fakeAPI) Register(ctx context.Context, username, password string) (*api.Session, error) {
	return f.Login(ctx, username, password)
}

func (f *fakeAPI) InstanceInfo(ctx context.Context) (*models.InstanceInfo, error) {
	if f.instanceErr != nil {
		return nil, f.instanceErr
	}
	if f.instanceInfo == nil {
		return &models.InstanceInfo{Name: "fake", Mode: models.ModeCommunity}, nil
	}
	return f.instanceInfo, nil
}

func (f *fakeAPI) Servers(ctx context.Context) ([]models.Server, error) {
	if f.serversErr != nil {
		return nil, f.serversErr
	}
	return f.servers, nil
}

func (f *fakeAPI) CreateServer(ctx context.Context, name string) (*models.Server, error) {
	return &models.Server{ID: "new", Name: name, OwnerID: "me"}, nil
}

func (f *fakeAPI) JoinServer(ctx context.Context, serverID string) error {
	f.mu.Lock()
	f.joinCalls = append(f.joinCalls, serverID)
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) JoinCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joinCalls...)
}

func (f *fakeAPI) Channels(ctx context.Context, serverID string) ([]models.Channel, error) {
	return f.channels[serverID], nil
}

func (f *fakeAPI) CreateChannel(ctx context.Context, serverID, name string, kind models.ChannelKind) (*models.Channel, error) {
	f.mu.Lock()
	f.createdChannels = append(f.createdChannels, serverID+"/"+name)
	f.mu.Unlock()
	return &models.Channel{ID: "ch-new", ServerID: serverID, Name: name, Kind: kind}, nil
}

func (f *fakeAPI) Roles(ctx context.Context, serverID string) ([]models.Role, error) {
	return nil, nil
}

func (f *fakeAPI) CreateRole(ctx context.Context, serverID, name string) (*models.Role, error) {
	return &models.Role{ID: "r-new", ServerID: serverID, Name: name}, nil
}

func (f *fakeAPI) Messages(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return f.messages, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, channelID, content string) (*models.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResult != nil {
		return f.sendResult, nil
	}
	return &models.Message{ID: 1, ChannelID: channelID, AuthorID: "me", Content: content}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, channelID string, messageID int64) error {
	return nil
}

func (f *fakeAPI) Members(ctx context.Context, serverID string) ([]models.Member, error) {
	return f.members, nil
}

func (f *fakeAPI) Member(ctx context.Context, serverID, userID string) (*models.Member, error) {
	for i := range f.members {
		if f.members[i].UserID == userID {
			return &f.members[i], nil
		}
	}
	return nil, api.NewError(api.KindNotFound, "no such member", nil)
}

func (f *fakeAPI) PatchMember(ctx context.Context, serverID, userID string, patch api.MemberPatch) (*models.Member, error) {
	if f.patchResult != nil {
		return f.patchResult, nil
	}
	return nil, api.NewError(api.KindNotFound, "no such member", nil)
}

func (f *fakeAPI) VoiceParticipants(ctx context.Context, channelID string) ([]models.VoiceParticipant, error) {
	return f.voiceList, nil
}

func (f *fakeAPI) JoinVoice(ctx context.Context, channelID string) error {
	return f.joinVoiceErr
}

func (f *fakeAPI) LeaveVoice(ctx context.Context, channelID string) error {
	return f.voiceErr
}

func (f *fakeAPI) UpdateVoice(ctx context.Context, channelID string, patch api.VoiceStatePatch) error {
	f.mu.Lock()
	f.updateVoiceCalls = append(f.updateVoiceCalls, patch)
	f.mu.Unlock()
	return f.voiceErr
}

func (f *fakeAPI) UploadAvatar(ctx context.Context, data []byte, contentType string) (*models.User, error) {
	return &models.User{ID: "me"}, nil
}
