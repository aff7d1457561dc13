package surface

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSurface is a development Surface that records every outbound action
// to the logger and fabricates thread handles. It lets the engine, the
// sweeps, and the ops API run end to end without a chat platform
// connection.
type LogSurface struct {
	channelID string
	logger    *zap.Logger
}

// NewLogSurface builds a log-backed surface for the given channel id.
func NewLogSurface(channelID string, logger *zap.Logger) *LogSurface {
	return &LogSurface{channelID: channelID, logger: logger.Named("surface")}
}

func (s *LogSurface) CreateThread(_ context.Context, title, body string, tags []Tag) (ThreadRef, error) {
	ref := ThreadRef{ThreadID: uuid.NewString(), ChannelID: s.channelID}
	s.logger.Info("create thread",
		zap.String("thread", ref.ThreadID),
		zap.String("title", title),
		zap.Int("body_len", len(body)),
		zap.Int("tags", len(tags)))
	return ref, nil
}

func (s *LogSurface) SendToThread(_ context.Context, threadID, text string) error {
	s.logger.Info("send to thread", zap.String("thread", threadID), zap.String("text", text))
	return nil
}

func (s *LogSurface) SendFilesToThread(_ context.Context, threadID string, files []FileUpload) error {
	s.logger.Info("send files to thread", zap.String("thread", threadID), zap.Int("files", len(files)))
	return nil
}

func (s *LogSurface) SendDM(_ context.Context, userID, text string) error {
	s.logger.Info("send dm", zap.String("user", userID), zap.String("text", text))
	return nil
}

func (s *LogSurface) SendDMPrompt(_ context.Context, userID string, prompt Prompt) error {
	s.logger.Info("send dm prompt",
		zap.String("user", userID),
		zap.String("menu", prompt.MenuID),
		zap.Int("options", len(prompt.MenuOptions)),
		zap.Int("buttons", len(prompt.Buttons)))
	return nil
}

func (s *LogSurface) SendFilesDM(_ context.Context, userID string, files []FileUpload) error {
	s.logger.Info("send files dm", zap.String("user", userID), zap.Int("files", len(files)))
	return nil
}

func (s *LogSurface) ApplyThreadTags(_ context.Context, threadID string, tags []Tag) error {
	s.logger.Info("apply thread tags", zap.String("thread", threadID), zap.Int("tags", len(tags)))
	return nil
}

func (s *LogSurface) AvailableTags(context.Context) ([]Tag, error) {
	return nil, nil
}

func (s *LogSurface) SetThreadArchived(_ context.Context, threadID string, archived, locked bool) error {
	s.logger.Info("set thread archived",
		zap.String("thread", threadID),
		zap.Bool("archived", archived),
		zap.Bool("locked", locked))
	return nil
}

func (s *LogSurface) AddThreadMember(_ context.Context, threadID, userID string) error {
	s.logger.Info("add thread member", zap.String("thread", threadID), zap.String("user", userID))
	return nil
}

func (s *LogSurface) RoleMembers(context.Context, string) ([]User, error) {
	return nil, nil
}

func (s *LogSurface) ResolveUser(_ context.Context, userID string) (User, error) {
	return User{ID: userID, Name: userID}, nil
}

func (s *LogSurface) FetchAttachment(context.Context, string) ([]byte, error) {
	return nil, nil
}

func (s *LogSurface) TicketChannelID() string {
	return s.channelID
}
