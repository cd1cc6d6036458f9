package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendly/internal/errs"
	"attendly/internal/metrics"
	"attendly/internal/model"
)

// Event names sent to clients.
const (
	EventReceive     = "receiveMessage"
	EventSeen        = "messageSeen"
	EventUpdated     = "messageUpdated"
	EventDeleted     = "messageDeleted"
	EventOnlineUsers = "onlineUsers"
	EventError       = "error"
	EventPong        = "pong"
)

var (
	errNotSender   = errs.Forbidden("Only the sender can modify this message")
	errNotReceiver = errs.Forbidden("Only the receiver can mark this message as seen")
)

// Directory resolves message recipients.
type Directory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type Service struct {
	store  Store
	users  Directory
	broker Broker
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, users Directory, broker Broker, log *zap.Logger) *Service {
	return &Service{store: store, users: users, broker: broker, log: log, now: time.Now}
}

// RoomID names the conversation between two users independently of who sends first.
func RoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "_" + ids[1]
}

func (s *Service) Send(ctx context.Context, sender *model.User, receiverID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrMessageEmpty
	}
	if receiverID == sender.ID {
		return nil, errs.ErrMessageSelf
	}
	if _, err := s.users.FindByID(ctx, receiverID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrRecipientNotFound
		}
		return nil, err
	}
	now := s.now().UTC()
	m := &model.Message{
		ID:        uuid.NewString(),
		Room:      RoomID(sender.ID, receiverID),
		Sender:    sender.ID,
		Receiver:  receiverID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	metrics.ChatMessages.Inc()
	s.emit(ctx, m.Room, EventReceive, m)
	return m, nil
}

// Conversation returns the messages between actor and otherID, oldest first.
func (s *Service) Conversation(ctx context.Context, actor *model.User, otherID string) ([]model.Message, error) {
	return s.store.Room(ctx, RoomID(actor.ID, otherID))
}

func (s *Service) Inbox(ctx context.Context, actor *model.User) ([]model.Message, error) {
	return s.store.Inbox(ctx, actor.ID)
}

func (s *Service) MarkSeen(ctx context.Context, actor *model.User, id string) (*model.Message, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Receiver != actor.ID {
		return nil, errNotReceiver
	}
	if m.Seen {
		return m, nil
	}
	m.Seen = true
	m.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	s.emit(ctx, m.Room, EventSeen, m)
	return m, nil
}

func (s *Service) Update(ctx context.Context, actor *model.User, id, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrMessageEmpty
	}
	m, err := s.sent(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	m.Content = content
	m.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	s.emit(ctx, m.Room, EventUpdated, m)
	return m, nil
}

func (s *Service) Delete(ctx context.Context, actor *model.User, id string) (*model.Message, error) {
	m, err := s.sent(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.emit(ctx, m.Room, EventDeleted, map[string]string{"id": m.ID, "room": m.Room})
	return m, nil
}

func (s *Service) sent(ctx context.Context, actor *model.User, id string) (*model.Message, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Sender != actor.ID {
		return nil, errNotSender
	}
	return m, nil
}

// emit publishes a room event. The stored message is authoritative, so failures are only logged.
func (s *Service) emit(ctx context.Context, room, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Error("encode chat event", zap.String("event", name), zap.Error(err))
		return
	}
	if err := s.broker.Publish(ctx, Event{Room: room, Name: name, Data: payload}); err != nil {
		s.log.Warn("publish chat event", zap.String("event", name), zap.String("room", room), zap.Error(err))
	}
}
