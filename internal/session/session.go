// Package session holds the state of one logged-in account.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

// ChatPageSize is the number of chats requested per loadChats call.
const ChatPageSize = 100

// ChatLoader requests chats of the main chat list. The chats themselves arrive as updates.
type ChatLoader interface {
	LoadChats(ctx context.Context, id int32, limit int) error
}

// Session tracks users, chats and options a client reports.
type Session struct {
	id     int32
	info   datadir.DatabaseInfo
	loader ChatLoader
	logger zerolog.Logger

	mu        sync.RWMutex
	me        *tdlib.User
	users     map[int64]tdlib.User
	online    map[int64]bool
	chats     map[int64]*tdlib.Chat
	chatOrder []int64
	options   map[string]tdlib.OptionValue
}

// New creates the session of client id backed by the database info.
func New(id int32, info datadir.DatabaseInfo, loader ChatLoader, logger *zerolog.Logger) *Session {
	return &Session{
		id:      id,
		info:    info,
		loader:  loader,
		logger:  logger.With().Int32("client_id", id).Str("database", info.DirectoryBaseName).Logger(),
		users:   make(map[int64]tdlib.User),
		online:  make(map[int64]bool),
		chats:   make(map[int64]*tdlib.Chat),
		options: make(map[string]tdlib.OptionValue),
	}
}

func (s *Session) ClientID() int32 { return s.id }

func (s *Session) DatabaseInfo() datadir.DatabaseInfo { return s.info }

// Me returns the own profile or nil before it was fetched.
func (s *Session) Me() *tdlib.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.me == nil {
		return nil
	}
	me := *s.me
	return &me
}

// SetMe stores the own profile. Later updateUser events for the same id refresh it.
func (s *Session) SetMe(user tdlib.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.me = &user
	s.users[user.ID] = user
}

// HandleUpdate applies a non-authorization update.
func (s *Session) HandleUpdate(update tdlib.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch update.Kind {
	case tdlib.UpdateUser:
		if update.User == nil {
			return
		}
		s.users[update.User.ID] = *update.User
		if s.me != nil && s.me.ID == update.User.ID {
			me := *update.User
			s.me = &me
		}
	case tdlib.UpdateUserStatus:
		s.online[update.UserID] = update.Online
	case tdlib.UpdateNewChat:
		if update.Chat == nil {
			return
		}
		chat := *update.Chat
		if _, ok := s.chats[chat.ID]; !ok {
			s.chatOrder = append(s.chatOrder, chat.ID)
		}
		s.chats[chat.ID] = &chat
	case tdlib.UpdateChatTitle:
		if update.Chat == nil {
			return
		}
		chat, ok := s.chats[update.Chat.ID]
		if !ok {
			s.logger.Warn().Int64("chat_id", update.Chat.ID).Msg("title update for unknown chat")
			return
		}
		chat.Title = update.Chat.Title
	case tdlib.UpdateOption:
		s.options[update.OptionName] = update.OptionValue
	default:
		s.logger.Trace().Str("type", update.Type).Msg("update ignored")
	}
}

// FetchChats loads the main chat list page by page until the runtime reports that all chats
// are known.
func (s *Session) FetchChats(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.loader.LoadChats(ctx, s.id, ChatPageSize)
		if err == nil {
			continue
		}
		var tdErr *tdlib.Error
		if errors.As(err, &tdErr) && tdErr.Code == 404 {
			return nil
		}
		return fmt.Errorf("load chats: %w", err)
	}
}

// Chats returns the known chats in arrival order.
func (s *Session) Chats() []tdlib.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tdlib.Chat, 0, len(s.chatOrder))
	for _, id := range s.chatOrder {
		out = append(out, *s.chats[id])
	}
	return out
}

// User returns a known user.
func (s *Session) User(id int64) (tdlib.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// Online reports the last known online status of a user.
func (s *Session) Online(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID]
}

// Option returns the last reported value of a client option.
func (s *Session) Option(name string) (tdlib.OptionValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.options[name]
	return v, ok
}
