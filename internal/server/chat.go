package server

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/protocol"
)

// Command is one slash command.
type Command struct {
	Keyword string
	Help    string
	Run     func(s *Server, id entity.ID, args string)
}

// CommandDispatcher runs chat lines that start with a slash.
type CommandDispatcher interface {
	Dispatch(s *Server, id entity.ID, line string)
}

// Commands dispatches by keyword and answers unknown ones.
type Commands struct {
	list []Command
}

// DefaultCommands knows only /help.
func DefaultCommands() *Commands {
	c := &Commands{}
	c.Register(Command{
		Keyword: "help",
		Help:    "/help: Display this message",
		Run: func(s *Server, id entity.ID, _ string) {
			for _, cmd := range c.list {
				s.clients.Notify(id, privateChat(cmd.Help))
			}
		},
	})
	return c
}

func (c *Commands) Register(cmd Command) { c.list = append(c.list, cmd) }

// Dispatch takes the line without its leading slash.
func (c *Commands) Dispatch(s *Server, id entity.ID, line string) {
	kwd, args, _ := strings.Cut(line, " ")
	for _, cmd := range c.list {
		if cmd.Keyword == kwd {
			cmd.Run(s, id, args)
			return
		}
	}
	s.clients.Notify(id, privateChat(fmt.Sprintf(
		"Unrecognised command: '/%s'\ntype '/help' for a list of available commands", kwd)))
}

func privateChat(msg string) protocol.Chat {
	return protocol.Chat{Kind: protocol.ChatPrivate, Message: msg}
}

type pendingChat struct {
	from entity.ID // zero for server announcements
	msg  protocol.Chat
}

// announce queues a server line for every registered session.
func (s *Server) announce(kind protocol.ChatKind, msg string) {
	s.chat = append(s.chat, pendingChat{msg: protocol.Chat{Kind: kind, Message: msg}})
}

// flushChat routes the chat queued while draining messages.
func (s *Server) flushChat() {
	pending := s.chat
	s.chat = nil
	for _, p := range pending {
		if p.from == 0 {
			s.clients.NotifyRegistered(p.msg)
			s.emit(Event{Kind: EventChat, Message: p.msg.Message})
			continue
		}
		text := p.msg.Message
		if strings.HasPrefix(text, "/") && len(text) > 1 {
			s.commands.Dispatch(s, p.from, text[1:])
			continue
		}
		alias := "<Unknown>"
		if pl, ok := s.entities.Player.Get(p.from); ok {
			alias = pl.Alias
		}
		line := fmt.Sprintf("[%s] %s", alias, text)
		if s.entities.Admin.Has(p.from) {
			line = "[ADMIN]" + line
		}
		s.clients.NotifyRegistered(protocol.Chat{Kind: protocol.ChatBroadcast, Message: line})
		s.log.Debug("chat", zap.String("alias", alias), zap.String("line", line))
		s.emit(Event{Kind: EventChat, Entity: p.from, Alias: alias, Message: line})
	}
}
