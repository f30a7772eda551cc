package chat

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/conversation"
	"go-chat-engine/internal/group"
	"go-chat-engine/internal/message"
	"go-chat-engine/internal/metrics"
)

const (
	// DefaultHistoryLimit is also the largest history window an open returns.
	DefaultHistoryLimit     = 50
	DefaultMaxMessageLength = 1000
)

// GroupDirectory is the read side of the group directory the engine needs.
type GroupDirectory interface {
	FindByID(ctx context.Context, groupID string) (*group.Group, error)
}

type Options struct {
	HistoryLimit     int
	MaxMessageLength int
}

// Engine routes client commands: it authorizes them, appends to the ledger
// and fans the results out through the hub.
type Engine struct {
	hub    *Hub
	groups GroupDirectory
	ledger message.Ledger
	locks  *keyedMutex
	logger zerolog.Logger

	historyLimit int
	maxLength    int

	now   func() time.Time
	newID func() string
}

func NewEngine(hub *Hub, groups GroupDirectory, ledger message.Ledger, opts Options, logger zerolog.Logger) *Engine {
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > DefaultHistoryLimit {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	return &Engine{
		hub:          hub,
		groups:       groups,
		ledger:       ledger,
		locks:        newKeyedMutex(),
		logger:       logger,
		historyLimit: opts.HistoryLimit,
		maxLength:    opts.MaxMessageLength,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (e *Engine) Hub() *Hub { return e.hub }

// Connect joins c to its owner's personal channel.
func (e *Engine) Connect(c *Client) {
	e.hub.Subscribe(c, PersonalChannel(c.identity.Username))
	metrics.ConnectionsActive.Inc()
	e.logger.Info().Str("user", c.identity.Username).Msg("client connected")
}

// Disconnect drops every subscription of c and closes its queue.
func (e *Engine) Disconnect(c *Client) {
	e.hub.Remove(c)
	metrics.ConnectionsActive.Dec()
	e.logger.Info().Str("user", c.identity.Username).Msg("client disconnected")
}

// HandleFrame decodes one inbound frame and dispatches it.
func (e *Engine) HandleFrame(ctx context.Context, c *Client, frame []byte) {
	cmd, err := Decode(frame)
	if err != nil {
		e.sendError(c, err)
		return
	}
	e.Dispatch(ctx, c, cmd)
}

// Dispatch runs cmd on behalf of c. Failures, panics included, are reported
// to c alone as a chat:error event.
func (e *Engine) Dispatch(ctx context.Context, c *Client, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("user", c.identity.Username).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("command panicked")
			e.sendError(c, apperr.New(apperr.Internal, fmt.Sprint(r)))
		}
	}()

	var err error
	switch cmd := cmd.(type) {
	case OpenDirect:
		var h *DirectHistory
		if h, err = e.OpenDirect(ctx, c, cmd.With); err == nil {
			e.reply(c, EventDirectHistory, h)
		}
	case SendDirect:
		_, err = e.SendDirect(ctx, c, cmd.To, cmd.Text)
	case OpenGroup:
		var h *GroupHistory
		if h, err = e.OpenGroup(ctx, c, cmd.GroupID); err == nil {
			e.reply(c, EventGroupHistory, h)
		}
	case SendGroup:
		_, err = e.SendGroup(ctx, c, cmd.GroupID, cmd.Text)
	default:
		err = apperr.New(apperr.InvalidArgument, fmt.Sprintf("unsupported command %T", cmd))
	}
	if err != nil {
		e.sendError(c, err)
	}
}

// OpenDirect subscribes c to its conversation with peer and returns the
// recent history.
func (e *Engine) OpenDirect(ctx context.Context, c *Client, peer string) (*DirectHistory, error) {
	me := c.identity.Username
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil, apperr.New(apperr.InvalidArgument, "peer username is required")
	}
	if conversation.IsSelfChat(me, peer) {
		return nil, apperr.New(apperr.SelfChatRejected, "cannot open a chat with yourself")
	}
	convID, err := conversation.DirectID(me, peer)
	if err != nil {
		return nil, err
	}

	e.hub.Subscribe(c, convID)
	c.setCurrent(convID)

	msgs, err := e.ledger.Recent(ctx, convID, e.historyLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load history", err)
	}
	return &DirectHistory{ConversationID: convID, With: peer, Messages: msgs}, nil
}

// SendDirect persists and fans out a direct message. A text that is empty
// after normalization is dropped and yields (nil, nil).
func (e *Engine) SendDirect(ctx context.Context, c *Client, to, text string) (*message.Message, error) {
	me := c.identity.Username
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, apperr.New(apperr.InvalidArgument, "recipient is required")
	}
	if conversation.IsSelfChat(me, to) {
		return nil, apperr.New(apperr.SelfChatRejected, "cannot message yourself")
	}
	text = normalizeText(text, e.maxLength)
	if text == "" {
		return nil, nil
	}
	convID, err := conversation.DirectID(me, to)
	if err != nil {
		return nil, err
	}
	e.hub.Subscribe(c, convID)

	msg := &message.Message{
		ID:             e.newID(),
		Type:           message.TypeDirect,
		ConversationID: convID,
		From:           me,
		To:             to,
		Text:           text,
		At:             e.now(),
	}

	unlock := e.locks.Lock(convID)
	defer unlock()

	stored, err := e.ledger.Append(ctx, msg)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "append message", err)
	}
	metrics.MessagesSent.WithLabelValues(message.TypeDirect).Inc()

	e.broadcast(convID, EventDirectMessage, stored)
	e.notify(to, message.SummaryFor(stored, to))
	e.notify(me, message.SummaryFor(stored, me))
	return stored, nil
}

// OpenGroup subscribes c to a group conversation it belongs to and returns
// the recent history.
func (e *Engine) OpenGroup(ctx context.Context, c *Client, groupID string) (*GroupHistory, error) {
	g, err := e.memberGroup(ctx, c, groupID)
	if err != nil {
		return nil, err
	}
	convID := g.ConversationID()
	e.hub.Subscribe(c, convID)
	c.setCurrent(convID)

	msgs, err := e.ledger.Recent(ctx, convID, e.historyLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load history", err)
	}
	return &GroupHistory{GroupID: g.ID, Name: g.Name, ConversationID: convID, Messages: msgs}, nil
}

// SendGroup persists a group message with a snapshot of the current
// membership and notifies every member. A text that is empty after
// normalization is dropped before the group is looked up.
func (e *Engine) SendGroup(ctx context.Context, c *Client, groupID, text string) (*message.Message, error) {
	text = normalizeText(text, e.maxLength)
	if text == "" {
		return nil, nil
	}
	g, err := e.memberGroup(ctx, c, groupID)
	if err != nil {
		return nil, err
	}
	convID := g.ConversationID()
	e.hub.Subscribe(c, convID)

	members := slices.Clone(g.MembersLower)
	slices.Sort(members)
	members = slices.Compact(members)

	msg := &message.Message{
		ID:             e.newID(),
		Type:           message.TypeGroup,
		ConversationID: convID,
		From:           c.identity.Username,
		GroupID:        g.ID,
		GroupName:      g.Name,
		Text:           text,
		At:             e.now(),
		Participants:   members,
	}

	unlock := e.locks.Lock(convID)
	defer unlock()

	stored, err := e.ledger.Append(ctx, msg)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "append message", err)
	}
	metrics.MessagesSent.WithLabelValues(message.TypeGroup).Inc()

	e.broadcast(convID, EventGroupMessage, stored)
	summary := message.SummaryFor(stored, "")
	for _, member := range members {
		e.notify(member, summary)
	}
	return stored, nil
}

func (e *Engine) memberGroup(ctx context.Context, c *Client, groupID string) (*group.Group, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "group id is required")
	}
	g, err := e.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load group", err)
	}
	if g == nil {
		return nil, apperr.New(apperr.NotFound, "group not found")
	}
	if !g.HasMember(c.identity.Username) {
		return nil, apperr.New(apperr.Forbidden, "not a member of this group")
	}
	return g, nil
}

func (e *Engine) broadcast(channel, event string, payload any) int {
	n, err := e.hub.Broadcast(channel, event, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("channel", channel).Str("event", event).Msg("broadcast failed")
	}
	return n
}

func (e *Engine) notify(username string, summary message.Summary) {
	n := e.broadcast(PersonalChannel(username), EventNotify, summary)
	metrics.Notifications.Add(float64(n))
}

func (e *Engine) reply(c *Client, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("encode reply")
		return
	}
	c.deliver(frame)
}

func (e *Engine) sendError(c *Client, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		e.logger.Error().Err(err).Str("user", c.identity.Username).Msg("command failed")
	} else {
		e.logger.Debug().Err(err).Str("user", c.identity.Username).Msg("command rejected")
	}
	metrics.ProtocolErrors.WithLabelValues(string(kind)).Inc()
	e.reply(c, EventError, ErrorPayload{Code: kind, Error: apperr.Public(err)})
}

// normalizeText caps s at limit runes and trims surrounding whitespace.
func normalizeText(s string, limit int) string {
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return strings.TrimSpace(s)
}
