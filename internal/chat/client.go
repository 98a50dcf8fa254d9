package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cipher-chat/internal/feed"
	"cipher-chat/internal/models"
	"cipher-chat/internal/roster"
	apperrors "cipher-chat/pkg/errors"
	"cipher-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum frame size allowed from peer.
	sendBuffer     = 256
)

// Client is one WebSocket session of an authenticated account. It always
// follows the account topic (roster changes) and follows chat topics the
// peer subscribes to.
type Client struct {
	service   *Service
	hub       *feed.Hub
	conn      *websocket.Conn
	send      chan []byte
	accountID uuid.UUID
	logger    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	chats map[uuid.UUID]*feed.Subscription
}

func newClient(parent context.Context, service *Service, hub *feed.Hub, conn *websocket.Conn, accountID uuid.UUID, log *logger.Logger) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		service:   service,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		accountID: accountID,
		logger:    log.With("account_id", accountID),
		ctx:       ctx,
		cancel:    cancel,
		chats:     make(map[uuid.UUID]*feed.Subscription),
	}
}

// start subscribes to the account topic before loading the roster so no
// change between the two is lost, then starts the pumps.
func (c *Client) start() error {
	sub := c.hub.Subscribe(feed.AccountTopic(c.accountID))

	snap, err := c.service.Roster(c.ctx, c.accountID)
	if err != nil {
		sub.Close()
		return err
	}
	c.enqueue(rosterFrame(snap))

	go c.followRoster(snap, sub)
	go c.writePump()
	go c.readPump()
	return nil
}

// readPump pumps frames from the websocket connection into the service.
func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket closed unexpectedly", "err", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(errorFrame(uuid.Nil, apperrors.InvalidArg("malformed frame")))
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame InboundFrame) {
	if frame.ChatID == uuid.Nil {
		c.enqueue(errorFrame(uuid.Nil, apperrors.ErrInvalidChatID))
		return
	}

	switch frame.Type {
	case FrameSubscribe:
		c.subscribe(frame.ChatID)
	case FrameUnsubscribe:
		c.unsubscribe(frame.ChatID)
	case FrameSend:
		if _, err := c.service.Send(c.ctx, frame.ChatID, c.accountID, frame.Content); err != nil {
			c.enqueue(errorFrame(frame.ChatID, err))
		}
	default:
		c.enqueue(errorFrame(frame.ChatID, apperrors.InvalidArg("unknown frame type")))
	}
}

// subscribe follows a chat: history first, then live messages. The topic is
// subscribed before history is read, so a message may show up in both; the
// forwarder drops ids it has already sent.
func (c *Client) subscribe(chatID uuid.UUID) {
	c.mu.Lock()
	_, already := c.chats[chatID]
	c.mu.Unlock()
	if already {
		return
	}

	sub := c.hub.Subscribe(feed.ChatTopic(chatID))
	history, err := c.service.ListMessages(c.ctx, chatID, c.accountID)
	if err != nil {
		sub.Close()
		c.enqueue(errorFrame(chatID, err))
		return
	}

	c.mu.Lock()
	if _, already := c.chats[chatID]; already {
		c.mu.Unlock()
		sub.Close()
		return
	}
	c.chats[chatID] = sub
	c.mu.Unlock()

	go c.followChat(chatID, sub, history)
}

func (c *Client) unsubscribe(chatID uuid.UUID) {
	c.mu.Lock()
	sub, ok := c.chats[chatID]
	delete(c.chats, chatID)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (c *Client) followChat(chatID uuid.UUID, sub *feed.Subscription, history []models.Message) {
	seen := make(map[uuid.UUID]struct{}, len(history))
	for _, msg := range history {
		seen[msg.ID] = struct{}{}
		c.enqueue(messageFrame(msg))
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				c.forget(chatID, sub)
				return
			}
			if ev.Kind != feed.KindMessageInserted || ev.Message == nil {
				continue
			}
			if _, dup := seen[ev.Message.ID]; dup {
				continue
			}
			seen[ev.Message.ID] = struct{}{}
			c.enqueue(messageFrame(*ev.Message))
		}
	}
}

// followRoster folds account-topic events into the roster and pushes the
// result. Losing the account subscription ends the session; the peer
// reconnects and reloads.
func (c *Client) followRoster(snap roster.Snapshot, sub *feed.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				c.logger.Warn("roster subscription lost, closing session")
				c.cancel()
				return
			}
			snap = snap.Apply(ev)
			c.enqueue(rosterFrame(snap))
		}
	}
}

// forget removes sub if it is still the registered subscription for chatID.
func (c *Client) forget(chatID uuid.UUID, sub *feed.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chats[chatID] == sub {
		delete(c.chats, chatID)
	}
}

func (c *Client) enqueue(frame OutboundFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to encode frame", "type", frame.Type, "err", err)
		return
	}
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

// shutdown cancels the session and releases every subscription.
func (c *Client) shutdown() {
	c.cancel()
	c.conn.Close()

	c.mu.Lock()
	subs := c.chats
	c.chats = make(map[uuid.UUID]*feed.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// writePump pumps frames to the websocket connection, one frame per message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}
