/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package chat hosts per-company chat rooms over websockets.
//
// A single Hub owns every room. Clients register through a websocket
// upgrade; messages are persisted to storage and then fanned out to the
// sender's company room only, so tenants never see each other's traffic.
// The hub runs as a background worker and drains on context cancellation.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/storage"
)

// HistoryLimit is how many recent messages a client receives on connect.
const HistoryLimit = 50

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Message is the wire format of one chat message.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type inboundMessage struct {
	companyID string
	msg       Message
}

// Hub routes chat messages between clients of the same company.
type Hub struct {
	store  *storage.Store
	logger log.FieldLogger

	register   chan *client
	unregister chan *client
	inbound    chan inboundMessage

	// rooms is touched only by Run's goroutine.
	rooms map[string]map[*client]struct{}
}

// NewHub creates a Hub backed by the given store.
func NewHub(store *storage.Store, logger log.FieldLogger) *Hub {
	return &Hub{
		store:      store,
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inboundMessage, 64),
		rooms:      make(map[string]map[*client]struct{}),
	}
}

// Run processes registrations and message fan-out until ctx is canceled.
// Implements service.Worker interface.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case c := <-h.register:
			room := h.rooms[c.companyID]
			if room == nil {
				room = make(map[*client]struct{})
				h.rooms[c.companyID] = room
			}
			room[c] = struct{}{}
			h.logger.Info("chat client connected",
				log.String("company_id", c.companyID), log.String("user_id", c.userID))

		case c := <-h.unregister:
			if room, ok := h.rooms[c.companyID]; ok {
				if _, ok = room[c]; ok {
					delete(room, c)
					close(c.send)
					if len(room) == 0 {
						delete(h.rooms, c.companyID)
					}
				}
			}

		case in := <-h.inbound:
			h.persist(ctx, in)
			for c := range h.rooms[in.companyID] {
				select {
				case c.send <- in.msg:
				default:
					// Slow consumer, drop it.
					delete(h.rooms[in.companyID], c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) persist(ctx context.Context, in inboundMessage) {
	err := h.store.InsertChatMessage(ctx, &storage.ChatMessage{
		ID:        in.msg.ID,
		CompanyID: in.companyID,
		UserID:    in.msg.UserID,
		UserName:  in.msg.UserName,
		Body:      in.msg.Body,
		CreatedAt: in.msg.CreatedAt,
	})
	if err != nil {
		h.logger.Error("failed to persist chat message",
			log.String("company_id", in.companyID), log.Error(err))
	}
}

func (h *Hub) closeAll() {
	for companyID, room := range h.rooms {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, companyID)
	}
}

// ServeWS upgrades the request to a websocket connection and joins the
// user to their company's room. It returns after the pumps are started.
func (h *Hub) ServeWS(conn *websocket.Conn, user *storage.UserProfile) {
	c := &client{
		hub:       h,
		conn:      conn,
		companyID: user.CompanyID,
		userID:    user.ID,
		userName:  user.Name,
		send:      make(chan Message, HistoryLimit+16),
	}

	// Queue the history before the hub learns about the client: until the
	// registration below nothing else touches c.send, and after it the send
	// channel is owned (and eventually closed) by Run's goroutine only.
	// The channel capacity covers the full history, so this never blocks.
	h.queueHistory(c)

	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (h *Hub) queueHistory(c *client) {
	history, err := h.store.ListRecentChatMessages(context.Background(), c.companyID, HistoryLimit)
	if err != nil {
		h.logger.Error("failed to load chat history",
			log.String("company_id", c.companyID), log.Error(err))
		return
	}
	for _, m := range history {
		c.send <- Message{
			ID:        m.ID,
			UserID:    m.UserID,
			UserName:  m.UserName,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		}
	}
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	companyID string
	userID    string
	userName  string
	send      chan Message
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in struct {
			Body string `json:"body"`
		}
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("chat connection closed unexpectedly",
					log.String("user_id", c.userID), log.Error(err))
			}
			return
		}
		if in.Body == "" {
			continue
		}
		c.hub.inbound <- inboundMessage{
			companyID: c.companyID,
			msg: Message{
				ID:        uuid.NewString(),
				UserID:    c.userID,
				UserName:  c.userName,
				Body:      in.Body,
				CreatedAt: time.Now().UTC(),
			},
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
