package streaming

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// subscriptionMessage is sent by clients to subscribe/unsubscribe from
// event subjects.
type subscriptionMessage struct {
	Action   string   `json:"action"` // subscribe, unsubscribe
	Subjects []string `json:"subjects"`
}

// ReadPump reads subscription control messages from the client
// connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var sub subscriptionMessage
		if err := json.Unmarshal(message, &sub); err != nil {
			c.logger.Warn("invalid subscription message", zap.Error(err))
			continue
		}

		switch sub.Action {
		case "subscribe":
			for _, subject := range sub.Subjects {
				c.Subscribe(subject)
			}
		case "unsubscribe":
			for _, subject := range sub.Subjects {
				c.Unsubscribe(subject)
			}
		default:
			c.logger.Warn("unknown subscription action", zap.String("action", sub.Action))
		}
	}
}

// WritePump writes queued events to the client connection, pinging
// periodically to keep the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Subscribe subscribes the client to a subject (an event type, or
// "*" for every event).
func (c *Client) Subscribe(subject string) {
	c.mu.Lock()
	c.subject[subject] = true
	c.mu.Unlock()
	c.hub.SubscribeClient(c, subject)
}

// Unsubscribe unsubscribes the client from a subject.
func (c *Client) Unsubscribe(subject string) {
	c.mu.Lock()
	delete(c.subject, subject)
	c.mu.Unlock()
	c.hub.UnsubscribeClient(c, subject)
}

// IsSubscribed reports whether the client is subscribed to subject.
func (c *Client) IsSubscribed(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subject[subject]
}
