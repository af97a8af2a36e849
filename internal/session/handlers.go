package session

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/roomchat/roomchat/internal/protocol"
)

// inboundHandler applies one server event to the session. It runs with c.mu held.
type inboundHandler func(c *Client, data json.RawMessage) error

var inboundHandlers = map[protocol.EventKind]inboundHandler{
	protocol.EventMessage:        onMessage,
	protocol.EventPrivateMessage: onMessage,
	protocol.EventHistory:        onHistory,
	protocol.EventTyping:         onTyping,
	protocol.EventNotTyping:      onNotTyping,
	protocol.EventNotification:   onNotification,
}

// register subscribes every inbound handler on the manager.
func (c *Client) register() error {
	for _, kind := range protocol.InboundKinds() {
		h, ok := inboundHandlers[kind]
		if !ok {
			continue
		}

		kind := kind
		sub, err := c.manager.On(kind, func(data json.RawMessage) {
			c.dispatch(kind, h, data)
		})
		if err != nil {
			for _, s := range c.subs {
				s.Release()
			}
			c.subs = nil
			return fmt.Errorf("failed to register %s handler: %w", kind, err)
		}
		c.subs = append(c.subs, sub)
	}
	return nil
}

func (c *Client) dispatch(kind protocol.EventKind, h inboundHandler, data json.RawMessage) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	err := h(c, data)
	c.mu.Unlock()

	if err != nil {
		log.Printf("Ignoring %s event: %v", kind, err)
		return
	}
	c.changed()
}

func onMessage(c *Client, data json.RawMessage) error {
	m, err := protocol.DecodeMessage(data)
	if err != nil {
		return err
	}
	c.log.Append(m)
	return nil
}

func onHistory(c *Client, data json.RawMessage) error {
	ms, err := protocol.DecodeHistory(data)
	if err != nil {
		return err
	}
	c.log.Replace(ms)
	return nil
}

func onTyping(c *Client, data json.RawMessage) error {
	username, err := protocol.DecodeString(data)
	if err != nil {
		return err
	}
	c.typing.RemoteTyping(username)
	return nil
}

func onNotTyping(c *Client, _ json.RawMessage) error {
	c.typing.RemoteNotTyping()
	return nil
}

func onNotification(c *Client, data json.RawMessage) error {
	text, err := protocol.DecodeString(data)
	if err != nil {
		return err
	}
	c.notices.Push(text)
	return nil
}
