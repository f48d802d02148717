package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// Dispatcher is the per-connection receive loop. Inbound events are
// processed strictly in arrival order; messages are persisted before any
// fan-out so a recipient can never observe an unstored message.
type Dispatcher struct {
	client   *Client
	router   *Router
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
}

// NewDispatcher builds the dispatcher for one connection.
func NewDispatcher(client *Client, router *Router, messages repositories.MessageRepository, groups repositories.GroupRepository) *Dispatcher {
	return &Dispatcher{client: client, router: router, messages: messages, groups: groups}
}

// Run consumes inbound frames until the remote closes, the transport fails,
// or the client violates the protocol. The caller owns disconnect cleanup.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		payload, err := d.client.ReadMessage()
		if err != nil {
			return
		}
		if err := d.handle(ctx, payload); err != nil {
			log.Printf("protocol error from user %d: %v", d.client.User.ID, err)
			observability.IncWSEvent("protocol_error")
			return
		}
	}
}

// handle classifies one inbound event. A returned error is a protocol
// violation and terminates the connection; transient failures are reported
// to the sender in-band and return nil.
func (d *Dispatcher) handle(ctx context.Context, payload []byte) error {
	var evt models.ClientEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("malformed event: %w", err)
	}

	switch evt.Type {
	case models.EventMessage:
		return d.handleMessage(ctx, evt)
	case models.EventTyping:
		return d.handleTyping(ctx, evt)
	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, evt models.ClientEvent) error {
	if !evt.HasExclusiveTarget() {
		return fmt.Errorf("message must target exactly one of receiver or group")
	}

	msg, err := d.messages.Append(ctx, repositories.AppendParams{
		SenderID:   d.client.User.ID,
		Content:    evt.Content,
		FileURL:    evt.FileURL,
		FileType:   evt.FileType,
		ReceiverID: evt.ReceiverID,
		GroupID:    evt.GroupID,
	})
	if err != nil {
		log.Printf("append message from user %d: %v", d.client.User.ID, err)
		observability.IncPersistenceError()
		d.notifyError("persist_failed", "message was not stored, please retry")
		return nil
	}

	event := models.NewMessageEvent(msg, models.Sender{
		ID:       d.client.User.ID,
		Username: d.client.User.Username,
		Avatar:   d.client.User.Avatar,
	})

	if msg.ReceiverID != nil {
		d.router.DeliverTo(event, *msg.ReceiverID)
		d.router.DeliverTo(event, msg.SenderID)
		return nil
	}

	members, err := d.groups.MemberIDs(ctx, *msg.GroupID)
	if err != nil {
		// The message is durable and visible through history; real-time
		// fan-out is best-effort.
		log.Printf("resolve members of group %d: %v", *msg.GroupID, err)
		return nil
	}
	d.router.DeliverToMany(event, members)
	return nil
}

func (d *Dispatcher) handleTyping(ctx context.Context, evt models.ClientEvent) error {
	if !evt.HasExclusiveTarget() {
		return fmt.Errorf("typing must target exactly one of receiver or group")
	}

	event := models.TypingEvent{
		Type:     models.EventTyping,
		UserID:   d.client.User.ID,
		Username: d.client.User.Username,
	}

	if evt.ReceiverID != nil {
		d.router.DeliverTo(event, *evt.ReceiverID)
		return nil
	}

	members, err := d.groups.MemberIDs(ctx, *evt.GroupID)
	if err != nil {
		log.Printf("resolve members of group %d: %v", *evt.GroupID, err)
		return nil
	}
	recipients := make([]int, 0, len(members))
	for _, id := range members {
		if id != d.client.User.ID {
			recipients = append(recipients, id)
		}
	}
	d.router.DeliverToMany(event, recipients)
	return nil
}

func (d *Dispatcher) notifyError(code, detail string) {
	payload, err := json.Marshal(models.ErrorEvent{Type: models.EventError, Code: code, Detail: detail})
	if err != nil {
		return
	}
	// Best effort: if the sender's own connection is gone the read loop is
	// about to find out anyway.
	_ = d.client.Enqueue(payload)
}
