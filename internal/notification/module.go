// Package notification subscribes to domain events and delivers admin
// alerts. Domain modules publish events; they never know about SMTP or
// the provider API.
package notification

import (
	"context"
	"fmt"

	"leadchat_backend/internal/events"
	"leadchat_backend/internal/whatsapp"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
)

// Module wires the event-driven notifier. It is not HTTP-facing.
type Module struct {
	cfg    config.NotificationConfig
	sender whatsapp.Sender
	email  EmailSender
	log    *logger.Logger
}

func New(cfg config.NotificationConfig, sender whatsapp.Sender, email EmailSender, log *logger.Logger) *Module {
	return &Module{cfg: cfg, sender: sender, email: email, log: log}
}

// RegisterHandlers subscribes the notifier to the events it cares about.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe("conversation.escalated", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		event, ok := e.(events.ConversationEscalated)
		if !ok {
			return nil
		}
		m.notifyEscalation(ctx, event)
		return nil
	}))

	bus.Subscribe("booking.created", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		event, ok := e.(events.BookingCreated)
		if !ok {
			return nil
		}
		m.notifyBooking(ctx, event)
		return nil
	}))
}

// notifyEscalation alerts the admin on both channels. Each channel is
// best-effort; an unreachable SMTP server must not lose the WhatsApp ping.
func (m *Module) notifyEscalation(ctx context.Context, event events.ConversationEscalated) {
	name := event.ContactName
	if name == "" {
		name = event.Sender
	}

	if adminPhone := m.cfg.GetAdminPhone(); adminPhone != "" && m.sender != nil {
		text := fmt.Sprintf("🚨 %s needs a human (%s). Score %d. The bot is paused — reply to them directly.",
			name, event.Reason, event.LeadScore)
		if err := m.sender.SendText(ctx, adminPhone, text); err != nil {
			m.log.SideEffectFailed("escalation whatsapp alert", err)
		}
	}

	if adminEmail := m.cfg.GetAdminEmail(); adminEmail != "" && m.cfg.IsEmailEnabled() && m.email != nil {
		body := escalationEmailBody(event.ContactName, event.Sender, event.Reason, event.LastMessage, event.LeadScore)
		if err := m.email.Send(ctx, adminEmail, "Conversation escalated: "+name, body); err != nil {
			m.log.SideEffectFailed("escalation email alert", err)
		}
	}
}

func (m *Module) notifyBooking(ctx context.Context, event events.BookingCreated) {
	adminPhone := m.cfg.GetAdminPhone()
	if adminPhone == "" || m.sender == nil {
		return
	}

	name := event.ContactName
	if name == "" {
		name = event.Sender
	}
	text := fmt.Sprintf("📅 %s booked a discovery call: %s.", name, event.SlotLabel)
	if err := m.sender.SendText(ctx, adminPhone, text); err != nil {
		m.log.SideEffectFailed("booking whatsapp alert", err)
	}
}
