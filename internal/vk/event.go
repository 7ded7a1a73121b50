// Package vk speaks the VK community callback API: it decodes inbound events
// and delivers replies through messages.send.
package vk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pavelanni/exambot/internal/model"
)

// UserIDPrefix marks VK user ids in the session store.
const UserIDPrefix = "vk:"

// ErrNoSender is returned for message events without a from_id.
var ErrNoSender = errors.New("message has no sender")

// ErrUnsupported is returned for callback types the bot ignores.
var ErrUnsupported = errors.New("unsupported event type")

type callback struct {
	Type    string          `json:"type"`
	GroupID int64           `json:"group_id"`
	Secret  string          `json:"secret"`
	Object  json.RawMessage `json:"object"`
}

type messageNew struct {
	Message struct {
		FromID int64  `json:"from_id"`
		PeerID int64  `json:"peer_id"`
		Text   string `json:"text"`
	} `json:"message"`
}

// ParseEvent decodes a callback body into an InboundEvent.
// For message events with no sender it returns the event and ErrNoSender.
func ParseEvent(body []byte) (model.InboundEvent, error) {
	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return model.InboundEvent{}, fmt.Errorf("decode callback: %w", err)
	}

	switch cb.Type {
	case "confirmation":
		return model.InboundEvent{Kind: model.EventVerification, Secret: cb.Secret}, nil
	case "message_new":
		ev := model.InboundEvent{Kind: model.EventMessage, Secret: cb.Secret}
		var msg messageNew
		if len(cb.Object) > 0 {
			if err := json.Unmarshal(cb.Object, &msg); err != nil {
				return ev, fmt.Errorf("decode message_new: %w", err)
			}
		}
		ev.Text = msg.Message.Text
		if msg.Message.FromID == 0 {
			return ev, ErrNoSender
		}
		ev.UserID = UserIDPrefix + strconv.FormatInt(msg.Message.FromID, 10)
		return ev, nil
	default:
		return model.InboundEvent{Secret: cb.Secret}, fmt.Errorf("%w: %q", ErrUnsupported, cb.Type)
	}
}

// PeerID extracts the numeric VK id from a session user id.
func PeerID(userID string) (int64, error) {
	if len(userID) <= len(UserIDPrefix) || userID[:len(UserIDPrefix)] != UserIDPrefix {
		return 0, fmt.Errorf("not a vk user id: %q", userID)
	}
	id, err := strconv.ParseInt(userID[len(UserIDPrefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse vk user id %q: %w", userID, err)
	}
	return id, nil
}
