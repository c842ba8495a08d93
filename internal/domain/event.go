package domain

import (
	"encoding/json"
	"time"
)

// EventKind is the tag handed to the host with every polled event.
type EventKind string

const (
	KindChatMessage            EventKind = "chat_message"
	KindChatPowerUpGigantified EventKind = "chat_message_powerup_gigantified_emote"
	KindChatPowerUpEffect      EventKind = "chat_message_powerup_message_effect"
	KindCustomRewardRedeem     EventKind = "custom_point_reward_redeem"
	KindAutoRewardRedeem       EventKind = "auto_point_reward_redeem"
	KindAdBreakStart           EventKind = "ad_break_start"
	KindRaid                   EventKind = "raid"
	KindFollow                 EventKind = "follow"
	KindNewSubscription        EventKind = "new_subscription"
	KindSubscriptionGift       EventKind = "subscription_gift"
	KindResubscription         EventKind = "resubscription"
	KindSubscriptionEnd        EventKind = "subscription_end"
	KindCheer                  EventKind = "cheer"
	KindChannelUpdate          EventKind = "channel_update"
	KindUserUpdate             EventKind = "user_update"
	KindPollBegin              EventKind = "poll_begin"
	KindPollProgress           EventKind = "poll_progress"
	KindPollEnd                EventKind = "poll_end"
	KindPredictionBegin        EventKind = "prediction_begin"
	KindPredictionProgress     EventKind = "prediction_progress"
	KindPredictionLock         EventKind = "prediction_lock"
	KindPredictionEnd          EventKind = "prediction_end"
	KindHypeTrainBegin         EventKind = "hype_train_begin"
	KindHypeTrainProgress      EventKind = "hype_train_progress"
	KindHypeTrainEnd           EventKind = "hype_train_end"
	KindGoalBegin              EventKind = "goal_begin"
	KindGoalProgress           EventKind = "goal_progress"
	KindGoalEnd                EventKind = "goal_end"
	KindShoutoutCreate         EventKind = "shoutout_create"
	KindShoutoutReceive        EventKind = "shoutout_receive"
	KindMessageDeleted         EventKind = "message_deleted"

	// KindError carries a fatal client error instead of a Twitch event.
	KindError EventKind = "error"
)

// Envelope is one normalized event on its way to the host. It is immutable once built.
type Envelope struct {
	Kind EventKind
	// Body is the payload re-encoded in the normalized schema.
	Body json.RawMessage
	// Raw is the event object exactly as Twitch sent it.
	Raw json.RawMessage
	// Payload is the typed struct Body was encoded from.
	Payload    any
	Topic      Topic
	MessageID  string
	ReceivedAt time.Time
}

// ErrorBody is the Body of a KindError envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// NewErrorEnvelope wraps a fatal error for delivery through the poll path.
func NewErrorEnvelope(err error, at time.Time) Envelope {
	body, _ := json.Marshal(ErrorBody{Error: err.Error()})
	return Envelope{
		Kind:       KindError,
		Body:       body,
		Payload:    err,
		Topic:      TopicUnknown,
		ReceivedAt: at,
	}
}
