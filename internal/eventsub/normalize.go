package eventsub

import (
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/twitchevents/internal/domain"
)

// ChatEnricher adds details EventSub does not deliver to a chat message, such as
// first-time chatter flags seen on IRC.
type ChatEnricher interface {
	Enrich(msg *domain.ChatMessage)
}

type decodeFunc func(raw json.RawMessage) (domain.EventKind, any, error)

// decodeAs decodes the event into a fresh T and tags it with kind.
func decodeAs[T any](kind domain.EventKind) decodeFunc {
	return func(raw json.RawMessage) (domain.EventKind, any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return "", nil, err
		}
		return kind, v, nil
	}
}

func decodeChat(raw json.RawMessage) (domain.EventKind, any, error) {
	msg := new(domain.ChatMessage)
	if err := json.Unmarshal(raw, msg); err != nil {
		return "", nil, err
	}

	switch msg.MessageType {
	case "power_ups_gigantified_emote":
		return domain.KindChatPowerUpGigantified, msg, nil
	case "power_ups_message_effect":
		return domain.KindChatPowerUpEffect, msg, nil
	default:
		return domain.KindChatMessage, msg, nil
	}
}

var decoders = map[domain.Topic]decodeFunc{
	domain.TopicChatMessage:        decodeChat,
	domain.TopicCustomRewardRedeem: decodeAs[domain.CustomRewardRedeem](domain.KindCustomRewardRedeem),
	domain.TopicAutoRewardRedeem:   decodeAs[domain.AutoRewardRedeem](domain.KindAutoRewardRedeem),
	domain.TopicAdBreakBegin:       decodeAs[domain.AdBreakBegin](domain.KindAdBreakStart),
	domain.TopicRaid:               decodeAs[domain.Raid](domain.KindRaid),
	domain.TopicFollow:             decodeAs[domain.Follow](domain.KindFollow),
	domain.TopicNewSubscription:    decodeAs[domain.NewSubscription](domain.KindNewSubscription),
	domain.TopicGiftSubscription:   decodeAs[domain.GiftSubscription](domain.KindSubscriptionGift),
	domain.TopicResubscription:     decodeAs[domain.Resubscription](domain.KindResubscription),
	domain.TopicSubscriptionEnd:    decodeAs[domain.SubscriptionEnd](domain.KindSubscriptionEnd),
	domain.TopicCheer:              decodeAs[domain.Cheer](domain.KindCheer),
	domain.TopicChannelUpdate:      decodeAs[domain.ChannelUpdate](domain.KindChannelUpdate),
	domain.TopicUserUpdate:         decodeAs[domain.UserUpdate](domain.KindUserUpdate),
	domain.TopicPollBegin:          decodeAs[domain.Poll](domain.KindPollBegin),
	domain.TopicPollProgress:       decodeAs[domain.Poll](domain.KindPollProgress),
	domain.TopicPollEnd:            decodeAs[domain.Poll](domain.KindPollEnd),
	domain.TopicPredictionBegin:    decodeAs[domain.Prediction](domain.KindPredictionBegin),
	domain.TopicPredictionProgress: decodeAs[domain.Prediction](domain.KindPredictionProgress),
	domain.TopicPredictionLock:     decodeAs[domain.Prediction](domain.KindPredictionLock),
	domain.TopicPredictionEnd:      decodeAs[domain.Prediction](domain.KindPredictionEnd),
	domain.TopicHypeTrainBegin:     decodeAs[domain.HypeTrain](domain.KindHypeTrainBegin),
	domain.TopicHypeTrainProgress:  decodeAs[domain.HypeTrain](domain.KindHypeTrainProgress),
	domain.TopicHypeTrainEnd:       decodeAs[domain.HypeTrain](domain.KindHypeTrainEnd),
	domain.TopicGoalBegin:          decodeAs[domain.Goal](domain.KindGoalBegin),
	domain.TopicGoalProgress:       decodeAs[domain.Goal](domain.KindGoalProgress),
	domain.TopicGoalEnd:            decodeAs[domain.Goal](domain.KindGoalEnd),
	domain.TopicShoutoutCreate:     decodeAs[domain.ShoutoutCreate](domain.KindShoutoutCreate),
	domain.TopicShoutoutReceive:    decodeAs[domain.ShoutoutReceive](domain.KindShoutoutReceive),
	domain.TopicMessageDeleted:     decodeAs[domain.MessageDeleted](domain.KindMessageDeleted),
}

// Normalizer turns notifications into envelopes for the enabled topics.
type Normalizer struct {
	spec     domain.SubscriptionSpec
	enricher ChatEnricher
	clock    clockwork.Clock
}

func NewNormalizer(spec domain.SubscriptionSpec, enricher ChatEnricher, clock clockwork.Clock) *Normalizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Normalizer{spec: spec, enricher: enricher, clock: clock}
}

// Normalize returns false for unknown or disabled topics. A payload that does not fit
// the topic's struct is a *domain.DecodeError.
func (n *Normalizer) Normalize(notif Notification) (domain.Envelope, bool, error) {
	if !notif.Topic.Valid() || !n.spec.Enabled(notif.Topic) {
		return domain.Envelope{}, false, nil
	}

	decode, ok := decoders[notif.Topic]
	if !ok {
		return domain.Envelope{}, false, nil
	}

	kind, payload, err := decode(notif.Payload)
	if err != nil {
		return domain.Envelope{}, false, &domain.DecodeError{Reason: fmt.Sprintf("%s payload", notif.Type), Err: err}
	}

	if msg, ok := payload.(*domain.ChatMessage); ok && n.enricher != nil {
		n.enricher.Enrich(msg)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Envelope{}, false, &domain.DecodeError{Reason: fmt.Sprintf("%s re-encode", notif.Type), Err: err}
	}

	return domain.Envelope{
		Kind:       kind,
		Body:       body,
		Raw:        notif.Payload,
		Payload:    payload,
		Topic:      notif.Topic,
		MessageID:  notif.MessageID,
		ReceivedAt: n.clock.Now(),
	}, true, nil
}
