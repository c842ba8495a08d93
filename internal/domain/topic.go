package domain

// Topic is one EventSub subscription type the client knows how to request and decode.
// The set is closed: adding a topic means adding a constant, a row in topicTable and
// a case in the normalizer.
type Topic int

const (
	TopicChatMessage Topic = iota
	TopicCustomRewardRedeem
	TopicAutoRewardRedeem
	TopicAdBreakBegin
	TopicRaid
	TopicFollow
	TopicNewSubscription
	TopicGiftSubscription
	TopicResubscription
	TopicSubscriptionEnd
	TopicCheer
	TopicChannelUpdate
	TopicUserUpdate
	TopicPollBegin
	TopicPollProgress
	TopicPollEnd
	TopicPredictionBegin
	TopicPredictionProgress
	TopicPredictionLock
	TopicPredictionEnd
	TopicHypeTrainBegin
	TopicHypeTrainProgress
	TopicHypeTrainEnd
	TopicGoalBegin
	TopicGoalProgress
	TopicGoalEnd
	TopicShoutoutCreate
	TopicShoutoutReceive
	TopicMessageDeleted

	topicCount

	// TopicUnknown marks a notification type this client has no table row for.
	TopicUnknown Topic = -1
)

// conditionShape selects which condition fields a topic needs.
type conditionShape int

const (
	condBroadcaster conditionShape = iota
	condBroadcasterAndUser
	condBroadcasterAndModerator
	condToBroadcaster
	condUser
)

type topicInfo struct {
	key       string
	eventType string
	version   string
	scopes    []string
	condition conditionShape
}

var topicTable = [topicCount]topicInfo{
	TopicChatMessage:        {"chat_message", "channel.chat.message", "1", []string{"user:read:chat", "user:write:chat"}, condBroadcasterAndUser},
	TopicCustomRewardRedeem: {"points_custom_reward_redeem", "channel.channel_points_custom_reward_redemption.add", "1", []string{"channel:read:redemptions"}, condBroadcaster},
	TopicAutoRewardRedeem:   {"points_auto_reward_redeem", "channel.channel_points_automatic_reward_redemption.add", "1", []string{"channel:read:redemptions", "channel:manage:redemptions"}, condBroadcaster},
	TopicAdBreakBegin:       {"ad_break_begin", "channel.ad_break.begin", "1", []string{"channel:read:ads"}, condBroadcaster},
	TopicRaid:               {"raid", "channel.raid", "1", nil, condToBroadcaster},
	TopicFollow:             {"follow", "channel.follow", "2", []string{"moderator:read:followers"}, condBroadcasterAndModerator},
	TopicNewSubscription:    {"new_subscription", "channel.subscribe", "1", []string{"channel:read:subscriptions"}, condBroadcaster},
	TopicGiftSubscription:   {"gift_subscription", "channel.subscription.gift", "1", []string{"channel:read:subscriptions"}, condBroadcaster},
	TopicResubscription:     {"resubscription", "channel.subscription.message", "1", []string{"channel:read:subscriptions"}, condBroadcaster},
	TopicSubscriptionEnd:    {"subscription_end", "channel.subscription.end", "1", []string{"channel:read:subscriptions"}, condBroadcaster},
	TopicCheer:              {"cheer", "channel.cheer", "1", []string{"bits:read"}, condBroadcaster},
	TopicChannelUpdate:      {"update", "channel.update", "2", nil, condBroadcaster},
	TopicUserUpdate:         {"user_update", "user.update", "1", nil, condUser},
	TopicPollBegin:          {"poll_begin", "channel.poll.begin", "1", []string{"channel:read:polls", "channel:manage:polls"}, condBroadcaster},
	TopicPollProgress:       {"poll_progress", "channel.poll.progress", "1", []string{"channel:read:polls", "channel:manage:polls"}, condBroadcaster},
	TopicPollEnd:            {"poll_end", "channel.poll.end", "1", []string{"channel:read:polls", "channel:manage:polls"}, condBroadcaster},
	TopicPredictionBegin:    {"prediction_begin", "channel.prediction.begin", "1", []string{"channel:read:predictions", "channel:manage:predictions"}, condBroadcaster},
	TopicPredictionProgress: {"prediction_progress", "channel.prediction.progress", "1", []string{"channel:read:predictions", "channel:manage:predictions"}, condBroadcaster},
	TopicPredictionLock:     {"prediction_lock", "channel.prediction.lock", "1", []string{"channel:read:predictions", "channel:manage:predictions"}, condBroadcaster},
	TopicPredictionEnd:      {"prediction_end", "channel.prediction.end", "1", []string{"channel:read:predictions", "channel:manage:predictions"}, condBroadcaster},
	TopicHypeTrainBegin:     {"hype_train_begin", "channel.hype_train.begin", "1", []string{"channel:read:hype_train"}, condBroadcaster},
	TopicHypeTrainProgress:  {"hype_train_progress", "channel.hype_train.progress", "1", []string{"channel:read:hype_train"}, condBroadcaster},
	TopicHypeTrainEnd:       {"hype_train_end", "channel.hype_train.end", "1", []string{"channel:read:hype_train"}, condBroadcaster},
	TopicGoalBegin:          {"goal_begin", "channel.goal.begin", "1", []string{"channel:read:goals"}, condBroadcaster},
	TopicGoalProgress:       {"goal_progress", "channel.goal.progress", "1", []string{"channel:read:goals"}, condBroadcaster},
	TopicGoalEnd:            {"goal_end", "channel.goal.end", "1", []string{"channel:read:goals"}, condBroadcaster},
	TopicShoutoutCreate:     {"shoutout_create", "channel.shoutout.create", "1", []string{"moderator:read:shoutouts", "moderator:manage:shoutouts"}, condBroadcasterAndModerator},
	TopicShoutoutReceive:    {"shoutout_receive", "channel.shoutout.receive", "1", []string{"moderator:read:shoutouts", "moderator:manage:shoutouts"}, condBroadcasterAndModerator},
	TopicMessageDeleted:     {"message_deleted", "channel.chat.message_delete", "1", []string{"user:read:chat"}, condBroadcasterAndUser},
}

// permissionKeys are record keys that only widen the token scope and never subscribe.
var permissionKeys = map[string]string{
	"ban_timeout_user": "moderator:manage:banned_users",
	"delete_message":   "moderator:manage:chat_messages",
}

var (
	topicsByKey  = make(map[string]Topic, topicCount)
	topicsByType = make(map[string]Topic, topicCount)
)

func init() {
	for t := Topic(0); t < topicCount; t++ {
		topicsByKey[topicTable[t].key] = t
		topicsByType[topicTable[t].eventType] = t
	}
}

// AllTopics returns every known topic in enumeration order.
func AllTopics() []Topic {
	all := make([]Topic, 0, topicCount)
	for t := Topic(0); t < topicCount; t++ {
		all = append(all, t)
	}
	return all
}

// TopicByKey resolves a configuration record key such as "follow".
func TopicByKey(key string) (Topic, bool) {
	t, ok := topicsByKey[key]
	return t, ok
}

// TopicByType resolves an EventSub subscription type such as "channel.follow".
func TopicByType(eventType string) (Topic, bool) {
	t, ok := topicsByType[eventType]
	return t, ok
}

func (t Topic) Valid() bool { return t >= 0 && t < topicCount }

// Key is the configuration record key.
func (t Topic) Key() string {
	if !t.Valid() {
		return ""
	}
	return topicTable[t].key
}

// Type is the EventSub subscription type.
func (t Topic) Type() string {
	if !t.Valid() {
		return ""
	}
	return topicTable[t].eventType
}

func (t Topic) Version() string {
	if !t.Valid() {
		return ""
	}
	return topicTable[t].version
}

// Scopes lists the OAuth scopes a user token needs for this topic.
func (t Topic) Scopes() []string {
	if !t.Valid() {
		return nil
	}
	return topicTable[t].scopes
}

func (t Topic) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return topicTable[t].key
}

// Condition builds the EventSub condition for a broadcaster. The authenticated user is
// assumed to be the broadcaster, so moderator and user ids point at the same account.
func (t Topic) Condition(broadcasterUserID string) map[string]string {
	if !t.Valid() {
		return nil
	}

	switch topicTable[t].condition {
	case condBroadcasterAndUser:
		return map[string]string{"broadcaster_user_id": broadcasterUserID, "user_id": broadcasterUserID}
	case condBroadcasterAndModerator:
		return map[string]string{"broadcaster_user_id": broadcasterUserID, "moderator_user_id": broadcasterUserID}
	case condToBroadcaster:
		return map[string]string{"to_broadcaster_user_id": broadcasterUserID}
	case condUser:
		return map[string]string{"user_id": broadcasterUserID}
	default:
		return map[string]string{"broadcaster_user_id": broadcasterUserID}
	}
}
