package domain

// Payload structs mirror Twitch's event objects field for field. The embedded *Ref
// types flatten into the prefixed id/login/name triples Twitch uses.

type UserRef struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
}

type BroadcasterRef struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

type ChatterRef struct {
	ChatterUserID    string `json:"chatter_user_id"`
	ChatterUserLogin string `json:"chatter_user_login"`
	ChatterUserName  string `json:"chatter_user_name"`
}

type RequesterRef struct {
	RequesterUserID    string `json:"requester_user_id"`
	RequesterUserLogin string `json:"requester_user_login"`
	RequesterUserName  string `json:"requester_user_name"`
}

type FromBroadcasterRef struct {
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
}

type ToBroadcasterRef struct {
	ToBroadcasterUserID    string `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin string `json:"to_broadcaster_user_login"`
	ToBroadcasterUserName  string `json:"to_broadcaster_user_name"`
}

type ModeratorRef struct {
	ModeratorUserID    string `json:"moderator_user_id"`
	ModeratorUserLogin string `json:"moderator_user_login"`
	ModeratorUserName  string `json:"moderator_user_name"`
}

type TargetUserRef struct {
	TargetUserID    string `json:"target_user_id"`
	TargetUserLogin string `json:"target_user_login"`
	TargetUserName  string `json:"target_user_name"`
}

// Chat

type ChatMessage struct {
	BroadcasterRef
	ChatterRef
	MessageID                   string      `json:"message_id"`
	Message                     ChatText    `json:"message"`
	MessageType                 string      `json:"message_type"`
	Color                       string      `json:"color"`
	Badges                      []ChatBadge `json:"badges"`
	Cheer                       *ChatCheer  `json:"cheer,omitempty"`
	Reply                       *ChatReply  `json:"reply,omitempty"`
	ChannelPointsCustomRewardID *string     `json:"channel_points_custom_reward_id,omitempty"`
	ChannelPointsAnimationID    *string     `json:"channel_points_animation_id,omitempty"`
	FirstTimeChatter            bool        `json:"first_time_chatter"`
	ReturningChatter            bool        `json:"returning_chatter"`
	Moderator                   bool        `json:"moderator"`
}

type ChatText struct {
	Text      string         `json:"text"`
	Fragments []ChatFragment `json:"fragments"`
}

type ChatFragment struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Cheermote *ChatCheermote `json:"cheermote,omitempty"`
	Emote     *ChatEmote     `json:"emote,omitempty"`
	Mention   *UserRef       `json:"mention,omitempty"`
}

type ChatCheermote struct {
	Prefix string `json:"prefix"`
	Bits   int    `json:"bits"`
	Tier   int    `json:"tier"`
}

type ChatEmote struct {
	ID         string   `json:"id"`
	EmoteSetID string   `json:"emote_set_id"`
	OwnerID    string   `json:"owner_id"`
	Format     []string `json:"format"`
}

type ChatBadge struct {
	SetID string `json:"set_id"`
	ID    string `json:"id"`
	Info  string `json:"info"`
}

type ChatCheer struct {
	Bits int `json:"bits"`
}

type ChatReply struct {
	ParentMessageID   string `json:"parent_message_id"`
	ParentMessageBody string `json:"parent_message_body"`
	ParentUserID      string `json:"parent_user_id"`
	ParentUserName    string `json:"parent_user_name"`
	ParentUserLogin   string `json:"parent_user_login"`
	ThreadMessageID   string `json:"thread_message_id"`
	ThreadUserID      string `json:"thread_user_id"`
	ThreadUserName    string `json:"thread_user_name"`
	ThreadUserLogin   string `json:"thread_user_login"`
}

type MessageDeleted struct {
	BroadcasterRef
	TargetUserRef
	MessageID string `json:"message_id"`
}

// Channel points

type Reward struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Cost   int    `json:"cost"`
	Prompt string `json:"prompt"`
}

type CustomRewardRedeem struct {
	BroadcasterRef
	UserRef
	ID         string `json:"id"`
	UserInput  string `json:"user_input"`
	Status     string `json:"status"`
	Reward     Reward `json:"reward"`
	RedeemedAt string `json:"redeemed_at"`
}

type RewardEmote struct {
	ID    string `json:"id"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

type RewardMessage struct {
	Text   string        `json:"text"`
	Emotes []RewardEmote `json:"emotes"`
}

type UnlockedEmote struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AutoReward struct {
	Type          string         `json:"type"`
	Cost          int            `json:"cost"`
	UnlockedEmote *UnlockedEmote `json:"unlocked_emote,omitempty"`
}

type AutoRewardRedeem struct {
	BroadcasterRef
	UserRef
	ID         string        `json:"id"`
	Reward     AutoReward    `json:"reward"`
	Message    RewardMessage `json:"message"`
	UserInput  *string       `json:"user_input,omitempty"`
	RedeemedAt string        `json:"redeemed_at"`
}

// Channel activity

type AdBreakBegin struct {
	BroadcasterRef
	RequesterRef
	DurationSeconds int    `json:"duration_seconds"`
	StartedAt       string `json:"started_at"`
	IsAutomatic     bool   `json:"is_automatic"`
}

type Raid struct {
	FromBroadcasterRef
	ToBroadcasterRef
	Viewers int `json:"viewers"`
}

type Follow struct {
	BroadcasterRef
	UserRef
	FollowedAt string `json:"followed_at"`
}

type ChannelUpdate struct {
	BroadcasterRef
	Title                       string   `json:"title"`
	Language                    string   `json:"language"`
	CategoryID                  string   `json:"category_id"`
	CategoryName                string   `json:"category_name"`
	ContentClassificationLabels []string `json:"content_classification_labels"`
}

type UserUpdate struct {
	UserRef
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Description   string `json:"description"`
}

// Subscriptions and bits

type NewSubscription struct {
	BroadcasterRef
	UserRef
	Tier   string `json:"tier"`
	IsGift bool   `json:"is_gift"`
}

// GiftSubscription leaves the gifter empty when IsAnonymous is set.
type GiftSubscription struct {
	BroadcasterRef
	UserRef
	Total           int    `json:"total"`
	Tier            string `json:"tier"`
	CumulativeTotal *int   `json:"cumulative_total,omitempty"`
	IsAnonymous     bool   `json:"is_anonymous"`
}

type Resubscription struct {
	BroadcasterRef
	UserRef
	Message          RewardMessage `json:"message"`
	Tier             string        `json:"tier"`
	CumulativeMonths int           `json:"cumulative_months"`
	StreakMonths     *int          `json:"streak_months,omitempty"`
	DurationMonths   int           `json:"duration_months"`
}

type SubscriptionEnd struct {
	BroadcasterRef
	UserRef
	Tier   string `json:"tier"`
	IsGift bool   `json:"is_gift"`
}

type Cheer struct {
	BroadcasterRef
	UserRef
	IsAnonymous bool   `json:"is_anonymous"`
	Message     string `json:"message"`
	Bits        int    `json:"bits"`
}

// Polls

type VotingSettings struct {
	IsEnabled     bool `json:"is_enabled"`
	AmountPerVote int  `json:"amount_per_vote"`
}

type PollChoice struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Votes              int    `json:"votes"`
	ChannelPointsVotes int    `json:"channel_points_votes"`
	BitsVotes          int    `json:"bits_votes"`
}

// Poll covers begin, progress and end. Vote counts are zero on begin, EndsAt is
// unset on end and Status/EndedAt are only set on end.
type Poll struct {
	BroadcasterRef
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Choices             []PollChoice   `json:"choices"`
	BitsVoting          VotingSettings `json:"bits_voting"`
	ChannelPointsVoting VotingSettings `json:"channel_points_voting"`
	Status              string         `json:"status,omitempty"`
	StartedAt           string         `json:"started_at"`
	EndsAt              string         `json:"ends_at,omitempty"`
	EndedAt             string         `json:"ended_at,omitempty"`
}

// Predictions

type Predictor struct {
	UserRef
	ChannelPointsWon  *int `json:"channel_points_won"`
	ChannelPointsUsed int  `json:"channel_points_used"`
}

type PredictionOutcome struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Color         string      `json:"color"`
	Users         int         `json:"users"`
	ChannelPoints int         `json:"channel_points"`
	TopPredictors []Predictor `json:"top_predictors"`
}

// Prediction covers begin, progress, lock and end.
type Prediction struct {
	BroadcasterRef
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Outcomes         []PredictionOutcome `json:"outcomes"`
	WinningOutcomeID string              `json:"winning_outcome_id,omitempty"`
	Status           string              `json:"status,omitempty"`
	StartedAt        string              `json:"started_at"`
	LocksAt          string              `json:"locks_at,omitempty"`
	LockedAt         string              `json:"locked_at,omitempty"`
	EndedAt          string              `json:"ended_at,omitempty"`
}

// Hype trains

type Contribution struct {
	UserRef
	Type  string `json:"type"`
	Total int    `json:"total"`
}

// HypeTrain covers begin, progress and end.
type HypeTrain struct {
	BroadcasterRef
	ID               string         `json:"id"`
	Level            int            `json:"level"`
	Total            int            `json:"total"`
	Progress         int            `json:"progress"`
	Goal             int            `json:"goal"`
	TopContributions []Contribution `json:"top_contributions"`
	LastContribution *Contribution  `json:"last_contribution,omitempty"`
	StartedAt        string         `json:"started_at"`
	ExpiresAt        string         `json:"expires_at,omitempty"`
	EndedAt          string         `json:"ended_at,omitempty"`
	CooldownEndsAt   string         `json:"cooldown_ends_at,omitempty"`
}

// Goals

// Goal covers begin, progress and end.
type Goal struct {
	BroadcasterRef
	ID            string `json:"id"`
	Type          string `json:"type"`
	Description   string `json:"description"`
	IsAchieved    *bool  `json:"is_achieved,omitempty"`
	CurrentAmount int    `json:"current_amount"`
	TargetAmount  int    `json:"target_amount"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at,omitempty"`
}

// Shoutouts

type ShoutoutCreate struct {
	BroadcasterRef
	ModeratorRef
	ToBroadcasterRef
	ViewerCount          int    `json:"viewer_count"`
	StartedAt            string `json:"started_at"`
	CooldownEndsAt       string `json:"cooldown_ends_at"`
	TargetCooldownEndsAt string `json:"target_cooldown_ends_at"`
}

type ShoutoutReceive struct {
	BroadcasterRef
	FromBroadcasterRef
	ViewerCount int    `json:"viewer_count"`
	StartedAt   string `json:"started_at"`
}
