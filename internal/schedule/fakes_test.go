package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rosterbot/internal/config"
	"rosterbot/internal/roster"
)

type fakeConfig struct {
	guilds   []config.GuildConfig
	interval time.Duration
}

func (f *fakeConfig) Guilds() []config.GuildConfig { return f.guilds }

func (f *fakeConfig) GuildByID(id string) *config.GuildConfig {
	for i := range f.guilds {
		if f.guilds[i].ID == id {
			return &f.guilds[i]
		}
	}
	return nil
}

func (f *fakeConfig) Interval() time.Duration {
	if f.interval <= 0 {
		return 15 * time.Second
	}
	return f.interval
}

type sentMsg struct {
	channelID string
	content   string
}

type sentEmbed struct {
	channelID string
	messageID string
	embed     Embed
}

type nickChange struct {
	userID string
	nick   string
}

// fakeMessenger is an in-memory Messenger. Channel history is stored
// newest-first, matching the platform's pagination order.
type fakeMessenger struct {
	mu sync.Mutex

	botID   string
	now     func() time.Time
	members []roster.Member
	history map[string][]Message
	// reactions: messageID -> marker -> users
	reactions map[string]map[string][]roster.User

	reactionErr error
	memberErr   error
	sendErr     error

	manageDenied map[string]bool
	nickErr      map[string]error

	sent           []sentMsg
	embeds         []sentEmbed
	edits          []sentEmbed
	cleared        []string
	reactionsAdded []string
	nicks          []nickChange

	nextID int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		botID:        "bot",
		now:          time.Now,
		history:      map[string][]Message{},
		reactions:    map[string]map[string][]roster.User{},
		manageDenied: map[string]bool{},
		nickErr:      map[string]error{},
	}
}

func (f *fakeMessenger) genID() string {
	f.nextID++
	return fmt.Sprintf("m%04d", f.nextID)
}

func (f *fakeMessenger) prepend(channelID string, m Message) {
	f.history[channelID] = append([]Message{m}, f.history[channelID]...)
}

// seedPoll inserts a bot-authored poll for date and returns its message ID.
func (f *fakeMessenger) seedPoll(channelID, date string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID()
	f.prepend(channelID, Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  f.botID,
		Timestamp: f.now(),
		Embeds:    []Embed{BuildPollEmbed(date, "✅", "❌")},
	})
	return id
}

func (f *fakeMessenger) react(messageID, marker string, users ...roster.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactions[messageID] == nil {
		f.reactions[messageID] = map[string][]roster.User{}
	}
	f.reactions[messageID][marker] = append(f.reactions[messageID][marker], users...)
}

func (f *fakeMessenger) BotUserID() string { return f.botID }

func (f *fakeMessenger) ReactionUsers(_ context.Context, _, messageID, marker string) ([]roster.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactionErr != nil {
		return nil, f.reactionErr
	}
	return f.reactions[messageID][marker], nil
}

func (f *fakeMessenger) GuildMembers(_ context.Context, _ string) ([]roster.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	return f.members, nil
}

func (f *fakeMessenger) ChannelMessages(_ context.Context, channelID string, limit int, beforeID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.history[channelID]
	start := 0
	if beforeID != "" {
		for i, m := range list {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
		if start == 0 {
			return nil, nil
		}
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	if start >= len(list) {
		return nil, nil
	}
	out := make([]Message, end-start)
	copy(out, list[start:end])
	return out, nil
}

func (f *fakeMessenger) Send(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMsg{channelID: channelID, content: content})
	return nil
}

func (f *fakeMessenger) SendEmbed(_ context.Context, channelID string, embed Embed) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	id := f.genID()
	f.embeds = append(f.embeds, sentEmbed{channelID: channelID, messageID: id, embed: embed})
	f.prepend(channelID, Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  f.botID,
		Timestamp: f.now(),
		Embeds:    []Embed{embed},
	})
	return id, nil
}

func (f *fakeMessenger) EditEmbed(_ context.Context, channelID, messageID string, embed Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentEmbed{channelID: channelID, messageID: messageID, embed: embed})
	list := f.history[channelID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].Embeds = []Embed{embed}
		}
	}
	return nil
}

func (f *fakeMessenger) AddReaction(_ context.Context, _, messageID, marker string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactionsAdded = append(f.reactionsAdded, messageID+":"+marker)
	return nil
}

func (f *fakeMessenger) ClearReactions(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, messageID)
	return nil
}

func (f *fakeMessenger) SetNickname(_ context.Context, _, userID, nick string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nickErr[userID]; err != nil {
		return err
	}
	f.nicks = append(f.nicks, nickChange{userID: userID, nick: nick})
	return nil
}

func (f *fakeMessenger) CanManage(_ context.Context, _ string, m roster.Member) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.manageDenied[m.ID]
}

type tallyRecord struct {
	guildID string
	day     string
	tally   Tally
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []tallyRecord
}

func (f *fakeArchiver) RecordTally(_ context.Context, guildID, day string, t Tally) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, tallyRecord{guildID: guildID, day: day, tally: t})
	return nil
}
