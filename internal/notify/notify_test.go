package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/shopclock/internal/config"
)

type mockSlack struct {
	channels []string
	calls    int
	errs     []error // returned in order, then nil
}

func (m *mockSlack) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channels = append(m.channels, channelID)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", "", err
	}
	return channelID, "1700000000.000100", nil
}

type mockSession struct {
	channel string
	embeds  []*discordgo.MessageEmbed
	err     error
}

func (m *mockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.channel = channelID
	m.embeds = append(m.embeds, embed)
	return &discordgo.Message{ID: "m1"}, nil
}

type recordingSender struct {
	got []Message
	err error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack(SlackOpts{Channel: "C1"}); err == nil || !strings.Contains(err.Error(), "token is required") {
		t.Errorf("missing token: err = %v", err)
	}
	if _, err := NewSlack(SlackOpts{Token: "xoxb"}); err == nil || !strings.Contains(err.Error(), "channel is required") {
		t.Errorf("missing channel: err = %v", err)
	}
	if _, err := NewSlack(SlackOpts{Token: "xoxb", Channel: "C1"}); err != nil {
		t.Errorf("valid opts: %v", err)
	}
}

func TestSlack_Send(t *testing.T) {
	mc := &mockSlack{}
	s, err := NewSlack(SlackOpts{Channel: "C1", Client: mc})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mc.calls != 1 || mc.channels[0] != "C1" {
		t.Errorf("calls = %d channels = %v", mc.calls, mc.channels)
	}
}

func TestSlack_Send_RetriesOnRateLimit(t *testing.T) {
	mc := &mockSlack{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	s, _ := NewSlack(SlackOpts{Channel: "C1", Client: mc})
	if err := s.Send(context.Background(), Message{Title: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mc.calls != 2 {
		t.Errorf("calls = %d, want 2", mc.calls)
	}
}

func TestSlack_Send_NonRetryableError(t *testing.T) {
	mc := &mockSlack{errs: []error{errors.New("channel_not_found")}}
	s, _ := NewSlack(SlackOpts{Channel: "C1", Client: mc})
	err := s.Send(context.Background(), Message{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("err = %v", err)
	}
	if mc.calls != 1 {
		t.Errorf("calls = %d, want 1", mc.calls)
	}
}

func TestRetryOnRateLimit_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryOnRateLimit(ctx, func() error {
		return &slackapi.RateLimitedError{RetryAfter: time.Hour}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestToAttachment(t *testing.T) {
	att := toAttachment(Message{
		Title:    "Anomaly",
		Body:     "activity a1 ran 30h",
		Severity: SeverityError,
		Fields:   []Field{{Name: "Operator", Value: "op-1", Short: true}},
	})
	if att.Color != "#cc0000" {
		t.Errorf("Color = %q", att.Color)
	}
	if len(att.Fields) != 1 || att.Fields[0].Title != "Operator" || !att.Fields[0].Short {
		t.Errorf("Fields = %+v", att.Fields)
	}
}

func TestNewDiscord_Validation(t *testing.T) {
	if _, err := NewDiscord(DiscordOpts{Channel: "1"}); err == nil || !strings.Contains(err.Error(), "token is required") {
		t.Errorf("missing token: err = %v", err)
	}
	if _, err := NewDiscord(DiscordOpts{Session: &mockSession{}}); err == nil || !strings.Contains(err.Error(), "channel is required") {
		t.Errorf("missing channel: err = %v", err)
	}
}

func TestDiscord_Send(t *testing.T) {
	ms := &mockSession{}
	d, err := NewDiscord(DiscordOpts{Channel: "998877", Session: ms})
	if err != nil {
		t.Fatal(err)
	}
	msg := Message{Title: "Daily digest", Body: "42 pieces", Fields: []Field{{Name: "Costura", Value: "3.2 min"}}}
	if err := d.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ms.channel != "998877" || len(ms.embeds) != 1 {
		t.Fatalf("channel = %q embeds = %d", ms.channel, len(ms.embeds))
	}
	e := ms.embeds[0]
	if e.Title != "Daily digest" || e.Description != "42 pieces" {
		t.Errorf("embed = %+v", e)
	}
	if e.Color != 0x36a64f {
		t.Errorf("Color = %#x, want 0x36a64f", e.Color)
	}
	if len(e.Fields) != 1 || e.Fields[0].Name != "Costura" {
		t.Errorf("Fields = %+v", e.Fields)
	}
}

func TestDiscord_Send_Error(t *testing.T) {
	d, _ := NewDiscord(DiscordOpts{Channel: "1", Session: &mockSession{err: errors.New("403")}})
	if err := d.Send(context.Background(), Message{Title: "t"}); err == nil || !strings.Contains(err.Error(), "discord: send embed") {
		t.Errorf("err = %v", err)
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("down")}
	ok2 := &recordingSender{}
	m := NewMulti(ok, bad, ok2)

	err := m.Notify(context.Background(), "subject", "body")
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("err = %v, want joined failure", err)
	}
	for i, s := range []*recordingSender{ok, bad, ok2} {
		if len(s.got) != 1 {
			t.Fatalf("sender %d got %d messages", i, len(s.got))
		}
	}
	if ok.got[0].Severity != SeverityWarning || ok.got[0].Title != "subject" {
		t.Errorf("message = %+v", ok.got[0])
	}
}

func TestMulti_Empty(t *testing.T) {
	m := NewMulti()
	if m.Len() != 0 {
		t.Errorf("Len = %d", m.Len())
	}
	if err := m.Notify(context.Background(), "s", "b"); err != nil {
		t.Errorf("Notify on empty: %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	m, err := FromConfig(config.NotifyConfig{})
	if err != nil || m.Len() != 0 {
		t.Fatalf("empty config: len=%d err=%v", m.Len(), err)
	}
	m, err = FromConfig(config.NotifyConfig{
		Slack:   config.ChannelConfig{Token: "xoxb", Channel: "C1"},
		Discord: config.ChannelConfig{Token: "abc", Channel: "1"},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestColorInt(t *testing.T) {
	if got := colorInt("#daa038"); got != 0xdaa038 {
		t.Errorf("colorInt = %#x", got)
	}
	if got := colorInt("nope"); got != 0 {
		t.Errorf("colorInt(bad) = %d", got)
	}
}
