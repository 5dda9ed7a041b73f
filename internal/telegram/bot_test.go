package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, m)
	}
	return tgbotapi.Message{}, r.err
}

func (r *recordingSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return r.sent[len(r.sent)-1]
}

type stubCatalog struct {
	projects []domain.Project
	filter   domain.ProjectFilter
	stats    *domain.Stats
	err      error
}

func (s *stubCatalog) ListProjects(_ context.Context, f domain.ProjectFilter) (*campaign.ListResult, error) {
	s.filter = f
	if s.err != nil {
		return nil, s.err
	}
	return &campaign.ListResult{Items: s.projects}, nil
}

func (s *stubCatalog) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return &s.projects[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubCatalog) Summary(context.Context) (*domain.Stats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func newTestBot(catalog *stubCatalog) (*Bot, *recordingSender) {
	s := &recordingSender{}
	return NewBot(s, catalog, "https://app.example/", zerolog.Nop()), s
}

func TestBotStartAndHelp(t *testing.T) {
	b, s := newTestBot(&stubCatalog{})

	b.HandleUpdate(context.Background(), command(42, "/start"))
	m := s.last(t)
	if m.ChatID != 42 || !strings.Contains(m.Text, "Welcome to CharityFlow") {
		t.Fatalf("unexpected start reply: %+v", m)
	}
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *kb.InlineKeyboard[0][0].URL != "https://app.example" {
		t.Fatalf("start should carry an app button: %#v", m.ReplyMarkup)
	}

	b.HandleUpdate(context.Background(), command(42, "/help"))
	if !strings.Contains(s.last(t).Text, "/donate <project id>") {
		t.Fatalf("help text missing commands: %q", s.last(t).Text)
	}

	b.HandleUpdate(context.Background(), command(42, "/unknown"))
	if !strings.Contains(s.last(t).Text, "Unknown command") {
		t.Fatalf("unexpected reply: %q", s.last(t).Text)
	}
}

func TestBotPlainMessages(t *testing.T) {
	b, s := newTestBot(&stubCatalog{})
	chat := &tgbotapi.Chat{ID: 7}

	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: chat, Text: "hello"}})
	if !strings.Contains(s.last(t).Text, "use commands") {
		t.Fatalf("text reply = %q", s.last(t).Text)
	}
	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: chat, Photo: []tgbotapi.PhotoSize{{FileID: "f"}}}})
	if !strings.Contains(s.last(t).Text, "photo") {
		t.Fatalf("photo reply = %q", s.last(t).Text)
	}
	b.HandleUpdate(context.Background(), tgbotapi.Update{})
	if len(s.sent) != 2 {
		t.Fatalf("empty update should be ignored, sent %d", len(s.sent))
	}
}

func TestBotProjectsCommand(t *testing.T) {
	cat := &stubCatalog{projects: []domain.Project{{
		ID: 3, Title: "Clean water", Status: domain.ProjectActive,
		TargetAmount: domain.MustAmount("100"), CurrentAmount: domain.MustAmount("25"),
	}}}
	b, s := newTestBot(cat)

	b.HandleUpdate(context.Background(), command(1, "/projects healthcare"))
	if cat.filter.Category != domain.CategoryHealthcare {
		t.Fatalf("category filter = %q", cat.filter.Category)
	}
	if cat.filter.Status != domain.ProjectActive {
		t.Fatalf("status filter = %q", cat.filter.Status)
	}
	text := s.last(t).Text
	if !strings.Contains(text, "#3 Clean water") || !strings.Contains(text, "25 / 100 FLOW (25%)") {
		t.Fatalf("projects reply = %q", text)
	}

	b.HandleUpdate(context.Background(), command(1, "/projects nonsense"))
	if !strings.Contains(s.last(t).Text, "Unknown category") {
		t.Fatalf("reply = %q", s.last(t).Text)
	}

	cat.err = errors.New("db down")
	b.HandleUpdate(context.Background(), command(1, "/projects"))
	if !strings.Contains(s.last(t).Text, "Could not load projects") {
		t.Fatalf("reply = %q", s.last(t).Text)
	}
}

func TestBotDonateCommand(t *testing.T) {
	cat := &stubCatalog{projects: []domain.Project{
		{ID: 5, Title: "School books", Status: domain.ProjectActive, TargetAmount: domain.MustAmount("10")},
		{ID: 6, Title: "Closed", Status: domain.ProjectCompleted, TargetAmount: domain.MustAmount("10")},
	}}
	b, s := newTestBot(cat)

	b.HandleUpdate(context.Background(), command(1, "/donate 5"))
	m := s.last(t)
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *kb.InlineKeyboard[0][0].URL != "https://app.example/project/5" {
		t.Fatalf("donate button = %#v", m.ReplyMarkup)
	}

	cases := map[string]string{
		"/donate":     "Usage",
		"/donate abc": "Usage",
		"/donate 99":  "not found",
		"/donate 6":   "no longer accepting",
	}
	for in, want := range cases {
		b.HandleUpdate(context.Background(), command(1, in))
		if !strings.Contains(s.last(t).Text, want) {
			t.Fatalf("%s reply = %q, want %q", in, s.last(t).Text, want)
		}
	}
}

func TestBotStatsCommand(t *testing.T) {
	cat := &stubCatalog{stats: &domain.Stats{TotalProjects: 4, ActiveProjects: 2, TotalDonations: 9, UniqueDonors: 3, TotalRaised: domain.MustAmount("12.5")}}
	b, s := newTestBot(cat)

	b.HandleUpdate(context.Background(), command(1, "/stats"))
	text := s.last(t).Text
	for _, want := range []string{"4 (2 active)", "12.5 FLOW", "Donations: 9", "Donors: 3"} {
		if !strings.Contains(text, want) {
			t.Fatalf("stats reply %q missing %q", text, want)
		}
	}
}

func TestEventHandlerRelaysToChannel(t *testing.T) {
	b, s := newTestBot(&stubCatalog{})
	h := b.EventHandler(-100123)

	err := h.Donation(context.Background(), events.DonationEvent{
		ProjectTitle:        "Clean water",
		DonorAddress:        "0x1234567890abcdef",
		Amount:              domain.MustAmount("5"),
		ProjectTotal:        domain.MustAmount("50"),
		TargetAmount:        domain.MustAmount("100"),
		CompletedMilestones: []string{"Half way"},
	})
	if err != nil {
		t.Fatalf("Donation handler: %v", err)
	}
	m := s.last(t)
	if m.ChatID != -100123 {
		t.Fatalf("chat = %d", m.ChatID)
	}
	for _, want := range []string{"Amount: 5 FLOW", "From: 0x1234...cdef", "Progress: 50%", "Milestone reached: Half way"} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("donation text %q missing %q", m.Text, want)
		}
	}

	err = h.Project(context.Background(), events.ProjectEvent{
		ProjectID:    8,
		Title:        "Trees",
		Description:  strings.Repeat("x", 400),
		TargetAmount: domain.MustAmount("20"),
		EndDate:      time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Project handler: %v", err)
	}
	text := s.last(t).Text
	if !strings.Contains(text, "Ends: 2026-12-31") || !strings.Contains(text, "https://app.example/project/8") || strings.Contains(text, strings.Repeat("x", 300)) {
		t.Fatalf("project text = %q", text)
	}
}

func TestEventHandlerPropagatesSendError(t *testing.T) {
	b, s := newTestBot(&stubCatalog{})
	s.err = errors.New("blocked")
	if err := b.SendDonationUpdate(1, events.DonationEvent{}); err == nil {
		t.Fatal("expected send error")
	}
}
