package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
)

// Sender is the part of tgbotapi.BotAPI the bot needs to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Catalog is the read side of the campaign service.
type Catalog interface {
	ListProjects(ctx context.Context, filter domain.ProjectFilter) (*campaign.ListResult, error)
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	Summary(ctx context.Context) (*domain.Stats, error)
}

// Bot answers commands and relays campaign events to a channel.
type Bot struct {
	sender    Sender
	catalog   Catalog
	webAppURL string
	logger    zerolog.Logger
}

func NewBot(sender Sender, catalog Catalog, webAppURL string, logger zerolog.Logger) *Bot {
	return &Bot{
		sender:    sender,
		catalog:   catalog,
		webAppURL: strings.TrimRight(webAppURL, "/"),
		logger:    logger,
	}
}

// Run long-polls updates from api until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	b.logger.Info().Str("bot", api.Self.UserName).Msg("telegram bot polling")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate replies to a single update. Non-message updates are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	var reply tgbotapi.MessageConfig
	switch {
	case msg.IsCommand():
		reply = b.command(ctx, chatID, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	case len(msg.Photo) > 0:
		reply = tgbotapi.NewMessage(chatID, "Thanks for sharing the photo! You can add it to your project.")
	default:
		reply = tgbotapi.NewMessage(chatID, "I received your message. Please use commands to interact with me.")
	}

	if _, err := b.sender.Send(reply); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram reply failed")
	}
}

func (b *Bot) command(ctx context.Context, chatID int64, cmd, args string) tgbotapi.MessageConfig {
	switch cmd {
	case "start":
		m := tgbotapi.NewMessage(chatID, "Welcome to CharityFlow! 🌟\n\nI can help you:\n"+
			"📋 Create new charity projects\n"+
			"💰 Track donations\n"+
			"📢 Share projects with your community\n"+
			"📊 View project statistics\n\n"+
			"Use /help to see all available commands.")
		m.ReplyMarkup = b.openButton("Open CharityFlow", b.webAppURL)
		return m
	case "help":
		return tgbotapi.NewMessage(chatID, "Available commands:\n\n"+
			"/start - Start the bot\n"+
			"/create - Create a new project\n"+
			"/projects [category] - List active projects\n"+
			"/donate <project id> - Make a donation\n"+
			"/stats - View statistics")
	case "create":
		m := tgbotapi.NewMessage(chatID, "Let's create a new charity project! 🎯\n"+
			"Please provide the following information:\n\n"+
			"1. Project title\n"+
			"2. Description\n"+
			"3. Target amount\n"+
			"4. End date\n\n"+
			"You can also use our web interface for a better experience: "+b.webAppURL+"/create")
		return m
	case "projects":
		return b.projects(ctx, chatID, args)
	case "donate":
		return b.donate(ctx, chatID, args)
	case "stats":
		return b.stats(ctx, chatID)
	}
	return tgbotapi.NewMessage(chatID, "Unknown command. Use /help to see all available commands.")
}

func (b *Bot) projects(ctx context.Context, chatID int64, args string) tgbotapi.MessageConfig {
	filter := domain.ProjectFilter{Status: domain.ProjectActive, Limit: 5}
	if args != "" {
		c, ok := domain.ParseCategory(args)
		if !ok {
			return tgbotapi.NewMessage(chatID, "Unknown category. Try one of: "+categoryList())
		}
		filter.Category = c
	}
	res, err := b.catalog.ListProjects(ctx, filter)
	if err != nil {
		b.logger.Error().Err(err).Msg("bot list projects")
		return tgbotapi.NewMessage(chatID, "Could not load projects right now. Please try again later.")
	}
	if len(res.Items) == 0 {
		return tgbotapi.NewMessage(chatID, "No active projects yet. Use /create to start one!")
	}
	var sb strings.Builder
	sb.WriteString("📋 Active projects:\n")
	for _, p := range res.Items {
		fmt.Fprintf(&sb, "\n#%d %s\n💰 %s / %s FLOW (%.0f%%)\n", p.ID, p.Title, p.CurrentAmount, p.TargetAmount, p.Progress())
	}
	sb.WriteString("\nUse /donate <id> to support one.")
	return tgbotapi.NewMessage(chatID, sb.String())
}

func (b *Bot) donate(ctx context.Context, chatID int64, args string) tgbotapi.MessageConfig {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil || id <= 0 {
		return tgbotapi.NewMessage(chatID, "Usage: /donate <project id>. Use /projects to find one.")
	}
	p, err := b.catalog.GetProject(ctx, id)
	if err != nil {
		return tgbotapi.NewMessage(chatID, "Project not found.")
	}
	if p.Status != domain.ProjectActive {
		return tgbotapi.NewMessage(chatID, "This project is no longer accepting donations.")
	}
	m := tgbotapi.NewMessage(chatID, fmt.Sprintf("💝 %s\n🎯 %s / %s FLOW raised\n\nOpen the project to donate with your wallet.", p.Title, p.CurrentAmount, p.TargetAmount))
	m.ReplyMarkup = b.openButton("Donate", b.projectURL(p.ID))
	return m
}

func (b *Bot) stats(ctx context.Context, chatID int64) tgbotapi.MessageConfig {
	s, err := b.catalog.Summary(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("bot stats")
		return tgbotapi.NewMessage(chatID, "Statistics are unavailable right now.")
	}
	return tgbotapi.NewMessage(chatID, fmt.Sprintf("📊 CharityFlow statistics\n\n"+
		"📋 Projects: %d (%d active)\n"+
		"💰 Raised: %s FLOW\n"+
		"🎁 Donations: %d\n"+
		"👥 Donors: %d", s.TotalProjects, s.ActiveProjects, s.TotalRaised, s.TotalDonations, s.UniqueDonors))
}

func (b *Bot) openButton(label, link string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, link)))
}

func (b *Bot) projectURL(id int64) string {
	return b.webAppURL + "/project/" + strconv.FormatInt(id, 10)
}

// ShareProject announces a new project in chatID.
func (b *Bot) ShareProject(chatID int64, evt events.ProjectEvent) error {
	text := "🌟 New Charity Project!\n\n" +
		"📋 " + evt.Title + "\n" +
		"💬 " + truncate(evt.Description, 280) + "\n" +
		"🎯 Target: " + evt.TargetAmount.String() + " FLOW\n" +
		"⏰ Ends: " + evt.EndDate.Format("2006-01-02") + "\n\n" +
		"Support this cause: " + b.projectURL(evt.ProjectID)
	_, err := b.sender.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendDonationUpdate posts a confirmed donation in chatID.
func (b *Bot) SendDonationUpdate(chatID int64, evt events.DonationEvent) error {
	progress := evt.ProjectTotal.Percent(evt.TargetAmount)
	text := fmt.Sprintf("🎉 New Donation Received!\n\n"+
		"💰 Amount: %s FLOW\n"+
		"👤 From: %s\n"+
		"📊 Project Progress: %.0f%%", evt.Amount, shortAddress(evt.DonorAddress), progress)
	if evt.ProjectTitle != "" {
		text += "\n📋 " + evt.ProjectTitle
	}
	for _, m := range evt.CompletedMilestones {
		text += "\n🏁 Milestone reached: " + m
	}
	_, err := b.sender.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// EventHandler relays broker events to chatID.
func (b *Bot) EventHandler(chatID int64) events.Handler {
	return events.Handler{
		Donation: func(_ context.Context, evt events.DonationEvent) error {
			return b.SendDonationUpdate(chatID, evt)
		},
		Project: func(_ context.Context, evt events.ProjectEvent) error {
			return b.ShareProject(chatID, evt)
		},
	}
}

func categoryList() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
