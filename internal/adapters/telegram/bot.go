package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
)

const (
	msgStart = `🌿 Hi! I am a plant doctor bot.

📸 Send me a photo of a single leaf and I will name the most likely disease and suggest a treatment.
💬 Or just ask me anything about crops, pests and plant care.

📋 Commands:
/help - how to take a good photo
/clear - forget our conversation`

	msgHelp = `ℹ️ How to get a reliable diagnosis:

• Photograph one leaf, filling most of the frame
• Use daylight and a plain background
• Keep the photo sharp

Text messages go to the agronomist chat. /clear starts a new conversation.`

	msgCleared        = "🧹 Conversation cleared."
	msgUnknownCommand = "❓ Unknown command. Use /help."
	msgProcessing     = "⏳ Analyzing the leaf..."
	msgDownloadError  = "⚠️ Could not download the photo. Please try again."

	maxTranscriptTurns = 40
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Downloader fetches the bytes of a Telegram file.
type Downloader func(ctx context.Context, fileID string) ([]byte, error)

// Bot is the Telegram shell over the diagnosis and chat services. Chat
// transcripts are held here, per chat, in memory only.
type Bot struct {
	sender   Sender
	download Downloader
	diagnose ports.DiagnosisService
	chat     ports.ChatService
	logger   *slog.Logger

	mu          sync.Mutex
	transcripts map[int64][]domain.ChatTurn
}

func NewBot(sender Sender, download Downloader, diagnose ports.DiagnosisService, chat ports.ChatService, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:      sender,
		download:    download,
		diagnose:    diagnose,
		chat:        chat,
		logger:      logger,
		transcripts: make(map[int64][]domain.ChatTurn),
	}
}

// NewAPI authorizes against Telegram and returns the client together with a
// downloader bound to it.
func NewAPI(token string) (*tgbotapi.BotAPI, Downloader, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, nil, fmt.Errorf("telegram auth: %w", err)
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	download := func(ctx context.Context, fileID string) ([]byte, error) {
		file, err := api.GetFile(tgbotapi.FileConfig{FileID: fileID})
		if err != nil {
			return nil, fmt.Errorf("get file: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(api.Token), nil)
		if err != nil {
			return nil, fmt.Errorf("download file: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download file: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download file: status %s", resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return data, nil
	}
	return api, download, nil
}

// Run consumes long-poll updates until ctx is done.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.HandleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand():
		b.handleCommand(chatID, msg.Command())
	case len(msg.Photo) > 0:
		b.handleImage(ctx, chatID, msg.Photo[len(msg.Photo)-1].FileID)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		b.handleImage(ctx, chatID, msg.Document.FileID)
	default:
		b.handleText(ctx, chatID, msg.Text)
	}
}

func (b *Bot) handleCommand(chatID int64, command string) {
	switch command {
	case "start":
		b.sendMessage(chatID, msgStart)
	case "help":
		b.sendMessage(chatID, msgHelp)
	case "clear":
		history, _ := b.chat.Clear()
		b.mu.Lock()
		b.transcripts[chatID] = history
		b.mu.Unlock()
		b.sendMessage(chatID, msgCleared)
	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) handleImage(ctx context.Context, chatID int64, fileID string) {
	b.sendMessage(chatID, msgProcessing)

	data, err := b.download(ctx, fileID)
	if err != nil {
		b.logger.Warn("telegram_download_failed", "chat_id", chatID, "error", err)
		b.sendMessage(chatID, msgDownloadError)
		return
	}
	b.sendMessage(chatID, plainText(b.diagnose.DiagnoseBytes(ctx, data)))
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	b.mu.Lock()
	history := b.transcripts[chatID]
	b.mu.Unlock()

	updated, _ := b.chat.Reply(ctx, text, history)
	if len(updated) == len(history) {
		return
	}
	if len(updated) > maxTranscriptTurns {
		updated = updated[len(updated)-maxTranscriptTurns:]
	}

	b.mu.Lock()
	b.transcripts[chatID] = updated
	b.mu.Unlock()

	b.sendMessage(chatID, updated[len(updated)-1].Text)
}

// Transcript returns a copy of the conversation kept for a chat.
func (b *Bot) Transcript(chatID int64) []domain.ChatTurn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.ChatTurn(nil), b.transcripts[chatID]...)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("telegram_send_failed", "chat_id", chatID, "error", err)
	}
}

// plainText drops the markdown markers Telegram would print literally.
func plainText(markdown string) string {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, "### ")
	}
	return strings.ReplaceAll(strings.Join(lines, "\n"), "**", "")
}
