package notify

import (
	"context"
	"fmt"
	"strings"

	"schedfy/internal/events"
	"schedfy/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// MessageSender is the subset of the Telegram bot API the notifier needs.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes booking-lifecycle messages to the entity's
// back-office chat.
type TelegramNotifier struct {
	sender MessageSender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return &TelegramNotifier{sender: bot, chatID: chatID, logger: logger}, nil
}

// NewTelegramNotifierWithSender wires a custom sender, used in tests.
func NewTelegramNotifierWithSender(sender MessageSender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID, logger: logger}
}

func (n *TelegramNotifier) NotifyBooking(ctx context.Context, event string, booking *models.Booking) error {
	if n.sender == nil || n.chatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatBookingMessage(event, booking))
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

// FormatBookingMessage renders the chat text for a lifecycle event.
func FormatBookingMessage(event string, booking *models.Booking) string {
	var b strings.Builder
	b.WriteString(eventTitle(event))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Service: %s\n", booking.ServiceName)
	fmt.Fprintf(&b, "Client: %s", booking.ClientName)
	if booking.ClientPhone != "" {
		fmt.Fprintf(&b, " (%s)", booking.ClientPhone)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "When: %s - %s\n",
		booking.StartTime.Format("2006-01-02 15:04"),
		booking.EndTime.Format("15:04"))
	fmt.Fprintf(&b, "Price: %s\n", booking.Price.String())
	fmt.Fprintf(&b, "Ref: %s", booking.Reference)
	if booking.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", booking.Comment)
	}
	return b.String()
}

func eventTitle(event string) string {
	switch event {
	case events.EventBookingCreated:
		return "🆕 New booking"
	case events.EventBookingConfirmed:
		return "✅ Booking confirmed"
	case events.EventBookingCancelled:
		return "❌ Booking cancelled"
	case events.EventBookingCompleted:
		return "🏁 Booking completed"
	case events.EventBookingRescheduled:
		return "🔁 Booking rescheduled"
	default:
		return "ℹ️ Booking update"
	}
}
