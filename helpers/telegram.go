package helpers

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

// MessageSender delivers a notification text
type MessageSender interface {
	Send(message string) error
}

// TelegramHook forwards entries flagged with NotifyField to a chat.
type TelegramHook struct {
	sender MessageSender
}

func NewTelegramHook(sender MessageSender) *TelegramHook {
	return &TelegramHook{sender: sender}
}

func (h *TelegramHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

func (h *TelegramHook) Fire(entry *log.Entry) error {
	notify, _ := entry.Data[NotifyField].(bool)
	if !notify {
		return nil
	}
	return h.sender.Send(entry.Message)
}

type telegramSender struct {
	token  string
	chatID string

	once sync.Once
	bot  *tb.Bot
	chat *tb.Chat
	err  error
}

func NewTelegramSender(token string, chatID string) MessageSender {
	return &telegramSender{token: token, chatID: chatID}
}

func (s *telegramSender) Send(message string) error {
	s.once.Do(func() {
		s.bot, s.err = tb.NewBot(tb.Settings{
			Token:  s.token,
			Poller: &tb.LongPoller{Timeout: 10 * time.Second},
		})
		if s.err != nil {
			return
		}
		s.chat, s.err = s.bot.ChatByID(s.chatID)
	})
	if s.err != nil {
		return s.err
	}
	_, err := s.bot.Send(s.chat, message)
	return err
}
