package helpers

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. It writes plain lines to stderr until
// SetupLogger redirects it.
var Logger = newDefaultLogger()

// NotifyField marks an entry that should also reach the notification channel.
const NotifyField = "notify"

type LoggerOptions struct {
	File  string
	Level string

	TelegramOutput bool
	TelegramToken  string
	TelegramChatId string
}

func newDefaultLogger() *log.Logger {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(NewPlainFormatter())
	l.SetLevel(log.InfoLevel)
	return l
}

// SetupLogger points Logger at the configured file (and stderr) and installs
// the Telegram hook when enabled.
func SetupLogger(opts LoggerOptions) error {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var output io.Writer = os.Stderr
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		output = io.MultiWriter(os.Stderr, f)
	}

	Logger.SetOutput(output)
	Logger.SetFormatter(NewPlainFormatter())
	Logger.SetLevel(level)

	if opts.TelegramOutput {
		if opts.TelegramToken == "" || opts.TelegramChatId == "" {
			return fmt.Errorf("telegramOutput set to true but telegramToken or telegramChatId not found")
		}
		Logger.AddHook(NewTelegramHook(NewTelegramSender(opts.TelegramToken, opts.TelegramChatId)))
	}
	return nil
}

type PlainFormatter struct {
	TimestampFormat string
	LevelDesc       []string
}

func NewPlainFormatter() *PlainFormatter {
	return &PlainFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		LevelDesc:       []string{"PANIC", "FATAL", "ERROR", "WARN ", "INFO ", "DEBUG", "TRACE"},
	}
}

func (f PlainFormatter) Format(entry *log.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)
	level := strings.ToUpper(entry.Level.String())
	if int(entry.Level) < len(f.LevelDesc) {
		level = f.LevelDesc[entry.Level]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", level, timestamp, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == NotifyField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
