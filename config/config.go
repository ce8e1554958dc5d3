package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/xhit/go-str2duration/v2"
	"gitlab.com/aoterocom/autotrader/models"
)

// ErrInvalidConfig wraps every configuration problem.
var ErrInvalidConfig = errors.New("invalid configuration")

const defaultConfFile = "conf.env"

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// Config is the process configuration read from conf.env and the
// environment. Variables already set in the environment win over the file.
type Config struct {
	Credentials models.Credentials

	PollInterval time.Duration
	CallTimeout  time.Duration
	CacheSize    int
	TargetCoin   string
	PaperBalance float64
	// PaperCommission is charged per paper fill; PaperContractSize is the
	// units per lot used to value paper positions.
	PaperCommission   float64
	PaperContractSize float64
	// RearmSchedule optionally re-arms every instance on a cron schedule.
	// Instances re-arm themselves when their next session opens either way.
	RearmSchedule  string
	StrategiesFile string

	LogFile        string
	LogLevel       string
	TelegramOutput bool
	TelegramToken  string
	TelegramChatId string

	EnableBarArchive bool
	Database         DatabaseConfig
}

// Load reads path (or $CONF_FILE, or ./conf.env) into the environment and
// parses every setting. All problems are reported in a single error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONF_FILE")
	}
	if path == "" {
		path = defaultConfFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: loading %s: %s", ErrInvalidConfig, path, err.Error())
	}

	p := &parser{}
	cfg := &Config{
		Credentials: models.Credentials{
			Login:    p.required("venueLogin"),
			Password: p.required("venueSecret"),
			Server:   p.required("venueServer"),
			Path:     os.Getenv("venuePath"),
		},
		PollInterval:      p.duration("pollInterval", 2*time.Second),
		CallTimeout:       p.duration("callTimeout", 10*time.Second),
		CacheSize:         p.int("cacheSize", 128),
		TargetCoin:        p.string("targetCoin", "USDT"),
		PaperBalance:      p.float("paperBalance", 10000),
		PaperCommission:   p.float("paperCommission", 0),
		PaperContractSize: p.float("paperContractSize", 1),
		RearmSchedule:     p.string("rearmSchedule", ""),
		StrategiesFile:    p.string("strategiesFile", "strategies.yaml"),

		LogFile:        p.string("logFile", "bot.log"),
		LogLevel:       p.string("logLevel", "info"),
		TelegramOutput: p.bool("telegramOutput"),

		EnableBarArchive: p.bool("enableBarArchive"),
	}

	if cfg.TelegramOutput {
		cfg.TelegramToken = p.required("telegramToken")
		cfg.TelegramChatId = p.required("telegramChatId")
	}
	if cfg.EnableBarArchive {
		cfg.Database = DatabaseConfig{
			Host:     p.required("databaseHost"),
			Port:     p.string("databasePort", "3306"),
			Name:     p.required("databaseName"),
			User:     p.required("databaseUser"),
			Password: os.Getenv("databasePassword"),
		}
	}

	if cfg.PollInterval <= 0 {
		p.problem("pollInterval must be positive")
	}
	if cfg.CallTimeout <= 0 {
		p.problem("callTimeout must be positive")
	}
	if cfg.CacheSize <= 0 {
		p.problem("cacheSize must be positive")
	}
	if cfg.PaperBalance <= 0 {
		p.problem("paperBalance must be positive")
	}
	if cfg.PaperCommission < 0 {
		p.problem("paperCommission must not be negative")
	}
	if cfg.PaperContractSize <= 0 {
		p.problem("paperContractSize must be positive")
	}
	if cfg.RearmSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RearmSchedule); err != nil {
			p.problem(fmt.Sprintf("rearmSchedule %q: %s", cfg.RearmSchedule, err.Error()))
		}
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type parser struct {
	missing  []string
	problems []string
}

func (p *parser) required(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		p.missing = append(p.missing, key)
	}
	return value
}

func (p *parser) string(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	d, err := str2duration.ParseDuration(value)
	if err != nil {
		p.problem(fmt.Sprintf("%s %q is not a duration", key, value))
		return def
	}
	return d
}

func (p *parser) int(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		p.problem(fmt.Sprintf("%s %q is not an integer", key, value))
		return def
	}
	return i
}

func (p *parser) float(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		p.problem(fmt.Sprintf("%s %q is not a number", key, value))
		return def
	}
	return f
}

func (p *parser) bool(key string) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.problem(fmt.Sprintf("%s %q is not a boolean", key, value))
		return false
	}
	return b
}

func (p *parser) problem(msg string) {
	p.problems = append(p.problems, msg)
}

func (p *parser) err() error {
	var parts []string
	if len(p.missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(p.missing, ", "))
	}
	parts = append(parts, p.problems...)
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, "; "))
}
