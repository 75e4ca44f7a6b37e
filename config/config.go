package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken  string
	AllowedChatIDs []int64
	DatabasePath   string
	Timezone       *time.Location
	TimezoneName   string
	MorningTime    string
	WebhookURL     string
	ServerPort     string

	APIUser     string
	APIPassword string

	GroqAPIKey string
	GroqModel  string

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("database_path", "./data/rotinabot.db")
	v.SetDefault("timezone", "America/Sao_Paulo")
	v.SetDefault("morning_time", "08:00")
	v.SetDefault("server_port", "8080")
	v.SetDefault("groq_model", "llama-3.3-70b-versatile")

	v.SetConfigName("rotinabot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars alone are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	token := v.GetString("telegram_bot_token")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	tzName := v.GetString("timezone")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	chatIDs, err := parseChatIDs(v.GetString("allowed_chat_ids"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_CHAT_IDS: %w", err)
	}

	return &Config{
		TelegramToken:  token,
		AllowedChatIDs: chatIDs,
		DatabasePath:   v.GetString("database_path"),
		Timezone:       tz,
		TimezoneName:   tzName,
		MorningTime:    v.GetString("morning_time"),
		WebhookURL:     v.GetString("webhook_url"),
		ServerPort:     v.GetString("server_port"),
		APIUser:        v.GetString("api_user"),
		APIPassword:    v.GetString("api_password"),
		GroqAPIKey:     v.GetString("groq_api_key"),
		GroqModel:      v.GetString("groq_model"),
		CalDAVURL:      v.GetString("caldav_url"),
		CalDAVUsername: v.GetString("caldav_username"),
		CalDAVPassword: v.GetString("caldav_password"),
		CalDAVCalendar: v.GetString("caldav_calendar"),
	}, nil
}

func parseChatIDs(csv string) ([]int64, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(csv, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsAllowedChat gates update handling. An empty allow-list accepts everyone,
// which is the sane default for a single-user deployment.
func (c *Config) IsAllowedChat(chatID int64) bool {
	if len(c.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
