package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port                          string `mapstructure:"PORT"`
	DatabasePath                  string `mapstructure:"DATABASE_PATH"`
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	AppBaseURL                    string `mapstructure:"APP_BASE_URL"`
	SMTPHost                      string `mapstructure:"SMTP_HOST"`
	SMTPPort                      string `mapstructure:"SMTP_PORT"`
	SMTPUsername                  string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword                  string `mapstructure:"SMTP_PASSWORD"`
	EmailFrom                     string `mapstructure:"EMAIL_FROM"`
	OrganizerEmail                string `mapstructure:"ORGANIZER_EMAIL"`
	DiscordBotToken               string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	EnableCORS                    bool   `mapstructure:"ENABLE_CORS"`
}

func LoadConfig() *Config {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "triptrack.db")
	viper.SetDefault("APP_BASE_URL", "http://127.0.0.1:8080")
	viper.SetDefault("SMTP_PORT", "587")
	viper.SetDefault("EMAIL_FROM", "TripTrack <noreply@triptrack.online>")

	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("APP_BASE_URL")
	viper.BindEnv("SMTP_HOST")
	viper.BindEnv("SMTP_PORT")
	viper.BindEnv("SMTP_USERNAME")
	viper.BindEnv("SMTP_PASSWORD")
	viper.BindEnv("EMAIL_FROM")
	viper.BindEnv("ORGANIZER_EMAIL")
	viper.BindEnv("DISCORD_BOT_TOKEN")
	viper.BindEnv("DISCORD_NOTIFICATIONS_CHANNEL_ID")
	viper.BindEnv("ENABLE_CORS")

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	return &config
}
