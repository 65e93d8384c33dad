package notifier

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/triptrack/triptrack-api/internal/config"
	"github.com/triptrack/triptrack-api/internal/models"
)

// OrganizerNotifier posts a heads-up to the organizers when something
// worth knowing happens. Failures are the caller's problem to downgrade.
type OrganizerNotifier interface {
	NotifyRegistration(reg models.Registration, trip models.Trip, seatsLeft int64) error
}

type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifier(cfg *config.Config) (*DiscordNotifier, error) {
	if cfg.DiscordBotToken == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, err
	}
	return &DiscordNotifier{
		session:   session,
		channelID: cfg.DiscordNotificationsChannelID,
	}, nil
}

func (n *DiscordNotifier) NotifyRegistration(reg models.Registration, trip models.Trip, seatsLeft int64) error {
	if n.session == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	message := fmt.Sprintf("🎉 **New Registration**\n**Name:** %s\n**Email:** %s\n**Phone:** %s\n**Park:** %s\n**Trip:** %s (%s)\n**Seats left now:** %d",
		reg.FullName,
		reg.EmailUsed,
		reg.Phone,
		reg.ParkChoice,
		trip.Name,
		trip.Date.Format("2006-01-02"),
		seatsLeft,
	)

	_, err := n.session.ChannelMessageSend(n.channelID, message)
	if err != nil {
		log.Printf("Failed to send discord message: %v", err)
		return err
	}

	return nil
}
