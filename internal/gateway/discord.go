package gateway

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const discordMessageLimit = 2000

type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordGateway posts to channels over the REST API. It never opens a
// websocket session.
type DiscordGateway struct {
	session channelSender
}

func NewDiscordGateway(token string) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	return &DiscordGateway{session: session}, nil
}

func (d *DiscordGateway) Send(channelID string, text string) error {
	if channelID == "" {
		return fmt.Errorf("invalid channel ID: empty")
	}
	_, err := d.session.ChannelMessageSend(channelID, truncate(text, discordMessageLimit))
	return err
}
