package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ChannelAnnouncer posts expiry notifications to a Discord channel.
type ChannelAnnouncer struct {
	session   *discordgo.Session
	channelID string
}

// NewChannelAnnouncer returns an announcer posting to channelID.
func NewChannelAnnouncer(session *discordgo.Session, channelID string) *ChannelAnnouncer {
	return &ChannelAnnouncer{session: session, channelID: channelID}
}

// Notify posts the alert message. A missing-access or missing-permissions
// response from Discord is reported as ErrPermissionDenied so the caller
// can degrade to on-screen alerts only.
func (c *ChannelAnnouncer) Notify(ctx context.Context, a Alert) error {
	_, err := c.session.ChannelMessageSend(c.channelID, ":hourglass: "+a.Message)
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: channel %s", ErrPermissionDenied, c.channelID)
		}
	}
	return fmt.Errorf("sending channel message: %w", err)
}
