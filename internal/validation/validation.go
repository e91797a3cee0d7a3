// Package validation checks platform identifier formats before they reach
// an upstream API.
package validation

import (
	"fmt"
	"regexp"

	"github.com/timetable/timetable-sync/internal/model"
)

var (
	videoIDRegex         = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	channelIDRegex       = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)
	twitchIDRegex        = regexp.MustCompile(`^[0-9]{1,20}$`)
	uploadsPlaylistRegex = regexp.MustCompile(`^UU[a-zA-Z0-9_-]{22}$`)
)

// IsValidVideoID reports whether id looks like a YouTube video id.
func IsValidVideoID(id string) bool {
	return videoIDRegex.MatchString(id)
}

// IsValidChannelID reports whether id looks like a YouTube channel id.
func IsValidChannelID(id string) bool {
	return channelIDRegex.MatchString(id)
}

// IsValidTwitchID reports whether id is a numeric Helix id.
func IsValidTwitchID(id string) bool {
	return twitchIDRegex.MatchString(id)
}

// ValidateAccount checks the id of a sync account. YouTube accounts are
// channel ids, Twitch accounts are user ids.
func ValidateAccount(platform model.Platform, id string) error {
	switch platform {
	case model.PlatformYouTube:
		if !IsValidChannelID(id) {
			return fmt.Errorf("%w: invalid youtube channel id %q", model.ErrInvalidArgument, id)
		}
	case model.PlatformTwitch:
		if !IsValidTwitchID(id) {
			return fmt.Errorf("%w: invalid twitch user id %q", model.ErrInvalidArgument, id)
		}
	default:
		return fmt.Errorf("%w: unknown platform %q", model.ErrInvalidArgument, platform)
	}
	return nil
}

// ValidateIdentifier checks the value format of channel, video and playlist
// identifiers. Other kinds only need a non-empty value.
func ValidateIdentifier(id model.Identifier) error {
	if !id.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", model.ErrInvalidArgument, id.Platform)
	}
	if id.Value == "" {
		return fmt.Errorf("%w: empty %s id", model.ErrInvalidArgument, id.Kind)
	}
	if id.Platform == model.PlatformTwitch {
		if !IsValidTwitchID(id.Value) && id.Kind != model.KindSubscription {
			return fmt.Errorf("%w: invalid twitch %s id %q", model.ErrInvalidArgument, id.Kind, id.Value)
		}
		return nil
	}

	var ok bool
	switch id.Kind {
	case model.KindChannel:
		ok = IsValidChannelID(id.Value)
	case model.KindVideo:
		ok = IsValidVideoID(id.Value)
	case model.KindPlaylist:
		ok = uploadsPlaylistRegex.MatchString(id.Value)
	default:
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: invalid youtube %s id %q", model.ErrInvalidArgument, id.Kind, id.Value)
	}
	return nil
}
