package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the resolved endpoints
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Highlight", GetVersion())

	logger.Debug().
		Str("server_url", config.Server.URL).
		Str("channel_url", config.ChannelURL()).
		Str("environment", config.Environment).
		Msg("Resolved configuration")
}
