package config

import "net/url"

// RedactedConfig returns a copy of cfg with credentials replaced by "***" so
// the active configuration can be logged.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Redis.Password)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redactURL(&out.Notify.DiscordWebhookURL)
	redactURL(&out.Backend.BaseURL)
	redactURL(&out.Backend.WSURL)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL hides a password embedded in the URL and, for webhook URLs
// that carry their secret in the path, everything after the host.
func redactURL(s *string) {
	if *s == "" {
		return
	}
	u, err := url.Parse(*s)
	if err != nil || u.Host == "" {
		*s = redacted
		return
	}
	if isWebhook(u.Host) {
		*s = u.Scheme + "://" + u.Host + "/" + redacted
		return
	}
	*s = u.Redacted()
}

func isWebhook(host string) bool {
	switch host {
	case "discord.com", "discordapp.com":
		return true
	}
	return false
}
