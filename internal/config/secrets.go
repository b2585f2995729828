package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.ChainData.Brokers != nil {
		out.ChainData.Brokers = append([]string(nil), cfg.ChainData.Brokers...)
	}
	if cfg.Exchange.Markets != nil {
		out.Exchange.Markets = append([]MarketConfig(nil), cfg.Exchange.Markets...)
	}
	if cfg.Exchange.Chains != nil {
		out.Exchange.Chains = make([]ChainConfig, len(cfg.Exchange.Chains))
		for i, ch := range cfg.Exchange.Chains {
			out.Exchange.Chains[i] = ChainConfig{Name: ch.Name, Legs: append([]LegConfig(nil), ch.Legs...)}
		}
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.ChainData.Pools != nil {
		out.ChainData.Pools = make(map[string]string, len(cfg.ChainData.Pools))
		for k, v := range cfg.ChainData.Pools {
			out.ChainData.Pools[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
