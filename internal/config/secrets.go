package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.DeBank.AccessKey)
	redact(&out.Subgraph.APIKey)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through
	// the redacted copy.
	out.Notify.Events = cloneSlice(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneSlice(cfg.Server.CORSOrigins)
	out.Bundle.BatchCalls = cloneSlice(cfg.Bundle.BatchCalls)
	out.Bundle.SettlementSymbols = cloneSlice(cfg.Bundle.SettlementSymbols)
	out.Bundle.AggregatorKeywords = cloneSlice(cfg.Bundle.AggregatorKeywords)
	out.Bundle.GasSymbols = cloneSlice(cfg.Bundle.GasSymbols)
	if cfg.Subgraph.UniswapURLs != nil {
		out.Subgraph.UniswapURLs = make(map[string]string, len(cfg.Subgraph.UniswapURLs))
		for k, v := range cfg.Subgraph.UniswapURLs {
			out.Subgraph.UniswapURLs[k] = v
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

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
