// Package config loads service configuration from an optional YAML file
// overlaid with COFFEE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Redis     RedisConfig     `koanf:"redis"`
	Tokens    TokensConfig    `koanf:"tokens"`
	Chat      ChatConfig      `koanf:"chat"`
	Providers ProvidersConfig `koanf:"providers"`
	AI        AIConfig        `koanf:"ai"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	API       APIConfig       `koanf:"api"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type TokensConfig struct {
	// TransactionTTLSeconds bounds how long a webhook transaction stays
	// verifiable. Default 30 days.
	TransactionTTLSeconds int `koanf:"transaction_ttl_seconds"`
	// EventTTLSeconds bounds audit event history. Zero keeps events
	// permanently.
	EventTTLSeconds int `koanf:"event_ttl_seconds"`
}

type ChatConfig struct {
	ContextTTLSeconds int        `koanf:"context_ttl_seconds"`
	MaxAutoAdvance    int        `koanf:"max_auto_advance"`
	FAQ               []FAQEntry `koanf:"faq"`
	Messages          Messages   `koanf:"messages"`
}

type FAQEntry struct {
	Question string `koanf:"question"`
	Answer   string `koanf:"answer"`
}

// Messages are the assistant's canned lines. Each slot holds one or more
// variants; steps pick one at random so repeat visitors don't read a
// script.
type Messages struct {
	PaywallTrigger []string `koanf:"paywall_trigger"`
	SupportRetry   []string `koanf:"support_retry"`
	AskForTx       []string `koanf:"ask_for_tx"`
	TxFail         []string `koanf:"tx_fail"`
	AIError        []string `koanf:"ai_error"`
}

type ProvidersConfig struct {
	BMC BMCConfig `koanf:"bmc"`
}

type BMCConfig struct {
	// Secret signs webhook bodies. Webhook intake refuses to process BMC
	// events without it.
	Secret string `koanf:"secret"`
	URL    string `koanf:"url"`
	// PerCoffeeMinutes is how much gated-access time one coffee buys.
	PerCoffeeMinutes int `koanf:"per_coffee_minutes"`
}

type AIConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	// TokenBudget caps how much history is forwarded to the generation
	// backend.
	TokenBudget int `koanf:"token_budget"`
}

type RateLimitConfig struct {
	MaxRequests   int `koanf:"max_requests"`
	WindowSeconds int `koanf:"window_seconds"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type APIConfig struct {
	// Key guards the verify/consume endpoints (x-coffee-api-key header).
	Key string `koanf:"key"`
}

// Default returns the coded defaults the file and environment overlays are
// applied on top of.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Tokens: TokensConfig{
			TransactionTTLSeconds: 30 * 24 * 60 * 60,
			EventTTLSeconds:       0,
		},
		Chat: ChatConfig{
			ContextTTLSeconds: 24 * 60 * 60,
			MaxAutoAdvance:    5,
			FAQ: []FAQEntry{
				{
					Question: "What is this?",
					Answer:   "A premium AI chat you unlock by buying the author a coffee. Verify your payment here and chat away.",
				},
				{
					Question: "How does verification work?",
					Answer:   "After you support us, the payment provider sends us a receipt. Paste your transaction id here and we match it against that receipt.",
				},
				{
					Question: "How long does access last?",
					Answer:   "Each coffee buys a fixed slice of chat time. The more coffees, the longer the session.",
				},
			},
			Messages: Messages{
				PaywallTrigger: []string{
					"That's a great question for the AI! To unlock premium chat, grab me a coffee with one of these:",
					"I'd love to dig into that. Premium chat opens after a quick coffee break - pick your provider:",
				},
				SupportRetry: []string{
					"I didn't catch which provider you picked. Mind choosing again?",
				},
				AskForTx: []string{
					"Welcome back! Paste the transaction id from your receipt and I'll verify it.",
					"Great! Drop your transaction id below so I can confirm the payment.",
				},
				TxFail: []string{
					"Hmm, I couldn't verify that transaction. Double-check the id and try again.",
				},
				AIError: []string{
					"I'm sorry, I ran into an error processing your request. Please try again.",
				},
			},
		},
		Providers: ProvidersConfig{
			BMC: BMCConfig{
				URL:              "https://buymeacoffee.com",
				PerCoffeeMinutes: 30,
			},
		},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
			TokenBudget:    3000,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   20,
			WindowSeconds: 60,
		},
	}
}

// envSections maps the env-name prefix of each config section to its koanf
// path. Only the section boundary becomes a dot; the rest of the variable
// name keeps its underscores, so snake_case keys stay reachable:
// COFFEE_RATE_LIMIT_MAX_REQUESTS -> rate_limit.max_requests,
// COFFEE_AI_API_KEY -> ai.api_key.
var envSections = map[string]string{
	"SERVER":        "server",
	"REDIS":         "redis",
	"TOKENS":        "tokens",
	"CHAT":          "chat",
	"CHAT_MESSAGES": "chat.messages",
	"PROVIDERS_BMC": "providers.bmc",
	"AI":            "ai",
	"RATE_LIMIT":    "rate_limit",
	"TELEMETRY":     "telemetry",
	"API":           "api",
}

// envToKey resolves an environment variable name to its koanf key by
// longest-matching section prefix. Unrecognized variables are dropped.
func envToKey(name string) string {
	name = strings.TrimPrefix(name, "COFFEE_")
	match, path := "", ""
	for prefix, section := range envSections {
		if strings.HasPrefix(name, prefix+"_") && len(prefix) > len(match) {
			match, path = prefix, section
		}
	}
	if match == "" {
		return ""
	}
	return path + "." + strings.ToLower(name[len(match)+1:])
}

// Load reads config.yaml (when present) and the COFFEE_ environment
// overlay on top of the coded defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("COFFEE_", ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis addr is required")
	}
	if c.Tokens.TransactionTTLSeconds <= 0 {
		return fmt.Errorf("config: transaction TTL must be positive")
	}
	if c.Providers.BMC.PerCoffeeMinutes <= 0 {
		return fmt.Errorf("config: per-coffee duration must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("config: rate limit window and max must be positive")
	}
	return nil
}
