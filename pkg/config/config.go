package config

import (
	"os"
	"strconv"

	"github.com/feedherald/feedherald/pkg/helpers"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings are the process level knobs, resolved from the environment.
type Settings struct {
	LogLevel              string `envconfig:"LOG_LEVEL" default:"INFO"`
	Port                  int    `envconfig:"PORT" default:"8080"`
	PollIntervalMinutes   int    `envconfig:"POLL_INTERVAL_MINUTES" default:"5"`
	BotToken              string `envconfig:"BOT_TOKEN" default:""`
	ApiBaseUrl            string `envconfig:"API_BASE_URL" default:"https://discord.com/api/v10"`
	MaxContentLength      int    `envconfig:"MAX_CONTENT_LENGTH" default:"3000"`
	RedisConnectionString string `envconfig:"REDIS_CONNECTION_STRING" default:""`
	StrictReadiness       bool   `envconfig:"STRICT_READINESS" default:"false"`
	StoreWorkers          int    `envconfig:"STORE_WORKERS" default:"10"`
	Version               string `envconfig:"VERSION" default:"unknown"`
}

// ChannelID is the destination channel identifier. The configuration file
// accepts it as either a number or a string; it is kept as a string and
// validated at delivery time.
type ChannelID string

func (c *ChannelID) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		*c = ChannelID(asString)
		return nil
	}

	var asInt int64
	if err := value.Decode(&asInt); err != nil {
		return errors.Wrap(err, "channel_id must be a number or a string")
	}
	*c = ChannelID(strconv.FormatInt(asInt, 10))
	return nil
}

type FeedConfig struct {
	FeedURL        string    `yaml:"feed_url"`
	ChannelID      ChannelID `yaml:"channel_id"`
	UpdateInterval *int      `yaml:"update_interval"`
}

type ConfigFile struct {
	DBPath string       `yaml:"db_path"`
	Feeds  []FeedConfig `yaml:"feeds"`
}

func Load(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading configuration file at %q", path)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "error parsing configuration file")
	}

	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return &config, nil
}

func (c *ConfigFile) validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}

	for i, feed := range c.Feeds {
		if feed.FeedURL == "" {
			return errors.Errorf("feeds[%d]: feed_url is required", i)
		}
		if !helpers.IsValidHttpUrl(feed.FeedURL) {
			return errors.Errorf("feeds[%d]: feed_url %q is not a valid http url", i, feed.FeedURL)
		}
		if feed.ChannelID == "" {
			return errors.Errorf("feeds[%d]: channel_id is required", i)
		}
		if feed.UpdateInterval != nil && *feed.UpdateInterval <= 0 {
			return errors.Errorf("feeds[%d]: update_interval must be a positive number of minutes", i)
		}
	}

	return nil
}

// FeedURLSet returns the configured feed urls as a set, for reconciliation
// against the store's registered feeds.
func (c *ConfigFile) FeedURLSet() map[string]struct{} {
	urls := make(map[string]struct{}, len(c.Feeds))
	for _, feed := range c.Feeds {
		urls[feed.FeedURL] = struct{}{}
	}
	return urls
}

// ResolveToken returns the bot token from the command line flag first, the
// environment second.
func ResolveToken(flagToken string, settings *Settings) (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	if settings.BotToken != "" {
		return settings.BotToken, nil
	}
	return "", errors.New("bot token was not provided")
}
