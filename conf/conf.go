package conf

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SeedFeed is a feed subscription listed in the config file, added to the
// store on startup
type SeedFeed struct {
	Url   string `mapstructure:"url"`
	Title string `mapstructure:"title"`
}

func LoadConfig() {
	log.Debug("Reading config file")

	// Defaults make the config file optional
	viper.SetDefault("DBPath", "./data/feedinbox.db")
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("RefreshInterval", 30)
	viper.SetDefault("FetchMetadata", false)

	viper.SetConfigName("feedinbox-config")
	viper.AddConfigPath("$HOME/.feedinbox")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./.feedinbox")
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Panicf("Fatal error config file: %s", err)
		}
		log.Debug("No config file found, using defaults")
	}

	setLoggerLevel()
}

// SeedFeeds returns the feed subscriptions listed in the config file
func SeedFeeds() []SeedFeed {
	seeds := []SeedFeed{}
	err := viper.UnmarshalKey("Feeds", &seeds)
	if err != nil {
		log.Error("Invalid Feeds list in config file: ", err)
		return nil
	}
	return seeds
}

func setLoggerLevel() {
	switch viper.GetString("LogLevel") {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "panic":
		log.SetLevel(log.PanicLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	}
}
