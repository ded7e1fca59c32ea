package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/feedinbox/feedinbox/conf"
	"github.com/feedinbox/feedinbox/feeds"
	"github.com/feedinbox/feedinbox/store"
)

func main() {
	// Load config
	conf.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the store and migrate to the latest schema
	st, err := store.Open(viper.GetString("DBPath"))
	if err != nil {
		log.Fatal("Error opening the database: ", err)
	}
	defer st.Close()
	err = st.Migrate()
	if err != nil {
		log.Fatal("Error migrating the database to the latest schema: ", err)
	}

	// Subscribe to the feeds listed in the config file
	// Adding a feed that exists already is a no-op, so this is safe on every start
	for _, seed := range conf.SeedFeeds() {
		err = st.AddFeed(seed.Url, seed.Title)
		if err != nil {
			log.Fatal("Error adding feed ", seed.Url, ": ", err)
		}
	}

	// Create the coordinator
	f := &feeds.Feeds{}
	err = f.Init(ctx, st)
	if err != nil {
		log.Fatal("Error initializing the feeds coordinator: ", err)
	}
	f.SetMetadataEnabled(viper.GetBool("FetchMetadata"))

	updateCh := make(chan feeds.RefreshResult, 1)
	f.SetUpdateChan(updateCh)

	// Refresh right away, then on the configured interval
	interval := time.Duration(viper.GetInt("RefreshInterval")) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	f.QueueRefresh()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			f.QueueRefresh()
		case res := <-updateCh:
			for _, fail := range res.Failures {
				log.Warn("Feed failed to refresh: ", fail.Error())
			}
			log.Infof("Inbox holds %d unread entries", len(res.Unread))
		case <-sig:
			log.Info("Shutting down")
			return
		}
	}
}
