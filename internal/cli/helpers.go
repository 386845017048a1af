package cli

import (
	"fmt"

	"github.com/ab-optimizer/ab-optimizer/internal/config"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/transport"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func clientConfig() config.Config {
	return config.Config{
		WebsiteID: websiteID,
		APIURL:    apiURL,
		Token:     apiToken,
		DBPath:    dbPath,
	}.FromEnv()
}

func newTransport(cache *store.SQLiteStore) *transport.Client {
	c := transport.New(apiURL)
	c.Token = apiToken
	if cache != nil {
		c.Cache = cache
	}
	return c
}
