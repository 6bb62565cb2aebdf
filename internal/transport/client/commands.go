package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Commands provides command-line operations for the client
type Commands struct {
	client *Client
}

// NewCommands creates a new Commands instance
func NewCommands(client *Client) *Commands {
	return &Commands{
		client: client,
	}
}

// Shorten shortens longURL and prints the short URL
func (c *Commands) Shorten(ctx context.Context, longURL string) error {
	shortURL, err := c.client.Shorten(ctx, longURL)
	if err != nil {
		return err
	}

	fmt.Printf("Short URL: %s\n", shortURL)
	return nil
}

// Resolve prints the long URL behind code
func (c *Commands) Resolve(ctx context.Context, code string) error {
	longURL, err := c.client.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Printf("Short code '%s' not found\n", code)
			return nil
		}
		return err
	}

	fmt.Printf("%s -> %s\n", code, longURL)
	return nil
}
