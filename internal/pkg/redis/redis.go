package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const listingPrefix = "listing/"

type Client struct {
	client redis.Client
}

func NewRedisClient(redisURL string, tlsEnabled bool) (Client, error) {
	redisClient := Client{}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return redisClient, err
	}
	if tlsEnabled {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	redisClient.client = *redis.NewClient(options)

	return redisClient, nil
}

// WriteListing stores the durable snapshot of a listing, keyed by
// transaction id. Written whenever the listing is created or updated so a
// crash can be inspected; the in-memory state machine does not read it back.
func (c *Client) WriteListing(transactionID, snapshotJSON string, ctx context.Context) error {
	d := c.client.Set(ctx, fmt.Sprintf("%s%s", listingPrefix, transactionID), snapshotJSON, 0)
	if err := d.Err(); err != nil {
		return err
	}
	return nil
}

func (c *Client) ReadListing(transactionID string, ctx context.Context) (string, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("%s%s", listingPrefix, transactionID)).Result()
	if err != nil {
		return "", err
	}

	return val, nil
}

// ListingIDs returns the transaction ids with a persisted snapshot.
func (c *Client) ListingIDs(ctx context.Context) ([]string, error) {
	keys := c.client.Keys(ctx, fmt.Sprintf("%s*", listingPrefix)).Val()
	var ids []string
	for _, k := range keys {
		ids = append(ids, k[len(listingPrefix):])
	}
	return ids, nil
}
