package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// AddToCart adds a product to the buyer's persistent cart
func (c *Client) AddToCart(ctx context.Context, userID, productID int64) error {
	return c.rdb.SAdd(ctx, cartKey(userID), productID).Err()
}

// GetCart returns the product IDs currently in the buyer's cart
func (c *Client) GetCart(ctx context.Context, userID int64) ([]int64, error) {
	members, err := c.rdb.SMembers(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveFromCart removes the given products from the buyer's cart
func (c *Client) RemoveFromCart(ctx context.Context, userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(productIDs))
	for i, id := range productIDs {
		members[i] = id
	}
	return c.rdb.SRem(ctx, cartKey(userID), members...).Err()
}

// ClearCart empties the buyer's cart
func (c *Client) ClearCart(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cartKey(userID)).Err()
}

// AcquireNotificationLock takes a short-TTL lock for one payment
// notification. It narrows the window in which a redirect callback and a
// webhook for the same payment race each other; the conditional status
// update in the store is the authoritative guard.
func (c *Client) AcquireNotificationLock(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("notification:%s", reference), "1", ttl).Result()
}

// ReleaseNotificationLock releases a notification lock
func (c *Client) ReleaseNotificationLock(ctx context.Context, reference string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("notification:%s", reference)).Err()
}
