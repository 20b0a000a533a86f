package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

// SeedUsers upserts users named "<prefix>1".."<prefix>n" with increasing
// creation times and returns them in that order.
func SeedUsers(ctx context.Context, d storage.Driver, prefix string, n int) ([]*network.User, error) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	users := make([]*network.User, 0, n)
	for i := 1; i <= n; i++ {
		u := &network.User{
			ID:          fmt.Sprintf("%s%d", prefix, i),
			Name:        fmt.Sprintf("%s %d", prefix, i),
			AccessToken: "token",
			TokenExpiry: base.Add(24 * 365 * time.Hour * 10),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := d.UpsertUser(ctx, u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
