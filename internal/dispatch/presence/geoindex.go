package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

const defaultKey = "ambulance:locs"

// RedisGeoIndex mirrors ambulance positions into a Redis GEO set so nearby
// lookups don't have to scan the in-memory fleet.
type RedisGeoIndex struct {
	client *redis.Client
	key    string
}

// NewRedisGeoIndex constructs the index. An empty key uses the default.
func NewRedisGeoIndex(client *redis.Client, key string) *RedisGeoIndex {
	if key == "" {
		key = defaultKey
	}
	return &RedisGeoIndex{client: client, key: key}
}

// Update upserts the driver's position.
func (g *RedisGeoIndex) Update(ctx context.Context, driverID string, p domain.GeoPoint) error {
	err := g.client.GeoAdd(ctx, g.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// Remove drops the driver from the index, e.g. when going offline.
func (g *RedisGeoIndex) Remove(ctx context.Context, driverID string) error {
	if err := g.client.ZRem(ctx, g.key, driverID).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Nearby returns up to limit driver ids within radiusKM of the point,
// closest first.
func (g *RedisGeoIndex) Nearby(ctx context.Context, p domain.GeoPoint, radiusKM float64, limit int) ([]string, error) {
	results, err := g.client.GeoSearchLocation(ctx, g.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.Name)
	}
	return ids, nil
}
