package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/store/memory"
)

var testNow = time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLogger() logger.Logger {
	return logger.New("error", false)
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func addTarget(t *testing.T, s *memory.Store, tgt domain.Target) int64 {
	t.Helper()
	if tgt.OwnerID == "" {
		tgt.OwnerID = "alice"
	}
	if err := s.UpsertTarget(context.Background(), &tgt); err != nil {
		t.Fatalf("UpsertTarget() error = %v", err)
	}
	return tgt.ID
}

func ptrTime(t time.Time) *time.Time { return &t }
