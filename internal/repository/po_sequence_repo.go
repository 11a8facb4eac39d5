package repository

import (
	"context"
	"fmt"
	"time"

	"p2p/internal/model"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// POSequence hands out the next number of a per-day counter. Numbers are unique per day.
type POSequence interface {
	Next(ctx context.Context, day string) (int64, error)
}

type dbPOSequence struct {
	db *gorm.DB
}

// NewDBPOSequence keeps the counter in the po_sequences table. The increment runs in the
// caller's transaction, so a rolled-back approval gives its number back.
func NewDBPOSequence(db *gorm.DB) POSequence {
	return &dbPOSequence{db: db}
}

func (s *dbPOSequence) Next(ctx context.Context, day string) (int64, error) {
	var value int64
	err := GetDB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		seed := model.POSequence{Day: day, LastValue: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("seed sequence row: %w", err)
		}
		res := tx.Model(&model.POSequence{}).
			Where("day = ?", day).
			Update("last_value", gorm.Expr("last_value + 1"))
		if res.Error != nil {
			return fmt.Errorf("increment sequence: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("increment sequence: %w", ErrStaleState)
		}
		var row model.POSequence
		if err := tx.First(&row, "day = ?", day).Error; err != nil {
			return fmt.Errorf("read sequence: %w", err)
		}
		value = row.LastValue
		return nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

const redisSequenceTTL = 48 * time.Hour

type redisPOSequence struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPOSequence keeps the counter in Redis under prefix+day. INCR is atomic across
// instances; numbers taken by rolled-back approvals are skipped, never reused.
func NewRedisPOSequence(client redis.UniversalClient, prefix string) POSequence {
	if prefix == "" {
		prefix = "p2p:po_seq:"
	}
	return &redisPOSequence{client: client, prefix: prefix}
}

func (s *redisPOSequence) Next(ctx context.Context, day string) (int64, error) {
	key := s.prefix + day
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, redisSequenceTTL).Err(); err != nil {
			return 0, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return n, nil
}
