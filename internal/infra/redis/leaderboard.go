package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"school-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ResultSource lists every result of a quiz; used to rebuild a missing leaderboard.
type ResultSource interface {
	ListResults(ctx context.Context, quizID string) ([]domain.Result, error)
}

// Leaderboard keeps each quiz's ranking in a sorted set:
//
//	ZADD quiz:{quizID}:leaderboard {score} {member}
//	HSET quiz:{quizID}:leaderboard:members {resultID} {member}
//
// member sorts earlier completions higher under ZREVRANK, so ties on score
// resolve to the earlier finisher.
type Leaderboard struct {
	client *redis.Client
	source ResultSource
	ttl    time.Duration
	sf     singleflight.Group
}

func NewLeaderboard(client *redis.Client, source ResultSource, ttl time.Duration) *Leaderboard {
	return &Leaderboard{client: client, source: source, ttl: ttl}
}

// addScript writes a result only while both board keys exist, so a board that
// expired between the check and the write is never recreated holding one entry.
//
//	KEYS: board, members
//	ARGV: score, member, resultID, ttl in ms
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('EXISTS', KEYS[2]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[3], ARGV[2])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// Add records a new result. A quiz without a cached board is left alone; the
// next Rank rebuilds it from the source, which already includes the result.
// When the write fails the board is dropped for the same rebuild.
func (l *Leaderboard) Add(ctx context.Context, result domain.Result) error {
	keys := []string{l.key(result.QuizID), l.membersKey(result.QuizID)}
	err := addScript.Run(ctx, l.client, keys,
		result.Score, member(result), result.ID, l.ttl.Milliseconds()).Err()
	if err == nil {
		return nil
	}
	if delErr := l.client.Del(ctx, keys...).Err(); delErr != nil {
		return fmt.Errorf("leaderboard add: %w (drop board: %v)", err, delErr)
	}
	return fmt.Errorf("leaderboard add: %w", err)
}

func (l *Leaderboard) Rank(ctx context.Context, quizID, resultID string) (int, bool, error) {
	rank, ok, err := l.rank(ctx, quizID, resultID)
	if errors.Is(err, errBoardMissing) {
		if err := l.rebuild(ctx, quizID); err != nil {
			return 0, false, err
		}
		rank, ok, err = l.rank(ctx, quizID, resultID)
	}
	if errors.Is(err, errBoardMissing) {
		size, err := l.client.ZCard(ctx, l.key(quizID)).Result()
		if err != nil {
			return 0, false, fmt.Errorf("leaderboard size: %w", err)
		}
		if size == 0 {
			return 0, false, nil
		}
		return 0, false, domain.ErrResultNotFound
	}
	return rank, ok, err
}

var errBoardMissing = errors.New("result missing from leaderboard")

func (l *Leaderboard) rank(ctx context.Context, quizID, resultID string) (int, bool, error) {
	member, err := l.client.HGet(ctx, l.membersKey(quizID), resultID).Result()
	if isNil(err) {
		return 0, false, errBoardMissing
	}
	if err != nil {
		return 0, false, fmt.Errorf("leaderboard member: %w", err)
	}
	rank, err := l.client.ZRevRank(ctx, l.key(quizID), member).Result()
	if isNil(err) {
		return 0, false, errBoardMissing
	}
	if err != nil {
		return 0, false, fmt.Errorf("leaderboard rank: %w", err)
	}
	return int(rank) + 1, true, nil
}

func (l *Leaderboard) rebuild(ctx context.Context, quizID string) error {
	_, err, _ := l.sf.Do(quizID, func() (interface{}, error) {
		results, err := l.source.ListResults(ctx, quizID)
		if err != nil {
			return nil, err
		}
		_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, l.key(quizID), l.membersKey(quizID))
			for _, r := range results {
				l.write(ctx, pipe, r)
			}
			if len(results) > 0 {
				l.expire(ctx, pipe, quizID)
			}
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("leaderboard rebuild: %w", err)
	}
	return nil
}

func (l *Leaderboard) write(ctx context.Context, pipe redis.Pipeliner, r domain.Result) {
	m := member(r)
	pipe.ZAdd(ctx, l.key(r.QuizID), redis.Z{Score: float64(r.Score), Member: m})
	pipe.HSet(ctx, l.membersKey(r.QuizID), r.ID, m)
}

func (l *Leaderboard) expire(ctx context.Context, pipe redis.Pipeliner, quizID string) {
	if l.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, l.key(quizID), l.ttl)
	pipe.Expire(ctx, l.membersKey(quizID), l.ttl)
}

func (l *Leaderboard) key(quizID string) string {
	return "quiz:" + quizID + ":leaderboard"
}

func (l *Leaderboard) membersKey(quizID string) string {
	return "quiz:" + quizID + ":leaderboard:members"
}

// member inverts the completion time so lexicographically larger means earlier.
func member(r domain.Result) string {
	return fmt.Sprintf("%019d:%s", math.MaxInt64-r.CompletedAt.UnixNano(), r.ID)
}
