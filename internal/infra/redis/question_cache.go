package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"matrix-quiz-bot/internal/domain"
	"matrix-quiz-bot/internal/infra/memory"
)

// QuestionCache caches question sets in Redis as one JSON document per quiz
// (SET quiz:{quizID}:questions) and falls back to the source on cache miss.
// Sharing the cache across bot instances keeps quiz content identical for
// every room no matter which instance serves it.
type QuestionCache struct {
	client *redis.Client
	source memory.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, source memory.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) FetchQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	key := c.key(quizID)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(cached, &questions); err == nil {
			return questions, nil
		}
		// corrupt entry, fall through and refill
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(cached, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := c.source.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) key(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
