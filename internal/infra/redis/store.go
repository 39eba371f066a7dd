package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
)

// Store keeps the quiz tables in Redis.
//
//	HSET quiz:students     {studentID} {json}   (HSETNX on create)
//	HSET quiz:submissions  {studentID} {json}   (HSETNX on create, never rewritten)
//	SADD quiz:released     {studentID}
//	HSET quiz:completions  {studentID} 1|0
//	SET  quiz:progress:{studentID} {json} EX ttl
//
// Release state lives in its own set so submission rows stay write-once.
type Store struct {
	client      *redis.Client
	progressTTL time.Duration
}

var _ app.Store = (*Store)(nil)

const (
	studentsKey    = "quiz:students"
	submissionsKey = "quiz:submissions"
	releasedKey    = "quiz:released"
	completionsKey = "quiz:completions"
)

func progressKey(studentID string) string {
	return "quiz:progress:" + studentID
}

// NewStore builds a Store. Progress checkpoints expire after progressTTL
// (zero keeps them forever).
func NewStore(client *redis.Client, progressTTL time.Duration) *Store {
	return &Store{client: client, progressTTL: progressTTL}
}

func (s *Store) FindStudent(ctx context.Context, studentID string) (domain.Student, bool, error) {
	var st domain.Student
	ok, err := s.hgetJSON(ctx, studentsKey, studentID, &st)
	return st, ok, err
}

func (s *Store) CreateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return domain.Student{}, err
	}
	created, err := s.client.HSetNX(ctx, studentsKey, st.StudentID, data).Result()
	if err != nil {
		return domain.Student{}, err
	}
	if created {
		return st, nil
	}
	existing, _, err := s.FindStudent(ctx, st.StudentID)
	return existing, err
}

func (s *Store) ListStudents(ctx context.Context) ([]domain.Student, error) {
	raw, err := s.client.HGetAll(ctx, studentsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Student, 0, len(raw))
	for id, v := range raw {
		var st domain.Student
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return nil, fmt.Errorf("decode student %s: %w", id, err)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *Store) GetProgress(ctx context.Context, studentID string) (domain.QuizProgress, bool, error) {
	data, err := s.client.Get(ctx, progressKey(studentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizProgress{}, false, nil
	}
	if err != nil {
		return domain.QuizProgress{}, false, err
	}
	var p domain.QuizProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.QuizProgress{}, false, fmt.Errorf("decode progress %s: %w", studentID, err)
	}
	return p, true, nil
}

func (s *Store) PutProgress(ctx context.Context, p domain.QuizProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, progressKey(p.StudentID), data, s.progressTTL).Err()
}

func (s *Store) DeleteProgress(ctx context.Context, studentID string) error {
	return s.client.Del(ctx, progressKey(studentID)).Err()
}

func (s *Store) GetSubmission(ctx context.Context, studentID string) (domain.Submission, bool, error) {
	var sub domain.Submission
	ok, err := s.hgetJSON(ctx, submissionsKey, studentID, &sub)
	if err != nil || !ok {
		return domain.Submission{}, ok, err
	}
	sub.Released, err = s.client.SIsMember(ctx, releasedKey, studentID).Result()
	if err != nil {
		return domain.Submission{}, false, err
	}
	return sub, true, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	sub.Released = false
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, submissionsKey, sub.StudentID, data).Result()
	if err != nil {
		return err
	}
	if !created {
		return domain.ErrSubmissionExists
	}
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	raw, err := s.client.HGetAll(ctx, submissionsKey).Result()
	if err != nil {
		return nil, err
	}
	released, err := s.client.SMembersMap(ctx, releasedKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(raw))
	for id, v := range raw {
		var sub domain.Submission
		if err := json.Unmarshal([]byte(v), &sub); err != nil {
			return nil, fmt.Errorf("decode submission %s: %w", id, err)
		}
		_, sub.Released = released[id]
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) ReleaseAll(ctx context.Context) (int, error) {
	ids, err := s.client.HKeys(ctx, submissionsKey).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	added, err := s.client.SAdd(ctx, releasedKey, members...).Result()
	if err != nil {
		return 0, err
	}
	return int(added), nil
}

func (s *Store) GetCompletion(ctx context.Context, studentID string) (domain.CompletionStatus, bool, error) {
	v, err := s.client.HGet(ctx, completionsKey, studentID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.CompletionStatus{}, false, nil
	}
	if err != nil {
		return domain.CompletionStatus{}, false, err
	}
	return domain.CompletionStatus{StudentID: studentID, HasCompleted: v == "1"}, true, nil
}

func (s *Store) PutCompletion(ctx context.Context, c domain.CompletionStatus) error {
	v := "0"
	if c.HasCompleted {
		v = "1"
	}
	return s.client.HSet(ctx, completionsKey, c.StudentID, v).Err()
}

func (s *Store) hgetJSON(ctx context.Context, key, field string, dst interface{}) (bool, error) {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", key, field, err)
	}
	return true, nil
}
