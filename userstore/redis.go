// Package userstore provides a Redis-backed user repository.
//
// Accounts are stored as JSON records with secondary indexes for email
// and one-time-password lookup. Deployments with an existing user
// database implement [authgate.UserRepository] against it instead.
package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate"
)

// ErrRedisUnavailable wraps storage-infrastructure failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store implements [authgate.UserRepository] on Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a user Store. prefix namespaces all keys.
func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ag"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) userKey(id string) string {
	return s.prefix + "usr:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + "uem:" + email
}

func (s *Store) otpKey(otp string) string {
	return s.prefix + "uotp:" + otp
}

// Get resolves a user by ID, email, or OTP, in that precedence. Returns
// [authgate.ErrUserNotFound] when no record matches.
func (s *Store) Get(ctx context.Context, filter authgate.UserFilter) (*authgate.User, error) {
	id := filter.ID
	var err error

	switch {
	case id != "":
	case filter.Email != "":
		id, err = s.lookupIndex(ctx, s.emailKey(filter.Email))
	case filter.OTP != "":
		id, err = s.lookupIndex(ctx, s.otpKey(filter.OTP))
	default:
		return nil, authgate.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var user authgate.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}

	// All set filter fields must match, not just the one used for lookup.
	if filter.Email != "" && user.Email != filter.Email {
		return nil, authgate.ErrUserNotFound
	}
	if filter.OTP != "" && user.OTP != filter.OTP {
		return nil, authgate.ErrUserNotFound
	}

	return &user, nil
}

// Create stores a new user and its indexes. Fails when the ID or email
// is already taken.
func (s *Store) Create(ctx context.Context, user *authgate.User) error {
	if user.ID == "" || user.Email == "" {
		return errors.New("user id and email are required")
	}

	taken, err := s.redis.Exists(ctx, s.userKey(user.ID), s.emailKey(user.Email)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if taken > 0 {
		return errors.New("user already exists")
	}

	return s.write(ctx, user, nil)
}

// Update rewrites a user record, moving the email/OTP indexes when those
// fields changed.
func (s *Store) Update(ctx context.Context, user *authgate.User) error {
	current, err := s.Get(ctx, authgate.UserFilter{ID: user.ID})
	if err != nil {
		return err
	}
	return s.write(ctx, user, current)
}

// Delete removes a user and its indexes.
func (s *Store) Delete(ctx context.Context, user *authgate.User) error {
	current, err := s.Get(ctx, authgate.UserFilter{ID: user.ID})
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.userKey(current.ID))
		pipe.Del(ctx, s.emailKey(current.Email))
		if current.OTP != "" {
			pipe.Del(ctx, s.otpKey(current.OTP))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) lookupIndex(ctx context.Context, key string) (string, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", authgate.ErrUserNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return id, nil
}

func (s *Store) write(ctx context.Context, user, previous *authgate.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.userKey(user.ID), data, 0)
		pipe.Set(ctx, s.emailKey(user.Email), user.ID, 0)
		if user.OTP != "" {
			pipe.Set(ctx, s.otpKey(user.OTP), user.ID, 0)
		}
		if previous != nil {
			if previous.Email != user.Email {
				pipe.Del(ctx, s.emailKey(previous.Email))
			}
			if previous.OTP != "" && previous.OTP != user.OTP {
				pipe.Del(ctx, s.otpKey(previous.OTP))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
