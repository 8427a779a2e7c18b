// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store persists completed session statistics in redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/session"
)

// DefaultHistoryLimit is how many sessions are kept, newest first.
const DefaultHistoryLimit = 100

const defaultKey = "posture:sessions"

// ErrNotFound is returned by Delete for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Options configures a SessionStore.
type Options struct {
	Key   string // redis list key
	Limit int
}

// SessionStore keeps session statistics as JSON in a capped redis list.
type SessionStore struct {
	rdb   redis.UniversalClient
	key   string
	limit int
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, opts Options) *SessionStore {
	if opts.Key == "" {
		opts.Key = defaultKey
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultHistoryLimit
	}
	return &SessionStore{rdb: rdb, key: opts.Key, limit: opts.Limit}
}

// Save prepends st and trims the list to the history limit.
func (s *SessionStore) Save(ctx context.Context, st session.Statistics) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, b)
		pipe.LTrim(ctx, s.key, 0, int64(s.limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", st.ID, err)
	}
	return nil
}

// List returns stored sessions, newest first. Entries that fail to decode are
// skipped.
func (s *SessionStore) List(ctx context.Context) ([]session.Statistics, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]session.Statistics, 0, len(raw))
	for _, r := range raw {
		var st session.Statistics
		if err := json.Unmarshal([]byte(r), &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// Delete removes the session with the given ID.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	raw, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	for _, r := range raw {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal([]byte(r), &head) != nil || head.ID != id {
			continue
		}
		if err := s.rdb.LRem(ctx, s.key, 1, r).Err(); err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
		return nil
	}
	return ErrNotFound
}

// Clear drops the whole history.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// Summaries projects the stored sessions for listings.
func (s *SessionStore) Summaries(ctx context.Context) ([]session.Summary, error) {
	sts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]session.Summary, len(sts))
	for i, st := range sts {
		out[i] = st.Summarize()
	}
	return out, nil
}

// History aggregates the stored sessions relative to now.
func (s *SessionStore) History(ctx context.Context, now time.Time) (session.History, error) {
	sums, err := s.Summaries(ctx)
	if err != nil {
		return session.History{}, err
	}
	return session.Summarize(sums, now), nil
}

// AsyncSink saves statistics in the background so that ending a session never
// waits on redis.
type AsyncSink struct {
	store   *SessionStore
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewAsyncSink returns a sink that gives each save timeout to complete.
func NewAsyncSink(store *SessionStore, timeout time.Duration, log *zap.Logger) *AsyncSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AsyncSink{store: store, timeout: timeout, log: log.Named("store")}
}

// Store schedules the save and returns immediately.
func (a *AsyncSink) Store(st session.Statistics) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.store.Save(ctx, st); err != nil {
			a.log.Error("session not persisted", zap.String("session", st.ID), zap.Error(err))
			return
		}
		a.log.Debug("session persisted", zap.String("session", st.ID))
	}()
	return nil
}

// Wait blocks until every scheduled save finished.
func (a *AsyncSink) Wait() {
	a.wg.Wait()
}
