// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package substrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

// redisSubstrate backs Substrate with a single logical *redis.Client,
// following the connect-by-URL shape of
// tanpawarit-eino_llm_poc/src/storage/redis.go but widened from
// session-blob KV to the full substrate surface.
type redisSubstrate struct {
	client *redis.Client
}

// NewRedis connects to the Redis instance at redisURL and verifies
// connectivity with a Ping before returning.
func NewRedis(ctx context.Context, redisURL string) (Substrate, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, cosimerr.Wrap(cosimerr.Unavailable, err, "connect to substrate")
	}
	return &redisSubstrate{client: client}, nil
}

// NewRedisFromClient wraps an already-constructed *redis.Client, used by
// tests that wire up miniredis directly.
func NewRedisFromClient(client *redis.Client) Substrate {
	return &redisSubstrate{client: client}
}

func wrapReadErr(err error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return cosimerr.New(cosimerr.NotFound, "key %q not found", key)
	}
	return cosimerr.Wrap(cosimerr.Unavailable, err, "substrate read %q", key)
}

func wrapWriteErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return cosimerr.Wrap(cosimerr.Unavailable, err, "substrate %s", op)
}

func (r *redisSubstrate) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", wrapReadErr(err, key)
	}
	return v, nil
}

func (r *redisSubstrate) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapWriteErr(r.client.Set(ctx, key, value, ttl).Err(), "set")
}

func (r *redisSubstrate) Del(ctx context.Context, key string) error {
	return wrapWriteErr(r.client.Del(ctx, key).Err(), "del")
}

func (r *redisSubstrate) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return wrapWriteErr(r.client.HSet(ctx, key, args...).Err(), "hset")
}

func (r *redisSubstrate) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", wrapReadErr(err, key)
	}
	return v, nil
}

func (r *redisSubstrate) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapReadErr(err, key)
	}
	return v, nil
}

func (r *redisSubstrate) HDel(ctx context.Context, key string, fields ...string) error {
	return wrapWriteErr(r.client.HDel(ctx, key, fields...).Err(), "hdel")
}

func (r *redisSubstrate) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapWriteErr(r.client.SAdd(ctx, key, args...).Err(), "sadd")
}

func (r *redisSubstrate) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapWriteErr(r.client.SRem(ctx, key, args...).Err(), "srem")
}

func (r *redisSubstrate) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrapReadErr(err, key)
	}
	return v, nil
}

func (r *redisSubstrate) SCard(ctx context.Context, key string) (int64, error) {
	v, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, wrapReadErr(err, key)
	}
	return v, nil
}

func (r *redisSubstrate) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	const incrScript = `
local v = redis.call("INCRBY", KEYS[1], ARGV[1])
if v == tonumber(ARGV[1]) and tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return v`
	res, err := r.client.Eval(ctx, incrScript, []string{key}, delta, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, wrapWriteErr(err, "incr")
	}
	n, _ := res.(int64)
	return n, nil
}

func (r *redisSubstrate) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrapWriteErr(r.client.Expire(ctx, key, ttl).Err(), "expire")
}

// SetNX issues a single SET NX with the expiry attached, rather than a
// race-prone SETNX+EXPIRE pair.
func (r *redisSubstrate) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapWriteErr(err, "setnx")
	}
	return ok, nil
}

// compareAndDeleteScript mirrors RedisLock.release in
// original_source/CoSim/backend/src/co_sim/core/redis.py: only delete the
// lease if its value still matches the token this holder set, so an
// expired-then-reacquired lease is never deleted out from under its new
// holder.
const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (r *redisSubstrate) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	res, err := r.client.Eval(ctx, compareAndDeleteScript, []string{key}, value).Result()
	if err != nil {
		return false, wrapWriteErr(err, "compare-and-delete")
	}
	n, _ := res.(int64)
	return n > 0, nil
}

func (r *redisSubstrate) Publish(ctx context.Context, channel, payload string) error {
	return wrapWriteErr(r.client.Publish(ctx, channel, payload).Err(), "publish")
}

func (r *redisSubstrate) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, cosimerr.Wrap(cosimerr.Unavailable, err, "subscribe %q", channel)
	}
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &redisSubscription{ps: ps, ch: out}, nil
}

func (r *redisSubstrate) RegisterRoomMember(ctx context.Context, roomKey, setMember, hashKey string, fields map[string]string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, roomKey, setMember)
	if len(fields) > 0 {
		args := make([]any, 0, len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
		pipe.HSet(ctx, hashKey, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapWriteErr(err, "register-room-member")
	}
	return nil
}

func (r *redisSubstrate) Close() error { return r.client.Close() }

type redisSubscription struct {
	ps *redis.PubSub
	ch chan string
}

func (s *redisSubscription) Messages() <-chan string { return s.ch }
func (s *redisSubscription) Close() error            { return s.ps.Close() }
