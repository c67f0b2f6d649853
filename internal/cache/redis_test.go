package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
)

func TestRedisGetHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRedis(client)

	mock.ExpectGet("k").SetVal("v")

	val, ok, err := r.Get(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(val) != "v" {
		t.Fatalf("got val=%q ok=%v", val, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisGetMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRedis(client)

	mock.ExpectGet("nope").RedisNil()

	_, ok, err := r.Get(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected clean miss for redis.Nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisGetError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRedis(client)

	mock.ExpectGet("k").SetErr(goredis.ErrClosed)

	_, _, err := r.Get(context.Background(), "k")
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestRedisSetWritesWithTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRedis(client)

	mock.ExpectSet("k", []byte("v"), time.Minute).SetVal("OK")

	if err := r.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
