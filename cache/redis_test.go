package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/logging"
)

func TestRedisCache_Get_Hit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, time.Hour, "test:")
	mock.ExpectGet("test:mykey").SetVal("myvalue")

	val, ok := cache.Get("mykey")
	if !ok || val != "myvalue" {
		t.Errorf("Expected 'myvalue', got %q (ok=%v)", val, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Get_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, time.Hour, "test:")
	mock.ExpectGet("test:mykey").RedisNil()

	if val, ok := cache.Get("mykey"); ok || val != "" {
		t.Errorf("Expected miss, got %q (ok=%v)", val, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Get_ErrorIsLoggedMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	core, logs := observer.New(zap.WarnLevel)
	cache := NewRedisCacheFromClient(db, time.Hour, "test:",
		WithRedisLogger(logging.New(zap.New(core))))
	mock.ExpectGet("test:mykey").SetErr(errors.New("connection refused"))

	if _, ok := cache.Get("mykey"); ok {
		t.Error("Expected read error to be reported as a miss")
	}
	if logs.FilterMessage("redis cache read failed").Len() != 1 {
		t.Errorf("Expected one warning, got %v", logs.All())
	}
}

func TestRedisCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, time.Hour, "test:")
	mock.ExpectSet("test:mykey", "myvalue", time.Hour).SetVal("OK")

	if err := cache.Set("mykey", "myvalue"); err != nil {
		t.Errorf("Set failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Set_NoTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, 0, "test:")
	mock.ExpectSet("test:mykey", "myvalue", 0).SetVal("OK")

	if err := cache.Set("mykey", "myvalue"); err != nil {
		t.Errorf("Set failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Set_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, 0, "test:")
	mock.ExpectSet("test:mykey", "myvalue", 0).SetErr(errors.New("READONLY"))

	err := cache.Set("mykey", "myvalue")
	var cacheErr *gomtl.CacheError
	if !errors.As(err, &cacheErr) {
		t.Errorf("Expected CacheError, got %v", err)
	}
	if gomtl.Kind(err) != gomtl.KindCache {
		t.Errorf("Expected cache kind, got %v", gomtl.Kind(err))
	}
}

func TestRedisCache_DefaultPrefix(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, 0, "")
	mock.ExpectGet("gomtl:k").SetVal("v")

	if _, ok := cache.Get("k"); !ok {
		t.Error("Expected default prefix to be applied")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, 0, "test:")
	mock.ExpectDel("test:k").SetVal(1)

	if err := cache.Delete("k"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Entries(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, 0, "test:")
	mock.ExpectScan(0, "test:*", scanBatch).SetVal([]string{"test:a", "test:b"}, 7)
	mock.ExpectGet("test:a").SetVal("1")
	mock.ExpectGet("test:b").RedisNil()
	mock.ExpectScan(7, "test:*", scanBatch).SetVal([]string{"test:c"}, 0)
	mock.ExpectGet("test:c").SetVal("3")

	entries, err := cache.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 || entries["a"] != "1" || entries["c"] != "3" {
		t.Errorf("Unexpected entries %v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisCache_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	cache := NewRedisCacheFromClient(db, 0, "test:")
	mock.ExpectPing().SetVal("PONG")

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), RedisConfig{URL: "not a url"})
	if gomtl.Kind(err) != gomtl.KindConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
