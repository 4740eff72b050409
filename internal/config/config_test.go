package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestJWTKeyBytes_PlainSecret(t *testing.T) {
	cfg := &Config{JWTSecret: "0123456789abcdef0123456789abcdef"}
	key, err := cfg.JWTKeyBytes()
	if err != nil {
		t.Fatalf("jwt key: %v", err)
	}
	if !bytes.Equal(key, []byte("0123456789abcdef0123456789abcdef")) {
		t.Fatalf("unexpected key bytes")
	}
}

func TestJWTKeyBytes_Base64Prefix(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	cfg := &Config{JWTSecret: "base64:" + base64.StdEncoding.EncodeToString(raw)}
	key, err := cfg.JWTKeyBytes()
	if err != nil {
		t.Fatalf("jwt key: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Fatalf("expected decoded key bytes")
	}
}

func TestJWTKeyBytes_RejectsShortKey(t *testing.T) {
	cfg := &Config{JWTSecret: "too-short"}
	if _, err := cfg.JWTKeyBytes(); !errors.Is(err, ErrWeakJWTKey) {
		t.Fatalf("expected ErrWeakJWTKey, got %v", err)
	}

	short := &Config{JWTSecret: "base64:" + base64.StdEncoding.EncodeToString(make([]byte, 16))}
	if _, err := short.JWTKeyBytes(); !errors.Is(err, ErrWeakJWTKey) {
		t.Fatalf("expected ErrWeakJWTKey for short base64 key, got %v", err)
	}
}

func TestJWTKeyBytes_BadBase64(t *testing.T) {
	cfg := &Config{JWTSecret: "base64:!!!not-base64!!!"}
	if _, err := cfg.JWTKeyBytes(); err == nil {
		t.Fatalf("expected decode error")
	}
}
