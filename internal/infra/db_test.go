package infra

import (
	"context"
	"testing"
)

func TestNewDBPoolValidatesConfig(t *testing.T) {
	if _, err := NewDBPool(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewDBPool(context.Background(), &Config{}); err == nil {
		t.Fatal("expected error for empty DATABASE_URL")
	}
	if _, err := NewDBPool(context.Background(), &Config{DatabaseURL: "://bad"}); err == nil {
		t.Fatal("expected parse error")
	}
}
