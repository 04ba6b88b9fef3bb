package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/id"
)

func TestKey(t *testing.T) {
	bid := id.NewBranchID()

	c := New(nil, time.Minute)
	if got, want := c.key(bid), DefaultPrefix+bid.String(); got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}

	c = New(nil, time.Minute, WithPrefix("shop:"))
	if got, want := c.key(bid), "shop:"+bid.String(); got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}

// TestRoundTrip needs a live server; set BILLBOOK_TEST_REDIS to its address.
func TestRoundTrip(t *testing.T) {
	addr := os.Getenv("BILLBOOK_TEST_REDIS")
	if addr == "" {
		t.Skip("BILLBOOK_TEST_REDIS not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := New(client, time.Minute, WithPrefix("billbook-test:"))
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	b := &branch.Branch{ID: id.NewBranchID(), Name: "Bandra", Code: "BOM", Active: true}

	if _, ok, err := c.Get(ctx, b.ID); err != nil || ok {
		t.Fatalf("Get before Set = %v, %v; want miss", ok, err)
	}
	if err := c.Set(ctx, b); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, b.ID)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v; want hit", ok, err)
	}
	if got.ID.String() != b.ID.String() || got.Code != "BOM" || !got.Active {
		t.Fatalf("Get = %+v, want %+v", got, b)
	}
	if err := c.Invalidate(ctx, b.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, b.ID); ok {
		t.Fatal("entry survived Invalidate")
	}
}
