package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

func testOptions() ConnectOptions {
	return ConnectOptions{
		ConnectTimeout: time.Second,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    100 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		opts func(ConnectOptions) ConnectOptions
	}{
		{name: "addr", opts: func(o ConnectOptions) ConnectOptions { o.Addr = mr.Addr(); return o }},
		{name: "url", opts: func(o ConnectOptions) ConnectOptions { o.URL = "redis://" + mr.Addr() + "/0"; return o }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(context.Background(), tt.opts(testOptions()), logger.NewNop())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer client.Close()
			if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
				t.Errorf("SET failed: %v", err)
			}
		})
	}
}

func TestNewGivesUp(t *testing.T) {
	opts := testOptions()
	opts.Addr = "127.0.0.1:1"
	opts.ConnectTimeout = 200 * time.Millisecond

	start := time.Now()
	if _, err := New(context.Background(), opts, logger.NewNop()); err == nil {
		t.Fatal("New() should fail against a closed port")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("New() took %v, want it bounded by ConnectTimeout", elapsed)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConnectOptions)
	}{
		{name: "no address", mutate: func(o *ConnectOptions) { o.Addr = "" }},
		{name: "zero connect timeout", mutate: func(o *ConnectOptions) { o.ConnectTimeout = 0 }},
		{name: "zero retry interval", mutate: func(o *ConnectOptions) { o.RetryInterval = 0 }},
		{name: "zero max wait", mutate: func(o *ConnectOptions) { o.MaxWait = 0 }},
		{name: "zero ping timeout", mutate: func(o *ConnectOptions) { o.PingTimeout = 0 }},
		{name: "negative warn threshold", mutate: func(o *ConnectOptions) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.Addr = "localhost:6379"
			tt.mutate(&opts)
			if err := opts.validate(); err == nil {
				t.Error("validate() should fail")
			}
		})
	}
}
