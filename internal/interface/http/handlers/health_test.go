package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("1.0.0").Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "No health checks registered", status.Message)
	assert.Equal(t, "1.0.0", status.Version)
}

func TestCompositeHealthChecker_AllPass(t *testing.T) {
	hc := NewCompositeHealthChecker("1.0.0")
	hc.AddCheck("database", NewPingCheck(pingFunc(func(context.Context) error { return nil })))
	hc.AddCheck("redis", func(context.Context) error { return nil })

	status := hc.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.Equal(t, "All checks passed", status.Message)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "OK", status.Checks["database"].Message)
}

func TestCompositeHealthChecker_FailuresSorted(t *testing.T) {
	hc := NewCompositeHealthChecker("1.0.0")
	hc.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	hc.AddCheck("database", NewPingCheck(pingFunc(func(context.Context) error { return errors.New("no route") })))
	hc.AddCheck("disk", func(context.Context) error { return nil })

	status := hc.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: database, redis", status.Message)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	assert.True(t, status.Checks["disk"].Healthy)
}

func TestCompositeHealthChecker_CheckTimeout(t *testing.T) {
	hc := NewCompositeHealthChecker("1.0.0")
	hc.SetTimeout(20 * time.Millisecond)
	hc.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := hc.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}
