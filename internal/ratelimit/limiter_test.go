package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/ratelimit"
)

func TestBeginAllowsRequestsWithinWindow(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{
		MaxActive: 4, WindowRequests: 3, Window: time.Minute, WriterBudget: time.Minute,
	})
	now := time.Now()

	for i := 0; i < 3; i++ {
		ticket, err := l.Begin("client-1", now)
		require.NoError(t, err)
		ticket.End(0)
	}
}

func TestBeginBlocksAfterWindowLimit(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{
		MaxActive: 4, WindowRequests: 2, Window: time.Minute, WriterBudget: time.Minute,
	})
	now := time.Now()

	for i := 0; i < 2; i++ {
		ticket, err := l.Begin("client-1", now)
		require.NoError(t, err)
		ticket.End(0)
	}

	_, err := l.Begin("client-1", now)
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeRateLimited, appErr.Code)
}

func TestBeginResetsAfterWindowElapses(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{
		MaxActive: 4, WindowRequests: 1, Window: time.Minute, WriterBudget: time.Minute,
	})
	now := time.Now()

	ticket, err := l.Begin("client-1", now)
	require.NoError(t, err)
	ticket.End(0)

	_, err = l.Begin("client-1", now)
	require.Error(t, err)

	later := now.Add(2 * time.Minute)
	ticket, err = l.Begin("client-1", later)
	require.NoError(t, err)
	ticket.End(0)
}

func TestBeginBlocksOnConcurrentActiveLimit(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{
		MaxActive: 1, WindowRequests: 100, Window: time.Minute, WriterBudget: time.Minute,
	})
	now := time.Now()

	ticket, err := l.Begin("client-1", now)
	require.NoError(t, err)

	_, err = l.Begin("client-1", now)
	require.Error(t, err)

	ticket.End(0)

	_, err = l.Begin("client-1", now)
	require.NoError(t, err)
}

func TestBeginBlocksOnWriterTimeBudget(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{
		MaxActive: 4, WindowRequests: 100, Window: time.Minute, WriterBudget: 5 * time.Second,
	})
	now := time.Now()

	ticket, err := l.Begin("client-1", now)
	require.NoError(t, err)
	ticket.End(10 * time.Second)

	_, err = l.Begin("client-1", now)
	require.Error(t, err)
}

func TestBeginIsolatesClients(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{
		MaxActive: 4, WindowRequests: 1, Window: time.Minute, WriterBudget: time.Minute,
	})
	now := time.Now()

	ticket, err := l.Begin("client-1", now)
	require.NoError(t, err)
	ticket.End(0)

	_, err = l.Begin("client-1", now)
	require.Error(t, err)

	ticket, err = l.Begin("client-2", now)
	require.NoError(t, err)
	ticket.End(0)
}

func TestTicketEndIsIdempotent(t *testing.T) {
	l := ratelimit.New(ratelimit.DefaultLimits())
	now := time.Now()

	ticket, err := l.Begin("client-1", now)
	require.NoError(t, err)
	ticket.End(0)
	ticket.End(0) // must not double-release the active slot
}
