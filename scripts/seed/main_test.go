package main

import (
	"math/rand/v2"
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSubscribers(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 2))

	subs := fakeSubscribers(rng, 50, now)

	require.Len(t, subs, 50)
	seen := make(map[string]bool)
	var active int
	for _, s := range subs {
		_, err := mail.ParseAddress(s.Email)
		assert.NoError(t, err, s.Email)
		assert.False(t, seen[s.Email], "duplicate email %s", s.Email)
		seen[s.Email] = true
		for _, ts := range []time.Time{s.SubscribedAt, s.CreatedAt, s.UpdatedAt} {
			assert.False(t, ts.After(now))
			assert.False(t, ts.Before(now.AddDate(-1, 0, 0)))
		}
		if s.IsActive {
			active++
		}
	}
	assert.Greater(t, active, 0)
	assert.Less(t, active, 50)
}
