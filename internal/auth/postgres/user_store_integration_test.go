// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/auth/storetest"
)

func TestUserStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) auth.UserStore {
		_, err := testPool.Exec(context.Background(), `TRUNCATE users RESTART IDENTITY`)
		require.NoError(t, err)
		return postgres.NewUserStore(testPool)
	})
}

// uniqueEmail returns an address no other test uses.
func uniqueEmail(t *testing.T) string {
	t.Helper()
	email := "user-" + ulid.Make().String() + "@example.com"
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM users WHERE lower(email) = lower($1)`, email)
	})
	return email
}

func TestUserStore_AddAndFind(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewUserStore(testPool)
	email := uniqueEmail(t)

	created, err := store.AddUser(ctx, email, "digest")
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.False(t, created.HasSession())
	assert.False(t, created.HasPendingReset())

	byEmail, err := store.FindUserBy(ctx, auth.FieldEmail, email)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := store.FindUserBy(ctx, auth.FieldID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "digest", byID.HashedPassword)

	_, err = store.AddUser(ctx, email, "other")
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestUserStore_EmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewUserStore(testPool)
	email := uniqueEmail(t)

	_, err := store.AddUser(ctx, email, "digest")
	require.NoError(t, err)

	_, err = store.FindUserBy(ctx, auth.FieldEmail, "  "+email)
	require.NoError(t, err)
}

func TestUserStore_SessionAndResetColumns(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewUserStore(testPool)
	user, err := store.AddUser(ctx, uniqueEmail(t), "digest")
	require.NoError(t, err)

	sessionHash := "sess-" + ulid.Make().String()
	require.NoError(t, store.UpdateUser(ctx, user.ID, auth.UserUpdate{SessionHash: auth.SetTo(sessionHash)}))

	found, err := store.FindUserBy(ctx, auth.FieldSessionHash, sessionHash)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, store.UpdateUser(ctx, user.ID, auth.UserUpdate{SessionHash: auth.Cleared()}))
	_, err = store.FindUserBy(ctx, auth.FieldSessionHash, sessionHash)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	// Clearing an absent session still touches the row.
	require.NoError(t, store.UpdateUser(ctx, user.ID, auth.UserUpdate{SessionHash: auth.Cleared()}))

	err = store.UpdateUser(ctx, -1, auth.UserUpdate{SessionHash: auth.Cleared()})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserStore_GuardedRedeemSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewUserStore(testPool)
	user, err := store.AddUser(ctx, uniqueEmail(t), "old")
	require.NoError(t, err)

	resetHash := "reset-" + ulid.Make().String()
	require.NoError(t, store.UpdateUser(ctx, user.ID, auth.UserUpdate{ResetTokenHash: auth.SetTo(resetHash)}))

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			digest := "new-" + string(rune('a'+i))
			err := store.UpdateUser(ctx, user.ID, auth.UserUpdate{
				HashedPassword:   &digest,
				ResetTokenHash:   auth.Cleared(),
				IfResetTokenHash: &resetHash,
			})
			if err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, auth.ErrNotFound)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())

	after, err := store.FindUserBy(ctx, auth.FieldID, user.ID)
	require.NoError(t, err)
	assert.Nil(t, after.ResetTokenHash)
	assert.NotEqual(t, "old", after.HashedPassword)
}
