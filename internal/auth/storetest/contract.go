// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest holds the behaviour every auth.UserStore must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) auth.UserStore

// Run exercises store against the auth.UserStore contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("AddUser assigns ids and normalizes email", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		first, err := s.AddUser(ctx, "  First@Example.com ", "digest1")
		require.NoError(t, err)
		second, err := s.AddUser(ctx, "second@example.com", "digest2")
		require.NoError(t, err)

		assert.Equal(t, "first@example.com", first.Email)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Nil(t, first.SessionHash)
		assert.Nil(t, first.ResetTokenHash)
	})

	t.Run("AddUser rejects a duplicate email", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.AddUser(ctx, "dup@example.com", "digest")
		require.NoError(t, err)

		_, err = s.AddUser(ctx, "DUP@example.com", "digest")
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("FindUserBy every supported field", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		user, err := s.AddUser(ctx, "find@example.com", "digest")
		require.NoError(t, err)
		require.NoError(t, s.UpdateUser(ctx, user.ID, auth.UserUpdate{
			SessionHash:    auth.SetTo("session-digest"),
			ResetTokenHash: auth.SetTo("reset-digest"),
		}))

		lookups := []struct {
			field auth.UserField
			value any
		}{
			{auth.FieldID, user.ID},
			{auth.FieldEmail, "FIND@example.com"},
			{auth.FieldSessionHash, "session-digest"},
			{auth.FieldResetTokenHash, "reset-digest"},
		}
		for _, l := range lookups {
			found, err := s.FindUserBy(ctx, l.field, l.value)
			require.NoError(t, err, "lookup by %s", l.field)
			assert.Equal(t, user.ID, found.ID, "lookup by %s", l.field)
		}
	})

	t.Run("FindUserBy reports misses and bad fields", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.FindUserBy(ctx, auth.FieldEmail, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		_, err = s.FindUserBy(ctx, auth.UserField("hashed_password"), "x")
		assert.ErrorIs(t, err, auth.ErrInvalidField)

		_, err = s.FindUserBy(ctx, auth.FieldID, "not-an-int")
		assert.ErrorIs(t, err, auth.ErrInvalidField)

		_, err = s.FindUserBy(ctx, auth.FieldSessionHash, "")
		assert.ErrorIs(t, err, auth.ErrInvalidField)
	})

	t.Run("UpdateUser sets and clears nullable columns", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		user, err := s.AddUser(ctx, "update@example.com", "digest")
		require.NoError(t, err)

		require.NoError(t, s.UpdateUser(ctx, user.ID, auth.UserUpdate{SessionHash: auth.SetTo("s1")}))
		require.NoError(t, s.UpdateUser(ctx, user.ID, auth.UserUpdate{SessionHash: auth.SetTo("s2")}))

		_, err = s.FindUserBy(ctx, auth.FieldSessionHash, "s1")
		assert.ErrorIs(t, err, auth.ErrNotFound, "replaced session digest must stop matching")

		require.NoError(t, s.UpdateUser(ctx, user.ID, auth.UserUpdate{SessionHash: auth.Cleared()}))
		got, err := s.FindUserBy(ctx, auth.FieldID, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.SessionHash)
		assert.Equal(t, "digest", got.HashedPassword, "untouched fields keep their value")

		err = s.UpdateUser(ctx, user.ID+1000, auth.UserUpdate{SessionHash: auth.Cleared()})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("UpdateUser condition guards the reset token", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		user, err := s.AddUser(ctx, "guard@example.com", "old")
		require.NoError(t, err)
		require.NoError(t, s.UpdateUser(ctx, user.ID, auth.UserUpdate{ResetTokenHash: auth.SetTo("r1")}))

		stale := "r0"
		newDigest := "new"
		err = s.UpdateUser(ctx, user.ID, auth.UserUpdate{
			HashedPassword:   &newDigest,
			ResetTokenHash:   auth.Cleared(),
			IfResetTokenHash: &stale,
		})
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := s.FindUserBy(ctx, auth.FieldID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "old", got.HashedPassword, "failed condition must not apply any change")
	})

	t.Run("concurrent guarded redemptions succeed exactly once", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		user, err := s.AddUser(ctx, "race@example.com", "old")
		require.NoError(t, err)
		require.NoError(t, s.UpdateUser(ctx, user.ID, auth.UserUpdate{ResetTokenHash: auth.SetTo("r")}))

		const workers = 10
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		guard := "r"
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				digest := fmt.Sprintf("new-%d", i)
				err := s.UpdateUser(ctx, user.ID, auth.UserUpdate{
					HashedPassword:   &digest,
					ResetTokenHash:   auth.Cleared(),
					IfResetTokenHash: &guard,
				})
				if err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("returned records are copies", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		user, err := s.AddUser(ctx, "copy@example.com", "digest")
		require.NoError(t, err)
		user.HashedPassword = "tampered"

		got, err := s.FindUserBy(ctx, auth.FieldID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "digest", got.HashedPassword)
	})
}
