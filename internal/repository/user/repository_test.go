package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/database/dbtest"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/repository/user"
)

// seedUser writes the account the way the account service would.
func seedUser(t *testing.T, conns *database.Connections, u *entity.User) {
	t.Helper()
	now := time.Now().UTC()
	u.RegisteredAt, u.UpdatedAt = now, now
	_, err := conns.Writer.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
}

func loadUser(t *testing.T, conns *database.Connections, id string) entity.User {
	t.Helper()
	var u entity.User
	require.NoError(t, conns.Writer.NewSelect().Model(&u).Where("u.id = ?", id).Scan(context.Background()))
	return u
}

func TestMarkEmailVerified(t *testing.T) {
	ctx := context.Background()
	conns := dbtest.New(t)
	r := user.NewRepository(conns, config.Config{Store: config.Store{OpTimeout: time.Second}})

	seedUser(t, conns, &entity.User{ID: "u-1", FullName: "Ada", Email: "ada@example.com", Status: "active"})
	seedUser(t, conns, &entity.User{ID: "u-2", FullName: "Grace", Email: "grace@example.com", Status: "active"})

	require.NoError(t, r.MarkEmailVerified(ctx, " ADA@example.com "))

	ada := loadUser(t, conns, "u-1")
	assert.True(t, ada.EmailVerified)
	assert.Nil(t, ada.LastLoginAt)
	assert.False(t, loadUser(t, conns, "u-2").EmailVerified)
}

func TestMissingUser(t *testing.T) {
	r := user.NewRepository(dbtest.New(t), config.Config{})

	assert.ErrorIs(t, r.MarkEmailVerified(context.Background(), "ghost@example.com"), user.ErrNotFound)
}
