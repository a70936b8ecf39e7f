package order

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Additional-Code/orderdesk/internal/database/dbtest"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

func TestRegistrationLockedOnRowLockingDialects(t *testing.T) {
	// No connection is made; the query is only rendered.
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN("postgres://orderdesk@localhost:5432/orderdesk?sslmode=disable")))
	pg := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = pg.Close() })

	query := lockRegistration(pg, "o-1", &entity.OrderRegistration{}).String()
	assert.True(t, strings.HasSuffix(query, " FOR UPDATE"), query)
	assert.Contains(t, query, "r.order_id = 'o-1'")

	lite := lockRegistration(dbtest.New(t).Writer, "o-1", &entity.OrderRegistration{}).String()
	assert.NotContains(t, lite, "FOR UPDATE")
}
