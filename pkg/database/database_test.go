package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectPlaceholders(t *testing.T) {
	cases := map[string]string{"sqlserver": "@p2", "pgx": "$2", "mysql": "?", "sqlite": "?"}
	for driver, want := range cases {
		d, err := DialectFor(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.Placeholder(2), driver)
	}

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestDialectPaginate(t *testing.T) {
	sqlite := Dialect{Driver: "sqlite"}
	assert.Equal(t, `SELECT * FROM t ORDER BY id LIMIT 10 OFFSET 20`, sqlite.Paginate("SELECT * FROM t", "id", 20, 10))
	assert.Equal(t, `SELECT * FROM t LIMIT 5 OFFSET 0`, sqlite.Paginate("SELECT * FROM t", "", 0, 5))

	mssql := Dialect{Driver: "sqlserver"}
	assert.Equal(t, `SELECT * FROM t ORDER BY id OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY`, mssql.Paginate("SELECT * FROM t", "id", 20, 10))
	assert.Equal(t, `SELECT * FROM t ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY`, mssql.Paginate("SELECT * FROM t", "", 0, 10))
}

func TestDialectQuote(t *testing.T) {
	assert.Equal(t, `"wp_posts"."ID"`, Dialect{Driver: "sqlite"}.Quote("wp_posts.ID"))
	assert.Equal(t, "`users`", Dialect{Driver: "mysql"}.Quote("users"))
	assert.Equal(t, "[dbo].[users]", Dialect{Driver: "sqlserver"}.Quote("dbo.users"))
	assert.Equal(t, `"user.name"`, Dialect{Driver: "pgx"}.QuoteIdent("user.name"))
	assert.Equal(t, "[a]]b]", Dialect{Driver: "sqlserver"}.QuoteIdent("a]b"))
}

func TestConnectSQLite(t *testing.T) {
	db, err := ConnectSQL("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestConnectSQLRejectsUnknownDriver(t *testing.T) {
	_, err := ConnectSQL("db2", "whatever")
	assert.Error(t, err)
}
