package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/config"
)

func testDBConfig(driver, port string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:   driver,
		Host:     "db",
		Port:     port,
		User:     "cashier",
		Password: "pw",
		Name:     "cashier_db",
	}
}

func TestDSNs(t *testing.T) {
	assert.Equal(t,
		"cashier:pw@tcp(db:3306)/cashier_db?charset=utf8mb4&parseTime=True&loc=UTC",
		MySQLDSN(testDBConfig("mysql", "3306")))
	assert.Equal(t,
		"host=db user=cashier password=pw dbname=cashier_db port=5432 sslmode=disable TimeZone=UTC",
		PostgresDSN(testDBConfig("postgres", "5432")))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t,
		"mysql://cashier:pw@tcp(db:3306)/cashier_db?multiStatements=true",
		MigrateURL(testDBConfig("mysql", "3306")))
	assert.Equal(t,
		"postgres://cashier:pw@db:5432/cashier_db?sslmode=disable",
		MigrateURL(testDBConfig("postgres", "5432")))
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", ""} {
		d, err := Dialector(testDBConfig(driver, "1"))
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}

	_, err := Dialector(testDBConfig("sqlite", "1"))
	require.Error(t, err)
}
