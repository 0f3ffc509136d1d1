package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/exam-proctor-api/pkg/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "planner", Password: "p@ss word", Name: "proctor", SSLMode: "disable"})
	assert.Equal(t, "postgres://planner:p%40ss%20word@db:5432/proctor?application_name=exam-proctor-api&sslmode=disable", dsn)
}
