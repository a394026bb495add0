package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrate_Down(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("DROP TABLE IF EXISTS deferred_tasks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE IF EXISTS orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE IF EXISTS delivery_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	var out bytes.Buffer
	err = runMigrate(context.Background(), []string{"-yes", "down"}, &out,
		func(context.Context) (*sql.DB, error) { return database, nil })
	require.NoError(t, err)
	assert.Equal(t, "migrate down complete\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrate_Errors(t *testing.T) {
	opened := false
	open := func(context.Context) (*sql.DB, error) {
		opened = true
		return nil, errors.New("unreachable")
	}

	tests := []struct {
		name string
		args []string
	}{
		{"no direction", nil},
		{"unknown direction", []string{"sideways"}},
		{"down without confirmation", []string{"down"}},
		{"extra args", []string{"up", "down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, runMigrate(context.Background(), tt.args, io.Discard, open))
		})
	}
	assert.False(t, opened, "argument errors never touch the database")

	err := runMigrate(context.Background(), []string{"up"}, io.Discard, open)
	assert.ErrorContains(t, err, "open database")
}
