package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "signal_contents", []string{"value", "signal_id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"signal_contents"}, []string{"value", "content_type", "signal_id"}).WillReturnResult(3)

	rows := [][]any{
		{"https://example.com/a", "URL", "s1"},
		{"https://example.com/b", "URL", "s2"},
		{"5d41402abc4b2a76b9719d911017c592", "HASH_MD5", "s2"},
	}
	n, err := CopyFrom(context.Background(), mock, "signal_contents", []string{"value", "content_type", "signal_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"signal_contents"}, []string{"value", "signal_id"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"https://example.com/a", "s1"}}
	_, err = CopyFrom(context.Background(), mock, "signal_contents", []string{"value", "signal_id"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO signal_contents")
	assert.NoError(t, mock.ExpectationsWereMet())
}
