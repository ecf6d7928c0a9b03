package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Get_Hit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &Cache{client: db, prefix: "chakraops:snapshot:"}

	want := []Row{{Symbol: "AAPL", Close: 150.0, HasData: true}}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectGet(c.rowsKey()).SetVal(string(data))

	rows, found, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Get_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &Cache{client: db, prefix: "chakraops:snapshot:"}

	mock.ExpectGet(c.rowsKey()).RedisNil()

	rows, found, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rows)
}

func TestCache_Set_MarshalsAndStoresWithTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &Cache{client: db, prefix: "chakraops:snapshot:"}

	rows := []Row{{Symbol: "MSFT", Close: 300.0, HasData: true}}
	data, err := json.Marshal(rows)
	require.NoError(t, err)

	mock.ExpectSet(c.rowsKey(), data, 10*time.Minute).SetVal("OK")

	err = c.Set(context.Background(), rows, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
