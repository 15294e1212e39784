package rediscache

import (
	"context"
	"testing"
	"time"

	"telephone-billing/internal/bills"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKey(t *testing.T) {
	c := New(unreachable(t), 0)
	assert.Equal(t, "bills:99988526423:2018-02", c.key("99988526423", bills.Period{Month: time.February, Year: 2018}))
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestUnreachableServerSurfacesErrors(t *testing.T) {
	c := New(unreachable(t), time.Minute)
	ctx := context.Background()
	p := bills.Period{Month: time.February, Year: 2018}

	_, _, ok, err := c.Get(ctx, "99988526423", p)
	require.Error(t, err)
	assert.False(t, ok)

	assert.Error(t, c.Set(ctx, "99988526423", p, 0, nil))
	assert.Error(t, c.Invalidate(ctx, "99988526423", p))
}

func TestGenerationGuardsWrites(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, time.Minute)
	ctx := context.Background()
	p := bills.Period{Month: time.August, Year: 2018}
	key, gen := "bills:99988526423:2018-08", "bills:99988526423:2018-08:gen"

	mock.ExpectMGet(key, gen).SetVal([]interface{}{nil, "3"})
	_, g, ok, err := c.Get(ctx, "99988526423", p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), g)

	// The script only writes while the generation is still "3".
	mock.ExpectEval(setIfGen, []string{gen, key}, "3", "[]", "60000").SetVal(int64(0))
	require.NoError(t, c.Set(ctx, "99988526423", p, g, nil))

	mock.ExpectTxPipeline()
	mock.ExpectIncr(gen).SetVal(4)
	mock.ExpectExpire(gen, time.Minute+24*time.Hour).SetVal(true)
	mock.ExpectDel(key).SetVal(1)
	mock.ExpectTxPipelineExec()
	require.NoError(t, c.Invalidate(ctx, "99988526423", p))

	mock.ExpectMGet(key, gen).SetVal([]interface{}{`[{"price":"0.81"}]`, "4"})
	list, g, ok, err := c.Get(ctx, "99988526423", p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), g)
	require.Len(t, list, 1)
	assert.Equal(t, "0.81", list[0].Price.StringFixed(2))

	require.NoError(t, mock.ExpectationsWereMet())
}
