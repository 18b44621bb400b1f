package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestAcquireFifoLock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("acquires a free lock", func(mt *mtest.T) {
		ds := NewDatasource(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		ok, err := ds.AcquireFifoLock(context.Background(), "CASE-1-frps", "inbox", "w1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	mt.Run("a live lock collides on the unique key", func(mt *mtest.T) {
		ds := NewDatasource(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}))
		ok, err := ds.AcquireFifoLock(context.Background(), "CASE-1-frps", "inbox", "w2", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	mt.Run("other errors surface", func(mt *mtest.T) {
		ds := NewDatasource(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 91, Message: "shutting down"}))
		_, err := ds.AcquireFifoLock(context.Background(), "CASE-1-frps", "inbox", "w2", time.Minute)
		assert.Error(t, err)
	})
}

func TestReleaseFifoLock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("releases a held lock", func(mt *mtest.T) {
		ds := NewDatasource(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		released, err := ds.ReleaseFifoLock(context.Background(), "CASE-1-frps", "inbox", "w1")
		require.NoError(t, err)
		assert.True(t, released)
	})

	mt.Run("does not release a lock taken over by another holder", func(mt *mtest.T) {
		ds := NewDatasource(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		released, err := ds.ReleaseFifoLock(context.Background(), "CASE-1-frps", "inbox", "w1")
		require.NoError(t, err)
		assert.False(t, released)
	})
}

func TestSweepFifoLocks(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("reports released locks", func(mt *mtest.T) {
		ds := NewDatasource(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}, bson.E{Key: "nModified", Value: 3}))
		n, err := ds.SweepFifoLocks(context.Background(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}
