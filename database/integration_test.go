package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/grantflow/model"
)

// liveDatasource connects to the replica set named by GRANTFLOW_TEST_MONGO_DNS, using a
// throwaway database per test.
func liveDatasource(t *testing.T) *Datasource {
	t.Helper()
	dns := os.Getenv("GRANTFLOW_TEST_MONGO_DNS")
	if dns == "" {
		t.Skip("GRANTFLOW_TEST_MONGO_DNS not set")
	}
	client, err := ConnectDB(dns)
	require.NoError(t, err)

	db := client.Database("grantflow_test_" + gofakeit.LetterN(8))
	ds := NewDatasource(client, db)
	require.NoError(t, ds.EnsureIndexes(context.Background()))

	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return ds
}

func seedOutbox(t *testing.T, ds *Datasource, n int, segregationRef string) []*model.QueueRecord {
	t.Helper()
	records := make([]*model.QueueRecord, 0, n)
	for i := 0; i < n; i++ {
		event, err := model.NewCloudEvent("grantflow", model.EventApplicationStatusUpdated, gofakeit.UUID(), map[string]int{"seq": i})
		require.NoError(t, err)
		rec := model.NewOutboxRecord(event, segregationRef)
		rec.PublicationDate = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, ds.InsertOutbox(context.Background(), rec))
		records = append(records, rec)
	}
	return records
}

func TestLiveConcurrentClaimantsNeverShareRecords(t *testing.T) {
	ds := liveDatasource(t)
	seedOutbox(t, ds, 40, "")

	var mu sync.Mutex
	seen := map[string]string{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		worker := gofakeit.UUID()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				records, err := ds.ClaimBatch(context.Background(), ClaimRequest{Queue: model.QueueOutbox, WorkerID: worker, LeaseTTL: time.Minute, MaxRecord: 3})
				if !assert.NoError(t, err) || len(records) == 0 {
					return
				}
				mu.Lock()
				for _, r := range records {
					if owner, dup := seen[r.ID]; dup {
						t.Errorf("record %s claimed by %s and %s", r.ID, owner, worker)
					}
					seen[r.ID] = worker
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 40)
}

func TestLiveLeaseRecovery(t *testing.T) {
	ds := liveDatasource(t)
	seedOutbox(t, ds, 1, "")
	ctx := context.Background()

	first, err := ds.ClaimBatch(ctx, ClaimRequest{Queue: model.QueueOutbox, WorkerID: "w1", LeaseTTL: time.Second, MaxRecord: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)

	none, err := ds.ClaimBatch(ctx, ClaimRequest{Queue: model.QueueOutbox, WorkerID: "w2", LeaseTTL: time.Second, MaxRecord: 1})
	require.NoError(t, err)
	assert.Empty(t, none)

	time.Sleep(1500 * time.Millisecond)

	second, err := ds.ClaimBatch(ctx, ClaimRequest{Queue: model.QueueOutbox, WorkerID: "w2", LeaseTTL: time.Second, MaxRecord: 1})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	assert.ErrorIs(t, ds.CompleteRecord(ctx, model.QueueOutbox, first[0].ID, "w1"), ErrClaimLost)
	assert.NoError(t, ds.CompleteRecord(ctx, model.QueueOutbox, second[0].ID, "w2"))
}

func TestLiveMaxAttempts(t *testing.T) {
	ds := liveDatasource(t)
	seedOutbox(t, ds, 1, "")
	ctx := context.Background()

	var last *model.QueueRecord
	for i := 0; i < 3; i++ {
		claimed, err := ds.ClaimBatch(ctx, ClaimRequest{Queue: model.QueueOutbox, WorkerID: "w1", LeaseTTL: time.Minute, MaxRecord: 1})
		require.NoError(t, err)
		require.Len(t, claimed, 1, "attempt %d", i+1)
		last, err = ds.FailRecord(ctx, FailRequest{Queue: model.QueueOutbox, ID: claimed[0].ID, WorkerID: "w1", Attempts: claimed[0].CompletionAttempts, MaxRetries: 3, Cause: "boom"})
		require.NoError(t, err)
	}
	assert.Equal(t, model.RecordFailed, last.Status)
	assert.Equal(t, 3, last.CompletionAttempts)

	claimed, err := ds.ClaimBatch(ctx, ClaimRequest{Queue: model.QueueOutbox, WorkerID: "w1", LeaseTTL: time.Minute, MaxRecord: 1})
	require.NoError(t, err)
	assert.Empty(t, claimed)

	resubmitted, err := ds.ResubmitRecord(ctx, model.QueueOutbox, last.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordPending, resubmitted.Status)
	assert.NotNil(t, resubmitted.LastResubmissionDate)
}

func TestLiveFifoLock(t *testing.T) {
	ds := liveDatasource(t)
	ctx := context.Background()

	ok, err := ds.AcquireFifoLock(ctx, "CASE-1-frps", "inbox", "w1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ds.AcquireFifoLock(ctx, "CASE-1-frps", "inbox", "w2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ds.AcquireFifoLock(ctx, "CASE-1-frps", "outbox", "w2", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "actors are independent lock domains")

	time.Sleep(1200 * time.Millisecond)
	ok, err = ds.AcquireFifoLock(ctx, "CASE-1-frps", "inbox", "w2", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "stale lock is taken over")

	released, err := ds.ReleaseFifoLock(ctx, "CASE-1-frps", "inbox", "w1")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestLiveTransactionAtomicity(t *testing.T) {
	ds := liveDatasource(t)
	ctx := context.Background()

	app := sampleApplication()
	event, err := model.NewCloudEvent("grantflow", model.EventApplicationCreated, app.ClientRef, app)
	require.NoError(t, err)

	err = ds.WithTransaction(ctx, func(ctx context.Context) error {
		if err := ds.CreateApplication(ctx, app); err != nil {
			return err
		}
		if err := ds.InsertOutbox(ctx, model.NewOutboxRecord(event, "")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = ds.GetApplication(ctx, app.ClientRef, app.Code)
	assert.ErrorIs(t, err, ErrNotFound)
	records, err := ds.ListRecords(ctx, model.QueueOutbox, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLiveSameMillisecondArrivalOrder(t *testing.T) {
	ds := liveDatasource(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Millisecond)
	var records []*model.QueueRecord
	for i := 0; i < 2; i++ {
		event, err := model.NewCloudEvent("grantflow", model.EventApplicationStatusUpdated, "CASE-1", map[string]int{"seq": i})
		require.NoError(t, err)
		rec := model.NewOutboxRecord(event, "CASE-1-frps")
		rec.PublicationDate = at
		records = append(records, rec)
	}
	// insert the later arrival first so insertion order cannot mask the tie-break
	require.NoError(t, ds.InsertOutbox(ctx, records[1]))
	require.NoError(t, ds.InsertOutbox(ctx, records[0]))

	older, err := ds.HasOlderUnfinished(ctx, model.QueueOutbox, records[1])
	require.NoError(t, err)
	assert.True(t, older)
	older, err = ds.HasOlderUnfinished(ctx, model.QueueOutbox, records[0])
	require.NoError(t, err)
	assert.False(t, older)

	claimed, err := ds.ClaimBatch(ctx, ClaimRequest{Queue: model.QueueOutbox, WorkerID: "w1", LeaseTTL: time.Minute, MaxRecord: 2})
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, records[0].ID, claimed[0].ID)
	assert.Equal(t, records[1].ID, claimed[1].ID)
}
