package repository

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)))
	err := repo.ConnectDB(context.Background(), Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "operators.db"),
		MaxAttempts: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestResolveSeededOperators(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, id := range []string{"100", "101", "102", "103"} {
		rec, ok, err := repo.Resolve(ctx, id)
		require.NoError(t, err)
		require.True(t, ok, id)
		require.NotNil(t, rec.Hub)
		require.Nil(t, rec.Transport)
		require.Equal(t, id, rec.Hub.HocID)
	}
	for _, id := range []string{"200", "201", "202", "203", "204"} {
		rec, ok, err := repo.Resolve(ctx, id)
		require.NoError(t, err)
		require.True(t, ok, id)
		require.NotNil(t, rec.Transport)
		require.Nil(t, rec.Hub)
		require.Equal(t, id, rec.Transport.TocID)
	}
}

func TestResolveUnknownIDIsNotAnError(t *testing.T) {
	repo := newTestRepository(t)

	rec, ok, err := repo.Resolve(context.Background(), "999")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, rec)
}

func TestRecordsRoundTripJSONColumns(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hub, ok, err := repo.GetHubData(ctx, "103")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Multi-modal Energy Hub", hub.PasshubType)
	require.Len(t, hub.EnergyCarriers, 3)
	require.Equal(t, "HVO100", hub.EnergyCarriers[1].EnergyCarrier)

	toc, ok, err := repo.GetTransportData(ctx, "202")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"ISO14083:2023", "GLECv2"}, []string(toc.Certifications))
	require.NotNil(t, toc.FlightLength)
	require.Equal(t, "Long Haul (>4000km)", *toc.FlightLength)

	truck, ok, err := repo.GetTransportData(ctx, "200")
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, truck.AirShippingOption)

	_, ok, err = repo.GetHubData(ctx, "200")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSeedIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "operators.db")
	logger := cmtlog.NewNopLogger()

	first := NewRepository(logger)
	require.NoError(t, first.ConnectDB(context.Background(), Config{Driver: "sqlite", DSN: dsn, MaxAttempts: 1}))
	require.NoError(t, first.Close())

	second := NewRepository(logger)
	require.NoError(t, second.ConnectDB(context.Background(), Config{Driver: "sqlite", DSN: dsn, MaxAttempts: 1}))
	defer second.Close()

	var hubs int64
	require.NoError(t, second.db.Model(&seedHubs[0]).Count(&hubs).Error)
	require.EqualValues(t, len(seedHubs), hubs)
}

func TestConcurrentResolve(t *testing.T) {
	repo := newTestRepository(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "100"
			if i%2 == 0 {
				id = "200"
			}
			_, ok, err := repo.Resolve(context.Background(), id)
			if err == nil && !ok {
				t.Errorf("operator %s not resolved", id)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	repo := NewRepository(cmtlog.NewNopLogger())
	err := repo.ConnectDB(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)

	_, _, err = repo.Resolve(context.Background(), "100")
	require.Error(t, err)
}

func TestSeedRetriesAfterFailure(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "operators.db")), &gorm.Config{})
	require.NoError(t, err)
	repo := &Repository{db: db, logger: cmtlog.NewNopLogger()}
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.Migrate())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, repo.EnsureSeeded(cancelled))

	require.NoError(t, repo.EnsureSeeded(context.Background()))
	rec, ok, err := repo.Resolve(context.Background(), "100")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "100", rec.Hub.HocID)
}

func TestPingBeforeConnect(t *testing.T) {
	repo := NewRepository(cmtlog.NewNopLogger())
	err := repo.Ping(context.Background())
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
