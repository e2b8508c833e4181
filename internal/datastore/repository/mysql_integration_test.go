//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/hospitalops/livemon/internal/datastore/entities"
	"github.com/hospitalops/livemon/internal/datastore/repository"
	"github.com/hospitalops/livemon/internal/testutil/containers"
)

// MySQL test container shared across all tests in this package
var (
	mysqlContainer *containers.MySQLContainer
	testDB         *gorm.DB
)

func TestMain(m *testing.M) {
	var err error
	ctx := context.Background()

	mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to create MySQL container: " + err.Error())
	}

	testDB, err = gorm.Open(mysql.Open(mysqlContainer.DSN()+"&parseTime=true"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err == nil {
		err = testDB.AutoMigrate(&entities.NotificationHistory{})
	}
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to prepare database: " + err.Error())
	}

	code := m.Run()

	if err := mysqlContainer.Terminate(context.Background()); err != nil {
		panic("failed to terminate MySQL container: " + err.Error())
	}
	os.Exit(code)
}

func TestNotificationHistory_MySQL(t *testing.T) {
	require.NoError(t, mysqlContainer.Reset(t.Context(), []string{"notification_history"}))
	repo := repository.NewNotificationHistoryRepository(testDB)

	sent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, kind := range []string{"alert", "incident", "escalation"} {
		require.NoError(t, repo.Save(t.Context(), &entities.NotificationHistory{
			Kind:   kind,
			Tag:    kind,
			Title:  "entry " + kind,
			SentAt: sent.Add(time.Duration(i) * time.Hour),
		}))
	}

	items, total, err := repo.List(t.Context(), repository.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 3)
	assert.Equal(t, "escalation", items[0].Kind)

	n, err := repo.DeleteBefore(t.Context(), sent.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
