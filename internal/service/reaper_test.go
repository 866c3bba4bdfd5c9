package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/fileshare/internal/storage/registry"
)

func TestReaper_RunOnce(t *testing.T) {
	env := newTestEnv(t)

	live := uploadOne(t, env, []byte("live"), fieldPart(FieldExpiryHours, "5"))
	expiring := uploadOne(t, env, []byte("expiring"), fieldPart(FieldExpiryHours, "1"))
	exhausted := uploadOne(t, env, []byte("exhausted"), fieldPart(FieldMaxDownloads, "1"))
	forever := uploadOne(t, env, []byte("forever"))

	dl, derr := env.download.Open(exhausted)
	require.Nil(t, derr)
	require.NoError(t, dl.File.Close())

	env.clock.Advance(2 * time.Hour)

	res := env.reaper.RunOnce()
	assert.Equal(t, 4, res.Checked)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 2, env.reg.Len())
	assert.Equal(t, 2, env.blobCount(t))

	for _, id := range []string{live, forever} {
		_, derr := env.download.Info(id)
		assert.Nil(t, derr, "живая запись %s не удаляется", id)
	}

	_, derr = env.download.Info(expiring)
	require.NotNil(t, derr)
	assert.Equal(t, "File has expired", derr.Message)

	_, derr = env.download.Info(exhausted)
	require.NotNil(t, derr)
	assert.Equal(t, "Download limit exceeded", derr.Message)

	res = env.reaper.RunOnce()
	assert.Equal(t, 0, res.Removed, "повторный цикл ничего не удаляет")
}

func TestReaper_ExpiryHoursZero(t *testing.T) {
	env := newTestEnv(t)
	id := uploadOne(t, env, []byte("gone"), fieldPart(FieldExpiryHours, "0"))
	require.Equal(t, 1, env.blobCount(t))

	res := env.reaper.RunOnce()
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 0, env.blobCount(t))

	_, derr := env.download.Info(id)
	require.NotNil(t, derr)
	assert.Equal(t, "File has expired", derr.Message)
}

func TestReaper_ContinuesOnError(t *testing.T) {
	env := newTestEnv(t)
	past := env.clock.Now()

	// некорректная ссылка: blob store откажет в удалении
	_, err := env.reg.Create(registry.NewShare{BlobRef: "../escape", ExpiryAt: &past})
	require.NoError(t, err)
	uploadOne(t, env, []byte("x"), fieldPart(FieldExpiryHours, "0"))

	res := env.reaper.RunOnce()
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 0, env.reg.Len(), "запись удаляется даже при ошибке удаления blob")
}

func TestReaper_StartStop(t *testing.T) {
	env := newTestEnv(t)
	env.reaper.interval = time.Second

	uploadOne(t, env, []byte("x"), fieldPart(FieldExpiryHours, "0"))

	env.reaper.Start(context.Background())
	env.reaper.Start(context.Background())

	assert.Eventually(t, func() bool {
		return env.reg.Len() == 0
	}, 5*time.Second, 50*time.Millisecond)

	env.reaper.Stop()
	env.reaper.Stop()
}

func TestReaper_StopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	env.reaper.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		env.reaper.lifecycle.Lock()
		defer env.reaper.lifecycle.Unlock()
		return env.reaper.scheduler == nil
	}, 2*time.Second, 10*time.Millisecond)
}
