package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

func useTempArchive(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	viper.Set("db_path", filepath.Join(dir, "fanmirror.sqlite"))
	viper.Set("cache_path", filepath.Join(dir, "fanmirror.cache"))
	viper.Set("index_path", filepath.Join(dir, "fanmirror.bleve"))
	t.Cleanup(viper.Reset)
}

func TestArchiveOpensWhileAnotherIsOpen(t *testing.T) {
	useTempArchive(t)
	ctx := context.Background()

	serving, err := openArchive()
	require.NoError(t, err)
	defer serving.Close()
	require.NotNil(t, serving.Cache)
	require.NotNil(t, serving.Index)

	type opened struct {
		a   *archive
		err error
	}
	done := make(chan opened, 1)
	go func() {
		a, err := openArchive()
		done <- opened{a, err}
	}()

	var importing *archive
	select {
	case o := <-done:
		require.NoError(t, o.err)
		importing = o.a
	case <-time.After(20 * time.Second):
		t.Fatal("second archive did not open while the first one was open")
	}
	defer importing.Close()
	require.NotNil(t, importing.Cache)
	require.NotNil(t, importing.Index)

	require.NoError(t, importing.DB.UpsertPost(ctx, &storage.Post{ID: "p1", User: "u1", Service: "fanbox"}))
	require.NoError(t, importing.Directory.InvalidateArtistCaches(ctx, "fanbox", "u1"))
	require.NoError(t, importing.Directory.ReindexAll(ctx, map[string]string{"u1": "Night Owl"}))

	res, err := serving.Directory.Search("night", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "u1", res[0].ID)

	n, err := serving.Directory.PostCount(ctx, "fanbox", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
