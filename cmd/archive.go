package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/artists"
	"github.com/sw33tLie/fanmirror/pkg/cache"
	"github.com/sw33tLie/fanmirror/pkg/search"
	"github.com/sw33tLie/fanmirror/pkg/storage"
	"github.com/sw33tLie/fanmirror/pkg/whttp"
)

// archive bundles the local stores every command works against.
type archive struct {
	DB        *storage.DB
	Cache     *cache.Store
	Index     *search.ArtistIndex
	Directory *artists.Directory
}

func expandPath(p string) (string, error) {
	return homedir.Expand(p)
}

// openDB opens only the post store, failing when the file does not exist yet.
func openDB() (*storage.DB, error) {
	dbPath, err := expandPath(viper.GetString("db_path"))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", dbPath)
	}
	return storage.Open(dbPath)
}

func openArchive() (*archive, error) {
	dbPath, err := expandPath(viper.GetString("db_path"))
	if err != nil {
		return nil, err
	}
	cachePath, err := expandPath(viper.GetString("cache_path"))
	if err != nil {
		return nil, err
	}
	indexPath, err := expandPath(viper.GetString("index_path"))
	if err != nil {
		return nil, err
	}

	a := &archive{}
	if a.DB, err = storage.Open(dbPath); err != nil {
		return nil, err
	}
	// Both stores lock their files per operation only. Failing here means
	// the file itself is unusable, and the post store still works.
	if a.Cache, err = cache.Open(cachePath); err != nil {
		utils.Log.Warnf("Cache unavailable, continuing without it: %v", err)
		a.Cache = nil
	}
	if a.Index, err = search.OpenArtistIndex(indexPath); err != nil {
		utils.Log.Warnf("Artist index unavailable, continuing without it: %v", err)
		a.Index = nil
	}
	a.Directory = artists.New(a.DB, a.Cache, a.Index)
	return a, nil
}

func (a *archive) Close() {
	if a.Index != nil {
		a.Index.Close()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newHTTPClient() (*whttp.Client, error) {
	return whttp.NewClient(whttp.Options{
		Proxy:    viper.GetString("proxy"),
		RetryMax: viper.GetInt("http.retries"),
		Timeout:  viper.GetDuration("http.timeout"),
	})
}
