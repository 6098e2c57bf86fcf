package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"querybridge/internal/dberr"
)

func TestProfilesRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	loaded, err := LoadProfiles()
	require.NoError(t, err)
	assert.Empty(t, loaded.Connections)

	loaded.Add(SavedProfile{
		Name:     "warehouse",
		Engine:   "duckdb",
		Path:     "/data/warehouse.duckdb",
		PoolSize: 2,
	})
	loaded.Add(SavedProfile{
		Name:     "orders",
		Engine:   "postgres",
		Host:     "db.internal",
		Port:     5432,
		Database: "orders",
		Username: "svc",
		TLS:      true,
	})
	require.NoError(t, SaveProfiles(loaded))

	again, err := LoadProfiles()
	require.NoError(t, err)
	require.Len(t, again.Connections, 2)

	sp, ok := again.Find("orders")
	require.True(t, ok)
	assert.Equal(t, "db.internal", sp.Host)
	assert.True(t, sp.TLS)

	_, ok = again.Find("missing")
	assert.False(t, ok)
}

func TestAddReplacesByName(t *testing.T) {
	p := &Profiles{}
	p.Add(SavedProfile{Name: "a", Engine: "sqlite", Path: "/tmp/a.db"})
	p.Add(SavedProfile{Name: "a", Engine: "sqlite", Path: "/tmp/b.db"})
	require.Len(t, p.Connections, 1)
	assert.Equal(t, "/tmp/b.db", p.Connections[0].Path)
}

func TestResolve(t *testing.T) {
	sp := SavedProfile{
		Name:             "orders",
		Engine:           "mysql",
		Host:             "db",
		Port:             3306,
		Database:         "shop",
		Username:         "svc",
		Password:         "inline",
		AcquireTimeout:   "5s",
		StatementTimeout: "2m",
	}
	profile, err := sp.Resolve()
	require.NoError(t, err)
	assert.Equal(t, dberr.EngineMySQL, profile.Engine)
	assert.Equal(t, "inline", profile.Password)
	assert.Equal(t, 5*time.Second, profile.AcquireTimeout)
	assert.Equal(t, 2*time.Minute, profile.StatementTimeout)
}

func TestResolvePasswordFromKeyring(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, StorePassword("vaulted", "s3cret"))

	sp := SavedProfile{Name: "vaulted", Engine: "postgres", Host: "db", Username: "svc"}
	profile, err := sp.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", profile.Password)

	require.NoError(t, DeletePassword("vaulted"))
	require.NoError(t, DeletePassword("vaulted"))

	profile, err = sp.Resolve()
	require.NoError(t, err)
	assert.Empty(t, profile.Password)
}

func TestResolveRejectsUnknownEngine(t *testing.T) {
	_, err := SavedProfile{Name: "x", Engine: "oracle"}.Resolve()
	assert.Error(t, err)
}

func TestResolveRejectsBadDuration(t *testing.T) {
	_, err := SavedProfile{Name: "x", Engine: "sqlite", AcquireTimeout: "soonish"}.Resolve()
	assert.Error(t, err)
}
