package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queryfan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  name: queryfan-test
  log_level: DEBUG
  max_queue_size: 20
  num_workers: 2

state:
  path: /tmp/queryfan-test.db

api:
  enabled: true
  listen: "127.0.0.1:9000"
  api_key: sekrit

stands:
  prod-pg:
    vendor: postgres
    dbname: app
    user: svc
    password: hunter2
    host: db.internal
    port: 5432
  local:
    vendor: sqlite
    path: data/app.db
  docs:
    vendor: mongo
    host: mongodb://127.0.0.1:27017
    db: app
    collection: events
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "queryfan-test", cfg.Service.Name)
	assert.Equal(t, "DEBUG", cfg.Service.LogLevel)
	assert.Equal(t, 20, cfg.Service.MaxQueueSize)
	assert.Equal(t, 2, cfg.Service.NumWorkers)
	assert.Equal(t, "/tmp/queryfan-test.db", cfg.State.Path)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "sekrit", cfg.API.APIKey)

	require.Len(t, cfg.Stands, 3)
	pg := cfg.Stands["prod-pg"]
	assert.Equal(t, "postgres", pg.Vendor)
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, "data/app.db", cfg.Stands["local"].Path)
	assert.Equal(t, "events", cfg.Stands["docs"].Collection)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
stands:
  local:
    vendor: sqlite
    path: a.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "queryfan", cfg.Service.Name)
	assert.Equal(t, "INFO", cfg.Service.LogLevel)
	assert.Equal(t, 50, cfg.Service.MaxQueueSize)
	assert.Equal(t, 4, cfg.Service.NumWorkers)
	assert.Equal(t, "internal.db", cfg.State.Path)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:8765", cfg.API.Listen)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("QF_TEST_PASSWORD", "from-env")

	path := writeConfig(t, `
stands:
  prod-pg:
    vendor: postgres
    dbname: app
    user: svc
    password: ${QF_TEST_PASSWORD}
    host: db.internal
    port: 5432
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Stands["prod-pg"].Password)
}

func TestLoadUnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
api:
  enabled: true
  listen: "127.0.0.1:9000"
  api_key: ${QF_TEST_DEFINITELY_UNSET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.API.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"zero queue": `
service:
  max_queue_size: 0
`,
		"zero workers": `
service:
  num_workers: 0
`,
		"empty state path": `
state:
  path: "  "
`,
		"api enabled without listen": `
api:
  enabled: true
  listen: ""
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}
