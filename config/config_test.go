package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meoying/dbkernel/config"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/sharding"
)

const yamlContent = `
dataSources:
  ds_w:
    driver: mysql
    dsn: "root:root@tcp(localhost:13306)/order_db"
  ds_r:
    driver: mysql
    dsn: "root:root@tcp(localhost:13307)/order_db"
rules:
  readwriteSplitting:
    dataSourceGroups:
      ds:
        writeDataSourceName: ds_w
        readDataSourceNames: [ds_r]
  sharding:
    tables:
      t_order:
        actualDataNodes: "ds.t_order_${0..1}"
        tableStrategy:
          standard:
            shardingColumn: order_id
            shardingAlgorithmName: mod
    shardingAlgorithms:
      mod:
        type: MOD
        props:
          sharding-count: 2
  encrypt:
    tables:
      t_order:
        columns:
          phone:
            cipher:
              name: phone_cipher
              encryptorName: aes
    encryptors:
      aes:
        type: AES
        props:
          aes-key-value: "123456abc"
props:
  sql-show: true
  check-table-metadata-enabled: "false"
`

const tomlContent = `
[dataSources.ds_w]
driver = "mysql"
dsn = "root:root@tcp(localhost:13306)/order_db"

[dataSources.ds_r]
driver = "mysql"
dsn = "root:root@tcp(localhost:13307)/order_db"

[rules.readwriteSplitting.dataSourceGroups.ds]
writeDataSourceName = "ds_w"
readDataSourceNames = ["ds_r"]

[rules.sharding.tables.t_order]
actualDataNodes = "ds.t_order_${0..1}"

[rules.sharding.tables.t_order.tableStrategy.standard]
shardingColumn = "order_id"
shardingAlgorithmName = "mod"

[rules.sharding.shardingAlgorithms.mod]
type = "MOD"
props = { sharding-count = 2 }

[rules.encrypt.tables.t_order.columns.phone.cipher]
name = "phone_cipher"
encryptorName = "aes"

[rules.encrypt.encryptors.aes]
type = "AES"
props = { aes-key-value = "123456abc" }

[props]
sql-show = true
`

func assertSnapshot(t *testing.T, cfg *config.Config) {
	assert.Equal(t, []string{"ds_r", "ds_w"}, cfg.DataSourceNames())
	snapshot, err := cfg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"ds"}, snapshot.LogicDataSources)
	assert.Equal(t, "ds", snapshot.DefaultDataSource)
	assert.Equal(t, rule.Props{SQLShow: true}, snapshot.Props)

	kinds := make([]rule.Kind, 0, len(snapshot.Rules))
	for _, r := range snapshot.Rules {
		kinds = append(kinds, r.Kind())
	}
	assert.ElementsMatch(t, []rule.Kind{rule.KindReadwriteSplitting, rule.KindSharding, rule.KindEncrypt}, kinds)

	sr := rule.Resolve[*sharding.Rule](snapshot.Rules)
	require.Len(t, sr, 1)
	assert.Equal(t, []route.DataNode{
		{DataSource: "ds", Table: "t_order_0"},
		{DataSource: "ds", Table: "t_order_1"},
	}, sr[0].DataNodes("t_order"))
}

func TestParseContent(t *testing.T) {
	testcases := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "读写分离加分片加加密",
			content: yamlContent,
		},
		{
			name:    "空文件",
			content: ``,
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name: "数据源缺少dsn",
			content: `
dataSources:
  ds_0:
    driver: mysql`,
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name: "属性不是布尔值",
			content: `
dataSources:
  ds_0:
    driver: mysql
    dsn: "root:root@tcp(localhost:13306)/order_db"
props:
  sql-show: abc`,
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "不是合法的YAML",
			content: `dataSources: [`,
			wantErr: errs.ErrInvalidConfig,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.ParseContent(tc.content)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assertSnapshot(t, cfg)
		})
	}
}

func TestParseTOML(t *testing.T) {
	cfg, err := config.ParseTOML(tomlContent)
	require.NoError(t, err)
	assertSnapshot(t, cfg)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	testcases := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{name: "YAML", file: "config.yaml", content: yamlContent},
		{name: "TOML", file: "config.toml", content: tomlContent},
		{name: "扩展名决定格式", file: "config.TOML", content: yamlContent, wantErr: true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))
			cfg, err := config.ParseFile(path)
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assertSnapshot(t, cfg)
		})
	}

	_, err := config.ParseFile(filepath.Join(dir, "not_exist.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_BuildRules(t *testing.T) {
	cfg, err := config.ParseContent(`
dataSources:
  ds_0:
    driver: mysql
    dsn: "root:root@tcp(localhost:13306)/order_db"
rules:
  sharding:
    tables:
      t_order:
        actualDataNodes: "ds_0.t_order_${0..1}"
        tableStrategy:
          standard:
            shardingColumn: order_id
            shardingAlgorithmName: missing`)
	require.NoError(t, err)
	_, err = cfg.Snapshot()
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestConfig_OpenDataSources(t *testing.T) {
	db, _, err := sqlmock.NewWithDSN("config_ds_0")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cfg := &config.Config{DataSources: map[string]config.DataSource{
		"ds_0": {Driver: "sqlmock", DSN: "config_ds_0", Prepare: true},
	}}
	testcases := []struct {
		name string
		l    *slog.Logger
	}{
		{name: "不输出SQL"},
		{name: "输出SQL", l: slog.New(slog.NewTextHandler(io.Discard, nil))},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			sources, err := cfg.OpenDataSources(tc.l)
			require.NoError(t, err)
			assert.Len(t, sources, 1)
			assert.NoError(t, sources["ds_0"].Close())
		})
	}

	cfg.DataSources["ds_1"] = config.DataSource{Driver: "unknown", DSN: "x"}
	_, err = cfg.OpenDataSources(nil)
	assert.Error(t, err)
}
