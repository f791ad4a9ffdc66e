package dig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
)

const fixtureJSON = `[
  {"record_type": "A", "name": "example.com", "value": "192.0.2.10", "ttl": 300},
  {"record_type": "MX", "name": "example.com", "value": "10 mail.example.com", "ttl": 3600},
  {"record_type": "TXT", "name": "example.com", "value": "v=spf1 -all", "ttl": 300}
]`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dig_domain_dns_test.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParse(t *testing.T) {
	c := New()

	t.Run("one entry per record", func(t *testing.T) {
		path := writeFixture(t, fixtureJSON)

		entries, err := c.Parse(path, "domain_dns")
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, "A", entries[0].Field("record_type"))
		assert.Equal(t, "192.0.2.10", entries[0].Field("value"))
		assert.Equal(t, "300", entries[0].Field("ttl"))
		assert.Equal(t, "10 mail.example.com", entries[1].Field("value"))
		assert.Equal(t, "domain_dns", entries[2].Source)
	})

	t.Run("garbage artifact fails with parse code", func(t *testing.T) {
		path := writeFixture(t, "not json")

		_, err := c.Parse(path, "domain_dns")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeParseFailed))
	})
}

func TestPlan(t *testing.T) {
	c := New()

	makeRun := func(domain string) *config.Run {
		cfg := config.Default()
		cfg.Scan.TargetIP = "192.0.2.10"
		cfg.Scan.TargetDomain = domain
		cfg.Capabilities = []*config.CapabilityConfig{{Name: "dig", Enabled: true}}
		return cfg.Run()
	}

	t.Run("plans one in-process task for a domain", func(t *testing.T) {
		tasks, err := c.Plan(makeRun("example.com"))
		require.NoError(t, err)
		require.Len(t, tasks, 1)

		assert.Equal(t, "domain_dns", tasks[0].Source)
		assert.NotNil(t, tasks[0].Run)
		assert.Empty(t, tasks[0].Command)
	})

	t.Run("no domain means no tasks", func(t *testing.T) {
		tasks, err := c.Plan(makeRun(""))
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestMergeIdentityIgnoresTTL(t *testing.T) {
	c := New()
	path := writeFixture(t, fixtureJSON)

	entries, err := c.Parse(path, "domain_dns")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	assert.True(t, c.ShouldMerge())
	assert.NotContains(t, c.ImportantFields(), "ttl")

	key, ok := c.MergeKey(entries[0])
	require.True(t, ok)
	assert.Equal(t, RecordKey{
		RecordType: "A",
		Name:       "example.com",
		Value:      "192.0.2.10",
	}, key)
}
