package nikto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nikto_domain_http_test.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParse(t *testing.T) {
	c := New()

	t.Run("report list yields one entry per finding", func(t *testing.T) {
		path := writeFixture(t, `[{
			"host": "example.com",
			"ip": "192.0.2.10",
			"vulnerabilities": [
				{"url": "/admin/", "method": "GET", "msg": "Admin directory found", "id": "000436", "references": "https://example.org/ref"},
				{"url": "/", "method": "GET", "msg": "Missing X-Frame-Options header", "id": "000001", "references": ""}
			]
		}]`)

		entries, err := c.Parse(path, "domain_http")
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "example.com", entries[0].Target)
		assert.Equal(t, "domain_http", entries[0].Source)
		assert.Equal(t, "/admin/", entries[0].Field("url"))
		assert.Equal(t, "Admin directory found", entries[0].Field("msg"))
		assert.Equal(t, "-", entries[1].Field("references"))
	})

	t.Run("single report object is accepted", func(t *testing.T) {
		path := writeFixture(t, `{
			"host": "example.com",
			"vulnerabilities": [{"url": "/", "method": "GET", "msg": "Finding", "id": "1", "references": ""}]
		}`)

		entries, err := c.Parse(path, "domain_https")
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("invalid escapes and bare newlines are repaired", func(t *testing.T) {
		// Real nikto output: response fragments with stray backslashes and
		// literal control characters inside JSON strings.
		path := writeFixture(t, "[{\"host\": \"example.com\", \"vulnerabilities\": [{\"url\": \"/cgi-bin\\x2f\", \"method\": \"GET\", \"msg\": \"line one\nline two\", \"id\": \"9\", \"references\": \"\"}]}]")

		entries, err := c.Parse(path, "ip_http")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].Field("msg"), "line one")
	})

	t.Run("pretty-printed artifact with in-string control bytes", func(t *testing.T) {
		// Structural newlines and indentation must survive the repair;
		// only the raw bytes inside string values get escaped.
		path := writeFixture(t, "[\n  {\n    \"host\": \"example.com\",\n    \"vulnerabilities\": [\n      {\"url\": \"/\", \"method\": \"GET\", \"msg\": \"first\nsecond\", \"id\": \"2\", \"references\": \"\"}\n    ]\n  }\n]\n")

		entries, err := c.Parse(path, "domain_http")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].Field("msg"), "second")
	})

	t.Run("unrepairable artifact fails with parse code", func(t *testing.T) {
		path := writeFixture(t, "{{{{")

		_, err := c.Parse(path, "ip_http")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeParseFailed))
	})
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"invalid escape doubled", `{"a": "\x"}`, `{"a": "\\x"}`},
		{"valid escapes untouched", `{"a": "\n\t\" \\"}`, `{"a": "\n\t\" \\"}`},
		{"bare newline escaped", "{\"a\": \"x\ny\"}", `{"a": "x\ny"}`},
		{"bare carriage return escaped", "{\"a\": \"x\ry\"}", `{"a": "x\ry"}`},
		{"bare tab escaped", "{\"a\": \"x\ty\"}", `{"a": "x\ty"}`},
		{"structural whitespace untouched", "{\n\t\"a\": \"x\"\n}", "{\n\t\"a\": \"x\"\n}"},
		{"escaped quote does not end the string", "{\"a\": \"x\\\" \ny\"}", `{"a": "x\" \ny"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.in))
		})
	}
}

func TestPlan(t *testing.T) {
	c := New()

	manifest := &config.CapabilityConfig{
		Name:    "nikto",
		Enabled: true,
		Level:   "easy",
		Levels: map[string]config.LevelConfig{
			"easy": {
				IP: map[string]config.ProtocolConfig{
					"http":  {Flags: "-maxtime 600", Ports: []int{80}},
					"https": {Flags: "-maxtime 600 -ssl", Ports: []int{443}},
				},
				Domain: map[string]config.ProtocolConfig{
					"http": {Flags: "-maxtime 600", Tuning: "123"},
				},
			},
		},
	}

	makeRun := func(ip, domain string) *config.Run {
		cfg := config.Default()
		cfg.Scan.TargetIP = ip
		cfg.Scan.TargetDomain = domain
		cfg.Capabilities = []*config.CapabilityConfig{manifest}
		return cfg.Run()
	}

	t.Run("one task per declared target-protocol variant", func(t *testing.T) {
		tasks, err := c.Plan(makeRun("192.0.2.10", "example.com"))
		require.NoError(t, err)
		require.Len(t, tasks, 3)

		sources := []string{tasks[0].Source, tasks[1].Source, tasks[2].Source}
		assert.Equal(t, []string{"ip_http", "ip_https", "domain_http"}, sources)
	})

	t.Run("variants without their target type are skipped", func(t *testing.T) {
		tasks, err := c.Plan(makeRun("", "example.com"))
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "domain_http", tasks[0].Source)
	})

	t.Run("command assembles tuning, flags, and ports", func(t *testing.T) {
		tasks, err := c.Plan(makeRun("192.0.2.10", ""))
		require.NoError(t, err)
		require.NotEmpty(t, tasks)

		cmd := tasks[0].Command
		assert.Contains(t, cmd, "nikto -h 192.0.2.10")
		assert.Contains(t, cmd, "-maxtime 600")
		assert.Contains(t, cmd, "-p 80")
		assert.Contains(t, cmd, "-Format json -o {output}")
	})
}

func TestNoMergeIdentity(t *testing.T) {
	c := New()

	assert.False(t, c.ShouldMerge())
	_, ok := c.MergeKey(capability.Entry{Fields: map[string]string{"msg": "x"}})
	assert.False(t, ok)
}
