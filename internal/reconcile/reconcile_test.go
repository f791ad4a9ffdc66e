package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
)

// fakeCapability is a minimal merging capability keyed by port.
type fakeCapability struct {
	merge bool
}

type fakeKey struct {
	port string
}

func (fakeKey) IsMergeKey() {}

func (f *fakeCapability) Name() string { return "fake" }

func (f *fakeCapability) Plan(*config.Run) ([]capability.Task, error) { return nil, nil }

func (f *fakeCapability) Parse(string, string) ([]capability.Entry, error) { return nil, nil }

func (f *fakeCapability) ImportantFields() []string { return []string{"port", "service"} }

func (f *fakeCapability) MergeKey(e capability.Entry) (capability.Key, bool) {
	return fakeKey{port: e.Field("port")}, true
}

func (f *fakeCapability) ShouldMerge() bool { return f.merge }

func (f *fakeCapability) Summary([]capability.Entry) string { return "" }

func (f *fakeCapability) ColumnOrder() []string { return []string{"source", "port", "service", "notes"} }

func (f *fakeCapability) WideFields() []string { return []string{"notes"} }

func entry(source, port, service, notes string) capability.Entry {
	return capability.Entry{
		Capability: "fake",
		Source:     source,
		Fields: map[string]string{
			"port":    port,
			"service": service,
			"notes":   notes,
		},
	}
}

func TestIsEmptyValue(t *testing.T) {
	tests := []struct {
		value string
		empty bool
	}{
		{"", true},
		{"-", true},
		{"0", true},
		{"null", true},
		{"NULL", true},
		{"none", true},
		{" None ", true},
		{"ssh", false},
		{"0.0.0.0", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			assert.Equal(t, tt.empty, IsEmptyValue(tt.value))
		})
	}
}

func TestFilterEmpty(t *testing.T) {
	c := &fakeCapability{merge: true}

	t.Run("drops entries with no informative important field", func(t *testing.T) {
		entries := []capability.Entry{
			entry("ip", "22", "ssh", "-"),
			entry("ip", "-", "null", "interesting note"),
			entry("ip", "80", "-", "-"),
		}

		kept := FilterEmpty(c, entries)
		require.Len(t, kept, 2)
		assert.Equal(t, "22", kept[0].Field("port"))
		assert.Equal(t, "80", kept[1].Field("port"))
	})

	t.Run("is idempotent", func(t *testing.T) {
		entries := []capability.Entry{
			entry("ip", "22", "ssh", "-"),
			entry("ip", "-", "-", "-"),
		}

		once := FilterEmpty(c, entries)
		twice := FilterEmpty(c, once)
		assert.Equal(t, once, twice)
	})
}

func TestMerge(t *testing.T) {
	c := &fakeCapability{merge: true}

	t.Run("identical findings collapse with source union", func(t *testing.T) {
		merged := Merge(c,
			[]capability.Entry{entry("ip", "22", "ssh", "-")},
			[]capability.Entry{entry("domain_http", "22", "ssh", "-")},
		)

		require.Len(t, merged, 1)
		assert.Equal(t, "domain_http+ip", merged[0].Source)
	})

	t.Run("diverging free text concatenates", func(t *testing.T) {
		merged := Merge(c,
			[]capability.Entry{entry("ip", "22", "ssh", "banner A")},
			[]capability.Entry{entry("domain", "22", "ssh", "banner B")},
		)

		require.Len(t, merged, 1)
		assert.Equal(t, "banner A; banner B", merged[0].Field("notes"))
	})

	t.Run("conflicting important fields preserve both entries", func(t *testing.T) {
		merged := Merge(c,
			[]capability.Entry{entry("ip", "22", "ssh", "-")},
			[]capability.Entry{entry("domain", "22", "telnet", "-")},
		)

		require.Len(t, merged, 2)
		assert.Equal(t, "ssh", merged[0].Field("service"))
		assert.Equal(t, "telnet", merged[1].Field("service"))
		assert.Equal(t, "ip", merged[0].Source)
		assert.Equal(t, "domain", merged[1].Source)
	})

	t.Run("repeat conflicts stay distinct", func(t *testing.T) {
		merged := Merge(c,
			[]capability.Entry{entry("ip", "22", "ssh", "-")},
			[]capability.Entry{entry("domain", "22", "telnet", "-")},
			[]capability.Entry{entry("network", "22", "rlogin", "-")},
		)

		assert.Len(t, merged, 3)
	})

	t.Run("empty important field matches empty spelling variants", func(t *testing.T) {
		merged := Merge(c,
			[]capability.Entry{entry("ip", "22", "ssh", "-")},
			[]capability.Entry{{
				Capability: "fake",
				Source:     "domain",
				Fields:     map[string]string{"port": "22", "service": "ssh", "notes": "null"},
			}},
		)

		require.Len(t, merged, 1)
	})

	t.Run("is idempotent", func(t *testing.T) {
		lists := [][]capability.Entry{
			{entry("ip", "22", "ssh", "banner A"), entry("ip", "80", "http", "-")},
			{entry("domain", "22", "ssh", "banner B"), entry("domain", "443", "https", "-")},
		}

		once := Merge(c, lists...)
		twice := Merge(c, once)
		assert.Equal(t, once, twice)
	})

	t.Run("non-merging capability only flattens and filters", func(t *testing.T) {
		plain := &fakeCapability{merge: false}
		merged := Merge(plain,
			[]capability.Entry{entry("ip", "22", "ssh", "-")},
			[]capability.Entry{entry("domain", "22", "ssh", "-")},
		)

		assert.Len(t, merged, 2)
	})

	t.Run("input entries are not mutated", func(t *testing.T) {
		a := entry("ip", "22", "ssh", "banner A")
		b := entry("domain", "22", "ssh", "banner B")

		Merge(c, []capability.Entry{a}, []capability.Entry{b})

		assert.Equal(t, "ip", a.Source)
		assert.Equal(t, "banner A", a.Field("notes"))
	})
}

func TestCombineText(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"distinct segments join", "one", "two", "one; two"},
		{"duplicates drop", "one; two", "two; three", "one; two; three"},
		{"empty sides drop", "-", "note", "note"},
		{"both empty stay dash", "-", "-", "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, combineText(tt.a, tt.b))
		})
	}
}
