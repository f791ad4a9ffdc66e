// Package dig provides DNS reconnaissance for the target domain. Unlike the
// subprocess capabilities it collects in-process over the dns library and
// writes its own JSON artifact, exercising the same artifact and
// normalization contract as external tools. Identical records resolved by
// different query rounds merge across variants.
package dig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const name = "dig"

const (
	defaultResolver = "8.8.8.8:53"
	queryTimeout    = 10 * time.Second
	artifactPerm    = 0600
)

// queryTypes are the record types resolved for the target domain.
var queryTypes = []uint16{
	dns.TypeA,
	dns.TypeAAAA,
	dns.TypeCNAME,
	dns.TypeMX,
	dns.TypeNS,
	dns.TypeTXT,
	dns.TypeSOA,
}

// record is the artifact document shape, one element per resolved record.
type record struct {
	RecordType string `json:"record_type"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	TTL        uint32 `json:"ttl"`
}

// Capability implements in-process DNS collection.
type Capability struct{}

// New returns the dig capability.
func New() *Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return name }

// Plan creates a single in-process task when a domain is configured.
func (c *Capability) Plan(run *config.Run) ([]capability.Task, error) {
	cc := run.Capability(name)
	if cc == nil {
		return nil, nil
	}
	if run.Domain == "" {
		logging.Info("Capability requires a domain target, skipping", "capability", name)
		return nil, nil
	}

	resolver := cc.Option("resolver", defaultResolver)
	domain := run.Domain

	return []capability.Task{{
		Capability: name,
		Target:     domain,
		Source:     "domain_dns",
		OutputExt:  ".json",
		Run: func(ctx context.Context, outputPath string) error {
			return collect(ctx, domain, resolver, outputPath)
		},
	}}, nil
}

// collect resolves all query types against the resolver and writes the
// record list as the task artifact. Individual query failures degrade to
// warnings; the task fails only when no query succeeded.
func collect(ctx context.Context, domain, resolver, outputPath string) error {
	client := &dns.Client{Timeout: queryTimeout}
	fqdn := dns.Fqdn(domain)

	records := []record{}
	queried := 0
	for _, qtype := range queryTypes {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, qtype)

		resp, _, err := client.ExchangeContext(ctx, msg, resolver)
		if err != nil {
			logging.Warn("DNS query failed",
				"capability", name,
				"qtype", dns.TypeToString[qtype],
				"error", err)
			continue
		}
		queried++

		for _, rr := range resp.Answer {
			records = append(records, record{
				RecordType: dns.TypeToString[rr.Header().Rrtype],
				Name:       strings.TrimSuffix(rr.Header().Name, "."),
				Value:      recordValue(rr),
				TTL:        rr.Header().Ttl,
			})
		}
	}

	if queried == 0 {
		return fmt.Errorf("all DNS queries against %s failed", resolver)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, artifactPerm)
}

// recordValue renders the payload of one resource record.
func recordValue(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String()
	case *dns.AAAA:
		return v.AAAA.String()
	case *dns.CNAME:
		return strings.TrimSuffix(v.Target, ".")
	case *dns.MX:
		return fmt.Sprintf("%d %s", v.Preference, strings.TrimSuffix(v.Mx, "."))
	case *dns.NS:
		return strings.TrimSuffix(v.Ns, ".")
	case *dns.TXT:
		return strings.Join(v.Txt, " ")
	case *dns.SOA:
		return fmt.Sprintf("%s %s %d", strings.TrimSuffix(v.Ns, "."), strings.TrimSuffix(v.Mbox, "."), v.Serial)
	default:
		return strings.TrimSpace(strings.TrimPrefix(rr.String(), rr.Header().String()))
	}
}

// Parse decodes the JSON artifact into one entry per record.
func (c *Capability) Parse(path, source string) ([]capability.Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // artifact path is runner-allocated
	if err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var entries []capability.Entry
	for _, r := range records {
		entries = append(entries, capability.Entry{
			Capability: name,
			Target:     r.Name,
			Source:     source,
			Fields: map[string]string{
				"record_type": orDash(r.RecordType),
				"name":        orDash(r.Name),
				"value":       orDash(r.Value),
				"ttl":         fmt.Sprintf("%d", r.TTL),
			},
		})
	}
	return entries, nil
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// ImportantFields implements capability.Capability. TTL varies between
// queries and must not trigger conflicts.
func (c *Capability) ImportantFields() []string {
	return []string{"record_type", "name", "value"}
}

// RecordKey identifies one DNS record for merging.
type RecordKey struct {
	RecordType string
	Name       string
	Value      string
}

// IsMergeKey implements capability.Key.
func (RecordKey) IsMergeKey() {}

// MergeKey implements capability.Capability.
func (c *Capability) MergeKey(e capability.Entry) (capability.Key, bool) {
	return RecordKey{
		RecordType: e.Field("record_type"),
		Name:       e.Field("name"),
		Value:      e.Field("value"),
	}, true
}

// ShouldMerge implements capability.Capability.
func (c *Capability) ShouldMerge() bool { return true }

// Summary implements capability.Capability.
func (c *Capability) Summary(entries []capability.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s %s", e.Field("record_type"), e.Field("value")))
	}
	return strings.Join(parts, " | ")
}

// ColumnOrder implements capability.Capability.
func (c *Capability) ColumnOrder() []string {
	return []string{"source", "record_type", "name", "value", "ttl"}
}

// WideFields implements capability.Capability.
func (c *Capability) WideFields() []string {
	return []string{"value"}
}
