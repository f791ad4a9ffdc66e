// Package snmp probes the target's SNMP agent for the standard system-group
// values. Collection happens in-process over the gosnmp client and writes a
// JSON artifact. SNMP answers only on the IP target, so the capability plans
// a single UDP variant and never merges.
package snmp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const name = "snmp"

const (
	defaultCommunity = "public"
	requestTimeout   = 5 * time.Second
	artifactPerm     = 0600
)

// systemOIDs are the MIB-II system group scalars, in display order.
var systemOIDs = []struct {
	OID  string
	Name string
}{
	{"1.3.6.1.2.1.1.1.0", "sysDescr"},
	{"1.3.6.1.2.1.1.2.0", "sysObjectID"},
	{"1.3.6.1.2.1.1.3.0", "sysUpTime"},
	{"1.3.6.1.2.1.1.4.0", "sysContact"},
	{"1.3.6.1.2.1.1.5.0", "sysName"},
	{"1.3.6.1.2.1.1.6.0", "sysLocation"},
}

// reading is the artifact document shape, one element per answered OID.
type reading struct {
	OID       string `json:"oid"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	Community string `json:"community"`
}

// Capability implements in-process SNMP collection.
type Capability struct{}

// New returns the snmp capability.
func New() *Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return name }

// Plan creates a single in-process task against the IP target. SNMP agents
// bind to addresses, not names, so a domain-only run plans nothing.
func (c *Capability) Plan(run *config.Run) ([]capability.Task, error) {
	cc := run.Capability(name)
	if cc == nil {
		return nil, nil
	}
	if run.IP == "" {
		logging.Info("Capability requires an IP target, skipping", "capability", name)
		return nil, nil
	}

	community := cc.Option("community", defaultCommunity)
	target := run.IP

	return []capability.Task{{
		Capability: name,
		Target:     target,
		Source:     "ip_udp",
		OutputExt:  ".json",
		Run: func(ctx context.Context, outputPath string) error {
			return collect(ctx, target, community, outputPath)
		},
	}}, nil
}

// collect issues one GET for the system group and writes the answered
// values as the task artifact. An unreachable or unresponsive agent fails
// the task; the surrounding run carries on without it.
func collect(ctx context.Context, target, community, outputPath string) error {
	client := &gosnmp.GoSNMP{
		Target:    target,
		Port:      161,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   requestTimeout,
		Retries:   1,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to SNMP agent %s: %w", target, err)
	}
	defer func() {
		_ = client.Conn.Close()
	}()

	oids := make([]string, len(systemOIDs))
	for i, o := range systemOIDs {
		oids[i] = o.OID
	}

	packet, err := client.Get(oids)
	if err != nil {
		return fmt.Errorf("SNMP get against %s: %w", target, err)
	}

	names := make(map[string]string, len(systemOIDs))
	for _, o := range systemOIDs {
		names["."+o.OID] = o.Name
		names[o.OID] = o.Name
	}

	readings := []reading{}
	for _, pdu := range packet.Variables {
		value := pduValue(pdu)
		if value == "" {
			continue
		}
		readings = append(readings, reading{
			OID:       strings.TrimPrefix(pdu.Name, "."),
			Name:      names[pdu.Name],
			Value:     value,
			Community: community,
		})
	}

	data, err := json.MarshalIndent(readings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, artifactPerm)
}

// pduValue renders one PDU value as text. Unanswered OIDs come back as
// NoSuchObject or NoSuchInstance and render empty.
func pduValue(pdu gosnmp.SnmpPDU) string {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return strings.TrimSpace(string(b))
		}
	case gosnmp.ObjectIdentifier:
		if s, ok := pdu.Value.(string); ok {
			return s
		}
	case gosnmp.TimeTicks, gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Integer:
		return fmt.Sprintf("%v", pdu.Value)
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.Null:
		return ""
	}
	if pdu.Value == nil {
		return ""
	}
	return fmt.Sprintf("%v", pdu.Value)
}

// Parse decodes the JSON artifact into one entry per answered OID.
func (c *Capability) Parse(path, source string) ([]capability.Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // artifact path is runner-allocated
	if err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var readings []reading
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var entries []capability.Entry
	for _, r := range readings {
		entries = append(entries, capability.Entry{
			Capability: name,
			Target:     "",
			Source:     source,
			Fields: map[string]string{
				"oid":       orDash(r.OID),
				"name":      orDash(r.Name),
				"value":     orDash(r.Value),
				"community": orDash(r.Community),
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

// ImportantFields implements capability.Capability.
func (c *Capability) ImportantFields() []string {
	return []string{"oid", "value"}
}

// MergeKey implements capability.Capability. SNMP plans a single variant,
// so entries have no cross-variant identity.
func (c *Capability) MergeKey(capability.Entry) (capability.Key, bool) {
	return nil, false
}

// ShouldMerge implements capability.Capability.
func (c *Capability) ShouldMerge() bool { return false }

// Summary implements capability.Capability.
func (c *Capability) Summary(entries []capability.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s=%s", e.Field("name"), e.Field("value")))
	}
	return strings.Join(parts, " | ")
}

// ColumnOrder implements capability.Capability.
func (c *Capability) ColumnOrder() []string {
	return []string{"source", "oid", "name", "value", "community"}
}

// WideFields implements capability.Capability.
func (c *Capability) WideFields() []string {
	return []string{"value"}
}
