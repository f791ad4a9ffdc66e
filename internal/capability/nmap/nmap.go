// Package nmap integrates the nmap port scanner. Tasks run the external
// nmap binary with XML output; parsing reuses the nmap library's XML
// decoder. Port findings restate the same fact when observed from the IP
// and the domain side, so this capability merges across variants keyed by
// port, protocol, and service.
package nmap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	nmaplib "github.com/Ullaakut/nmap/v3"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const name = "nmap"

// Capability implements the nmap integration.
type Capability struct{}

// New returns the nmap capability.
func New() *Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return name }

// Plan creates one task per available target: the IP, the domain, and the
// network range when configured. All variants share the level argument
// string; per-protocol port and script selections are appended when the
// manifest declares them.
func (c *Capability) Plan(run *config.Run) ([]capability.Task, error) {
	cc := run.Capability(name)
	if cc == nil {
		return nil, nil
	}
	lvl := cc.SelectedLevel()

	var tasks []capability.Task
	add := func(target, source string, protocols map[string]config.ProtocolConfig) {
		if target == "" {
			logging.Info("Target not configured for variant, skipping",
				"capability", name, "source", source)
			return
		}
		args := strings.TrimSpace(lvl.Args + " " + protocolArgs(protocols))
		tasks = append(tasks, capability.Task{
			Capability: name,
			Target:     target,
			Source:     source,
			Command:    fmt.Sprintf("nmap %s %s -oX %s", args, target, capability.OutputPlaceholder),
			OutputExt:  ".xml",
			Tool:       cc.BinaryName(),
			Install:    cc.Install,
		})
	}

	add(run.IP, "ip", lvl.IP)
	add(run.Domain, "domain", lvl.Domain)
	add(run.Network, "network", lvl.IP)

	return tasks, nil
}

// protocolArgs renders the per-protocol sub-configuration into nmap flags.
func protocolArgs(protocols map[string]config.ProtocolConfig) string {
	pc, ok := protocols["tcp"]
	if !ok {
		return ""
	}
	var parts []string
	if len(pc.Ports) > 0 {
		ports := make([]string, len(pc.Ports))
		for i, p := range pc.Ports {
			ports[i] = strconv.Itoa(p)
		}
		parts = append(parts, "-p "+strings.Join(ports, ","))
	}
	if len(pc.Scripts) > 0 {
		parts = append(parts, "--script "+strings.Join(pc.Scripts, ","))
	}
	if pc.ScriptArgs != "" {
		parts = append(parts, "--script-args "+pc.ScriptArgs)
	}
	return strings.Join(parts, " ")
}

// Parse decodes an nmap XML artifact into one entry per scanned port.
func (c *Capability) Parse(path, source string) ([]capability.Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // artifact path is runner-allocated
	if err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var run nmaplib.Run
	if err := nmaplib.Parse(data, &run); err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var entries []capability.Entry
	for i := range run.Hosts {
		host := &run.Hosts[i]
		target := ""
		if len(host.Addresses) > 0 {
			target = host.Addresses[0].Addr
		}

		for j := range host.Ports {
			p := &host.Ports[j]

			var scripts []string
			for _, s := range p.Scripts {
				if out := strings.TrimSpace(s.Output); out != "" {
					scripts = append(scripts, out)
				}
			}
			scriptOutput := strings.Join(scripts, "; ")
			if scriptOutput == "" {
				scriptOutput = "-"
			}

			cpe := "-"
			if len(p.Service.CPEs) > 0 {
				cpe = string(p.Service.CPEs[0])
			}

			entries = append(entries, capability.Entry{
				Capability: name,
				Target:     target,
				Source:     source,
				Fields: map[string]string{
					"port":          strconv.Itoa(int(p.ID)),
					"protocol":      orDash(p.Protocol),
					"state":         orDash(p.State.State),
					"reason":        orDash(p.State.Reason),
					"service_name":  orDash(p.Service.Name),
					"product":       orDash(p.Service.Product),
					"version":       orDash(p.Service.Version),
					"extra":         orDash(p.Service.ExtraInfo),
					"cpe":           cpe,
					"script_output": scriptOutput,
				},
			})
		}
	}

	return entries, nil
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// ImportantFields implements capability.Capability. Script output is
// deliberately absent: diverging script output between variants is
// concatenated on merge, not treated as a conflict.
func (c *Capability) ImportantFields() []string {
	return []string{
		"port", "protocol", "state", "reason",
		"service_name", "product", "version", "extra", "cpe",
	}
}

// PortKey identifies a port finding for merging across variants.
type PortKey struct {
	Port     string
	Protocol string
	Service  string
}

// IsMergeKey implements capability.Key.
func (PortKey) IsMergeKey() {}

// MergeKey implements capability.Capability.
func (c *Capability) MergeKey(e capability.Entry) (capability.Key, bool) {
	return PortKey{
		Port:     e.Field("port"),
		Protocol: e.Field("protocol"),
		Service:  e.Field("service_name"),
	}, true
}

// ShouldMerge implements capability.Capability.
func (c *Capability) ShouldMerge() bool { return true }

// Summary implements capability.Capability.
func (c *Capability) Summary(entries []capability.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s/%s %s",
			e.Field("port"), e.Field("protocol"), e.Field("state")))
	}
	return strings.Join(parts, " | ")
}

// ColumnOrder implements capability.Capability.
func (c *Capability) ColumnOrder() []string {
	return []string{
		"source", "port", "protocol", "state", "reason",
		"service_name", "product", "version", "extra", "cpe", "script_output",
	}
}

// WideFields implements capability.Capability.
func (c *Capability) WideFields() []string {
	return []string{"product", "version", "extra", "script_output", "cpe"}
}
