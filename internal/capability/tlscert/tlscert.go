// Package tlscert inspects the certificate chain presented by the target's
// HTTPS endpoint. The handshake runs in-process; presented certificates are
// re-parsed with the zcrypto decoder, which tolerates the malformed
// real-world certificates the standard parser rejects. One entry is emitted
// per chain certificate.
package tlscert

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	zx509 "github.com/zmap/zcrypto/x509"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const name = "tlscert"

const (
	defaultPort    = "443"
	handshakeLimit = 15 * time.Second
	artifactPerm   = 0600
)

// certInfo is the artifact document shape, one element per chain link.
type certInfo struct {
	Position   int      `json:"position"`
	SubjectCN  string   `json:"subject_cn"`
	IssuerCN   string   `json:"issuer_cn"`
	NotBefore  string   `json:"not_before"`
	NotAfter   string   `json:"not_after"`
	DNSNames   []string `json:"dns_names"`
	Serial     string   `json:"serial"`
	SigAlg     string   `json:"sig_alg"`
	SelfSigned bool     `json:"self_signed"`
	Expired    bool     `json:"expired"`
}

// Capability implements TLS certificate inspection.
type Capability struct{}

// New returns the tlscert capability.
func New() *Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return name }

// Plan creates a single in-process task handshaking against the domain.
// SNI makes the presented chain name-dependent, so the IP target alone is
// not a useful variant.
func (c *Capability) Plan(run *config.Run) ([]capability.Task, error) {
	cc := run.Capability(name)
	if cc == nil {
		return nil, nil
	}
	if run.Domain == "" {
		logging.Info("Capability requires a domain target, skipping", "capability", name)
		return nil, nil
	}

	domain := run.Domain
	port := cc.Option("port", defaultPort)

	return []capability.Task{{
		Capability: name,
		Target:     domain,
		Source:     "domain_https",
		OutputExt:  ".json",
		Run: func(ctx context.Context, outputPath string) error {
			return collect(ctx, domain, port, outputPath)
		},
	}}, nil
}

// collect performs the handshake and writes the decoded chain as the task
// artifact. Verification is disabled on purpose: an untrusted chain is a
// finding, not a transport error.
func collect(ctx context.Context, domain, port, outputPath string) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: handshakeLimit},
		Config: &tls.Config{
			ServerName:         domain,
			InsecureSkipVerify: true, //nolint:gosec // inspection target, not a trust decision
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(domain, port))
	if err != nil {
		return fmt.Errorf("TLS handshake with %s:%s: %w", domain, port, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return fmt.Errorf("unexpected connection type %T", conn)
	}
	peers := tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return fmt.Errorf("%s:%s presented no certificates", domain, port)
	}

	now := time.Now()
	chain := make([]certInfo, 0, len(peers))
	for i, peer := range peers {
		cert, err := zx509.ParseCertificate(peer.Raw)
		if err != nil {
			logging.Warn("Skipping undecodable chain certificate",
				"capability", name, "position", i, "error", err)
			continue
		}
		chain = append(chain, certInfo{
			Position:   i,
			SubjectCN:  cert.Subject.CommonName,
			IssuerCN:   cert.Issuer.CommonName,
			NotBefore:  cert.NotBefore.UTC().Format(time.RFC3339),
			NotAfter:   cert.NotAfter.UTC().Format(time.RFC3339),
			DNSNames:   cert.DNSNames,
			Serial:     cert.SerialNumber.String(),
			SigAlg:     cert.SignatureAlgorithm.String(),
			SelfSigned: string(cert.RawSubject) == string(cert.RawIssuer),
			Expired:    now.After(cert.NotAfter) || now.Before(cert.NotBefore),
		})
	}
	if len(chain) == 0 {
		return fmt.Errorf("no certificate in the %s:%s chain could be decoded", domain, port)
	}

	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, artifactPerm)
}

// Parse decodes the JSON artifact into one entry per chain certificate.
func (c *Capability) Parse(path, source string) ([]capability.Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // artifact path is runner-allocated
	if err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var chain []certInfo
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	var entries []capability.Entry
	for _, ci := range chain {
		entries = append(entries, capability.Entry{
			Capability: name,
			Target:     ci.SubjectCN,
			Source:     source,
			Fields: map[string]string{
				"position":    fmt.Sprintf("%d", ci.Position),
				"subject_cn":  orDash(ci.SubjectCN),
				"issuer_cn":   orDash(ci.IssuerCN),
				"not_before":  orDash(ci.NotBefore),
				"not_after":   orDash(ci.NotAfter),
				"dns_names":   orDash(strings.Join(ci.DNSNames, ", ")),
				"serial":      orDash(ci.Serial),
				"sig_alg":     orDash(ci.SigAlg),
				"self_signed": fmt.Sprintf("%t", ci.SelfSigned),
				"expired":     fmt.Sprintf("%t", ci.Expired),
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
	return []string{"subject_cn", "issuer_cn", "serial", "not_after", "self_signed"}
}

// MergeKey implements capability.Capability. The chain comes from a single
// handshake, so entries have no cross-variant identity.
func (c *Capability) MergeKey(capability.Entry) (capability.Key, bool) {
	return nil, false
}

// ShouldMerge implements capability.Capability.
func (c *Capability) ShouldMerge() bool { return false }

// Summary implements capability.Capability.
func (c *Capability) Summary(entries []capability.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s (exp %s)",
			e.Field("subject_cn"), e.Field("not_after")))
	}
	return strings.Join(parts, " | ")
}

// ColumnOrder implements capability.Capability.
func (c *Capability) ColumnOrder() []string {
	return []string{
		"source", "position", "subject_cn", "issuer_cn",
		"not_before", "not_after", "dns_names", "serial",
		"sig_alg", "self_signed", "expired",
	}
}

// WideFields implements capability.Capability.
func (c *Capability) WideFields() []string {
	return []string{"subject_cn", "issuer_cn", "dns_names", "sig_alg"}
}
