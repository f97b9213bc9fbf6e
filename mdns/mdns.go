// Package mdns implements the discovery and advertisement control loop: a
// _hap._tcp Bonjour/mDNS service whose TXT record encodes the config
// version, pairing state and setup hash, republished whenever accessory
// topology or pairing state changes.
package mdns

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/brutella/dnssd"
	"github.com/miekg/dns"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/log"
)

// serviceType is the Bonjour service type every HAP accessory advertises
// under.
const serviceType = "_hap._tcp"

// statusFlag bits for the "sf" TXT key.
const (
	statusFlagNotPaired    = 1 << 0
	statusFlagNotConfigured = 1 << 1
)

// Advertiser owns the Bonjour responder for one HAP server, rebuilding its
// TXT record whenever config version or pairing state changes.
type Advertiser struct {
	name      string
	port      int
	category  accessory.Category
	identity  *db.Identity
	pairings  *db.Pairings
	configVer *db.ConfigVersion
	container *accessory.Container

	mutex      sync.Mutex
	lastDigest []byte
	responder  dnssd.Responder
	service    dnssd.Service
	cancel     context.CancelFunc
}

// New creates an Advertiser for a server named name, reachable on port,
// advertising category (used for the "ci" TXT key).
func New(name string, port int, category accessory.Category, identity *db.Identity, pairings *db.Pairings, configVer *db.ConfigVersion, container *accessory.Container) *Advertiser {
	return &Advertiser{
		name:      name,
		port:      port,
		category:  category,
		identity:  identity,
		pairings:  pairings,
		configVer: configVer,
		container: container,
	}
}

// Start publishes the service and blocks responding to mDNS queries until
// ctx is canceled or Stop is called.
func (a *Advertiser) Start(ctx context.Context) error {
	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("mdns: create responder: %w", err)
	}
	a.responder = responder

	cfg := a.serviceConfig()
	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("mdns: create service: %w", err)
	}

	if _, err := a.responder.Add(svc); err != nil {
		return fmt.Errorf("mdns: add service: %w", err)
	}
	a.service = svc

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.lastDigest = a.container.StructuralDigest()

	log.MDNS.Info().Str("name", a.name).Int("port", a.port).Msg("advertising hap service")
	return a.responder.Respond(runCtx)
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// HandlePairingChange reacts to a controller being added or removed by
// republishing the TXT record, so the "sf" not-paired bit clears once an
// admin is paired and sets again when none is left. The service itself
// stays advertised either way.
func (a *Advertiser) HandlePairingChange() {
	a.update()
}

// CheckTopology compares the current attribute tree against the digest
// captured at the last call, bumping the persisted config version and
// republishing the TXT record only when the structure actually changed —
// value-only changes must never move "c#" (invariant 5).
func (a *Advertiser) CheckTopology() error {
	a.mutex.Lock()
	digest := a.container.StructuralDigest()
	changed := !bytesEqual(digest, a.lastDigest)
	a.lastDigest = digest
	a.mutex.Unlock()

	if !changed {
		return nil
	}
	if _, err := a.configVer.Bump(); err != nil {
		return err
	}
	a.update()
	return nil
}

func (a *Advertiser) update() {
	a.mutex.Lock()
	svc := a.service
	responder := a.responder
	a.mutex.Unlock()

	if responder == nil {
		return
	}
	cfg := a.serviceConfig()
	updated, err := dnssd.NewService(cfg)
	if err != nil {
		log.MDNS.Error().Err(err).Msg("rebuild service config")
		return
	}
	if err := responder.Update(updated, svc); err != nil {
		log.MDNS.Error().Err(err).Msg("update advertised service")
		return
	}

	a.mutex.Lock()
	a.service = updated
	a.mutex.Unlock()
}

func (a *Advertiser) serviceConfig() dnssd.Config {
	return dnssd.Config{
		Name: a.identity.DeviceID,
		Type: serviceType,
		Port: a.port,
		Text: a.txtRecord(),
	}
}

// txtRecord builds the TXT key/value pairs a HAP controller expects: c#
// (config version), ff (pairing feature flags, always 0: no additional
// pairing methods supported), id (device id), md (model/name), pv
// (protocol version "1.1"), s# (state number, always 1), sf (status
// flags), ci (category identifier), sh (setup hash).
func (a *Advertiser) txtRecord() map[string]string {
	sf := 0
	if !a.pairings.HasAdmin() {
		sf |= statusFlagNotPaired
	}

	txt := map[string]string{
		"c#": fmt.Sprintf("%d", a.configVer.Value()),
		"ff": "0",
		"id": a.identity.DeviceID,
		"md": a.name,
		"pv": "1.1",
		"s#": "1",
		"sf": fmt.Sprintf("%d", sf),
		"ci": fmt.Sprintf("%d", a.category),
		"sh": a.setupHash(),
	}

	// Round-trip the entries through a miekg/dns TXT RR to catch an
	// oversized value before it ever reaches the responder: Pack fails if
	// any string exceeds the 255-byte TXT wire limit.
	rr := &dns.TXT{
		Hdr: dns.RR_Header{Name: dns.Fqdn(a.identity.DeviceID), Rrtype: dns.TypeTXT, Class: dns.ClassINET},
		Txt: flattenTXT(txt),
	}
	buf := make([]byte, dns.MaxMsgSize)
	if _, err := dns.PackRR(rr, buf, 0, nil, false); err != nil {
		log.MDNS.Warn().Err(err).Msg("txt record failed validation")
	}

	return txt
}

func flattenTXT(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// setupHash computes the "sh" TXT value: base64 of the first 4 bytes of
// SHA-512(setupID || deviceID), per the HAP setup-hash algorithm used by
// controllers to match a scanned QR code to a discovered service.
func (a *Advertiser) setupHash() string {
	sum := sha512.Sum512([]byte(a.identity.SetupID + a.identity.DeviceID))
	return base64.StdEncoding.EncodeToString(sum[:4])
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
