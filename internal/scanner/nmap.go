package scanner

import (
	"context"
	"fmt"
	"log"
	"strings"

	nmap "github.com/Ullaakut/nmap/v3"

	"spider/internal/domain"
)

// NetworkScanner discovers listening endpoints on the local network using
// nmap. Each open port becomes a net_endpoint record attributed to the
// scanning host, so cross-host correlation can line up who talks to whom.
type NetworkScanner struct {
	// Targets lists CIDR ranges or addresses to scan
	Targets []string
	// Ports is an nmap port specification, e.g. "22,80,443,8000-9000"
	Ports string
	// ServiceDetection enables nmap -sV banner probing
	ServiceDetection bool
}

// NewNetworkScanner creates an nmap-backed network scanner
func NewNetworkScanner(targets []string, ports string) *NetworkScanner {
	if ports == "" {
		ports = "22,53,80,443,2375,3306,5432,6379,8080,8443,9090,11434"
	}
	return &NetworkScanner{
		Targets:          targets,
		Ports:            ports,
		ServiceDetection: true,
	}
}

// Name returns the scanner identifier
func (n *NetworkScanner) Name() string { return "network" }

// Scan runs nmap against the configured targets
func (n *NetworkScanner) Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error) {
	if len(n.Targets) == 0 {
		return nil, nil
	}

	opts := []nmap.Option{
		nmap.WithTargets(n.Targets...),
		nmap.WithPorts(n.Ports),
	}
	if n.ServiceDetection {
		opts = append(opts, nmap.WithServiceInfo())
	}

	sc, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create nmap scanner: %w", err)
	}

	result, warnings, err := sc.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("Nmap warnings: %v", *warnings)
	}

	return recordsFromRun(result, hostID), nil
}

// recordsFromRun converts nmap results to net_endpoint records
func recordsFromRun(result *nmap.Run, hostID string) []domain.RawRecord {
	if result == nil {
		return nil
	}

	var records []domain.RawRecord
	for _, host := range result.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}

		var addr string
		for _, a := range host.Addresses {
			if a.AddrType == "ipv4" {
				addr = a.Addr
				break
			}
		}
		if addr == "" {
			addr = host.Addresses[0].Addr
		}

		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			attrs := map[string]any{
				"address":  addr,
				"port":     int64(port.ID),
				"protocol": port.Protocol,
			}
			if port.Service.Name != "" {
				attrs["service"] = port.Service.Name
			}
			if port.Service.Product != "" {
				banner := port.Service.Product
				if port.Service.Version != "" {
					banner += " " + port.Service.Version
				}
				attrs["banner"] = strings.TrimSpace(banner)
			}
			if len(host.Hostnames) > 0 {
				attrs["reverse_dns"] = host.Hostnames[0].Name
			}
			records = append(records, domain.RawRecord{
				Kind:       domain.KindNetEndpoint,
				HostID:     hostID,
				Attributes: attrs,
			})
		}
	}
	return records
}
