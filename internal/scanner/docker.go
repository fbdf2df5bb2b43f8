package scanner

import (
	"context"
	"strings"

	"spider/internal/domain"
)

const dockerPSFormat = "{{.Names}}\t{{.Image}}\t{{.Status}}\t{{.Ports}}"

// DockerScanner lists containers through the docker CLI
type DockerScanner struct {
	runner CommandRunner
}

// NewDockerScanner creates a docker scanner backed by the given runner
func NewDockerScanner(runner CommandRunner) *DockerScanner {
	return &DockerScanner{runner: runner}
}

// Name returns the scanner identifier
func (d *DockerScanner) Name() string { return "docker" }

// Scan lists all containers, stopped ones included. Restart loops and exit
// states matter more for diagnosis than the happy path.
func (d *DockerScanner) Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error) {
	out, err := d.runner.Run(ctx, "docker ps -a --format '"+dockerPSFormat+"'")
	if err != nil {
		return nil, err
	}
	return parseDockerPS(out, hostID), nil
}

// parseDockerPS converts docker ps tabular output to container records
func parseDockerPS(out, hostID string) []domain.RawRecord {
	var records []domain.RawRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}

		attrs := map[string]any{
			"name":   strings.TrimSpace(fields[0]),
			"image":  strings.TrimSpace(fields[1]),
			"status": strings.TrimSpace(fields[2]),
		}
		if len(fields) > 3 {
			if ports := strings.TrimSpace(fields[3]); ports != "" {
				attrs["ports"] = ports
			}
		}
		records = append(records, domain.RawRecord{
			Kind:       domain.KindContainer,
			HostID:     hostID,
			Attributes: attrs,
		})
	}
	return records
}
