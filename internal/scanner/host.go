package scanner

import (
	"context"
	"strconv"
	"strings"

	"spider/internal/domain"
)

// HostScanner gathers basic host facts: hostname, kernel, and disk usage
// for the root filesystem. It emits a single host record.
type HostScanner struct {
	runner CommandRunner
}

// NewHostScanner creates a host facts scanner backed by the given runner
func NewHostScanner(runner CommandRunner) *HostScanner {
	return &HostScanner{runner: runner}
}

// Name returns the scanner identifier
func (h *HostScanner) Name() string { return "host" }

// Scan collects host facts. Each command failure drops its facts but the
// record is still emitted with whatever was gathered.
func (h *HostScanner) Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error) {
	attrs := map[string]any{}

	if out, err := h.runner.Run(ctx, "hostname -f 2>/dev/null || hostname"); err == nil {
		if hostname := strings.TrimSpace(out); hostname != "" {
			attrs["hostname"] = hostname
		}
	}
	if out, err := h.runner.Run(ctx, "uname -sr"); err == nil {
		if kernel := strings.TrimSpace(out); kernel != "" {
			attrs["kernel"] = kernel
		}
	}
	if out, err := h.runner.Run(ctx, "df -P / | tail -1"); err == nil {
		for k, v := range parseDF(out) {
			attrs[k] = v
		}
	}
	if out, err := h.runner.Run(ctx, "uptime -p 2>/dev/null"); err == nil {
		if up := strings.TrimSpace(out); up != "" {
			attrs["uptime"] = up
		}
	}

	if _, ok := attrs["hostname"]; !ok {
		// Without a hostname the identity falls back to the configured ID
		attrs["hostname"] = hostID
	}

	return []domain.RawRecord{{
		Kind:       domain.KindHost,
		HostID:     hostID,
		Attributes: attrs,
	}}, nil
}

// parseDF extracts usage numbers from one line of df -P output:
// /dev/sda1  41152832 30862024  8377528  79% /
func parseDF(out string) map[string]any {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 5 {
		return nil
	}

	attrs := map[string]any{}
	if total, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
		attrs["disk_total_kb"] = total
	}
	if used, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
		attrs["disk_used_kb"] = used
	}
	pct := strings.TrimSuffix(fields[4], "%")
	if usedPct, err := strconv.ParseInt(pct, 10, 64); err == nil {
		attrs["disk_used_percent"] = usedPct
	}
	return attrs
}
