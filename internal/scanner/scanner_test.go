package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"spider/internal/domain"
)

// fakeScanner returns canned records or a canned error
type fakeScanner struct {
	name    string
	records []domain.RawRecord
	err     error
	delay   time.Duration
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

func containerRecord(name string) domain.RawRecord {
	return domain.RawRecord{
		Kind:       domain.KindContainer,
		HostID:     "fathom",
		Attributes: map[string]any{"name": name, "image": "img", "status": "Up"},
	}
}

func TestRegistryScanHost(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	r.Register("fathom", &fakeScanner{name: "a", records: []domain.RawRecord{containerRecord("pihole")}})
	r.Register("fathom", &fakeScanner{name: "b", records: []domain.RawRecord{containerRecord("grafana")}})

	result, err := r.ScanHost(context.Background(), "fathom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 2 {
		t.Errorf("expected records from both scanners, got %d", len(result.Records))
	}
	if len(result.Failed) != 0 {
		t.Errorf("expected no failures, got %v", result.Failed)
	}
}

func TestRegistryScanHostPartialFailure(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	r.Register("fathom", &fakeScanner{name: "good", records: []domain.RawRecord{containerRecord("pihole")}})
	r.Register("fathom", &fakeScanner{name: "bad", err: errors.New("daemon not running")})

	result, err := r.ScanHost(context.Background(), "fathom")
	if err != nil {
		t.Fatalf("one broken scanner must not fail the host: %v", err)
	}
	if len(result.Records) != 1 {
		t.Errorf("expected surviving scanner's records, got %d", len(result.Records))
	}
	if len(result.Failed) != 1 || result.Failed[0] != "bad" {
		t.Errorf("expected failure recorded for 'bad', got %v", result.Failed)
	}
}

func TestRegistryScanHostTimeout(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	r.Register("sanctum", &fakeScanner{name: "slow", delay: 5 * time.Second})

	_, err := r.ScanHost(context.Background(), "sanctum")
	var timeoutErr *domain.HostTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected HostTimeoutError, got %v", err)
	}
	if timeoutErr.HostID != "sanctum" {
		t.Errorf("expected host sanctum in error, got %s", timeoutErr.HostID)
	}
}

func TestRegistryScanHostUnknown(t *testing.T) {
	r := NewRegistry(time.Second)
	if _, err := r.ScanHost(context.Background(), "ghost"); err == nil {
		t.Error("expected error for host without scanners")
	}
}

func TestRegistryHosts(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("sanctum", &fakeScanner{name: "a"})
	r.Register("fathom", &fakeScanner{name: "b"})

	hosts := r.Hosts()
	if len(hosts) != 2 || hosts[0] != "fathom" || hosts[1] != "sanctum" {
		t.Errorf("expected sorted host list, got %v", hosts)
	}
}
