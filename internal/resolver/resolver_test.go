package resolver

import (
	"testing"
	"time"

	"spider/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func containerRecord(name, image, status string) domain.RawRecord {
	return domain.RawRecord{
		Kind: domain.KindContainer,
		Attributes: map[string]any{
			"name":   name,
			"image":  image,
			"status": status,
		},
	}
}

func TestResolveNewEntities(t *testing.T) {
	r := New(NewIndex())

	result := r.Resolve(nil, "fathom", t0, []domain.RawRecord{
		containerRecord("ollama", "ollama/ollama:latest", "Up 2 hours"),
		{Kind: domain.KindFile, Attributes: map[string]any{"path": "/etc/docker/daemon.json", "size": 412}},
	})

	if len(result.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(result.Entities))
	}
	if result.Skipped != 0 {
		t.Errorf("expected no skipped records, got %d", result.Skipped)
	}
	if result.Minted != 2 {
		t.Errorf("expected 2 minted identities, got %d", result.Minted)
	}

	c := result.Entities[0]
	if c.NaturalKey != "ollama@ollama/ollama:latest" {
		t.Errorf("unexpected container natural key %q", c.NaturalKey)
	}
	if c.HostID != "fathom" {
		t.Errorf("expected host fathom, got %q", c.HostID)
	}
	if c.ID == "" {
		t.Error("expected a minted entity ID")
	}
	if !c.FirstSeen.Equal(t0) || !c.LastSeen.Equal(t0) {
		t.Error("expected first/last seen set to capture time")
	}

	f := result.Entities[1]
	if size, _ := f.GetAttribute("size"); size != int64(412) {
		t.Errorf("expected size normalized to int64 412, got %T %v", size, size)
	}
}

func TestResolveIdentityStability(t *testing.T) {
	index := NewIndex()
	r := New(index)

	gen1 := r.Resolve(nil, "fathom", t0, []domain.RawRecord{
		containerRecord("ollama", "ollama/ollama:latest", "Up 2 hours"),
	})
	originalID := gen1.Entities[0].ID

	t.Run("re-observation keeps the ID", func(t *testing.T) {
		prev := domain.NewGraph("fathom")
		prev.Generation = 1
		prev.Entities[originalID] = gen1.Entities[0]

		gen2 := r.Resolve(prev, "fathom", t0.Add(time.Hour), []domain.RawRecord{
			containerRecord("ollama", "ollama/ollama:latest", "Restarting"),
		})
		if gen2.Entities[0].ID != originalID {
			t.Errorf("expected stable ID %s, got %s", originalID, gen2.Entities[0].ID)
		}
		if gen2.Minted != 0 {
			t.Errorf("expected no new identities, minted %d", gen2.Minted)
		}
		if !gen2.Entities[0].FirstSeen.Equal(t0) {
			t.Error("expected firstSeen preserved from generation 1")
		}
	})

	t.Run("reappearance after absent generation keeps the ID", func(t *testing.T) {
		// Generation 2 did not observe the container; its live graph is empty
		emptyPrev := domain.NewGraph("fathom")
		emptyPrev.Generation = 2

		gen3 := r.Resolve(emptyPrev, "fathom", t0.Add(2*time.Hour), []domain.RawRecord{
			containerRecord("ollama", "ollama/ollama:latest", "Up 1 minute"),
		})
		if gen3.Entities[0].ID != originalID {
			t.Errorf("expected ID %s to survive the gap, got %s", originalID, gen3.Entities[0].ID)
		}
	})
}

func TestResolveAttributeMerge(t *testing.T) {
	index := NewIndex()
	r := New(index)

	gen1 := r.Resolve(nil, "fathom", t0, []domain.RawRecord{
		{Kind: domain.KindService, Attributes: map[string]any{
			"name": "nginx", "port": 443, "config_path": "/etc/nginx/nginx.conf",
		}},
	})
	prev := domain.NewGraph("fathom")
	prev.Generation = 1
	prev.Entities[gen1.Entities[0].ID] = gen1.Entities[0]

	t.Run("absent keys retained from history", func(t *testing.T) {
		gen2 := r.Resolve(prev, "fathom", t0.Add(time.Hour), []domain.RawRecord{
			{Kind: domain.KindService, Attributes: map[string]any{"name": "nginx", "port": 8443}},
		})
		e := gen2.Entities[0]
		if got, _ := e.GetAttribute("port"); got != int64(8443) {
			t.Errorf("expected new value to overwrite, got %v", got)
		}
		if e.GetAttributeString("config_path") != "/etc/nginx/nginx.conf" {
			t.Error("expected historical attribute retained when absent from the record")
		}
	})

	t.Run("tombstoned keys dropped", func(t *testing.T) {
		gen2 := r.Resolve(prev, "fathom", t0.Add(time.Hour), []domain.RawRecord{
			{
				Kind:       domain.KindService,
				Attributes: map[string]any{"name": "nginx"},
				Tombstones: []string{"config_path"},
			},
		})
		if _, ok := gen2.Entities[0].GetAttribute("config_path"); ok {
			t.Error("expected tombstoned attribute removed")
		}
	})
}

func TestResolveMalformedRecords(t *testing.T) {
	r := New(NewIndex())

	result := r.Resolve(nil, "fathom", t0, []domain.RawRecord{
		{Kind: domain.KindFile, Attributes: map[string]any{"size": 10}}, // no path
		{Kind: domain.KindContainer, Attributes: map[string]any{"name": "ollama"}}, // no image
		{Kind: "mystery", Attributes: map[string]any{"x": 1}},
		containerRecord("ok", "img:1", "Up"),
	})

	if result.Skipped != 3 {
		t.Errorf("expected 3 skipped records, got %d", result.Skipped)
	}
	if len(result.Entities) != 1 {
		t.Errorf("expected the valid record to survive the batch, got %d entities", len(result.Entities))
	}
}

func TestResolveDuplicateRecordsFold(t *testing.T) {
	r := New(NewIndex())

	result := r.Resolve(nil, "fathom", t0, []domain.RawRecord{
		{Kind: domain.KindFile, Attributes: map[string]any{"path": "/etc/hosts", "size": 100}},
		{Kind: domain.KindFile, Attributes: map[string]any{"path": "/etc/hosts", "hash": "abc123"}},
	})

	if len(result.Entities) != 1 {
		t.Fatalf("expected duplicate identities to fold, got %d entities", len(result.Entities))
	}
	e := result.Entities[0]
	if got, _ := e.GetAttribute("size"); got != int64(100) {
		t.Error("expected first record's attributes present")
	}
	if e.GetAttributeString("hash") != "abc123" {
		t.Error("expected second record's attributes merged in")
	}
}

func TestNaturalKeys(t *testing.T) {
	cases := []struct {
		name string
		rec  domain.RawRecord
		want string
	}{
		{"file uses absolute path", domain.RawRecord{Kind: domain.KindFile, Attributes: map[string]any{"path": "/var/log/syslog"}}, "/var/log/syslog"},
		{"net endpoint defaults to tcp", domain.RawRecord{Kind: domain.KindNetEndpoint, Attributes: map[string]any{"address": "10.0.0.5", "port": 5432}}, "10.0.0.5:5432/tcp"},
		{"net endpoint honors protocol", domain.RawRecord{Kind: domain.KindNetEndpoint, Attributes: map[string]any{"address": "10.0.0.9", "port": 53, "protocol": "udp"}}, "10.0.0.9:53/udp"},
		{"host uses hostname", domain.RawRecord{Kind: domain.KindHost, Attributes: map[string]any{"hostname": "sanctum"}}, "sanctum"},
		{"process uses command", domain.RawRecord{Kind: domain.KindProcess, Attributes: map[string]any{"command": "/usr/bin/dockerd", "pid": 1234}}, "/usr/bin/dockerd"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NaturalKey(&tc.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
