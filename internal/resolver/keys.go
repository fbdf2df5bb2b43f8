package resolver

import (
	"fmt"

	"spider/internal/domain"
)

// NaturalKey derives the kind-specific identity key for a raw record and
// validates the record's required fields. Ephemeral identifiers (PIDs,
// container hashes) never participate in the key.
func NaturalKey(rec *domain.RawRecord) (string, error) {
	switch rec.Kind {
	case domain.KindFile:
		path := rec.GetAttributeString("path")
		if path == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "path"}
		}
		return path, nil

	case domain.KindService:
		name := rec.GetAttributeString("name")
		if name == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "name"}
		}
		return name, nil

	case domain.KindContainer:
		name := rec.GetAttributeString("name")
		if name == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "name"}
		}
		image := rec.GetAttributeString("image")
		if image == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "image"}
		}
		return name + "@" + image, nil

	case domain.KindProcess:
		command := rec.GetAttributeString("command")
		if command == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "command"}
		}
		return command, nil

	case domain.KindNetEndpoint:
		address := rec.GetAttributeString("address")
		if address == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "address"}
		}
		port := rec.GetAttributeString("port")
		if port == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "port"}
		}
		protocol := rec.GetAttributeString("protocol")
		if protocol == "" {
			protocol = "tcp"
		}
		return fmt.Sprintf("%s:%s/%s", address, port, protocol), nil

	case domain.KindHost:
		hostname := rec.GetAttributeString("hostname")
		if hostname == "" {
			return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "hostname"}
		}
		return hostname, nil

	default:
		return "", &domain.ResolutionError{Kind: rec.Kind, HostID: rec.HostID, Missing: "recognized kind"}
	}
}
