package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidVolume = errors.New("invalid volume mapping")
	ErrInvalidPort   = errors.New("invalid port")
	ErrNoURL         = errors.New("at least one URL must be provided")
)

// VolumeMapping binds a directory under the application's volumes folder on
// the host to a path inside the container.
type VolumeMapping struct {
	Local     string
	Container string
}

func (v VolumeMapping) String() string {
	return v.Local + ":" + v.Container
}

// ParseVolumes parses "vol:/data,local:/other". Every entry needs exactly one
// colon; one bad entry rejects the whole argument.
func ParseVolumes(raw string) ([]VolumeMapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []VolumeMapping{}, nil
	}

	entries := strings.Split(raw, ",")
	volumes := make([]VolumeMapping, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Count(entry, ":") != 1 {
			return nil, fmt.Errorf("%w %q: expected local:/container/path", ErrInvalidVolume, entry)
		}
		local, container, _ := strings.Cut(entry, ":")
		local = strings.TrimSpace(local)
		container = strings.TrimSpace(container)
		if local == "" || container == "" {
			return nil, fmt.Errorf("%w %q: both sides of ':' are required", ErrInvalidVolume, entry)
		}
		volumes = append(volumes, VolumeMapping{Local: local, Container: container})
	}
	return volumes, nil
}

// FormatVolumes is the inverse of ParseVolumes.
func FormatVolumes(volumes []VolumeMapping) string {
	parts := make([]string, len(volumes))
	for i, v := range volumes {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

// ParsePort parses a TCP port in the range 1-65535.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidPort, raw, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w %d: out of range", ErrInvalidPort, port)
	}
	return port, nil
}

// SplitURLs splits a comma-separated host list, dropping empty entries and
// any scheme or path the operator typed.
func SplitURLs(raw string) ([]string, error) {
	var urls []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "https://")
		part = strings.TrimPrefix(part, "http://")
		part, _, _ = strings.Cut(part, "/")
		if part != "" {
			urls = append(urls, part)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoURL
	}
	return urls, nil
}

// Args is the resolved argument bundle handed to the pipelines.
type Args struct {
	Host    string
	AppName string
	URLs    []string
	Port    int
	Volumes []VolumeMapping
	Email   string
}

// Record writes every non-empty argument into the store.
func (a Args) Record(s *Store) error {
	entries := [][2]string{
		{KeyHost, a.Host},
		{KeyAppName, a.AppName},
		{KeyAppURL, strings.Join(a.URLs, ",")},
		{KeyEmail, a.Email},
	}
	if a.Port != 0 {
		entries = append(entries, [2]string{KeyAppPort, strconv.Itoa(a.Port)})
	}
	for _, e := range entries {
		if e[1] == "" {
			continue
		}
		if err := s.Set(e[0], e[1]); err != nil {
			return err
		}
	}
	if a.Volumes != nil {
		return s.Set(KeyVolumes, FormatVolumes(a.Volumes))
	}
	return nil
}
