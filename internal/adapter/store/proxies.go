package store

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/logger"
)

// ProxyStore owns the proxy population. Proxies have no identity beyond
// their URL; duplicates are tolerated.
type ProxyStore struct {
	mu      sync.RWMutex
	path    string
	proxies []*domain.Proxy
	logger  *logger.StyledLogger
}

func NewProxyStore(path string, logger *logger.StyledLogger) *ProxyStore {
	return &ProxyStore{
		path:   path,
		logger: logger,
	}
}

// Load reads the proxies flat-file. Records are ip:port or
// ip:port:user:pass; anything else is skipped with a warning.
func (s *ProxyStore) Load() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open proxies file %s: %w", s.path, err)
	}
	defer func() { _ = file.Close() }()

	var proxies []*domain.Proxy
	lineNo := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		proxy, err := ParseProxyLine(line)
		if err != nil {
			s.logger.Warn("Skipping malformed proxy line", "line", lineNo, "error", err)
			continue
		}
		proxies = append(proxies, proxy)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read proxies file: %w", err)
	}

	s.mu.Lock()
	s.proxies = proxies
	s.mu.Unlock()

	s.logger.InfoWithCount("Loaded proxies", len(proxies), "path", s.path)
	return nil
}

// ParseProxyLine parses one proxy record into its normalised URL form.
func ParseProxyLine(line string) (*domain.Proxy, error) {
	fields := strings.Split(line, ":")

	var host, user, pass string
	var portField string

	switch len(fields) {
	case 2:
		host, portField = fields[0], fields[1]
	case 4:
		host, portField, user, pass = fields[0], fields[1], fields[2], fields[3]
	default:
		return nil, fmt.Errorf("expected ip:port or ip:port:user:pass, got %d fields", len(fields))
	}

	port, err := strconv.Atoi(portField)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %q", portField)
	}

	url := fmt.Sprintf("http://%s:%d/", host, port)
	if user != "" {
		url = fmt.Sprintf("http://%s:%s@%s:%d/", user, pass, host, port)
	}

	return &domain.Proxy{
		URL:  url,
		Host: host,
		Port: port,
	}, nil
}

// PickRandom returns a uniformly-random proxy, or nil when none loaded.
func (s *ProxyStore) PickRandom() *domain.Proxy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.proxies) == 0 {
		return nil
	}
	return s.proxies[rand.Intn(len(s.proxies))]
}

// Count returns the number of loaded proxies.
func (s *ProxyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proxies)
}

// List returns a defensive copy of the proxy population.
func (s *ProxyStore) List() []*domain.Proxy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Proxy, len(s.proxies))
	copy(result, s.proxies)
	return result
}
