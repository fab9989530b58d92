// Package geoip maps client IP addresses to approximate locations using a
// local MaxMind database. The service degrades to empty results instead of
// erroring: event delivery must never fail because geolocation failed.
package geoip

import (
	"io"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"conversions-relay-service/internal/model"
)

// Lifecycle states. While the service is not Ready every lookup returns the
// all-empty GeoLocation.
const (
	StateUninitialized int32 = iota
	StateInitializing
	StateReady
	StateFailedInit
)

const (
	// minDBSize guards against truncated or placeholder database files.
	minDBSize = 1 << 20

	// selfTestIP must resolve in any real GeoLite2-City database.
	selfTestIP = "8.8.8.8"

	staleAfter = 30 * 24 * time.Hour
)

// defaultDBPaths are probed in order when no explicit path is configured.
var defaultDBPaths = []string{
	"data/GeoLite2-City.mmdb",
	"./data/GeoLite2-City.mmdb",
	"/var/lib/geoip/GeoLite2-City.mmdb",
}

// localePreference orders the name locales used when extracting location
// names, with English as the final fallback.
var localePreference = []string{"pt-BR", "pt", "en"}

// cityReader is the slice of *geoip2.Reader that lookups depend on.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Service is the process-wide lookup engine. The underlying reader is
// immutable once Ready, so concurrent lookups need no locking; the cache is
// safe for concurrent use and idempotent writes make last-write-wins fine.
type Service struct {
	state  atomic.Int32
	reader cityReader
	cache  *ttlcache.Cache[string, model.GeoLocation]
	paths  []string
	now    func() time.Time
}

// NewService builds an uninitialized Service. dbPath, when non-empty, is
// probed before the default candidate paths.
func NewService(dbPath string, cacheTTL time.Duration, cacheSize int) *Service {
	paths := defaultDBPaths
	if dbPath != "" {
		paths = append([]string{dbPath}, defaultDBPaths...)
	}

	cache := ttlcache.New[string, model.GeoLocation](
		ttlcache.WithTTL[string, model.GeoLocation](cacheTTL),
		ttlcache.WithCapacity[string, model.GeoLocation](uint64(cacheSize)),
		ttlcache.WithDisableTouchOnHit[string, model.GeoLocation](),
	)

	return &Service{
		cache: cache,
		paths: paths,
		now:   time.Now,
	}
}

// Initialize probes the candidate database paths, opens the reader and
// self-tests it. It never returns an error; a false result leaves the service
// in FailedInit and all lookups returning empty locations.
func (s *Service) Initialize() bool {
	if !s.state.CompareAndSwap(StateUninitialized, StateInitializing) {
		return s.state.Load() == StateReady
	}

	path := s.probePaths()
	if path == "" {
		log.Error().Strs("candidates", s.paths).Msg("no readable geoip database found")
		s.state.Store(StateFailedInit)
		return false
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open geoip database")
		s.state.Store(StateFailedInit)
		return false
	}

	if _, err := reader.City(net.ParseIP(selfTestIP)); err != nil {
		log.Error().Err(err).Str("ip", selfTestIP).Msg("geoip self-test lookup failed")
		_ = reader.Close()
		s.state.Store(StateFailedInit)
		return false
	}

	built := time.Unix(int64(reader.Metadata().BuildEpoch), 0)
	if s.now().Sub(built) > staleAfter {
		log.Warn().Time("build_date", built).Msg("geoip database is older than 30 days")
	}

	s.reader = reader
	go s.cache.Start()
	s.state.Store(StateReady)
	log.Info().Str("path", path).Time("build_date", built).Msg("geoip database initialized")
	return true
}

// probePaths returns the first candidate path that exists, is readable and is
// large enough to be a real database.
func (s *Service) probePaths() string {
	for _, candidate := range s.paths {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() < minDBSize {
			log.Warn().Str("path", candidate).Int64("size", info.Size()).Msg("geoip candidate too small, skipping")
			continue
		}
		f, err := os.Open(candidate)
		if err != nil {
			log.Warn().Str("path", candidate).Err(err).Msg("geoip candidate not readable, skipping")
			continue
		}
		_ = f.Close()
		return candidate
	}
	return ""
}

// Ready reports whether lookups can return real data.
func (s *Service) Ready() bool {
	return s.state.Load() == StateReady
}

// Close releases the reader and stops cache eviction.
func (s *Service) Close() {
	s.cache.Stop()
	if closer, ok := s.reader.(io.Closer); ok {
		_ = closer.Close()
	}
}

// IsValidIP strictly validates an IPv4 or IPv6 address. IPv4 octets with
// disallowed leading zeros are rejected; IPv6 is accepted in full,
// zero-compressed, IPv4-embedded and ::ffff:-mapped forms. Zoned addresses
// are rejected since they carry no routable location.
func IsValidIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.Zone() == ""
}

// Lookup resolves an IP to a GeoLocation. The result is always fully shaped;
// unknown or failed lookups yield the zero value. Both hits and misses are
// cached so known-bad IPs are not re-queried within the TTL window.
func (s *Service) Lookup(ip string) model.GeoLocation {
	clean := strings.TrimPrefix(ip, "::ffff:")

	if !IsValidIP(clean) {
		return model.GeoLocation{}
	}
	if !s.Ready() {
		return model.GeoLocation{}
	}

	if item := s.cache.Get(clean); item != nil {
		return item.Value()
	}

	record, err := s.reader.City(net.ParseIP(clean))
	if err != nil {
		log.Warn().Str("ip", clean).Err(err).Msg("geoip lookup failed")
		s.cache.Set(clean, model.GeoLocation{}, ttlcache.DefaultTTL)
		return model.GeoLocation{}
	}

	geo := extractLocation(record)
	s.cache.Set(clean, geo, ttlcache.DefaultTTL)
	return geo
}

func extractLocation(record *geoip2.City) model.GeoLocation {
	if record == nil {
		return model.GeoLocation{}
	}

	geo := model.GeoLocation{
		Country:        localizedName(record.Country.Names),
		City:           localizedName(record.City.Names),
		Postal:         record.Postal.Code,
		Latitude:       record.Location.Latitude,
		Longitude:      record.Location.Longitude,
		Timezone:       record.Location.TimeZone,
		AccuracyRadius: record.Location.AccuracyRadius,
	}
	if len(record.Subdivisions) > 0 {
		geo.Subdivision = localizedName(record.Subdivisions[0].Names)
	}
	return geo
}

func localizedName(names map[string]string) string {
	for _, locale := range localePreference {
		if name := names[locale]; name != "" {
			return name
		}
	}
	return ""
}

// ExtractClientIP walks the proxy-forwarding signals in priority order and
// returns the first value that validates, or "". The forwarded-for chain uses
// the first entry: that is the original client, later entries are proxies.
func ExtractClientIP(meta model.RequestMeta) string {
	strategies := []func(model.RequestMeta) string{
		func(m model.RequestMeta) string { return firstForwardedFor(headerValue(m, "X-Forwarded-For")) },
		func(m model.RequestMeta) string { return headerValue(m, "CF-Connecting-IP") },
		func(m model.RequestMeta) string { return headerValue(m, "True-Client-IP") },
		func(m model.RequestMeta) string { return headerValue(m, "X-Real-IP") },
		func(m model.RequestMeta) string { return stripPort(m.RemoteAddr) },
		func(m model.RequestMeta) string { return m.PayloadIP },
	}

	for _, strategy := range strategies {
		candidate := strings.TrimSpace(strategy(meta))
		if candidate == "" {
			continue
		}
		if IsValidIP(strings.TrimPrefix(candidate, "::ffff:")) {
			return candidate
		}
	}
	return ""
}

func headerValue(meta model.RequestMeta, name string) string {
	for key, val := range meta.Headers {
		if strings.EqualFold(key, name) {
			return val
		}
	}
	return ""
}

func firstForwardedFor(chain string) string {
	if chain == "" {
		return ""
	}
	first, _, _ := strings.Cut(chain, ",")
	return strings.TrimSpace(first)
}

func stripPort(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
