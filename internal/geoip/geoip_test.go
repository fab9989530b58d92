package geoip

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/require"

	"conversions-relay-service/internal/model"
)

func TestIsValidIP(t *testing.T) {
	valid := []string{
		"8.8.8.8",
		"0.0.0.0",
		"255.255.255.255",
		"200.160.2.3",
		"2001:db8:85a3:0:0:8a2e:370:7334",
		"2001:0db8:85a3:0000:0000:8a2e:0370:7334",
		"2804:1054:3016:61b0:8070:e8a8:6f99:3663",
		"::1",
		"::",
		"64:ff9b::1.2.3.4",
		"::ffff:8.8.8.8",
	}
	for _, ip := range valid {
		require.True(t, IsValidIP(ip), "expected valid: %s", ip)
	}

	invalid := []string{
		"",
		"unknown",
		"999.999.999.999",
		"256.1.1.1",
		"1.2.3",
		"1.2.3.4.5",
		"01.2.3.4",
		"1.02.3.4",
		"1.2.3.4:8080",
		"2001:db8::1::2",
		"1:2:3:4:5:6:7:8:9",
		"::gggg",
		"fe80::1%eth0",
	}
	for _, ip := range invalid {
		require.False(t, IsValidIP(ip), "expected invalid: %s", ip)
	}
}

func TestExtractClientIP_ForwardedForFirstEntry(t *testing.T) {
	meta := model.RequestMeta{
		Headers: map[string]string{
			"X-Forwarded-For": "8.8.8.8, 10.0.0.1, 172.16.0.1",
			"X-Real-IP":       "1.1.1.1",
		},
		RemoteAddr: "192.168.1.10:51234",
	}

	require.Equal(t, "8.8.8.8", ExtractClientIP(meta))
}

func TestExtractClientIP_HeaderPriority(t *testing.T) {
	// Invalid forwarded-for entry falls through to CDN headers.
	meta := model.RequestMeta{
		Headers: map[string]string{
			"X-Forwarded-For":  "unknown, 8.8.8.8",
			"CF-Connecting-IP": "1.1.1.1",
			"X-Real-IP":        "9.9.9.9",
		},
	}
	require.Equal(t, "1.1.1.1", ExtractClientIP(meta))

	delete(meta.Headers, "CF-Connecting-IP")
	meta.Headers["True-Client-IP"] = "2.2.2.2"
	require.Equal(t, "2.2.2.2", ExtractClientIP(meta))
}

func TestExtractClientIP_HeaderCaseInsensitive(t *testing.T) {
	meta := model.RequestMeta{
		Headers: map[string]string{"x-forwarded-for": "200.160.2.3"},
	}
	require.Equal(t, "200.160.2.3", ExtractClientIP(meta))
}

func TestExtractClientIP_RemoteAddrFallback(t *testing.T) {
	meta := model.RequestMeta{RemoteAddr: "200.160.2.3:443"}
	require.Equal(t, "200.160.2.3", ExtractClientIP(meta))

	meta = model.RequestMeta{RemoteAddr: "[2001:db8::1]:443"}
	require.Equal(t, "2001:db8::1", ExtractClientIP(meta))
}

func TestExtractClientIP_PayloadFallback(t *testing.T) {
	meta := model.RequestMeta{
		Headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
		RemoteAddr: "bad",
		PayloadIP:  "::ffff:8.8.8.8",
	}
	require.Equal(t, "::ffff:8.8.8.8", ExtractClientIP(meta))
}

func TestExtractClientIP_NoSignal(t *testing.T) {
	require.Equal(t, "", ExtractClientIP(model.RequestMeta{}))
	require.Equal(t, "", ExtractClientIP(model.RequestMeta{PayloadIP: "999.999.999.999"}))
}

// stubReader counts reader queries so tests can observe cache behavior.
type stubReader struct {
	calls  int
	record *geoip2.City
	err    error
}

func (r *stubReader) City(net.IP) (*geoip2.City, error) {
	r.calls++
	return r.record, r.err
}

func readyService(reader cityReader) *Service {
	svc := NewService("", time.Hour, 10)
	svc.reader = reader
	svc.state.Store(StateReady)
	return svc
}

func TestLookup_CachesHits(t *testing.T) {
	var record geoip2.City
	record.Country.Names = map[string]string{"en": "Brazil"}
	record.City.Names = map[string]string{"en": "Mountain View"}
	reader := &stubReader{record: &record}
	svc := readyService(reader)

	first := svc.Lookup("8.8.8.8")
	second := svc.Lookup("8.8.8.8")

	require.Equal(t, "Brazil", first.Country)
	require.Equal(t, "Mountain View", first.City)
	require.Equal(t, first, second)
	require.Equal(t, 1, reader.calls, "repeated lookups must be served from cache")

	// The mapped form normalizes to the same cache key.
	require.Equal(t, first, svc.Lookup("::ffff:8.8.8.8"))
	require.Equal(t, 1, reader.calls)
}

func TestLookup_CachesReaderFailures(t *testing.T) {
	reader := &stubReader{err: errors.New("corrupt database block")}
	svc := readyService(reader)

	require.True(t, svc.Lookup("8.8.8.8").IsZero())
	require.True(t, svc.Lookup("8.8.8.8").IsZero())
	require.Equal(t, 1, reader.calls, "failed lookups are cached, not re-queried")
}

func TestLookup_CachesNotFound(t *testing.T) {
	// An unknown IP yields an empty record and no error; the empty result is
	// cached the same way a hit is.
	reader := &stubReader{record: &geoip2.City{}}
	svc := readyService(reader)

	require.True(t, svc.Lookup("8.8.8.8").IsZero())
	require.True(t, svc.Lookup("8.8.8.8").IsZero())
	require.Equal(t, 1, reader.calls)
}

func TestLookup_NotReadyReturnsEmpty(t *testing.T) {
	svc := NewService("", time.Hour, 10)

	geo := svc.Lookup("8.8.8.8")
	require.True(t, geo.IsZero())
	require.False(t, svc.Ready())
}

func TestLookup_InvalidIPReturnsEmpty(t *testing.T) {
	svc := NewService("", time.Hour, 10)

	require.True(t, svc.Lookup("999.999.999.999").IsZero())
	require.True(t, svc.Lookup("").IsZero())
}

func TestInitialize_MissingDatabase(t *testing.T) {
	svc := NewService("/nonexistent/GeoLite2-City.mmdb", time.Hour, 10)
	svc.paths = []string{"/nonexistent/GeoLite2-City.mmdb"}

	require.False(t, svc.Initialize())
	require.False(t, svc.Ready())
	// Lookups after a failed init still return shaped empty results.
	require.True(t, svc.Lookup("8.8.8.8").IsZero())
}

func TestExtractLocation_LocalePreference(t *testing.T) {
	var record geoip2.City
	record.Country.Names = map[string]string{"en": "Brazil", "pt-BR": "Brasil"}
	record.City.Names = map[string]string{"en": "Sao Paulo"}
	record.Postal.Code = "01310-100"
	record.Location.Latitude = -23.55
	record.Location.Longitude = -46.63
	record.Location.TimeZone = "America/Sao_Paulo"
	record.Location.AccuracyRadius = 20

	geo := extractLocation(&record)

	require.Equal(t, "Brasil", geo.Country)
	require.Equal(t, "Sao Paulo", geo.City)
	require.Equal(t, "01310-100", geo.Postal)
	require.Equal(t, "America/Sao_Paulo", geo.Timezone)
	require.Equal(t, uint16(20), geo.AccuracyRadius)
	require.Empty(t, geo.Subdivision)
}

func TestExtractLocation_Empty(t *testing.T) {
	require.True(t, extractLocation(nil).IsZero())
	require.True(t, extractLocation(&geoip2.City{}).IsZero())
}
