package location

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

// cityRecord is the minimal struct for MMDB city lookups.
type cityRecord struct {
	Location struct {
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// cityLookup is satisfied by *CityDatabase and by fakes in tests.
type cityLookup interface {
	lookupCity(addr netip.Addr) (cityRecord, error)
}

// CityDatabase resolves IP addresses to approximate coordinates using a MaxMind city MMDB file.
type CityDatabase struct {
	reader *maxminddb.Reader
}

// OpenCityDatabase opens an MMDB file such as GeoLite2-City.mmdb.
func OpenCityDatabase(dbPath string) (*CityDatabase, error) {
	r, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open city database %s: %w", dbPath, err)
	}
	return &CityDatabase{reader: r}, nil
}

func (c *CityDatabase) Close() error {
	return c.reader.Close()
}

func (c *CityDatabase) lookupCity(addr netip.Addr) (cityRecord, error) {
	var rec cityRecord
	if err := c.reader.Lookup(addr).Decode(&rec); err != nil {
		return cityRecord{}, err
	}
	return rec, nil
}

// LocatorFor returns a Locator that resolves the given client IP.
func (c *CityDatabase) LocatorFor(ip string) Locator {
	return &IPLocator{db: c, ip: ip}
}

// IPLocator approximates the device position from its public IP address.
type IPLocator struct {
	db cityLookup
	ip string
}

func (l *IPLocator) Locate(_ context.Context, _ LocateOptions) (Coordinates, error) {
	addr, err := netip.ParseAddr(l.ip)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: invalid ip %q", ErrUnavailable, l.ip)
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return Coordinates{}, fmt.Errorf("%w: ip %s is not publicly routable", ErrUnavailable, addr)
	}

	rec, err := l.db.lookupCity(addr)
	if err != nil {
		return Coordinates{}, fmt.Errorf("city lookup for %s failed: %w", addr, err)
	}
	if rec.Location.Latitude == nil || rec.Location.Longitude == nil {
		return Coordinates{}, fmt.Errorf("%w: no location for %s", ErrUnavailable, addr)
	}
	return Coordinates{Lat: *rec.Location.Latitude, Lng: *rec.Location.Longitude}, nil
}
