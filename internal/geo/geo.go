// Package geo resolves transaction IP addresses against MaxMind GeoIP2 /
// GeoLite2 databases.
package geo

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

var (
	ErrInvalidIP = errors.New("invalid IP address")
	ErrNoData    = errors.New("no geo data for address")
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

type asnReader interface {
	ASN(ip net.IP) (*geoip2.ASN, error)
}

// Resolver looks up country, city and autonomous system for an IP.
// Either database may be absent.
type Resolver struct {
	city   cityReader
	asn    asnReader
	closer []func() error
}

// Open opens the City and ASN databases at the given paths. An empty path
// skips that database.
func Open(cityPath, asnPath string) (*Resolver, error) {
	r := &Resolver{}
	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("open city database: %w", err)
		}
		r.city = db
		r.closer = append(r.closer, db.Close)
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("open ASN database: %w", err)
		}
		r.asn = db
		r.closer = append(r.closer, db.Close)
	}
	return r, nil
}

// Close releases the underlying databases.
func (r *Resolver) Close() error {
	var errs []error
	for _, c := range r.closer {
		errs = append(errs, c())
	}
	r.closer = nil
	return errors.Join(errs...)
}

// Lookup resolves ip. Failures in one database do not hide data from the
// other; ErrNoData is returned only when neither produced anything.
func (r *Resolver) Lookup(ip string) (*risk.GeoContext, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}

	out := &risk.GeoContext{IPAddress: ip}
	found := false

	if r.city != nil {
		if city, err := r.city.City(addr); err == nil && city != nil {
			out.Country = city.Country.Names["en"]
			out.CountryCode = city.Country.IsoCode
			out.City = city.City.Names["en"]
			found = found || out.CountryCode != "" || out.City != ""
		}
	}
	if r.asn != nil {
		if asn, err := r.asn.ASN(addr); err == nil && asn != nil {
			out.ASN = asn.AutonomousSystemNumber
			out.Organization = asn.AutonomousSystemOrganization
			found = found || out.ASN != 0
		}
	}

	if !found {
		return nil, ErrNoData
	}
	return out, nil
}

var _ risk.NetworkEnricher = (*Resolver)(nil)
