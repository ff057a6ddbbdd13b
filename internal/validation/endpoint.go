// Package validation provides shared validation utilities.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var regionIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// ValidateRegionID validates a region identifier. Region IDs are used as
// DynamoDB keys, DNS record components, and log fields, so they are
// restricted to lowercase alphanumerics and hyphens.
func ValidateRegionID(id string) error {
	if id == "" {
		return fmt.Errorf("region ID cannot be empty")
	}
	if !regionIDPattern.MatchString(id) {
		return fmt.Errorf("region ID %q must match %s", id, regionIDPattern.String())
	}
	return nil
}

// ValidateEndpoint validates a host:port database endpoint.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q must be host:port: %w", endpoint, err)
	}
	if host == "" {
		return fmt.Errorf("endpoint %q has an empty host", endpoint)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("endpoint %q has an invalid port %q", endpoint, port)
	}
	return nil
}
