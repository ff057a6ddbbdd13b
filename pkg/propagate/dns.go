package propagate

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// Route53API defines the Route53 operations used by the DNS announcer.
type Route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// DNSAnnouncer repoints the stable primary record at the new primary's
// endpoint with a single UPSERT. The TTL is capped at 60 seconds so cached
// resolutions of the old primary age out within a minute.
type DNSAnnouncer struct {
	client     Route53API
	zoneID     string
	recordName string
	ttl        int64
}

// NewDNSAnnouncer creates an announcer for the given hosted zone and record.
func NewDNSAnnouncer(cfg aws.Config, zoneID, recordName string, ttl time.Duration) *DNSAnnouncer {
	return NewDNSAnnouncerWithClient(route53.NewFromConfig(cfg), zoneID, recordName, ttl)
}

// NewDNSAnnouncerWithClient creates an announcer with an existing client (for testing).
func NewDNSAnnouncerWithClient(client Route53API, zoneID, recordName string, ttl time.Duration) *DNSAnnouncer {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 || seconds > 60 {
		seconds = 60
	}
	return &DNSAnnouncer{
		client:     client,
		zoneID:     zoneID,
		recordName: recordName,
		ttl:        seconds,
	}
}

// Name identifies this channel in fan-out results and logs.
func (d *DNSAnnouncer) Name() string { return "dns" }

// Announce upserts the primary CNAME to the new primary's host.
func (d *DNSAnnouncer) Announce(ctx context.Context, a Announcement) error {
	host, _, err := net.SplitHostPort(a.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q is not host:port: %w", a.Endpoint, err)
	}

	_, err = d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(d.zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Comment: aws.String(fmt.Sprintf("failover to %s generation %d", a.RegionID, a.Generation)),
			Changes: []r53types.Change{
				{
					Action: r53types.ChangeActionUpsert,
					ResourceRecordSet: &r53types.ResourceRecordSet{
						Name: aws.String(d.recordName),
						Type: r53types.RRTypeCname,
						TTL:  aws.Int64(d.ttl),
						ResourceRecords: []r53types.ResourceRecord{
							{Value: aws.String(host)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert primary record %s: %w", d.recordName, err)
	}
	return nil
}

// Ensure DNSAnnouncer implements Announcer.
var _ Announcer = (*DNSAnnouncer)(nil)
