package propagate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
)

type mockRoute53API struct {
	input *route53.ChangeResourceRecordSetsInput
	err   error
}

func (m *mockRoute53API) ChangeResourceRecordSets(_ context.Context, params *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &route53.ChangeResourceRecordSetsOutput{}, nil
}

func TestDNSAnnouncer_UpsertsCNAME(t *testing.T) {
	mock := &mockRoute53API{}
	announcer := NewDNSAnnouncerWithClient(mock, "Z123456", "primary.db.example.com", 30*time.Second)

	a := Announcement{
		RegionID:   "eu-west-1",
		Endpoint:   "db.eu-west-1.internal:5432",
		Generation: 2,
	}
	if err := announcer.Announce(context.Background(), a); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	if mock.input == nil {
		t.Fatal("no change request sent")
	}
	if got := *mock.input.HostedZoneId; got != "Z123456" {
		t.Errorf("zone = %s, want Z123456", got)
	}

	changes := mock.input.ChangeBatch.Changes
	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(changes))
	}
	change := changes[0]
	if change.Action != r53types.ChangeActionUpsert {
		t.Errorf("action = %s, want UPSERT", change.Action)
	}

	rrs := change.ResourceRecordSet
	if *rrs.Name != "primary.db.example.com" {
		t.Errorf("record name = %s", *rrs.Name)
	}
	if rrs.Type != r53types.RRTypeCname {
		t.Errorf("record type = %s, want CNAME", rrs.Type)
	}
	if *rrs.TTL != 30 {
		t.Errorf("ttl = %d, want 30", *rrs.TTL)
	}
	if got := *rrs.ResourceRecords[0].Value; got != "db.eu-west-1.internal" {
		t.Errorf("record value = %s, want host without port", got)
	}
}

func TestDNSAnnouncer_TTLCappedAtSixtySeconds(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want int64
	}{
		{"zero defaults", 0, 60},
		{"above cap clamps", 5 * time.Minute, 60},
		{"within cap kept", 45 * time.Second, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockRoute53API{}
			announcer := NewDNSAnnouncerWithClient(mock, "Z123456", "primary.db.example.com", tt.ttl)

			a := Announcement{RegionID: "us-east-1", Endpoint: "db.us-east-1.internal:5432"}
			if err := announcer.Announce(context.Background(), a); err != nil {
				t.Fatalf("Announce failed: %v", err)
			}
			if got := *mock.input.ChangeBatch.Changes[0].ResourceRecordSet.TTL; got != tt.want {
				t.Errorf("ttl = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDNSAnnouncer_BadEndpoint(t *testing.T) {
	announcer := NewDNSAnnouncerWithClient(&mockRoute53API{}, "Z123456", "primary.db.example.com", time.Minute)

	a := Announcement{RegionID: "us-east-1", Endpoint: "no-port-here"}
	if err := announcer.Announce(context.Background(), a); err == nil {
		t.Fatal("expected error for endpoint without port")
	}
}

func TestDNSAnnouncer_UpstreamError(t *testing.T) {
	mock := &mockRoute53API{err: fmt.Errorf("Throttling: rate exceeded")}
	announcer := NewDNSAnnouncerWithClient(mock, "Z123456", "primary.db.example.com", time.Minute)

	a := Announcement{RegionID: "us-east-1", Endpoint: "db.us-east-1.internal:5432"}
	if err := announcer.Announce(context.Background(), a); err == nil {
		t.Fatal("expected upstream error to propagate")
	}
}
