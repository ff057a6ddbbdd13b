package events

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type mockSQSAPI struct {
	mu       sync.Mutex
	messages []types.Message
	deleted  []string
	recvErr  error
}

func (m *mockSQSAPI) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recvErr != nil {
		return nil, m.recvErr
	}
	msgs := m.messages
	m.messages = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (m *mockSQSAPI) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, *params.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

type recordingMarker struct {
	mu      sync.Mutex
	marked  []string
	cleared []string
}

func (r *recordingMarker) MarkDegraded(regionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked = append(r.marked, regionID)
}

func (r *recordingMarker) ClearDegraded(regionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, regionID)
}

func message(handle, body string) types.Message {
	return types.Message{
		ReceiptHandle: aws.String(handle),
		Body:          aws.String(body),
	}
}

func TestConsumer_MaintenanceScheduledMarksDegraded(t *testing.T) {
	mock := &mockSQSAPI{messages: []types.Message{
		message("r1", `{
			"detail-type": "DB Instance Maintenance Scheduled",
			"detail": {"region-id": "us-west-2", "action": "scheduled"}
		}`),
	}}
	marker := &recordingMarker{}
	consumer := NewConsumerWithClient(mock, "https://sqs.test/events", marker)

	consumer.poll(context.Background())

	if len(marker.marked) != 1 || marker.marked[0] != "us-west-2" {
		t.Errorf("marked = %v, want [us-west-2]", marker.marked)
	}
	if len(mock.deleted) != 1 || mock.deleted[0] != "r1" {
		t.Errorf("deleted = %v, want [r1]", mock.deleted)
	}
}

func TestConsumer_MaintenanceCompletedClearsMark(t *testing.T) {
	mock := &mockSQSAPI{messages: []types.Message{
		message("r1", `{
			"detail-type": "DB Instance Maintenance Scheduled",
			"detail": {"region-id": "us-west-2", "action": "completed"}
		}`),
	}}
	marker := &recordingMarker{}
	consumer := NewConsumerWithClient(mock, "https://sqs.test/events", marker)

	consumer.poll(context.Background())

	if len(marker.marked) != 0 {
		t.Errorf("marked = %v, want none", marker.marked)
	}
	if len(marker.cleared) != 1 || marker.cleared[0] != "us-west-2" {
		t.Errorf("cleared = %v, want [us-west-2]", marker.cleared)
	}
}

func TestConsumer_StateChange(t *testing.T) {
	tests := []struct {
		name        string
		state       string
		wantMarked  int
		wantCleared int
	}{
		{"unavailable marks degraded", "unavailable", 1, 0},
		{"available clears mark", "available", 0, 1},
		{"unknown state ignored", "rebooting", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{
				"detail-type": "DB Instance State-change Notification",
				"detail": {"region-id": "ap-northeast-1", "state": %q}
			}`, tt.state)
			mock := &mockSQSAPI{messages: []types.Message{message("r1", body)}}
			marker := &recordingMarker{}
			consumer := NewConsumerWithClient(mock, "https://sqs.test/events", marker)

			consumer.poll(context.Background())

			if len(marker.marked) != tt.wantMarked {
				t.Errorf("marked = %v, want %d entries", marker.marked, tt.wantMarked)
			}
			if len(marker.cleared) != tt.wantCleared {
				t.Errorf("cleared = %v, want %d entries", marker.cleared, tt.wantCleared)
			}
		})
	}
}

func TestConsumer_MalformedMessageStillDeleted(t *testing.T) {
	mock := &mockSQSAPI{messages: []types.Message{
		message("r1", `not json`),
		message("r2", `{"detail-type": "Unknown Event", "detail": {}}`),
	}}
	marker := &recordingMarker{}
	consumer := NewConsumerWithClient(mock, "https://sqs.test/events", marker)

	consumer.poll(context.Background())

	if len(marker.marked) != 0 || len(marker.cleared) != 0 {
		t.Errorf("marker touched: marked=%v cleared=%v", marker.marked, marker.cleared)
	}
	if len(mock.deleted) != 2 {
		t.Errorf("deleted = %v, want both messages removed", mock.deleted)
	}
}

func TestConsumer_ReceiveErrorSkipsBatch(t *testing.T) {
	mock := &mockSQSAPI{recvErr: fmt.Errorf("throttled")}
	marker := &recordingMarker{}
	consumer := NewConsumerWithClient(mock, "https://sqs.test/events", marker)

	consumer.poll(context.Background())

	if len(marker.marked) != 0 {
		t.Errorf("marked = %v, want none", marker.marked)
	}
}
