package activity

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"kanban-api/domain"
)

const tablePartition = "activity"

type tableAPI interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
}

type queueAPI interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// TableMirror copies records into an Azure Storage table.
type TableMirror struct {
	client tableAPI
}

// NewTableMirror wraps a table client.
func NewTableMirror(client *aztables.Client) *TableMirror {
	return &TableMirror{client: client}
}

func (m *TableMirror) Name() string { return "table" }

type activityEntity struct {
	aztables.Entity
	ActivityID string `json:"ActivityId"`
	Comment    string `json:"Comment"`
	OldValue   string `json:"OldValue"`
	NewValue   string `json:"NewValue"`
	RecordedAt int64  `json:"RecordedAt,string"`
	// Table storage needs the type hint to keep 64 bit values intact.
	RecordedAtType string `json:"RecordedAt@odata.type"`
	ItemID         *int64 `json:"ItemId,omitempty"`
}

func encodeEntity(rec domain.Activity) ([]byte, error) {
	ent := activityEntity{
		Entity:         aztables.Entity{PartitionKey: tablePartition, RowKey: uuid.NewString()},
		ActivityID:     strconv.FormatInt(rec.ID, 10),
		Comment:        rec.Comment,
		OldValue:       rec.OldValue,
		NewValue:       rec.NewValue,
		RecordedAt:     rec.Timestamp,
		RecordedAtType: "Edm.Int64",
		ItemID:         rec.ItemID,
	}
	return json.Marshal(ent)
}

func (m *TableMirror) Publish(ctx context.Context, rec domain.Activity) error {
	payload, err := encodeEntity(rec)
	if err != nil {
		return err
	}
	_, err = m.client.AddEntity(ctx, payload, nil)
	return err
}

// QueueMirror publishes records as JSON messages on an Azure Storage queue.
type QueueMirror struct {
	client queueAPI
}

// NewQueueMirror wraps a queue client.
func NewQueueMirror(client *azqueue.QueueClient) *QueueMirror {
	return &QueueMirror{client: client}
}

func (m *QueueMirror) Name() string { return "queue" }

func (m *QueueMirror) Publish(ctx context.Context, rec domain.Activity) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = m.client.EnqueueMessage(ctx, string(data), nil)
	return err
}
