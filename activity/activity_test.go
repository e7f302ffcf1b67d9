package activity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban-api/domain"
	"kanban-api/storage/storagetest"
)

type fakeTable struct {
	entities [][]byte
	err      error
}

func (f *fakeTable) AddEntity(_ context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	if f.err != nil {
		return aztables.AddEntityResponse{}, f.err
	}
	f.entities = append(f.entities, entity)
	return aztables.AddEntityResponse{}, nil
}

type fakeQueue struct {
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(_ context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

type failingValue struct{}

func (failingValue) MarshalJSON() ([]byte, error) { return nil, errors.New("boom") }

func TestRecordStoresSerializedValues(t *testing.T) {
	db := storagetest.NewDB(t)
	l := New(db, nil)
	fixed := time.Unix(1700000000, 0)
	l.now = func() time.Time { return fixed }

	itemID := int64(7)
	ctx := context.Background()
	if err := l.Record(ctx, "Item moved.", map[string]int{"lane": 1}, map[string]int{"lane": 2}, &itemID); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(ctx, "Board renamed.", "old", "new", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	recs, err := l.ForItem(ctx, itemID)
	if err != nil {
		t.Fatalf("for item: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 item record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.OldValue != `{"lane":1}` || rec.NewValue != `{"lane":2}` || rec.Timestamp != fixed.Unix() {
		t.Fatalf("unexpected record: %+v", rec)
	}

	recent, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Comment != "Board renamed." || recent[0].OldValue != `"old"` {
		t.Fatalf("unexpected recent records: %+v", recent)
	}
}

func TestRecordSerializationFailureIsReported(t *testing.T) {
	db := storagetest.NewDB(t)
	l := New(db, nil)

	err := l.Record(context.Background(), "broken", failingValue{}, "x", nil)
	if err == nil {
		t.Fatalf("expected serialization error")
	}
	var count int64
	if err := db.Model(&domain.Activity{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no record to be written, got %d", count)
	}
}

func TestRecordFansOutToMirrors(t *testing.T) {
	db := storagetest.NewDB(t)
	table := &fakeTable{}
	queue := &fakeQueue{}
	l := New(db, nil, &TableMirror{client: table}, &QueueMirror{client: queue})

	if err := l.Record(context.Background(), "Lane added.", nil, "Todo", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(table.entities) != 1 || len(queue.messages) != 1 {
		t.Fatalf("expected one entity and one message, got %d/%d", len(table.entities), len(queue.messages))
	}

	var ent map[string]any
	if err := json.Unmarshal(table.entities[0], &ent); err != nil {
		t.Fatalf("decode entity: %v", err)
	}
	if ent["PartitionKey"] != tablePartition || ent["RowKey"] == "" || ent["Comment"] != "Lane added." {
		t.Fatalf("unexpected entity: %v", ent)
	}
	if ent["NewValue"] != `"Todo"` || ent["OldValue"] != "null" {
		t.Fatalf("unexpected values: %v", ent)
	}

	var msg domain.Activity
	if err := json.Unmarshal([]byte(queue.messages[0]), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.ID == 0 || msg.Comment != "Lane added." {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestRecordMirrorFailureIsReturnedAndLogged(t *testing.T) {
	db := storagetest.NewDB(t)
	logger, hook := test.NewNullLogger()
	l := New(db, logger, &QueueMirror{client: &fakeQueue{err: errors.New("queue down")}})

	err := l.Record(context.Background(), "Item added.", nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "queue down") {
		t.Fatalf("expected mirror error, got %v", err)
	}
	var count int64
	if err := db.Model(&domain.Activity{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected primary record to be kept, got %d", count)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel || entry.Data["mirror"] != "queue" {
		t.Fatalf("expected mirror failure to be logged, got %+v", entry)
	}
}
