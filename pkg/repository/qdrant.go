package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantMemory implements Memory on a Qdrant collection. Each point
// carries the response text's embedding and a payload with the question,
// response, serialized metadata, and a unix timestamp.
type qdrantMemory struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string

	mu          sync.Mutex
	lastUpdated time.Time
}

// QdrantConfig holds connection settings for the memory store.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	VectorSize uint64
	Embedder   Embedder
}

// NewQdrant connects to Qdrant and ensures the conversation collection
// exists with cosine distance.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (Memory, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create qdrant client", goerr.V("host", cfg.Host))
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check collection", goerr.V("collection", cfg.Collection))
	}

	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create collection", goerr.V("collection", cfg.Collection))
		}
	}

	return &qdrantMemory{
		client:     client,
		embedder:   cfg.Embedder,
		collection: cfg.Collection,
	}, nil
}

func (m *qdrantMemory) Store(ctx context.Context, question, response string, metadata map[string]any) (string, error) {
	if m.embedder == nil {
		return "", goerr.New("memory store has no embedder configured")
	}

	vector, err := m.embedder.Embed(ctx, response)
	if err != nil {
		return "", goerr.Wrap(err, "failed to embed response")
	}

	var metaJSON string
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return "", goerr.Wrap(err, "failed to serialize metadata")
		}
		metaJSON = string(raw)
	}

	id := model.NewMemoryID()
	now := time.Now()

	wait := true
	_, err = m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"question":  question,
					"response":  response,
					"metadata":  metaJSON,
					"timestamp": float64(now.Unix()),
				}),
			},
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to store conversation", goerr.V("id", id))
	}

	m.mu.Lock()
	m.lastUpdated = now
	m.mu.Unlock()

	return id, nil
}

func (m *qdrantMemory) GetRelevant(ctx context.Context, question string, k int) ([]*model.MemoryRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	if m.embedder == nil {
		return nil, goerr.New("memory store has no embedder configured")
	}

	total, err := m.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: m.collection,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count memories")
	}
	if total == 0 {
		return nil, nil
	}

	limit := uint64(k)
	if total < limit {
		limit = total
	}

	vector, err := m.embedder.Embed(ctx, question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed question")
	}

	points, err := m.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: m.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "similarity query failed")
	}

	records := make([]*model.MemoryRecord, 0, len(points))
	for _, point := range points {
		record, err := recordFromPayload(point.GetId().GetUuid(), point.GetPayload())
		if err != nil {
			// One corrupt record must not fail the whole batch
			logging.Log(ctx, "memory", "skipping unreadable memory record", err)
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// recordFromPayload converts a stored point payload back to a MemoryRecord.
func recordFromPayload(id string, payload map[string]*qdrant.Value) (*model.MemoryRecord, error) {
	record := &model.MemoryRecord{ID: id}

	if v, ok := payload["question"]; ok {
		record.Question = v.GetStringValue()
	}
	if v, ok := payload["response"]; ok {
		record.Response = v.GetStringValue()
	}
	if v, ok := payload["timestamp"]; ok {
		record.Timestamp = time.Unix(int64(v.GetDoubleValue()), 0)
	}

	if v, ok := payload["metadata"]; ok {
		if raw := v.GetStringValue(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &record.Metadata); err != nil {
				return nil, goerr.Wrap(err, "corrupt metadata", goerr.V("id", id))
			}
		}
	}

	return record, nil
}

func (m *qdrantMemory) Stats(ctx context.Context) (*model.MemoryStats, error) {
	total, err := m.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: m.collection,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count memories")
	}

	m.mu.Lock()
	lastUpdated := m.lastUpdated
	m.mu.Unlock()

	return &model.MemoryStats{
		Total:       int(total),
		LastUpdated: lastUpdated,
	}, nil
}

func (m *qdrantMemory) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := float64(time.Now().AddDate(0, 0, -olderThanDays).Unix())
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewRange("timestamp", &qdrant.Range{Lt: &cutoff}),
		},
	}

	stale, err := m.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: m.collection,
		Filter:         filter,
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count stale memories")
	}
	if stale == 0 {
		return 0, nil
	}

	wait := true
	_, err = m.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete stale memories")
	}

	return int(stale), nil
}
