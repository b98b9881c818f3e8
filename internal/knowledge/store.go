package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
	"github.com/tatamiapp/tatami-backend/internal/platform/neo4jdb"
)

// Store is the knowledge-graph collaborator consumed by the compiler: CanDo
// descriptor lookup plus the learner's pre-requisite kit along their active
// learning path.
type Store interface {
	FetchDescriptor(ctx context.Context, id string) (*domain.CanDoDescriptor, error)
	// FetchKit returns nil (no error) when the learner has no active learning
	// path for this descriptor; compilation degrades to an empty kit context.
	FetchKit(ctx context.Context, userID uuid.UUID, descriptorID string) (*domain.Kit, error)
}

// ErrDescriptorNotFound is returned when the CanDo id has no graph node.
type ErrDescriptorNotFound struct {
	ID string
}

func (e *ErrDescriptorNotFound) Error() string {
	return fmt.Sprintf("knowledge: descriptor %q not found", e.ID)
}

type graphStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewGraphStore(client *neo4jdb.Client, baseLog *logger.Logger) Store {
	return &graphStore{client: client, log: baseLog.With("service", "KnowledgeStore")}
}

func (s *graphStore) FetchDescriptor(ctx context.Context, id string) (*domain.CanDoDescriptor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("knowledge: descriptor id required")
	}
	if s.client == nil || s.client.Driver == nil {
		return nil, fmt.Errorf("knowledge: graph client unavailable")
	}

	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	record, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:CanDo {id: $id})
			RETURN c.id AS id, c.level AS level, c.topic AS topic,
			       c.statement AS statement, c.statement_en AS statement_en
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			return res.Record(), nil
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: fetch descriptor: %w", err)
	}
	if record == nil {
		return nil, &ErrDescriptorNotFound{ID: id}
	}

	rec := record.(*neo4j.Record)
	return &domain.CanDoDescriptor{
		ID:          stringValue(rec, "id"),
		Level:       stringValue(rec, "level"),
		Topic:       stringValue(rec, "topic"),
		Statement:   stringValue(rec, "statement"),
		StatementEN: stringValue(rec, "statement_en"),
	}, nil
}

func (s *graphStore) FetchKit(ctx context.Context, userID uuid.UUID, descriptorID string) (*domain.Kit, error) {
	descriptorID = strings.TrimSpace(descriptorID)
	if userID == uuid.Nil || descriptorID == "" {
		return nil, nil
	}
	if s.client == nil || s.client.Driver == nil {
		return nil, nil
	}

	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	items, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (u:User {id: $user_id})-[:ON_PATH]->(p:LearningPath)
			      -[:PREREQ_FOR {cando_id: $descriptor_id}]->(i:KitItem)
			RETURN i.kind AS kind, i.text AS text, i.reading AS reading, i.gloss AS gloss
			ORDER BY i.order
		`, map[string]any{
			"user_id":       userID.String(),
			"descriptor_id": descriptorID,
		})
		if err != nil {
			return nil, err
		}
		var rows []*neo4j.Record
		for res.Next(ctx) {
			rows = append(rows, res.Record())
		}
		return rows, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: fetch kit: %w", err)
	}

	rows := items.([]*neo4j.Record)
	if len(rows) == 0 {
		return nil, nil
	}

	kit := &domain.Kit{}
	for _, rec := range rows {
		item := domain.KitItem{
			Text:    stringValue(rec, "text"),
			Reading: stringValue(rec, "reading"),
			Gloss:   stringValue(rec, "gloss"),
		}
		if item.Text == "" {
			continue
		}
		switch stringValue(rec, "kind") {
		case "word":
			kit.Words = append(kit.Words, item)
		case "grammar":
			kit.GrammarPatterns = append(kit.GrammarPatterns, item)
		case "phrase":
			kit.Phrases = append(kit.Phrases, item)
		}
	}
	if kit.Empty() {
		return nil, nil
	}
	return kit, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
