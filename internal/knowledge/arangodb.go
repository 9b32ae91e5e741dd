package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

const (
	conceptsCollection = "concepts"
	edgesCollection    = "concept_edges"
	graphName          = "concept_graph"
)

// ArangoConfig configures the ArangoDB-backed Port.
type ArangoConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c ArangoConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("knowledge: arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("knowledge: arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("knowledge: arangodb database name is required")
	}
	return nil
}

// ArangoPort is the default knowledge graph backend.
type ArangoPort struct {
	client arangodb.Client
	db     arangodb.Database
	cfg    ArangoConfig
}

// NewArangoPort dials ArangoDB and ensures the database, collections
// and graph exist.
func NewArangoPort(ctx context.Context, cfg ArangoConfig) (*ArangoPort, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))
	if err := conn.SetAuthentication(connection.NewBasicAuth(cfg.Username, cfg.Password)); err != nil {
		return nil, fmt.Errorf("knowledge: arangodb auth: %w", err)
	}

	p := &ArangoPort{client: arangodb.NewClient(conn), cfg: cfg}
	if err := p.ensureDatabase(ctx); err != nil {
		return nil, err
	}
	if err := p.ensureCollections(ctx); err != nil {
		return nil, err
	}
	if err := p.ensureGraph(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ArangoPort) ensureDatabase(ctx context.Context) error {
	exists, err := p.client.DatabaseExists(ctx, p.cfg.Database)
	if err != nil {
		return fmt.Errorf("knowledge: check database exists: %w", err)
	}
	if !exists {
		if _, err := p.client.CreateDatabase(ctx, p.cfg.Database, nil); err != nil {
			return fmt.Errorf("knowledge: create database: %w", err)
		}
	}
	db, err := p.client.GetDatabase(ctx, p.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("knowledge: get database: %w", err)
	}
	p.db = db
	return nil
}

func (p *ArangoPort) ensureCollections(ctx context.Context) error {
	exists, err := p.db.CollectionExists(ctx, conceptsCollection)
	if err != nil {
		return fmt.Errorf("knowledge: check %s exists: %w", conceptsCollection, err)
	}
	if !exists {
		docType := arangodb.CollectionTypeDocument
		if _, err := p.db.CreateCollectionV2(ctx, conceptsCollection, &arangodb.CreateCollectionPropertiesV2{Type: &docType}); err != nil {
			return fmt.Errorf("knowledge: create %s: %w", conceptsCollection, err)
		}
	}

	exists, err = p.db.CollectionExists(ctx, edgesCollection)
	if err != nil {
		return fmt.Errorf("knowledge: check %s exists: %w", edgesCollection, err)
	}
	if !exists {
		edgeType := arangodb.CollectionTypeEdge
		if _, err := p.db.CreateCollectionV2(ctx, edgesCollection, &arangodb.CreateCollectionPropertiesV2{Type: &edgeType}); err != nil {
			return fmt.Errorf("knowledge: create %s: %w", edgesCollection, err)
		}
	}
	return nil
}

func (p *ArangoPort) ensureGraph(ctx context.Context) error {
	exists, err := p.db.GraphExists(ctx, graphName)
	if err != nil {
		return fmt.Errorf("knowledge: check graph exists: %w", err)
	}
	if exists {
		return nil
	}
	def := &arangodb.GraphDefinition{
		Name: graphName,
		EdgeDefinitions: []arangodb.EdgeDefinition{
			{Collection: edgesCollection, From: []string{conceptsCollection}, To: []string{conceptsCollection}},
		},
	}
	if _, err := p.db.CreateGraph(ctx, graphName, def, nil); err != nil {
		return fmt.Errorf("knowledge: create graph: %w", err)
	}
	return nil
}

func (p *ArangoPort) GetNode(ctx context.Context, conceptID string) (Node, error) {
	col, err := p.db.GetCollection(ctx, conceptsCollection, nil)
	if err != nil {
		return Node{}, fmt.Errorf("knowledge: get collection: %w", err)
	}

	var doc struct {
		ID   string `json:"concept_id"`
		Name string `json:"name"`
	}
	_, err = col.ReadDocument(ctx, conceptKey(conceptID), &doc)
	if err != nil {
		return Node{}, ErrNotFound
	}
	return Node{ID: doc.ID, Name: doc.Name}, nil
}

func (p *ArangoPort) AddNode(ctx context.Context, node Node) error {
	col, err := p.db.GetCollection(ctx, conceptsCollection, nil)
	if err != nil {
		return fmt.Errorf("knowledge: get collection: %w", err)
	}
	doc := map[string]any{
		"_key":       conceptKey(node.ID),
		"concept_id": node.ID,
		"name":       node.Name,
	}
	if _, err := col.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("knowledge: create node: %w", err)
	}
	return nil
}

func (p *ArangoPort) AddEdge(ctx context.Context, edge Edge) error {
	col, err := p.db.GetCollection(ctx, edgesCollection, nil)
	if err != nil {
		return fmt.Errorf("knowledge: get collection: %w", err)
	}
	doc := map[string]any{
		"_key":     edgeKey(edge.From, edge.To, edge.Type),
		"_from":    fmt.Sprintf("%s/%s", conceptsCollection, conceptKey(edge.From)),
		"_to":      fmt.Sprintf("%s/%s", conceptsCollection, conceptKey(edge.To)),
		"relation": string(edge.Type),
	}
	if _, err := col.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("knowledge: create edge: %w", err)
	}
	return nil
}

func (p *ArangoPort) GetRelatedNodes(ctx context.Context, conceptID string, types []RelationType) ([]Node, error) {
	start := time.Now()
	if len(types) == 0 {
		types = DefaultRelationTypes()
	}
	relations := make([]string, len(types))
	for i, t := range types {
		relations[i] = string(t)
	}

	query := `
		FOR v, e IN 1..1 OUTBOUND @start GRAPH @graph
			FILTER e.relation IN @relations
			RETURN { concept_id: v.concept_id, name: v.name }
	`
	startVertex := fmt.Sprintf("%s/%s", conceptsCollection, conceptKey(conceptID))

	cursor, err := p.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"start":     startVertex,
			"graph":     graphName,
			"relations": relations,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: query related nodes: %w", err)
	}
	defer cursor.Close()

	var nodes []Node
	for cursor.HasMore() {
		var doc struct {
			ID   string `json:"concept_id"`
			Name string `json:"name"`
		}
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("knowledge: read related node: %w", err)
		}
		if doc.ID == "" {
			continue
		}
		nodes = append(nodes, Node{ID: doc.ID, Name: doc.Name})
	}

	slog.DebugContext(ctx, "knowledge related nodes resolved",
		"concept_id", conceptID, "relations", relations,
		"count", len(nodes), "duration_ms", time.Since(start).Milliseconds())
	return nodes, nil
}

func conceptKey(conceptID string) string {
	hash := md5.Sum([]byte(conceptID))
	return hex.EncodeToString(hash[:])[:16]
}

func edgeKey(from, to string, rel RelationType) string {
	hash := md5.Sum([]byte(from + "->" + to + ":" + string(rel)))
	return hex.EncodeToString(hash[:])[:16]
}
