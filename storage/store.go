package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"streamIngest/config"
	"streamIngest/core"
)

// TranscriptIndex stores appended transcript entries for retrieval. Every
// update cycle of the derived document upserts its new batch here.
type TranscriptIndex interface {
	Upsert(sessionID string, entries []core.Entry) int
	Search(sessionID string, query string, topK int) []core.Hit
}

// ---------------- Memory implementation (default) ----------------

type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string][]indexDoc // sessionID -> docs
}

type indexDoc struct {
	Start, End int64
	Text       string
	Speaker    string
	Embed      map[string]float64 // term -> weight
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: map[string][]indexDoc{}}
}

func (s *MemoryIndex) Upsert(sessionID string, entries []core.Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		vec := embedText(strings.ToLower(e.Text))
		s.docs[sessionID] = append(s.docs[sessionID], indexDoc{Start: e.Start, End: e.End, Text: e.Text, Speaker: e.Speaker, Embed: vec})
	}
	return len(entries)
}

func (s *MemoryIndex) Search(sessionID string, query string, topK int) []core.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[sessionID]
	qv := embedText(strings.ToLower(query))
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.Embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = min(len(scores), 5)
	}
	hits := make([]core.Hit, 0, topK)
	for _, sc := range scores[:topK] {
		d := docs[sc.i]
		hits = append(hits, core.Hit{Score: sc.score, Start: d.Start, End: d.End, Text: d.Text, Speaker: d.Speaker})
	}
	return hits
}

// ---------------- PgVector implementation ----------------

type PgVectorIndex struct {
	conn *pgx.Conn
	oa   *openai.Client
}

// ---------------- Milvus implementation ----------------

type MilvusIndex struct {
	mc   client.Client
	coll string
	dim  int
	oa   *openai.Client
}

// InitIndex selects the transcript index backend from the STORE
// environment variable (memory, pgvector, milvus). Backend failures warn
// and fall back to memory; indexing is an enrichment, never a hard
// dependency of the upload pipeline.
func InitIndex() TranscriptIndex {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Warning: Failed to load config (%v), using memory index\n", err)
		return NewMemoryIndex()
	}

	kind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch kind {
	case "pgvector":
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			fmt.Println("Warning: API configuration required for pgvector index, falling back to memory index")
			return NewMemoryIndex()
		}
		s, err := newPgVectorIndex(cfg)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize pgvector index (%v), falling back to memory index\n", err)
			return NewMemoryIndex()
		}
		return s
	case "milvus":
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			fmt.Println("Warning: API configuration required for Milvus index, falling back to memory index")
			return NewMemoryIndex()
		}
		s, err := newMilvusIndex()
		if err != nil {
			fmt.Printf("Warning: Failed to initialize Milvus index (%v), falling back to memory index\n", err)
			return NewMemoryIndex()
		}
		return s
	}
	return NewMemoryIndex()
}

func newPgVectorIndex(cfg *config.Config) (*PgVectorIndex, error) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorIndex{conn: conn}
	if err := s.ensureTable(); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorIndex) ensureTable() error {
	ctx := context.Background()

	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	entriesQuery := `
		CREATE TABLE IF NOT EXISTS transcript_entries (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			entry_id VARCHAR(255) NOT NULL,
			start_ms BIGINT NOT NULL,
			end_ms BIGINT NOT NULL,
			speaker VARCHAR(64) NOT NULL,
			text TEXT NOT NULL,
			embedding vector(1536),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, entry_id)
		);
	`
	if _, err := s.conn.Exec(ctx, entriesQuery); err != nil {
		return fmt.Errorf("failed to create transcript_entries table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transcript_entries_session ON transcript_entries(session_id);",
	}
	for _, indexQuery := range indexes {
		if _, err := s.conn.Exec(ctx, indexQuery); err != nil {
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}
	return nil
}

func (s *PgVectorIndex) openaiClient() *openai.Client {
	if s.oa == nil {
		s.oa = newOpenAIClient()
	}
	return s.oa
}

func (s *PgVectorIndex) Upsert(sessionID string, entries []core.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	ctx := context.Background()
	successCount := 0
	for _, e := range entries {
		embedding, err := embed(s.openaiClient(), strings.ToLower(e.Text))
		if err != nil {
			continue // skip the entry if embedding fails
		}
		vec := pgvector.NewVector(embedding)
		_, err = s.conn.Exec(ctx, `
			INSERT INTO transcript_entries (session_id, entry_id, start_ms, end_ms, speaker, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, entry_id)
			DO UPDATE SET
				start_ms = EXCLUDED.start_ms,
				end_ms = EXCLUDED.end_ms,
				speaker = EXCLUDED.speaker,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, sessionID, fmt.Sprintf("%s_%d", e.Speaker, e.Start), e.Start, e.End, e.Speaker, e.Text, vec)
		if err != nil {
			continue
		}
		successCount++
	}
	return successCount
}

func (s *PgVectorIndex) Search(sessionID string, query string, topK int) []core.Hit {
	if topK <= 0 {
		topK = 5
	}
	queryEmbedding, err := embed(s.openaiClient(), strings.ToLower(query))
	if err != nil {
		return nil
	}
	vec := pgvector.NewVector(queryEmbedding)
	ctx := context.Background()

	rows, err := s.conn.Query(ctx, `
		SELECT start_ms, end_ms, speaker, text,
			   1 - (embedding <=> $1) as similarity
		FROM transcript_entries
		WHERE session_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, sessionID, topK)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var start, end int64
		var similarity float64
		var speaker, text string
		if err := rows.Scan(&start, &end, &speaker, &text, &similarity); err != nil {
			continue
		}
		hits = append(hits, core.Hit{Score: similarity, Start: start, End: end, Text: text, Speaker: speaker})
	}
	return hits
}

func newMilvusIndex() (*MilvusIndex, error) {
	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	username := os.Getenv("MILVUS_USERNAME")
	password := os.Getenv("MILVUS_PASSWORD")
	apiKey := os.Getenv("MILVUS_API_KEY") // for Zilliz Cloud
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "transcript_entries"
	}

	mc, err := client.NewClient(context.Background(), client.Config{Address: addr, Username: username, Password: password, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusIndex{mc: mc, coll: coll, dim: 1536}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusIndex) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("session_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("start_ms").WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("end_ms").WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("speaker").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusIndex) openaiClient() *openai.Client {
	if s.oa == nil {
		s.oa = newOpenAIClient()
	}
	return s.oa
}

func (s *MilvusIndex) Upsert(sessionID string, entries []core.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	sessionIDs := make([]string, 0, len(entries))
	starts := make([]int64, 0, len(entries))
	ends := make([]int64, 0, len(entries))
	speakers := make([]string, 0, len(entries))
	texts := make([]string, 0, len(entries))
	vectors := make([][]float32, 0, len(entries))

	for _, e := range entries {
		v, err := embed(s.openaiClient(), strings.ToLower(e.Text))
		if err != nil {
			continue
		}
		sessionIDs = append(sessionIDs, sessionID)
		starts = append(starts, e.Start)
		ends = append(ends, e.End)
		speakers = append(speakers, e.Speaker)
		texts = append(texts, e.Text)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	ctx := context.Background()
	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("session_id", sessionIDs),
		entity.NewColumnInt64("start_ms", starts),
		entity.NewColumnInt64("end_ms", ends),
		entity.NewColumnVarChar("speaker", speakers),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0
	}
	return len(vectors)
}

func (s *MilvusIndex) Search(sessionID string, query string, topK int) []core.Hit {
	v, err := embed(s.openaiClient(), strings.ToLower(query))
	if err != nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("session_id == \"%s\"", strings.ReplaceAll(sessionID, "\"", "\\\""))
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter, []string{"start_ms", "end_ms", "speaker", "text"}, []entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil
	}
	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var start, end int64
			var speaker, text string
			if c, ok := cols["start_ms"].(*entity.ColumnInt64); ok {
				if data := c.Data(); i < len(data) {
					start = data[i]
				}
			}
			if c, ok := cols["end_ms"].(*entity.ColumnInt64); ok {
				if data := c.Data(); i < len(data) {
					end = data[i]
				}
			}
			if c, ok := cols["speaker"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					speaker = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					text = data[i]
				}
			}
			hits = append(hits, core.Hit{Score: float64(r.Scores[i]), Start: start, End: end, Text: text, Speaker: speaker})
		}
	}
	return hits
}

// ---------------- embedding helpers ----------------

func newOpenAIClient() *openai.Client {
	cfg, err := config.Load()
	if err != nil {
		return openai.NewClient(os.Getenv("API_KEY"))
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

func embed(cli *openai.Client, text string) ([]float32, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	resp, err := cli.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

func embedText(text string) map[string]float64 {
	toks := strings.Fields(text)
	m := map[string]float64{}
	for _, t := range toks {
		m[t] += 1
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}
