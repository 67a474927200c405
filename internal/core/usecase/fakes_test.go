package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/infrastructure/repository/memory"
)

// wordTokenizer counts whitespace separated words.
type wordTokenizer struct {
	calls int
}

func (t *wordTokenizer) CountTokens(text string) (int, error) {
	t.calls++
	return len(strings.Fields(text)), nil
}

// fixedPricer returns the same cost for every text.
type fixedPricer struct {
	cost domain.Credits
}

func (p fixedPricer) EstimateCost(context.Context, string, domain.ArtifactKind) (domain.Credits, error) {
	return p.cost, nil
}

type generatorFake struct {
	mu          sync.Mutex
	text        string
	json        string
	err         error
	textCalls   int
	jsonCalls   int
	prompts     []string
	respondWith func(prompt string) (string, error)
}

func (g *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.textCalls++
	g.prompts = append(g.prompts, prompt)
	if g.respondWith != nil {
		return g.respondWith(prompt)
	}
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func (g *generatorFake) GenerateJSON(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.jsonCalls++
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.json, nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (q *queueFake) PublishRun(_ context.Context, runID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, runID)
	return nil
}

func (q *queueFake) SubscribeRuns(context.Context, func(context.Context, string) error) error {
	return nil
}

type observerFake struct {
	mu            sync.Mutex
	steps         []domain.PipelineStep
	compensations map[string]int
}

func (o *observerFake) ObserveStep(_ domain.ArtifactKind, step domain.PipelineStep, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
}

func (o *observerFake) ObserveCompensation(action string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.compensations == nil {
		o.compensations = make(map[string]int)
	}
	o.compensations[action]++
}

type fixture struct {
	store     *memory.Store
	ledger    *CreditLedger
	queue     *queueFake
	generator *generatorFake
	gateway   *TriggerGateway
	pipeline  *GenerationPipeline
}

func newFixture(t *testing.T, cost domain.Credits) *fixture {
	t.Helper()
	store := memory.New()
	ledger := NewCreditLedger(store)
	queue := &queueFake{}
	generator := &generatorFake{
		text: "A concise study summary.",
		json: `{"data":{"name":"Topic","children":[{"name":"Branch"}]}}`,
	}
	return &fixture{
		store:     store,
		ledger:    ledger,
		queue:     queue,
		generator: generator,
		gateway:   NewTriggerGateway(store, ledger, fixedPricer{cost: cost}, store, queue),
		pipeline: NewGenerationPipeline(store, store, ledger, store, store, generator, PipelineOptions{
			SummaryChunker: splitEvery{size: 50},
			ContextChunker: splitEvery{size: 50},
		}),
	}
}

func (f *fixture) seedUser(t *testing.T, id string, balance domain.Credits) {
	t.Helper()
	if err := f.store.UpsertUser(context.Background(), &domain.User{ID: id, ExternalID: "ext-" + id}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := f.store.Refund(context.Background(), id, balance); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func (f *fixture) seedDocument(t *testing.T, id, owner, content string) {
	t.Helper()
	doc := newDocument(id, owner, "Notes", content)
	if err := f.store.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID string) domain.Credits {
	t.Helper()
	balance, err := f.store.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *fixture) status(t *testing.T, documentID string, kind domain.ArtifactKind) domain.GenerationStatus {
	t.Helper()
	doc, err := f.store.GetByID(context.Background(), documentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	return doc.StatusOf(kind)
}

func (f *fixture) transaction(t *testing.T, id string) *domain.CreditTransaction {
	t.Helper()
	tx, err := f.store.GetTransaction(context.Background(), id)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	return tx
}

// splitEvery cuts text into fixed rune windows without overlap.
type splitEvery struct {
	size int
}

func (s splitEvery) Split(text string) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += s.size {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func credits(t *testing.T, raw string) domain.Credits {
	t.Helper()
	c, err := domain.ParseCredits(raw)
	if err != nil {
		t.Fatalf("parse credits %q: %v", raw, err)
	}
	return c
}
