package download

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/roofgenius/internal/domain/order"
	"github.com/xenking/roofgenius/internal/domain/product"
)

// --- Mock implementations ---

type memTokens struct {
	mu      sync.Mutex
	byValue map[string]*Token
	logs    []AccessLog
	err     error
}

func newMemTokens() *memTokens {
	return &memTokens{byValue: make(map[string]*Token)}
}

func (m *memTokens) CreateBatch(_ context.Context, tokens []Token) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range tokens {
		t := tokens[i]
		m.byValue[t.Value] = &t
	}
	return nil
}

func (m *memTokens) FindByValue(_ context.Context, value string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byValue[value]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) Consume(_ context.Context, value string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byValue[value]
	if !ok || t.ConsumedAt != nil || !at.Before(t.ExpiresAt) {
		return false, nil
	}
	t.ConsumedAt = &at
	return true, nil
}

func (m *memTokens) ListByOrder(_ context.Context, orderID string) ([]Issued, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Issued
	for _, t := range m.byValue {
		if t.OrderID == orderID {
			out = append(out, Issued{Value: t.Value, FileName: t.FileID + ".pdf"})
		}
	}
	return out, nil
}

func (m *memTokens) LogAccess(_ context.Context, entry AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

type stubFiles struct {
	product.Repository
	files map[string]product.File
}

func (s *stubFiles) GetFile(_ context.Context, id string) (*product.File, error) {
	f, ok := s.files[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &f, nil
}

// --- Helpers ---

func testOrder() *order.Order {
	return &order.Order{
		ID:        "ord-1",
		SessionID: "cs_test_1",
		UserID:    "u1",
		ProductID: "p1",
		Amount:    decimal.RequireFromString("50.00"),
		Status:    order.StatusCompleted,
	}
}

func testFiles() []product.File {
	return []product.File{
		{ID: "f1", ProductID: "p1", Name: "estimate-template.xlsx", URL: "files/estimate.xlsx"},
		{ID: "f2", ProductID: "p1", Name: "guide.pdf", URL: "https://cdn.example.com/guide.pdf"},
	}
}

func issueAt(t *testing.T, repo *memTokens, at time.Time) []Link {
	t.Helper()
	iss := NewIssuer(IssuerConfig{SiteURL: "https://roof.example.com/"}, repo)
	iss.now = func() time.Time { return at }
	links, err := iss.Issue(context.Background(), testOrder(), testFiles())
	require.NoError(t, err)
	return links
}

func tokenFromLink(l Link) string {
	return l.URL[strings.LastIndex(l.URL, "/")+1:]
}

// --- Tests ---

func TestIssue_OneTokenPerFile(t *testing.T) {
	repo := newMemTokens()
	issued := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	links := issueAt(t, repo, issued)

	require.Len(t, links, 2)
	require.Len(t, repo.byValue, 2)
	assert.Equal(t, "estimate-template.xlsx", links[0].FileName)
	assert.Equal(t, "guide.pdf", links[1].FileName)

	for _, l := range links {
		assert.True(t, strings.HasPrefix(l.URL, "https://roof.example.com/api/download/"), l.URL)
		tok := repo.byValue[tokenFromLink(l)]
		require.NotNil(t, tok)
		assert.Equal(t, "ord-1", tok.OrderID)
		assert.Equal(t, "u1", tok.UserID)
		assert.Equal(t, issued.Add(DefaultTTL), tok.ExpiresAt)
		assert.Regexp(t, tokenPattern, tok.Value)
	}
	assert.NotEqual(t, tokenFromLink(links[0]), tokenFromLink(links[1]))
}

func TestIssue_NoFiles(t *testing.T) {
	repo := newMemTokens()
	repo.err = errors.New("must not be called")
	iss := NewIssuer(IssuerConfig{SiteURL: "https://roof.example.com"}, repo)

	links, err := iss.Issue(context.Background(), testOrder(), nil)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestIssue_StoreError(t *testing.T) {
	repo := newMemTokens()
	repo.err = errors.New("unique violation")
	iss := NewIssuer(IssuerConfig{}, repo)

	_, err := iss.Issue(context.Background(), testOrder(), testFiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store tokens for order ord-1")
}

func TestIssue_RandomSourceFailure(t *testing.T) {
	iss := NewIssuer(IssuerConfig{}, newMemTokens())
	iss.random = bytes.NewReader([]byte{1, 2, 3})

	_, err := iss.Issue(context.Background(), testOrder(), testFiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate token")
}

func TestAuthorize_ExpiryWindow(t *testing.T) {
	repo := newMemTokens()
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	links := issueAt(t, repo, issued)
	value := tokenFromLink(links[0])

	files := &stubFiles{files: map[string]product.File{"f1": testFiles()[0], "f2": testFiles()[1]}}
	svc := NewService("https://roof.example.com", repo, files)

	svc.now = func() time.Time { return issued.Add(29 * 24 * time.Hour) }
	g, err := svc.Authorize(context.Background(), value)
	require.NoError(t, err)
	assert.Equal(t, "f1", g.File.ID)

	svc.now = func() time.Time { return issued.Add(31 * 24 * time.Hour) }
	_, err = svc.Authorize(context.Background(), value)
	require.ErrorIs(t, err, ErrExpired)
}

func TestAuthorize_Errors(t *testing.T) {
	repo := newMemTokens()
	svc := NewService("", repo, &stubFiles{files: map[string]product.File{}})

	_, err := svc.Authorize(context.Background(), "short")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = svc.Authorize(context.Background(), "../../etc/passwd-aaaaaaaaaaaaaaa")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = svc.Authorize(context.Background(), strings.Repeat("a", 43))
	require.ErrorIs(t, err, ErrNotFound)

	// Token whose file has disappeared.
	links := issueAt(t, repo, time.Now())
	_, err = svc.Authorize(context.Background(), tokenFromLink(links[0]))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedeem_SingleUse(t *testing.T) {
	repo := newMemTokens()
	links := issueAt(t, repo, time.Now())
	value := tokenFromLink(links[1])

	files := &stubFiles{files: map[string]product.File{"f2": testFiles()[1]}}
	svc := NewService("", repo, files)
	ctx := context.Background()

	g, err := svc.Authorize(ctx, value)
	require.NoError(t, err)
	require.NoError(t, svc.Redeem(ctx, g, "10.0.0.1", "curl/8"))

	require.Len(t, repo.logs, 1)
	assert.Equal(t, AccessLog{Token: value, FileID: "f2", IP: "10.0.0.1", UserAgent: "curl/8"}, repo.logs[0])

	// Second redemption of the same grant loses.
	require.ErrorIs(t, svc.Redeem(ctx, g, "10.0.0.1", "curl/8"), ErrNotFound)

	// Consumed token is no longer authorized.
	_, err = svc.Authorize(ctx, value)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLinks(t *testing.T) {
	repo := newMemTokens()
	issueAt(t, repo, time.Now())
	svc := NewService("https://roof.example.com", repo, &stubFiles{})

	links, err := svc.Links(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.True(t, strings.HasPrefix(l.URL, "https://roof.example.com/api/download/"))
		assert.True(t, strings.HasSuffix(l.FileName, ".pdf"))
	}

	none, err := svc.Links(context.Background(), "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
