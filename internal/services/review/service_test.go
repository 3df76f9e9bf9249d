package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
	"github.com/ternarybob/supplyline/internal/services/aggregation"
)

type fakeReviewRepo struct {
	entries map[string]*models.ReviewEntry
	expired int
}

func (f *fakeReviewRepo) Enqueue(ctx context.Context, entry *models.ReviewEntry) error {
	f.entries[entry.ID] = entry
	return nil
}
func (f *fakeReviewRepo) GetByID(ctx context.Context, id string) (*models.ReviewEntry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, errors.New("review entry not found")
	}
	return entry, nil
}
func (f *fakeReviewRepo) ListPending(ctx context.Context, limit, offset int) ([]*models.ReviewEntry, error) {
	var out []*models.ReviewEntry
	for _, e := range f.entries {
		if e.Status == models.ReviewPending {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeReviewRepo) SetStatus(ctx context.Context, id string, status models.ReviewStatus, resolvedBy string) error {
	entry, ok := f.entries[id]
	if !ok {
		return errors.New("review entry not found")
	}
	entry.Status = status
	if resolvedBy != "" {
		entry.ReviewedBy = &resolvedBy
		now := time.Now().UTC()
		entry.ReviewedAt = &now
	}
	return nil
}
func (f *fakeReviewRepo) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	return f.expired, nil
}

type matchWrite struct {
	productID *string
	status    models.MatchStatus
	score     *float64
}

type fakeItemRepo struct {
	items  map[string]*models.SupplierItem
	writes []matchWrite
}

func (f *fakeItemRepo) Upsert(ctx context.Context, item *models.SupplierItem) (bool, error) {
	return false, nil
}
func (f *fakeItemRepo) GetByID(ctx context.Context, id string) (*models.SupplierItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, errors.New("item not found")
	}
	// A row scan yields a fresh value; later writes must not mutate it
	copied := *item
	return &copied, nil
}
func (f *fakeItemRepo) ListBySupplier(ctx context.Context, supplierID string) ([]*models.SupplierItem, error) {
	return nil, nil
}
func (f *fakeItemRepo) ListUnmatched(ctx context.Context, limit int) ([]*models.SupplierItem, error) {
	return nil, nil
}
func (f *fakeItemRepo) SetMatch(ctx context.Context, itemID string, productID *string, status models.MatchStatus, score *float64, candidates []models.MatchCandidate) error {
	item := f.items[itemID]
	item.ProductID = productID
	item.MatchStatus = status
	f.writes = append(f.writes, matchWrite{productID: productID, status: status, score: score})
	return nil
}
func (f *fakeItemRepo) ListLinkedPrices(ctx context.Context, productID string) ([]decimal.Decimal, error) {
	return nil, nil
}

type fakeProductRepo struct {
	products   map[string]*models.Product
	recomputed []string
}

func (f *fakeProductRepo) Create(ctx context.Context, product *models.Product) error {
	f.products[product.ID] = product
	return nil
}
func (f *fakeProductRepo) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, errors.New("product not found")
	}
	return p, nil
}
func (f *fakeProductRepo) ListActiveNames(ctx context.Context) ([]models.ProductName, error) {
	return nil, nil
}
func (f *fakeProductRepo) RecomputeAggregates(ctx context.Context, productID string) error {
	f.recomputed = append(f.recomputed, productID)
	return nil
}
func (f *fakeProductRepo) SetStatus(ctx context.Context, productID string, status models.ProductStatus) error {
	return nil
}

type fakeQueue struct {
	enqueued []*interfaces.QueueMessage
}

func (f *fakeQueue) Enqueue(ctx context.Context, msg *interfaces.QueueMessage) error {
	f.enqueued = append(f.enqueued, msg)
	return nil
}
func (f *fakeQueue) Dequeue(ctx context.Context) (*interfaces.QueueMessage, error) {
	return nil, nil
}
func (f *fakeQueue) Retry(ctx context.Context, msg *interfaces.QueueMessage, cause error) error {
	return nil
}
func (f *fakeQueue) Depth(ctx context.Context) (int64, error)           { return 0, nil }
func (f *fakeQueue) DeadLetterDepth(ctx context.Context) (int64, error) { return 0, nil }

func newTestService(t *testing.T) (*Service, *fakeReviewRepo, *fakeItemRepo, *fakeProductRepo, *fakeQueue) {
	t.Helper()
	reviews := &fakeReviewRepo{entries: make(map[string]*models.ReviewEntry)}
	items := &fakeItemRepo{items: make(map[string]*models.SupplierItem)}
	products := &fakeProductRepo{products: make(map[string]*models.Product)}
	queue := &fakeQueue{}
	aggregates := aggregation.NewService(products, arbor.NewLogger())
	svc := NewService(reviews, items, products, aggregates, queue, arbor.NewLogger())
	return svc, reviews, items, products, queue
}

func seedEntry(reviews *fakeReviewRepo, items *fakeItemRepo, products *fakeProductRepo) *models.ReviewEntry {
	oldProduct := "p-old"
	items.items["item-1"] = &models.SupplierItem{
		ID:           "item-1",
		SupplierID:   "sup-1",
		ProductID:    &oldProduct,
		SupplierSKU:  "VT-100",
		Name:         "Втулка переходная КМ3/КМ2",
		CurrentPrice: decimal.NewFromInt(1500),
		MatchStatus:  models.MatchPotential,
	}
	products.products["p-old"] = &models.Product{ID: "p-old", Name: "Втулка КМ3", Status: models.ProductActive}
	products.products["p-new"] = &models.Product{ID: "p-new", Name: "Втулка переходная КМ3/КМ2", Status: models.ProductActive}

	entry := &models.ReviewEntry{
		ID:             "rev-1",
		SupplierItemID: "item-1",
		Status:         models.ReviewPending,
		Candidates: []models.MatchCandidate{
			{ProductID: "p-new", Name: "Втулка переходная КМ3/КМ2", Score: 88},
			{ProductID: "p-old", Name: "Втулка КМ3", Score: 74},
		},
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(14 * 24 * time.Hour),
	}
	reviews.entries[entry.ID] = entry
	return entry
}

func TestApproveLinksVerifiedAndRecomputesBothProducts(t *testing.T) {
	svc, reviews, items, products, _ := newTestService(t)
	seedEntry(reviews, items, products)

	require.NoError(t, svc.Approve(context.Background(), "rev-1", "p-new", "anna"))

	require.Len(t, items.writes, 1)
	write := items.writes[0]
	require.NotNil(t, write.productID)
	assert.Equal(t, "p-new", *write.productID)
	assert.Equal(t, models.MatchVerified, write.status)
	require.NotNil(t, write.score)
	assert.Equal(t, 88.0, *write.score)

	assert.Equal(t, models.ReviewApproved, reviews.entries["rev-1"].Status)
	require.NotNil(t, reviews.entries["rev-1"].ReviewedBy)
	assert.Equal(t, "anna", *reviews.entries["rev-1"].ReviewedBy)

	// Relink refreshes both the new link and the old one
	assert.ElementsMatch(t, []string{"p-new", "p-old"}, products.recomputed)
}

func TestApproveUnknownProductFails(t *testing.T) {
	svc, reviews, items, products, _ := newTestService(t)
	seedEntry(reviews, items, products)

	err := svc.Approve(context.Background(), "rev-1", "p-missing", "anna")
	require.Error(t, err)
	assert.Empty(t, items.writes)
	assert.Equal(t, models.ReviewPending, reviews.entries["rev-1"].Status)
}

func TestRejectLeavesItemUnmatched(t *testing.T) {
	svc, reviews, items, products, _ := newTestService(t)
	seedEntry(reviews, items, products)

	require.NoError(t, svc.Reject(context.Background(), "rev-1", "anna", false))

	require.Len(t, items.writes, 1)
	assert.Nil(t, items.writes[0].productID)
	assert.Equal(t, models.MatchUnmatched, items.writes[0].status)
	assert.Equal(t, models.ReviewRejected, reviews.entries["rev-1"].Status)
}

func TestRejectWithDraftProduct(t *testing.T) {
	svc, reviews, items, products, _ := newTestService(t)
	seedEntry(reviews, items, products)

	require.NoError(t, svc.Reject(context.Background(), "rev-1", "anna", true))

	var draft *models.Product
	for _, p := range products.products {
		if p.Status == models.ProductDraft {
			draft = p
		}
	}
	require.NotNil(t, draft)
	assert.Equal(t, "Втулка переходная КМ3/КМ2", draft.Name)
	assert.True(t, strings.HasPrefix(draft.InternalSKU, "DRAFT-"))

	require.Len(t, items.writes, 1)
	require.NotNil(t, items.writes[0].productID)
	assert.Equal(t, draft.ID, *items.writes[0].productID)
	assert.Equal(t, models.MatchVerified, items.writes[0].status)
	assert.Contains(t, products.recomputed, draft.ID)
}

func TestDecisionsRequireActionableEntry(t *testing.T) {
	svc, reviews, items, products, _ := newTestService(t)
	entry := seedEntry(reviews, items, products)
	entry.Status = models.ReviewApproved

	assert.ErrorIs(t, svc.Approve(context.Background(), "rev-1", "p-new", "anna"), ErrNotActionable)
	assert.ErrorIs(t, svc.Reject(context.Background(), "rev-1", "anna", false), ErrNotActionable)
	assert.ErrorIs(t, svc.Categorize(context.Background(), "rev-1", "anna"), ErrNotActionable)
}

func TestCategorizeAndReopen(t *testing.T) {
	svc, reviews, items, products, _ := newTestService(t)
	seedEntry(reviews, items, products)

	require.NoError(t, svc.Categorize(context.Background(), "rev-1", "anna"))
	assert.Equal(t, models.ReviewNeedsCategory, reviews.entries["rev-1"].Status)

	require.NoError(t, svc.Reopen(context.Background(), "rev-1"))
	assert.Equal(t, models.ReviewPending, reviews.entries["rev-1"].Status)

	// Reopen only applies to parked entries
	assert.ErrorIs(t, svc.Reopen(context.Background(), "rev-1"), ErrNotActionable)
}

func TestExpireStaleEnqueuesRematch(t *testing.T) {
	svc, reviews, _, _, queue := newTestService(t)
	reviews.expired = 3

	expired, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, expired)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "batch_match", queue.enqueued[0].Type)
}

func TestExpireStaleNoopWhenNothingExpired(t *testing.T) {
	svc, _, _, _, queue := newTestService(t)

	expired, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Empty(t, queue.enqueued)
}
