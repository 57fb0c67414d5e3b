package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shoplink/payout-service/internal/app"
	"github.com/shoplink/payout-service/internal/domain"
	"github.com/shoplink/payout-service/internal/store"
)

const testAPIKey = "test-internal-key"

// stubRepo is an in-memory Repository with the same compare-and-transition
// semantics as the Postgres implementation.
type stubRepo struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*domain.PayoutRequest
}

func newStubRepo() *stubRepo {
	return &stubRepo{payouts: make(map[uuid.UUID]*domain.PayoutRequest)}
}

func (r *stubRepo) CreatePayout(ctx context.Context, payout *domain.PayoutRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *payout
	r.payouts[payout.ID] = &copied
	return nil
}

func (r *stubRepo) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payout, ok := r.payouts[payoutID]
	if !ok {
		return nil, store.ErrPayoutNotFound
	}
	copied := *payout
	return &copied, nil
}

func (r *stubRepo) ListPayouts(ctx context.Context, opts domain.PayoutListOptions) ([]domain.PayoutRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.PayoutRequest
	for _, payout := range r.payouts {
		if opts.Status != nil && payout.Status != *opts.Status {
			continue
		}
		items = append(items, *payout)
	}
	total := int64(len(items))
	if opts.Offset >= len(items) {
		return nil, total, nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, total, nil
}

func (r *stubRepo) TransitionStatus(ctx context.Context, payoutID uuid.UUID, expected, target domain.PayoutStatus, params store.TransitionParams) (*domain.PayoutRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payout, ok := r.payouts[payoutID]
	if !ok {
		return nil, store.ErrPayoutNotFound
	}
	if payout.Status != expected {
		return nil, store.ErrStatusConflict
	}
	payout.Status = target
	if params.ProcessedAt != nil {
		payout.ProcessedAt = params.ProcessedAt
	}
	if params.RejectReason != nil {
		payout.RejectReason = params.RejectReason
	}
	if params.TransferNote != nil {
		payout.TransferNote = params.TransferNote
	}
	copied := *payout
	return &copied, nil
}

type stubDetector struct {
	matched bool
	err     error
}

func (d *stubDetector) Verify(ctx context.Context, payoutID string) (bool, error) {
	return d.matched, d.err
}

func newTestServer(t *testing.T, repo *stubRepo, detector *stubDetector) http.Handler {
	t.Helper()
	service := app.NewService(repo, detector, nil)
	poller := app.NewPoller(service, 2, time.Millisecond, 0)
	handlers := NewPayoutHandlers(service, poller)
	return PayoutRoutes(handlers, testAPIKey)
}

func seedPending(t *testing.T, repo *stubRepo) *domain.PayoutRequest {
	t.Helper()
	payout := &domain.PayoutRequest{
		ID:                uuid.New(),
		BeneficiaryID:     uuid.New(),
		Amount:            125000,
		BankCode:          "058",
		AccountNumber:     "0123456789",
		AccountHolderName: "Ada Obi",
		Status:            domain.StatusPending,
		RequestedAt:       time.Now().UTC(),
	}
	if err := repo.CreatePayout(context.Background(), payout); err != nil {
		t.Fatalf("failed to seed payout: %v", err)
	}
	return payout
}

func doRequest(handler http.Handler, method, path string, body []byte, withKey bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader([]byte("{}"))
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if withKey {
		req.Header.Set("X-Internal-Api-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_RejectMissingAPIKey(t *testing.T) {
	handler := newTestServer(t, newStubRepo(), &stubDetector{})

	rec := doRequest(handler, http.MethodGet, "/", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", rec.Code)
	}
}

func TestGetInstruction_RendersReferenceCode(t *testing.T) {
	repo := newStubRepo()
	payout := seedPending(t, repo)
	handler := newTestServer(t, repo, &stubDetector{})

	rec := doRequest(handler, http.MethodGet, "/"+payout.ID.String()+"/instruction", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var instruction domain.TransferInstruction
	if err := json.Unmarshal(rec.Body.Bytes(), &instruction); err != nil {
		t.Fatalf("failed to decode instruction: %v", err)
	}
	if want := app.ReferenceCode(payout.ID.String()); instruction.ReferenceCode != want {
		t.Fatalf("expected reference code %q, got %q", want, instruction.ReferenceCode)
	}
	if instruction.Amount != payout.Amount {
		t.Fatalf("expected amount %d, got %d", payout.Amount, instruction.Amount)
	}
}

func TestVerify_UnknownPayoutReturns404(t *testing.T) {
	handler := newTestServer(t, newStubRepo(), &stubDetector{})

	rec := doRequest(handler, http.MethodPost, "/"+uuid.NewString()+"/verify", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown payout, got %d", rec.Code)
	}
}

func TestVerify_MatchReturnsResult(t *testing.T) {
	repo := newStubRepo()
	payout := seedPending(t, repo)
	handler := newTestServer(t, repo, &stubDetector{matched: true})

	rec := doRequest(handler, http.MethodPost, "/"+payout.ID.String()+"/verify", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.VerifyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Matched || result.Status != domain.StatusApproved {
		t.Fatalf("expected matched approved result, got %+v", result)
	}
}

func TestVerify_DetectorFailureReturns502(t *testing.T) {
	repo := newStubRepo()
	payout := seedPending(t, repo)
	handler := newTestServer(t, repo, &stubDetector{err: fmt.Errorf("detector unreachable")})

	rec := doRequest(handler, http.MethodPost, "/"+payout.ID.String()+"/verify", nil, true)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for detector failure, got %d", rec.Code)
	}
}

func TestReject_EmptyReasonReturns400(t *testing.T) {
	repo := newStubRepo()
	payout := seedPending(t, repo)
	handler := newTestServer(t, repo, &stubDetector{})

	body := []byte(`{"reason":"   "}`)
	rec := doRequest(handler, http.MethodPost, "/"+payout.ID.String()+"/reject", body, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank reason, got %d", rec.Code)
	}
}

func TestReject_ConflictCarriesAuthoritativeRecord(t *testing.T) {
	repo := newStubRepo()
	payout := seedPending(t, repo)
	handler := newTestServer(t, repo, &stubDetector{})

	note := []byte(`{"transfer_note":"wired manually"}`)
	rec := doRequest(handler, http.MethodPost, "/"+payout.ID.String()+"/transferred", note, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected transfer confirm to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	body := []byte(`{"reason":"beneficiary mismatch"}`)
	rec = doRequest(handler, http.MethodPost, "/"+payout.ID.String()+"/reject", body, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reject after transfer, got %d", rec.Code)
	}

	var conflict struct {
		Error  string                `json:"error"`
		Payout *domain.PayoutRequest `json:"payout"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("failed to decode conflict body: %v", err)
	}
	if conflict.Payout == nil || conflict.Payout.Status != domain.StatusTransferred {
		t.Fatalf("expected conflict body to carry the transferred record, got %+v", conflict.Payout)
	}
}

func TestListPayouts_FiltersByStatus(t *testing.T) {
	repo := newStubRepo()
	pending := seedPending(t, repo)
	other := seedPending(t, repo)
	note := "done"
	if _, err := repo.TransitionStatus(context.Background(), other.ID, domain.StatusPending, domain.StatusTransferred, store.TransitionParams{TransferNote: &note}); err != nil {
		t.Fatalf("failed to seed transferred payout: %v", err)
	}
	handler := newTestServer(t, repo, &stubDetector{})

	rec := doRequest(handler, http.MethodGet, "/?status=pending", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var page domain.PayoutPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != pending.ID {
		t.Fatalf("expected only the pending payout, got %+v", page.Items)
	}
}

func TestListPayouts_InvalidStatusReturns400(t *testing.T) {
	handler := newTestServer(t, newStubRepo(), &stubDetector{})

	rec := doRequest(handler, http.MethodGet, "/?status=settled", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", rec.Code)
	}
}
