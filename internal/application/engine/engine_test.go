package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
	"github.com/kelvinjia/ai-procurement/internal/domain/workflow"
)

// memStore is an in-memory backing store shared by the fake
// repositories. The fake transaction manager snapshots it before each
// transaction and restores it on error, so rollback semantics hold.
type memStore struct {
	requests    map[uuid.UUID]entity.PurchaseRequest
	steps       []entity.ApprovalStep
	attachments []entity.Attachment
	metadata    []entity.ExtractedMetadata
	orders      []entity.PurchaseOrder
	results     []entity.ReceiptValidationResult
	audits      []entity.AuditEntry
	poSeq       int64
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{requests: make(map[uuid.UUID]entity.PurchaseRequest)}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) snapshot() memStore {
	cp := *s
	cp.requests = make(map[uuid.UUID]entity.PurchaseRequest, len(s.requests))
	for k, v := range s.requests {
		cp.requests[k] = v
	}
	cp.steps = append([]entity.ApprovalStep(nil), s.steps...)
	cp.attachments = append([]entity.Attachment(nil), s.attachments...)
	cp.metadata = append([]entity.ExtractedMetadata(nil), s.metadata...)
	cp.orders = append([]entity.PurchaseOrder(nil), s.orders...)
	cp.results = append([]entity.ReceiptValidationResult(nil), s.results...)
	cp.audits = append([]entity.AuditEntry(nil), s.audits...)
	return cp
}

type fakeTxManager struct {
	store *memStore
}

func (m *fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	before := m.store.snapshot()
	if err := fn(ctx); err != nil {
		*m.store = before
		return err
	}
	return nil
}

type fakeRequestRepo struct {
	s *memStore

	// beforeUpdate runs just before the version-guarded write, letting
	// tests interleave a concurrent writer.
	beforeUpdate func()
}

func (r *fakeRequestRepo) Create(_ context.Context, req *entity.PurchaseRequest) error {
	r.s.requests[req.ID] = *req
	return nil
}

func (r *fakeRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.PurchaseRequest, error) {
	req, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *fakeRequestRepo) UpdateStateVersion(_ context.Context, id uuid.UUID, status string, fromVersion int64) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	req, ok := r.s.requests[id]
	if !ok || req.Version != fromVersion {
		return fmt.Errorf("update request %s: %w", id, port.ErrVersionConflict)
	}
	req.Status = status
	req.Version++
	req.UpdatedAt = time.Now()
	r.s.requests[id] = req
	return nil
}

func (r *fakeRequestRepo) ListPendingForLevel(_ context.Context, level entity.ApprovalLevel, limit int) ([]*entity.PurchaseRequest, error) {
	want := workflow.StatePendingL1.String()
	if level == entity.LevelL2 {
		want = workflow.StatePendingL2.String()
	}
	var out []*entity.PurchaseRequest
	for _, req := range r.s.requests {
		if req.Status == want {
			cp := req
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeStepRepo struct{ s *memStore }

func (r *fakeStepRepo) Create(_ context.Context, step *entity.ApprovalStep) error {
	step.ID = r.s.id()
	r.s.steps = append(r.s.steps, *step)
	return nil
}

func (r *fakeStepRepo) GetByRequestAndLevel(_ context.Context, requestID uuid.UUID, level entity.ApprovalLevel) (*entity.ApprovalStep, error) {
	for i := range r.s.steps {
		if r.s.steps[i].RequestID == requestID && r.s.steps[i].Level == level {
			cp := r.s.steps[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeStepRepo) GetByRequestID(_ context.Context, requestID uuid.UUID) ([]*entity.ApprovalStep, error) {
	var out []*entity.ApprovalStep
	for i := range r.s.steps {
		if r.s.steps[i].RequestID == requestID {
			cp := r.s.steps[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeStepRepo) Decide(_ context.Context, stepID int64, approverID, decision, comment string) error {
	for i := range r.s.steps {
		if r.s.steps[i].ID == stepID {
			if r.s.steps[i].Decision != entity.DecisionPending {
				return fmt.Errorf("approval step %d is not pending", stepID)
			}
			now := time.Now()
			r.s.steps[i].ApproverID = approverID
			r.s.steps[i].Decision = decision
			r.s.steps[i].Comment = comment
			r.s.steps[i].DecidedAt = &now
			return nil
		}
	}
	return fmt.Errorf("approval step %d not found", stepID)
}

type fakeAttachmentRepo struct{ s *memStore }

func (r *fakeAttachmentRepo) Create(_ context.Context, att *entity.Attachment) error {
	r.s.attachments = append(r.s.attachments, *att)
	return nil
}

func (r *fakeAttachmentRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Attachment, error) {
	for i := range r.s.attachments {
		if r.s.attachments[i].ID == id {
			cp := r.s.attachments[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAttachmentRepo) GetLatestByKind(_ context.Context, requestID uuid.UUID, kind entity.DocumentKind) (*entity.Attachment, error) {
	for i := len(r.s.attachments) - 1; i >= 0; i-- {
		if r.s.attachments[i].RequestID == requestID && r.s.attachments[i].Kind == kind {
			cp := r.s.attachments[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAttachmentRepo) GetByRequestID(_ context.Context, requestID uuid.UUID) ([]*entity.Attachment, error) {
	var out []*entity.Attachment
	for i := range r.s.attachments {
		if r.s.attachments[i].RequestID == requestID {
			cp := r.s.attachments[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeMetadataRepo struct{ s *memStore }

func (r *fakeMetadataRepo) Create(_ context.Context, md *entity.ExtractedMetadata) error {
	md.ID = r.s.id()
	r.s.metadata = append(r.s.metadata, *md)
	return nil
}

func (r *fakeMetadataRepo) GetLatestByAttachmentID(_ context.Context, attachmentID uuid.UUID) (*entity.ExtractedMetadata, error) {
	for i := len(r.s.metadata) - 1; i >= 0; i-- {
		if r.s.metadata[i].AttachmentID == attachmentID {
			cp := r.s.metadata[i]
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeOrderRepo struct{ s *memStore }

func (r *fakeOrderRepo) Create(_ context.Context, po *entity.PurchaseOrder) error {
	po.ID = r.s.id()
	r.s.orders = append(r.s.orders, *po)
	return nil
}

func (r *fakeOrderRepo) GetByRequestID(_ context.Context, requestID uuid.UUID) (*entity.PurchaseOrder, error) {
	for i := range r.s.orders {
		if r.s.orders[i].RequestID == requestID {
			cp := r.s.orders[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) NextSequence(_ context.Context) (int64, error) {
	r.s.poSeq++
	return r.s.poSeq, nil
}

type fakeResultRepo struct {
	s *memStore

	// createErr fails the next Create once, emulating a transient
	// storage outage while recording a verdict.
	createErr error
}

func (r *fakeResultRepo) Create(_ context.Context, res *entity.ReceiptValidationResult) error {
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	res.ID = r.s.id()
	r.s.results = append(r.s.results, *res)
	return nil
}

func (r *fakeResultRepo) GetLatestByRequestID(_ context.Context, requestID uuid.UUID) (*entity.ReceiptValidationResult, error) {
	for i := len(r.s.results) - 1; i >= 0; i-- {
		if r.s.results[i].RequestID == requestID {
			cp := r.s.results[i]
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeAuditRepo struct{ s *memStore }

func (r *fakeAuditRepo) Append(_ context.Context, e *entity.AuditEntry) error {
	e.ID = r.s.id()
	r.s.audits = append(r.s.audits, *e)
	return nil
}

func (r *fakeAuditRepo) GetByRequestID(_ context.Context, requestID uuid.UUID) ([]*entity.AuditEntry, error) {
	var out []*entity.AuditEntry
	for i := range r.s.audits {
		if r.s.audits[i].RequestID == requestID {
			cp := r.s.audits[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeDocStore struct {
	storeErr error
	docs     map[string][]byte
	n        int
}

func (d *fakeDocStore) Store(_ context.Context, content []byte, _ string) (string, error) {
	if d.storeErr != nil {
		return "", d.storeErr
	}
	if d.docs == nil {
		d.docs = make(map[string][]byte)
	}
	d.n++
	handle := fmt.Sprintf("doc-%d", d.n)
	d.docs[handle] = content
	return handle, nil
}

func (d *fakeDocStore) Fetch(_ context.Context, handle string) ([]byte, error) {
	content, ok := d.docs[handle]
	if !ok {
		return nil, errors.New("document not found")
	}
	return content, nil
}

func (d *fakeDocStore) Exists(_ context.Context, handle string) bool {
	_, ok := d.docs[handle]
	return ok
}

type fakeRoles struct{ levels map[string]entity.ApprovalLevel }

func (r *fakeRoles) LevelFor(_ context.Context, approverID string) (entity.ApprovalLevel, bool) {
	level, ok := r.levels[approverID]
	return level, ok
}

type fakeGenerator struct {
	err   error
	calls int
}

func (g *fakeGenerator) Generate(snapshot *entity.POSnapshot, seq int64) (*entity.PurchaseOrder, []byte, error) {
	g.calls++
	if g.err != nil {
		return nil, nil, g.err
	}
	return &entity.PurchaseOrder{
		RequestID:   snapshot.RequestID,
		Number:      fmt.Sprintf("PO-TEST-%04d", seq),
		Snapshot:    *snapshot,
		GeneratedAt: time.Now(),
	}, []byte("po artifact"), nil
}

type fakeValidator struct {
	validateFunc func(ctx context.Context, handle string, po *entity.PurchaseOrder) *entity.ReceiptValidationResult
}

func (v *fakeValidator) Validate(ctx context.Context, handle string, po *entity.PurchaseOrder) *entity.ReceiptValidationResult {
	if v.validateFunc != nil {
		return v.validateFunc(ctx, handle, po)
	}
	return &entity.ReceiptValidationResult{Verdict: entity.VerdictMatch, CreatedAt: time.Now()}
}

type fakeScheduler struct{ jobs []ExtractionJob }

func (s *fakeScheduler) Schedule(job ExtractionJob) { s.jobs = append(s.jobs, job) }

type harness struct {
	engine    *Engine
	store     *memStore
	requests  *fakeRequestRepo
	results   *fakeResultRepo
	docs      *fakeDocStore
	generator *fakeGenerator
	validator *fakeValidator
	scheduler *fakeScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	h := &harness{
		store:     store,
		requests:  &fakeRequestRepo{s: store},
		results:   &fakeResultRepo{s: store},
		docs:      &fakeDocStore{},
		generator: &fakeGenerator{},
		validator: &fakeValidator{},
		scheduler: &fakeScheduler{},
	}
	roles := &fakeRoles{levels: map[string]entity.ApprovalLevel{
		"alice": entity.LevelL1,
		"bob":   entity.LevelL2,
	}}

	h.engine = New(
		h.requests, &fakeStepRepo{store}, &fakeAttachmentRepo{store},
		&fakeMetadataRepo{store}, &fakeOrderRepo{store}, h.results,
		&fakeAuditRepo{store}, &fakeTxManager{store},
		h.docs, roles, h.generator, h.validator, h.scheduler,
		Config{ExternalTimeout: time.Second},
		zap.NewNop(),
	)
	return h
}

func (h *harness) createDraft(t *testing.T) *entity.PurchaseRequest {
	t.Helper()
	req, err := h.engine.CreateRequest(context.Background(), CreateRequestInput{
		Title:               "Laptops for QA",
		Description:         "5 refurbished units",
		RequesterID:         "carol",
		Amount:              4200,
		Currency:            "USD",
		VendorID:            "vendor-9",
		Proforma:            []byte("proforma bytes"),
		ProformaContentType: "application/pdf",
	})
	require.NoError(t, err)
	return req
}

func (h *harness) submit(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := h.engine.Submit(context.Background(), id, "carol")
	require.NoError(t, err)
}

func (h *harness) approveToPO(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := h.engine.Decide(context.Background(), id, entity.LevelL1, "alice", entity.DecisionApproved, "ok")
	require.NoError(t, err)
	_, err = h.engine.Decide(context.Background(), id, entity.LevelL2, "bob", entity.DecisionApproved, "ok")
	require.NoError(t, err)
}

func TestCreateRequest_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateRequestInput
	}{
		{"missing title", CreateRequestInput{RequesterID: "carol", Amount: 10, Currency: "USD"}},
		{"zero amount", CreateRequestInput{Title: "x", RequesterID: "carol", Amount: 0, Currency: "USD"}},
		{"negative amount", CreateRequestInput{Title: "x", RequesterID: "carol", Amount: -3, Currency: "USD"}},
		{"bad currency", CreateRequestInput{Title: "x", RequesterID: "carol", Amount: 10, Currency: "US"}},
		{"missing requester", CreateRequestInput{Title: "x", Amount: 10, Currency: "USD"}},
		{"missing vendor", CreateRequestInput{Title: "x", RequesterID: "carol", Amount: 10, Currency: "USD"}},
		{"blank vendor", CreateRequestInput{Title: "x", RequesterID: "carol", Amount: 10, Currency: "USD", VendorID: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateRequest(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation))
		})
	}

	assert.Empty(t, h.store.requests)
}

func TestSubmit_MovesToPendingL1AndSchedulesExtraction(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)

	res, err := h.engine.Submit(context.Background(), req.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingL1.String(), res.Status)

	// One L1 step, pending.
	steps, err := h.engine.ApprovalHistory(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, entity.LevelL1, steps[0].Level)
	assert.Equal(t, entity.DecisionPending, steps[0].Decision)

	// Extraction scheduled for the attached proforma.
	require.Len(t, h.scheduler.jobs, 1)
	assert.Equal(t, req.ID, h.scheduler.jobs[0].RequestID)

	// Audit trail records each hop including the pass-through state.
	trail, err := h.engine.AuditTrail(context.Background(), req.ID)
	require.NoError(t, err)
	var toStates []string
	for _, e := range trail {
		toStates = append(toStates, e.ToState)
	}
	assert.Equal(t, []string{
		workflow.StateDraft.String(),
		workflow.StateSubmitted.String(),
		workflow.StatePendingL1.String(),
	}, toStates)
}

func TestSubmit_RequiresProforma(t *testing.T) {
	h := newHarness(t)
	req, err := h.engine.CreateRequest(context.Background(), CreateRequestInput{
		Title: "No proforma", RequesterID: "carol", Amount: 100, Currency: "USD", VendorID: "vendor-9",
	})
	require.NoError(t, err)

	_, err = h.engine.Submit(context.Background(), req.ID, "carol")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, workflow.StateDraft.String(), h.store.requests[req.ID].Status)
	assert.Empty(t, h.scheduler.jobs)
}

func TestSubmit_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Submit(context.Background(), uuid.New(), "carol")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestDecide_FullApprovalGeneratesPO(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	res, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingL2.String(), res.Status)

	res, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL2, "bob", entity.DecisionApproved, "budget ok")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePOGenerated.String(), res.Status)

	po, err := h.engine.GetPurchaseOrder(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, po)
	assert.Equal(t, "PO-TEST-0001", po.Number)
	assert.NotEmpty(t, po.ArtifactHandle)
	assert.True(t, h.docs.Exists(context.Background(), po.ArtifactHandle))
	assert.Equal(t, req.Amount, po.Snapshot.Amount)
	assert.Equal(t, "USD", po.Snapshot.Currency)
}

func TestDecide_SnapshotUsesExtractedMetadata(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	// Extraction arrives before final approval.
	job := h.scheduler.jobs[0]
	err := h.engine.RecordExtraction(context.Background(), job, &entity.ExtractedMetadata{
		VendorName:   "Acme Computing Ltd",
		VendorEmail:  "sales@acme.example",
		Items:        []entity.LineItem{{Description: "Refurbished laptop", Quantity: 5, UnitPrice: 840, Total: 4200}},
		TotalAmount:  4200,
		Currency:     "USD",
		PaymentTerms: "NET 30",
		Confidence:   0.93,
		Status:       entity.ExtractionSucceeded,
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)

	h.approveToPO(t, req.ID)

	po, err := h.engine.GetPurchaseOrder(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Computing Ltd", po.Snapshot.VendorName)
	assert.Equal(t, "NET 30", po.Snapshot.PaymentTerms)
	require.Len(t, po.Snapshot.Items, 1)
	// Amount stays authoritative from the request, not the extraction.
	assert.Equal(t, req.Amount, po.Snapshot.Amount)
}

func TestDecide_RejectionIsTerminal(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	res, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionRejected, "over budget")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejectedL1.String(), res.Status)

	// Nothing can happen afterwards.
	_, err = h.engine.Submit(context.Background(), req.ID, "carol")
	require.Error(t, err)
	_, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestDecide_DuplicateDecisionFailsWithoutSideEffect(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	_, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "")
	require.NoError(t, err)
	auditsBefore := len(h.store.audits)

	_, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionRejected, "changed my mind")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.True(t, IsKind(err, KindValidation))

	// The earlier decision stands untouched.
	step, err := h.engine.ApprovalHistory(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionApproved, step[0].Decision)
	assert.Equal(t, auditsBefore, len(h.store.audits))
}

func TestDecide_RoleEnforcement(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	// Unknown user.
	_, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "mallory", entity.DecisionApproved, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))

	// L2 approver cannot decide at L1.
	_, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "bob", entity.DecisionApproved, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))

	// L2 decision while still pending L1.
	_, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL2, "bob", entity.DecisionApproved, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestDecide_GenerationFailureRollsBackAndIsRetryable(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	_, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "")
	require.NoError(t, err)

	h.generator.err = errors.New("template corrupted")
	_, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL2, "bob", entity.DecisionApproved, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindGeneration))

	// Rollback: still pending L2, step undecided, no PO.
	assert.Equal(t, workflow.StatePendingL2.String(), h.store.requests[req.ID].Status)
	step, err := h.engine.ApprovalHistory(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionPending, step[1].Decision)
	po, err := h.engine.GetPurchaseOrder(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Nil(t, po)

	// Retry succeeds once the generator recovers.
	h.generator.err = nil
	res, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL2, "bob", entity.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePOGenerated.String(), res.Status)
}

func TestDecide_VersionConflictMapsToConflictKind(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	// A concurrent writer bumps the version between the engine's read
	// and its version-guarded write.
	h.requests.beforeUpdate = func() {
		h.requests.beforeUpdate = nil
		fresh := h.store.requests[req.ID]
		fresh.Version++
		h.store.requests[req.ID] = fresh
	}

	_, err := h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
	assert.ErrorIs(t, err, port.ErrVersionConflict)

	// Rollback leaves the step decidable.
	steps, err := h.engine.ApprovalHistory(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionPending, steps[0].Decision)
}

func TestUploadReceipt_MatchValidates(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)
	h.approveToPO(t, req.ID)

	res, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("receipt bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReceiptValidated.String(), res.Status)

	verdict, err := h.engine.LatestValidationResult(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, verdict)
	assert.Equal(t, entity.VerdictMatch, verdict.Verdict)
	assert.Equal(t, req.ID, verdict.RequestID)
}

func TestUploadReceipt_DiscrepantAllowsResubmission(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)
	h.approveToPO(t, req.ID)

	h.validator.validateFunc = func(_ context.Context, _ string, _ *entity.PurchaseOrder) *entity.ReceiptValidationResult {
		return &entity.ReceiptValidationResult{
			Verdict:   entity.VerdictDiscrepant,
			Findings:  []entity.Finding{{Field: "amount", Expected: "4200.00", Found: "9000.00", Severity: entity.SeverityCritical}},
			CreatedAt: time.Now(),
		}
	}

	res, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("wrong receipt"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReceiptDiscrepant.String(), res.Status)

	// Corrected receipt goes through.
	h.validator.validateFunc = nil
	res, err = h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("correct receipt"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReceiptValidated.String(), res.Status)

	// Both verdicts are retained, newest first on lookup.
	verdict, err := h.engine.LatestValidationResult(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.VerdictMatch, verdict.Verdict)
	assert.Len(t, h.store.results, 2)
}

func TestUploadReceipt_InconclusiveFlagsDiscrepancy(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)
	h.approveToPO(t, req.ID)

	h.validator.validateFunc = func(_ context.Context, _ string, _ *entity.PurchaseOrder) *entity.ReceiptValidationResult {
		return &entity.ReceiptValidationResult{Verdict: entity.VerdictInconclusive, CreatedAt: time.Now()}
	}

	res, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("blurry photo"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReceiptDiscrepant.String(), res.Status)

	verdict, err := h.engine.LatestValidationResult(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.VerdictInconclusive, verdict.Verdict)
}

func TestUploadReceipt_BeforePOIsRejected(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	_, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("early receipt"), "image/png")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestUploadReceipt_SupersededResultDiscarded(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)
	h.approveToPO(t, req.ID)

	// While validation runs, a newer receipt lands on the request.
	h.validator.validateFunc = func(_ context.Context, _ string, _ *entity.PurchaseOrder) *entity.ReceiptValidationResult {
		h.store.attachments = append(h.store.attachments, entity.Attachment{
			ID:        uuid.New(),
			RequestID: req.ID,
			Kind:      entity.KindReceipt,
			Handle:    "newer-receipt",
			CreatedAt: time.Now(),
		})
		return &entity.ReceiptValidationResult{Verdict: entity.VerdictMatch, CreatedAt: time.Now()}
	}

	_, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("receipt bytes"), "image/png")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
	assert.Empty(t, h.store.results, "stale verdict must not be recorded")
	assert.Equal(t, workflow.StateReceiptPending.String(), h.store.requests[req.ID].Status)
}

func TestUploadReceipt_RetryableAfterRecordingFailure(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)
	h.approveToPO(t, req.ID)

	// The verdict cannot be recorded; the request stays RECEIPT_PENDING.
	h.results.createErr = errors.New("disk full")
	_, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("receipt bytes"), "image/png")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInfra))
	assert.Equal(t, workflow.StateReceiptPending.String(), h.store.requests[req.ID].Status)
	assert.Empty(t, h.store.results)

	// A fresh upload supersedes the stalled attachment and completes.
	res, err := h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("receipt retake"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReceiptValidated.String(), res.Status)

	verdict, err := h.engine.LatestValidationResult(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, verdict)
	assert.Equal(t, entity.VerdictMatch, verdict.Verdict)

	// The verdict is bound to the retake, not the stalled attachment.
	latest, err := h.engine.attachments.GetLatestByKind(context.Background(), req.ID, entity.KindReceipt)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, verdict.AttachmentID)
}

func TestDecide_ConcurrentDuplicateHasOneEffect(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyDecided)
	}
	assert.Equal(t, 1, succeeded, "exactly one decision must land")

	// One decided L1 step, one pending L2 step, state moved on once.
	assert.Equal(t, workflow.StatePendingL2.String(), h.store.requests[req.ID].Status)
	steps, err := h.engine.ApprovalHistory(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, entity.DecisionApproved, steps[0].Decision)
	assert.Equal(t, entity.DecisionPending, steps[1].Decision)
}

func TestVersionIncreasesAcrossLifecycle(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	versions := []int64{req.Version}

	res, err := h.engine.Submit(context.Background(), req.ID, "carol")
	require.NoError(t, err)
	versions = append(versions, res.Version)

	res, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL1, "alice", entity.DecisionApproved, "")
	require.NoError(t, err)
	versions = append(versions, res.Version)

	res, err = h.engine.Decide(context.Background(), req.ID, entity.LevelL2, "bob", entity.DecisionApproved, "")
	require.NoError(t, err)
	versions = append(versions, res.Version)

	res, err = h.engine.UploadReceipt(context.Background(), req.ID, "carol", []byte("receipt bytes"), "image/png")
	require.NoError(t, err)
	versions = append(versions, res.Version)

	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1],
			"version must strictly increase, got %v", versions)
	}
	assert.Equal(t, versions[len(versions)-1], h.store.requests[req.ID].Version)
}

func TestRecordExtraction_StaleResultDiscarded(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)

	// Replace the proforma while still in draft; the old attachment's
	// job is stale the moment the new one lands.
	first, err := h.engine.AttachProforma(context.Background(), req.ID, []byte("v1"), "application/pdf")
	require.NoError(t, err)
	_, err = h.engine.AttachProforma(context.Background(), req.ID, []byte("v2"), "application/pdf")
	require.NoError(t, err)

	staleJob := ExtractionJob{RequestID: req.ID, AttachmentID: first.ID, Handle: first.Handle}
	err = h.engine.RecordExtraction(context.Background(), staleJob, &entity.ExtractedMetadata{
		VendorName: "Old Vendor", Status: entity.ExtractionSucceeded, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, h.store.metadata, "stale extraction must be dropped")
}

func TestAttachProforma_OnlyInDraft(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	_, err := h.engine.AttachProforma(context.Background(), req.ID, []byte("late proforma"), "application/pdf")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestListPendingForLevel(t *testing.T) {
	h := newHarness(t)
	req := h.createDraft(t)
	h.submit(t, req.ID)

	pending, err := h.engine.ListPendingForLevel(context.Background(), entity.LevelL1, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	pending, err = h.engine.ListPendingForLevel(context.Background(), entity.LevelL2, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = h.engine.ListPendingForLevel(context.Background(), entity.ApprovalLevel("L3"), 10)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}
