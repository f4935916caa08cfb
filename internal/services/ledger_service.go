package services

import (
	"context"
	"errors"
	"fmt"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/predict"
	"budget/internal/storage"
	"budget/internal/tenant"
)

// Resolver hands out tenant database handles.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (*tenant.Handle, error)
}

// EventPublisher publishes committed record mutations.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, event *amqp.RecordEvent) error
}

// LedgerService is the tenant-scoped contract used by the request layer.
// Every call resolves the tenant's handle, runs one store operation and
// releases the handle before returning.
type LedgerService struct {
	tenants      Resolver
	events       EventPublisher
	metrics      *metrics.Metrics
	logger       *log.Logger
	suggestLimit int
}

// NewLedgerService wires the service. events and m may be nil.
func NewLedgerService(tenants Resolver, events EventPublisher, m *metrics.Metrics, logger *log.Logger, suggestLimit int) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	if suggestLimit <= 0 {
		suggestLimit = core.DefaultSuggestionLimit
	}
	return &LedgerService{
		tenants:      tenants,
		events:       events,
		metrics:      m,
		logger:       logger.WithComponent(log.ComponentRecords),
		suggestLimit: suggestLimit,
	}
}

func (s *LedgerService) withTenant(ctx context.Context, tenantID, op string, fn func(h *tenant.Handle) error) error {
	h, err := s.tenants.Resolve(ctx, tenantID)
	if err == nil {
		defer h.Release()
		err = fn(h)
	}
	s.observe(ctx, tenantID, op, err)
	return err
}

// observe records the outcome and logs failures that are not the caller's fault.
func (s *LedgerService) observe(ctx context.Context, tenantID, op string, err error) {
	result := resultOf(err)
	s.metrics.StoreOp(op, result)
	if result == "storage_unavailable" || result == "schema_error" || result == "error" {
		s.logger.ErrorContext(ctx, "Store operation failed",
			log.FieldTenantID, tenantID,
			log.FieldOperation, op,
			log.FieldErrorType, result,
			log.FieldError, err)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrValidation):
		return "validation"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrDuplicateName), errors.Is(err, core.ErrCategoryInUse):
		return "conflict"
	case errors.Is(err, core.ErrSchema):
		return "schema_error"
	case errors.Is(err, core.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// publish sends an event for a committed write. Failures are logged only:
// the write already succeeded.
func (s *LedgerService) publish(ctx context.Context, t amqp.EventType, tenantID string, rec core.Record) {
	if s.events == nil {
		return
	}
	err := s.events.PublishRecordEvent(context.WithoutCancel(ctx), amqp.NewRecordEvent(t, tenantID, rec))
	if err != nil {
		s.metrics.Event(string(t), "error")
		s.logger.WarnContext(ctx, "Failed to publish record event",
			log.FieldEventType, t,
			log.FieldTenantID, tenantID,
			log.FieldRecordID, rec.ID,
			log.FieldError, err)
		return
	}
	s.metrics.Event(string(t), "ok")
}

// CreateRecord stores a new record in the tenant's database.
func (s *LedgerService) CreateRecord(ctx context.Context, tenantID string, draft core.RecordDraft) (core.Record, error) {
	var rec core.Record
	err := s.withTenant(ctx, tenantID, "create_record", func(h *tenant.Handle) error {
		var err error
		rec, err = storage.NewRecordStore(h).Create(ctx, draft)
		return err
	})
	if err != nil {
		return core.Record{}, fmt.Errorf("create record: %w", err)
	}
	s.publish(ctx, amqp.EventRecordCreated, tenantID, rec)
	return rec, nil
}

// GetRecord returns one record of the tenant.
func (s *LedgerService) GetRecord(ctx context.Context, tenantID, id string) (core.Record, error) {
	var rec core.Record
	err := s.withTenant(ctx, tenantID, "get_record", func(h *tenant.Handle) error {
		var err error
		rec, err = storage.NewRecordStore(h).Get(ctx, id)
		return err
	})
	return rec, err
}

// ListRecords returns a page of the tenant's records.
func (s *LedgerService) ListRecords(ctx context.Context, tenantID string, q core.RecordQuery) (core.RecordPage, error) {
	var page core.RecordPage
	err := s.withTenant(ctx, tenantID, "list_records", func(h *tenant.Handle) error {
		var err error
		page, err = storage.NewRecordStore(h).List(ctx, q)
		return err
	})
	return page, err
}

// UpdateRecord applies a partial update.
func (s *LedgerService) UpdateRecord(ctx context.Context, tenantID, id string, patch core.RecordPatch) (core.Record, error) {
	var rec core.Record
	err := s.withTenant(ctx, tenantID, "update_record", func(h *tenant.Handle) error {
		var err error
		rec, err = storage.NewRecordStore(h).Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}
	s.publish(ctx, amqp.EventRecordUpdated, tenantID, rec)
	return rec, nil
}

// DeleteRecord removes a record.
func (s *LedgerService) DeleteRecord(ctx context.Context, tenantID, id string) error {
	err := s.withTenant(ctx, tenantID, "delete_record", func(h *tenant.Handle) error {
		return storage.NewRecordStore(h).Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.publish(ctx, amqp.EventRecordDeleted, tenantID, core.Record{ID: id})
	return nil
}

// CreateCategory stores a new category.
func (s *LedgerService) CreateCategory(ctx context.Context, tenantID string, draft core.CategoryDraft) (core.Category, error) {
	var cat core.Category
	err := s.withTenant(ctx, tenantID, "create_category", func(h *tenant.Handle) error {
		var err error
		cat, err = storage.NewCategoryStore(h).Create(ctx, draft)
		return err
	})
	return cat, err
}

// GetCategory returns one category.
func (s *LedgerService) GetCategory(ctx context.Context, tenantID, id string) (core.Category, error) {
	var cat core.Category
	err := s.withTenant(ctx, tenantID, "get_category", func(h *tenant.Handle) error {
		var err error
		cat, err = storage.NewCategoryStore(h).Get(ctx, id)
		return err
	})
	return cat, err
}

// ListCategories returns a page of categories ordered by name.
func (s *LedgerService) ListCategories(ctx context.Context, tenantID string, q core.CategoryQuery) (core.CategoryPage, error) {
	var page core.CategoryPage
	err := s.withTenant(ctx, tenantID, "list_categories", func(h *tenant.Handle) error {
		var err error
		page, err = storage.NewCategoryStore(h).List(ctx, q)
		return err
	})
	return page, err
}

// UpdateCategory renames a category and/or replaces its metadata.
func (s *LedgerService) UpdateCategory(ctx context.Context, tenantID, id string, patch core.CategoryPatch) (core.Category, error) {
	var cat core.Category
	err := s.withTenant(ctx, tenantID, "update_category", func(h *tenant.Handle) error {
		var err error
		cat, err = storage.NewCategoryStore(h).Update(ctx, id, patch)
		return err
	})
	return cat, err
}

// DeleteCategory removes a category no record references.
func (s *LedgerService) DeleteCategory(ctx context.Context, tenantID, id string) error {
	return s.withTenant(ctx, tenantID, "delete_category", func(h *tenant.Handle) error {
		return storage.NewCategoryStore(h).Delete(ctx, id)
	})
}

// Suggest ranks likely record names for the category. Only malformed
// queries are reported; any other failure yields an empty list.
func (s *LedgerService) Suggest(ctx context.Context, tenantID string, q core.SuggestQuery) ([]core.Suggestion, error) {
	if err := q.Normalize(s.suggestLimit); err != nil {
		return nil, err
	}

	out, err := s.suggest(ctx, tenantID, q)
	if err != nil {
		s.metrics.Suggestion("unavailable")
		s.logger.WithComponent(log.ComponentPrediction).WarnContext(ctx, "Suggestions unavailable",
			log.FieldTenantID, tenantID,
			log.FieldCategoryID, q.CategoryID,
			log.FieldError, err)
		return []core.Suggestion{}, nil
	}
	if len(out) == 0 {
		s.metrics.Suggestion("empty")
	} else {
		s.metrics.Suggestion("ok")
	}
	return out, nil
}

func (s *LedgerService) suggest(ctx context.Context, tenantID string, q core.SuggestQuery) (out []core.Suggestion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", core.ErrPredictionUnavailable, r)
		}
	}()

	h, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPredictionUnavailable, err)
	}
	defer h.Release()

	candidates, err := storage.NewRecordStore(h).SuggestionCandidates(ctx, q.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPredictionUnavailable, err)
	}
	return predict.Suggest(candidates, q.Prefix, q.Limit), nil
}
