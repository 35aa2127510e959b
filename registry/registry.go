// Package registry implements the castmark registry state machine: a mapping
// from identifier digests to mark records with single-owner mutation,
// idempotent registration, soft removal, and a global emergency-pause switch.
//
// All state lives behind one RWMutex. Mutating operations hold the write lock
// for their full duration, batch registration included, so every operation is
// linearizable with respect to every other and no caller can observe a
// partially applied batch. Domain events are published while the lock is
// held, which keeps sink order identical to mutation order.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xSardius/castmark/errors"
	"github.com/0xSardius/castmark/event"
	"github.com/0xSardius/castmark/metric"
	"github.com/0xSardius/castmark/pkg/timestamp"
)

// Store persists marks write-through. Persistence is best-effort: a store
// failure is logged and counted but never fails the operation, since
// durability is not part of the registry's contract.
type Store interface {
	Put(ctx context.Context, key string, mark Mark) error
}

// Registry owns the mark state: the registered flags, the mark records, the
// pause switch, and the administrator identity.
type Registry struct {
	mu         sync.RWMutex
	registered map[MarkKey]bool
	marks      map[MarkKey]Mark
	paused     bool

	admin     Principal
	publisher event.Publisher
	store     Store
	metrics   *metric.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option is a functional option for configuring a Registry
type Option func(*Registry)

// WithPublisher attaches an event sink. Defaults to a no-op publisher.
func WithPublisher(p event.Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithStore attaches write-through persistence.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithMetrics attaches operation metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSeed preloads marks from persisted state, keyed by hex MarkKey.
// Invalid keys are skipped with a warning; the store is the only writer of
// these keys so a bad entry means external tampering, not a caller error.
func WithSeed(marks map[string]Mark) Option {
	return func(r *Registry) {
		for hexKey, mark := range marks {
			key, err := ParseKey(hexKey)
			if err != nil {
				r.logger.Warn("skipping seed entry with bad key", "key", hexKey, "error", err)
				continue
			}
			r.registered[key] = true
			r.marks[key] = mark
		}
	}
}

// New creates a registry administered by admin. The administrator is fixed
// for the lifetime of the registry; it alone may pause and unpause, and it
// may remove any mark.
func New(admin Principal, opts ...Option) (*Registry, error) {
	if admin == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("administrator principal is empty: %w", errors.ErrInvalidInput),
			"Registry", "New", "administrator validation")
	}

	r := &Registry{
		registered: make(map[MarkKey]bool),
		marks:      make(map[MarkKey]Mark),
		admin:      admin,
		publisher:  event.NopPublisher{},
		logger:     slog.Default().With("component", "registry"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.syncGauges()
	return r, nil
}

// Admin returns the administrator principal.
func (r *Registry) Admin() Principal {
	return r.admin
}

// Register creates a mark for the identifier owned by caller. Registration
// is first-come: a key that was ever registered, active or removed, can never
// be registered again.
func (r *Registry) Register(ctx context.Context, identifier, name, url string, caller Principal) error {
	start := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.registerLocked(ctx, identifier, name, url, caller, "Register")
	r.record("register", err, start)
	return err
}

// registerLocked validates and applies a single registration. Callers hold
// the write lock.
func (r *Registry) registerLocked(ctx context.Context, identifier, name, url string, caller Principal, op string) error {
	if r.paused {
		return errors.WrapInvalid(errors.ErrServicePaused, "Registry", op, "pause check")
	}
	if err := r.validateRegistration(identifier, name, url, caller, op); err != nil {
		return err
	}

	key := KeyFor(identifier)
	if r.registered[key] {
		return errors.WrapInvalid(
			fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrAlreadyRegistered),
			"Registry", op, "duplicate key check")
	}

	now := timestamp.ToUnixMs(r.now())
	mark := Mark{
		Name:      name,
		URL:       url,
		Owner:     caller,
		UpdatedAt: now,
		Exists:    true,
	}
	r.registered[key] = true
	r.marks[key] = mark
	r.persist(ctx, key, mark)
	r.syncGauges()

	r.publisher.Publish(event.Registered{
		Key:        key.Hex(),
		Identifier: identifier,
		Name:       name,
		URL:        url,
		Caller:     string(caller),
		At:         now,
	})
	return nil
}

// validateRegistration checks the per-item registration preconditions that
// do not touch state.
func (r *Registry) validateRegistration(identifier, name, url string, caller Principal, op string) error {
	if err := validateIdentifier(identifier); err != nil {
		return errors.WrapInvalid(err, "Registry", op, "input validation")
	}
	if err := validateFields(name, url); err != nil {
		return errors.WrapInvalid(err, "Registry", op, "input validation")
	}
	if err := validatePrincipal(caller, "caller"); err != nil {
		return errors.WrapInvalid(err, "Registry", op, "input validation")
	}
	return nil
}

// Update rewrites the name and url of the caller's mark and bumps its
// timestamp. Removal state is not consulted: the owner of a soft-removed
// mark may still update it, and doing so does not resurrect it.
func (r *Registry) Update(ctx context.Context, identifier, name, url string, caller Principal) error {
	start := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.updateLocked(ctx, identifier, name, url, caller)
	r.record("update", err, start)
	return err
}

func (r *Registry) updateLocked(ctx context.Context, identifier, name, url string, caller Principal) error {
	if r.paused {
		return errors.WrapInvalid(errors.ErrServicePaused, "Registry", "Update", "pause check")
	}
	if err := validateIdentifier(identifier); err != nil {
		return errors.WrapInvalid(err, "Registry", "Update", "input validation")
	}
	if err := validateFields(name, url); err != nil {
		return errors.WrapInvalid(err, "Registry", "Update", "input validation")
	}

	key := KeyFor(identifier)
	mark, ok := r.lookupLocked(key)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrNotRegistered),
			"Registry", "Update", "registration check")
	}
	if mark.Owner != caller {
		return errors.WrapInvalid(errors.ErrNotOwner, "Registry", "Update", "ownership check")
	}

	mark.Name = name
	mark.URL = url
	mark.UpdatedAt = r.nextTimestamp(mark.UpdatedAt)
	r.marks[key] = mark
	r.persist(ctx, key, mark)

	r.publisher.Publish(event.Updated{
		Key:    key.Hex(),
		Name:   name,
		URL:    url,
		Caller: string(caller),
		At:     mark.UpdatedAt,
	})
	return nil
}

// Transfer reassigns the mark to newOwner. The mark's timestamp is left
// untouched: only Register and Update bump it.
func (r *Registry) Transfer(ctx context.Context, identifier string, newOwner, caller Principal) error {
	start := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.transferLocked(ctx, identifier, newOwner, caller)
	r.record("transfer", err, start)
	return err
}

func (r *Registry) transferLocked(ctx context.Context, identifier string, newOwner, caller Principal) error {
	if r.paused {
		return errors.WrapInvalid(errors.ErrServicePaused, "Registry", "Transfer", "pause check")
	}
	if err := validateIdentifier(identifier); err != nil {
		return errors.WrapInvalid(err, "Registry", "Transfer", "input validation")
	}
	if err := validatePrincipal(newOwner, "new owner"); err != nil {
		return errors.WrapInvalid(err, "Registry", "Transfer", "input validation")
	}

	key := KeyFor(identifier)
	mark, ok := r.lookupLocked(key)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrNotRegistered),
			"Registry", "Transfer", "registration check")
	}
	if mark.Owner != caller {
		return errors.WrapInvalid(errors.ErrNotOwner, "Registry", "Transfer", "ownership check")
	}

	previous := mark.Owner
	mark.Owner = newOwner
	r.marks[key] = mark
	r.persist(ctx, key, mark)

	r.publisher.Publish(event.Transferred{
		Key:           key.Hex(),
		PreviousOwner: string(previous),
		NewOwner:      string(newOwner),
		At:            timestamp.ToUnixMs(r.now()),
	})
	return nil
}

// Remove soft-deletes the mark. The key stays registered forever, so
// IsRegistered keeps reporting true and the identifier can never be taken
// again. Removal is deliberately not gated by pause: the emergency switch
// protects against new or changed commitments, not against withdrawal.
// Permitted to the mark's owner and to the administrator.
func (r *Registry) Remove(ctx context.Context, identifier string, caller Principal) error {
	start := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.removeLocked(ctx, identifier, caller)
	r.record("remove", err, start)
	return err
}

func (r *Registry) removeLocked(ctx context.Context, identifier string, caller Principal) error {
	if err := validateIdentifier(identifier); err != nil {
		return errors.WrapInvalid(err, "Registry", "Remove", "input validation")
	}

	key := KeyFor(identifier)
	mark, ok := r.lookupLocked(key)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrNotRegistered),
			"Registry", "Remove", "registration check")
	}
	if mark.Owner != caller && caller != r.admin {
		return errors.WrapInvalid(errors.ErrNotAuthorized, "Registry", "Remove", "authorization check")
	}

	mark.Exists = false
	r.marks[key] = mark
	r.persist(ctx, key, mark)
	r.syncGauges()

	r.publisher.Publish(event.Removed{
		Key:    key.Hex(),
		Caller: string(caller),
		At:     timestamp.ToUnixMs(r.now()),
	})
	return nil
}

// IsRegistered reports whether the identifier's key was ever registered.
// True for both active and removed marks; this is a deliberately coarse
// existence check, distinct from "active".
func (r *Registry) IsRegistered(identifier string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.registered[KeyFor(identifier)]
}

// GetMark returns a copy of the active mark for the identifier. A key that
// was never registered fails with ErrNotRegistered; a soft-removed mark
// fails with ErrRemoved.
func (r *Registry) GetMark(identifier string) (Mark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := KeyFor(identifier)
	mark, ok := r.lookupLocked(key)
	if !ok {
		return Mark{}, errors.WrapInvalid(
			fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrNotRegistered),
			"Registry", "GetMark", "registration check")
	}
	if !mark.Exists {
		return Mark{}, errors.WrapInvalid(
			fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrRemoved),
			"Registry", "GetMark", "removal check")
	}
	return mark, nil
}

// BatchRegister registers identifiers[i] with names[i] and urls[i], all owned
// by caller, all-or-nothing. Every item is validated against current state
// and against the batch's earlier items before anything commits; any
// violation fails the whole call with the offending index and leaves the
// registry untouched. On success each item's registration and event is
// applied in input order, exactly as in Register.
func (r *Registry) BatchRegister(ctx context.Context, identifiers, names, urls []string, caller Principal) error {
	start := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.batchRegisterLocked(ctx, identifiers, names, urls, caller)
	r.record("batch_register", err, start)
	return err
}

func (r *Registry) batchRegisterLocked(ctx context.Context, identifiers, names, urls []string, caller Principal) error {
	if r.paused {
		return errors.WrapInvalid(errors.ErrServicePaused, "Registry", "BatchRegister", "pause check")
	}
	if len(identifiers) != len(names) || len(identifiers) != len(urls) {
		return errors.WrapInvalid(
			fmt.Errorf("got %d identifiers, %d names, %d urls: %w",
				len(identifiers), len(names), len(urls), errors.ErrBatchLengthMismatch),
			"Registry", "BatchRegister", "input length check")
	}

	// Validate-all before apply-all keeps the batch atomic without rollback.
	seen := make(map[MarkKey]int, len(identifiers))
	for i, identifier := range identifiers {
		if err := r.validateRegistration(identifier, names[i], urls[i], caller, "BatchRegister"); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
		key := KeyFor(identifier)
		if r.registered[key] {
			return fmt.Errorf("batch item %d: %w", i, errors.WrapInvalid(
				fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrAlreadyRegistered),
				"Registry", "BatchRegister", "duplicate key check"))
		}
		if first, dup := seen[key]; dup {
			return fmt.Errorf("batch item %d: duplicates item %d: %w", i, first,
				errors.WrapInvalid(
					fmt.Errorf("identifier digest %s: %w", key.Hex(), errors.ErrAlreadyRegistered),
					"Registry", "BatchRegister", "duplicate key check"))
		}
		seen[key] = i
	}

	now := timestamp.ToUnixMs(r.now())
	for i, identifier := range identifiers {
		key := KeyFor(identifier)
		mark := Mark{
			Name:      names[i],
			URL:       urls[i],
			Owner:     caller,
			UpdatedAt: now,
			Exists:    true,
		}
		r.registered[key] = true
		r.marks[key] = mark
		r.persist(ctx, key, mark)

		r.publisher.Publish(event.Registered{
			Key:        key.Hex(),
			Identifier: identifier,
			Name:       names[i],
			URL:        urls[i],
			Caller:     string(caller),
			At:         now,
		})
	}
	r.syncGauges()
	return nil
}

// Pause stops all mutating operations except Remove. Administrator only.
func (r *Registry) Pause(caller Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return errors.WrapInvalid(errors.ErrNotAuthorized, "Registry", "Pause", "authorization check")
	}
	r.paused = true
	if r.metrics != nil {
		r.metrics.SetPaused(true)
	}
	r.logger.Warn("registry paused", "caller", string(caller))
	return nil
}

// Unpause re-enables mutating operations. Administrator only.
func (r *Registry) Unpause(caller Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return errors.WrapInvalid(errors.ErrNotAuthorized, "Registry", "Unpause", "authorization check")
	}
	r.paused = false
	if r.metrics != nil {
		r.metrics.SetPaused(false)
	}
	r.logger.Info("registry unpaused", "caller", string(caller))
	return nil
}

// Paused reports the pause switch.
func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.paused
}

// lookupLocked returns the mark for a registered key. Callers hold the lock.
func (r *Registry) lookupLocked(key MarkKey) (Mark, bool) {
	if !r.registered[key] {
		return Mark{}, false
	}
	return r.marks[key], true
}

// nextTimestamp returns the current time clamped so a mark's UpdatedAt never
// goes backwards across wall-clock adjustments.
func (r *Registry) nextTimestamp(previous int64) int64 {
	now := timestamp.ToUnixMs(r.now())
	if now < previous {
		return previous
	}
	return now
}

// persist writes a mark through to the store, best-effort.
func (r *Registry) persist(ctx context.Context, key MarkKey, mark Mark) {
	if r.store == nil {
		return
	}
	if err := r.store.Put(ctx, key.Hex(), mark); err != nil {
		r.logger.Error("persist mark", "key", key.Hex(), "error", err)
		if r.metrics != nil {
			r.metrics.StoreErrors.Inc()
		}
	}
}

// record updates operation metrics.
func (r *Registry) record(op string, err error, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordOperation(op, err, r.now().Sub(start))
}

// syncGauges recounts the active/removed gauges. Callers hold the lock.
func (r *Registry) syncGauges() {
	if r.metrics == nil {
		return
	}
	active, removed := 0, 0
	for _, mark := range r.marks {
		if mark.Exists {
			active++
		} else {
			removed++
		}
	}
	r.metrics.SetMarkCounts(active, removed)
}
