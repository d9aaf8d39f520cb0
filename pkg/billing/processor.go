package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/tenants"
)

// Provider event types the processor dispatches on
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// Processing outcomes reported to metrics
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// lockStripes is the size of the keyed-mutex stripe array. Mutations to the
// same subscription always hash to the same stripe, which is what the
// serialization guarantee needs; distinct subscriptions sharing a stripe
// only costs a little contention.
const lockStripes = 64

// Processor consumes verified provider events and mutates subscription
// state through the explicit state machine.
type Processor struct {
	store   Store
	tenants tenants.Service
	catalog *plans.Catalog
	secret  []byte
	clock   Clock
	logger  *observability.Logger
	metrics *observability.Metrics
	locks   [lockStripes]sync.Mutex
}

// NewProcessor creates a billing event processor
func NewProcessor(store Store, tenantService tenants.Service, catalog *plans.Catalog, webhookSecret string, clock Clock, logger *observability.Logger, metrics *observability.Metrics) *Processor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Processor{
		store:   store,
		tenants: tenantService,
		catalog: catalog,
		secret:  []byte(webhookSecret),
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// VerifySignature checks the HMAC-SHA256 of the raw payload against the
// Signature header. Payloads that fail verification are never parsed.
func (p *Processor) VerifySignature(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return &SignatureInvalidError{Reason: "missing signature header"}
	}
	provided := strings.TrimPrefix(signatureHeader, "sha256=")

	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return &SignatureInvalidError{Reason: "signature mismatch"}
	}
	return nil
}

// ParseEvent decodes a verified payload into an Event
func (p *Processor) ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("event payload missing id or type")
	}
	return &event, nil
}

// Process applies one event. Redelivered event ids are acknowledged as
// no-ops; unrecognized types are acknowledged so the provider stops
// redelivering them. A handler error propagates unrecorded, making the
// provider's redelivery the retry path.
func (p *Processor) Process(ctx context.Context, event *Event) error {
	start := p.clock.Now()
	outcome, err := p.process(ctx, event)
	if p.metrics != nil {
		p.metrics.ObserveWebhook(event.Type, outcome, p.clock.Now().Sub(start))
	}
	return err
}

func (p *Processor) process(ctx context.Context, event *Event) (string, error) {
	log := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	processed, err := p.store.WasProcessed(ctx, event.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("idempotency check failed: %w", err)
	}
	if processed {
		log.Debug("billing event already processed, acknowledging redelivery")
		return OutcomeDuplicate, nil
	}

	var handlerErr error
	var dropped bool
	switch event.Type {
	case EventCheckoutCompleted:
		dropped, handlerErr = p.handleCheckoutCompleted(ctx, log, event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		dropped, handlerErr = p.handleSubscriptionUpserted(ctx, log, event)
	case EventSubscriptionDeleted:
		handlerErr = p.handleSubscriptionDeleted(ctx, log, event)
	case EventInvoicePaid:
		handlerErr = p.handleInvoicePaid(ctx, log, event)
	case EventInvoicePaymentFailed:
		handlerErr = p.handleInvoicePaymentFailed(ctx, log, event)
	default:
		// Tolerate future provider event types: acknowledge without error
		// so the provider stops redelivering.
		log.Debug("unrecognized billing event type, acknowledging")
		if err := p.store.MarkProcessed(ctx, event.ID, event.Type); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeIgnored, nil
	}

	if handlerErr != nil {
		log.WithError(handlerErr).Error("billing event handler failed; leaving event unrecorded for redelivery")
		return OutcomeFailed, handlerErr
	}

	// Record only after the handler completed, so a failure above retries
	// on redelivery.
	if err := p.store.MarkProcessed(ctx, event.ID, event.Type); err != nil {
		return OutcomeFailed, err
	}
	if dropped {
		return OutcomeDropped, nil
	}
	return OutcomeProcessed, nil
}

// lockFor serializes handlers touching the same external subscription id
func (p *Processor) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &p.locks[h.Sum32()%lockStripes]
}

// handleCheckoutCompleted attaches a paid subscription to the tenant named
// in the session metadata, provisioning a placeholder tenant if onboarding
// has not caught up yet. Returns dropped=true when metadata is unusable.
func (p *Processor) handleCheckoutCompleted(ctx context.Context, log *observability.Logger, event *Event) (bool, error) {
	obj := event.Data.Object
	tenantExternalID := obj.Metadata[MetadataTenantExternalID]
	tierName := obj.Metadata[MetadataTier]
	if tenantExternalID == "" || tierName == "" {
		log.Warn("checkout.session.completed missing tenant or tier metadata, dropping")
		return true, nil
	}

	tier := plans.Tier(tierName)
	if _, err := p.catalog.Get(tier); err != nil {
		log.WithField("tier", tierName).Warn("checkout.session.completed names unknown tier, dropping")
		return true, nil
	}

	externalSubID := obj.Subscription
	if externalSubID == "" {
		log.Warn("checkout.session.completed carries no subscription id, dropping")
		return true, nil
	}

	// A paid signup must never be lost: provision a placeholder tenant when
	// the checkout arrives before onboarding created the row.
	tenant, err := p.tenants.EnsurePlaceholder(ctx, tenantExternalID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve tenant %s: %w", tenantExternalID, err)
	}
	if tenant.Placeholder {
		log.WithField("tenant_external_id", tenantExternalID).Warn("provisioned placeholder tenant for checkout")
	}

	lock := p.lockFor(externalSubID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := p.store.UpsertFromExternal(ctx, tenant.ID, externalSubID, tier, "active", obj.Customer)
	if err != nil {
		return false, err
	}
	p.observeTransition(sub.Status)
	log.WithFields(map[string]interface{}{
		"tenant_id": tenant.ID,
		"tier":      tier,
	}).Info("checkout completed, subscription activated")
	return false, nil
}

// handleSubscriptionUpserted applies provider-side subscription create and
// update events through the fixed status mapping table.
func (p *Processor) handleSubscriptionUpserted(ctx context.Context, log *observability.Logger, event *Event) (bool, error) {
	obj := event.Data.Object
	tenantExternalID := obj.Metadata[MetadataTenantExternalID]
	if tenantExternalID == "" {
		log.Warn("subscription event missing tenant metadata, dropping")
		return true, nil
	}
	if obj.ID == "" {
		log.Warn("subscription event missing subscription id, dropping")
		return true, nil
	}

	tenant, err := p.tenants.GetByExternalID(ctx, tenantExternalID)
	if err == tenants.ErrNotFound {
		log.WithField("tenant_external_id", tenantExternalID).Warn("subscription event for unknown tenant, dropping")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up tenant %s: %w", tenantExternalID, err)
	}

	tier := plans.Tier(obj.Metadata[MetadataTier])
	if tier == "" || !tier.Valid() {
		// Keep the stored tier when the event carries none; a brand-new row
		// without a tier defaults to starter.
		if existing, err := p.store.FindByExternalID(ctx, obj.ID); err == nil {
			tier = existing.Tier
		} else {
			tier = plans.TierStarter
		}
	}

	lock := p.lockFor(obj.ID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := p.store.UpsertFromExternal(ctx, tenant.ID, obj.ID, tier, obj.Status, obj.Customer)
	if err != nil {
		return false, err
	}
	p.observeTransition(sub.Status)
	return false, nil
}

// handleSubscriptionDeleted cancels the matching subscription. Entitlement
// is retained at the prior tier until the grace period ends; that policy is
// consumed by the quota governor, nothing is hard-deleted here.
func (p *Processor) handleSubscriptionDeleted(ctx context.Context, log *observability.Logger, event *Event) error {
	obj := event.Data.Object
	if obj.ID == "" {
		log.Warn("subscription.deleted carries no subscription id, ignoring")
		return nil
	}

	lock := p.lockFor(obj.ID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := p.store.FindByExternalID(ctx, obj.ID)
	if err == ErrNoSubscription {
		log.WithField("external_subscription_id", obj.ID).Warn("subscription.deleted for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.store.ApplyCancellation(ctx, sub.ID); err != nil {
		return err
	}
	p.observeTransition(StatusCancelled)
	log.WithField("subscription_id", sub.ID).Info("subscription cancelled, grace period opened")
	return nil
}

// handleInvoicePaid reactivates the matching subscription (recovery path)
func (p *Processor) handleInvoicePaid(ctx context.Context, log *observability.Logger, event *Event) error {
	return p.applyByExternalID(ctx, log, event.Data.Object.Subscription, StatusActive, p.store.ApplyInvoicePaid)
}

// handleInvoicePaymentFailed suspends the matching subscription
func (p *Processor) handleInvoicePaymentFailed(ctx context.Context, log *observability.Logger, event *Event) error {
	return p.applyByExternalID(ctx, log, event.Data.Object.Subscription, StatusSuspended, p.store.ApplyPaymentFailure)
}

func (p *Processor) applyByExternalID(ctx context.Context, log *observability.Logger, externalSubID string, to Status, apply func(context.Context, int64) error) error {
	if externalSubID == "" {
		log.Debug("invoice event without subscription reference, ignoring")
		return nil
	}

	lock := p.lockFor(externalSubID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := p.store.FindByExternalID(ctx, externalSubID)
	if err == ErrNoSubscription {
		log.WithField("external_subscription_id", externalSubID).Debug("invoice event for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	if err := apply(ctx, sub.ID); err != nil {
		return err
	}
	p.observeTransition(to)
	return nil
}

func (p *Processor) observeTransition(to Status) {
	if p.metrics != nil {
		p.metrics.SubscriptionTransitions.WithLabelValues(string(to)).Inc()
	}
}

// ComputeSignature returns the hex HMAC-SHA256 for a payload. Exported for
// tests and for the provider simulator in local development.
func ComputeSignature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
