// Package identity consolidates contact observations into clusters with a
// single primary contact.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/locking"
	"github.com/Ramsey-B/iris/pkg/metrics"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const (
	DefaultBatchSize       = 500
	DefaultLockMaxAttempts = 3
)

// Outcome describes what an Identify call did to the store.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeExtended  Outcome = "extended"
	OutcomeMerged    Outcome = "merged"
	OutcomeUnchanged Outcome = "unchanged"
)

type Option func(*Resolver)

// WithLocker serializes Identify calls that touch the same cluster.
func WithLocker(locker locking.Locker, maxAttempts int) Option {
	return func(r *Resolver) {
		r.locker = locker
		if maxAttempts > 0 {
			r.lockAttempts = maxAttempts
		}
	}
}

// WithBatchSize caps the number of ids sent to the store in one lookup.
func WithBatchSize(size int) Option {
	return func(r *Resolver) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func WithObservers(observers ...Observer) Option {
	return func(r *Resolver) {
		r.observers = append(r.observers, observers...)
	}
}

// Resolver matches contact observations against stored clusters, merging
// clusters that an observation bridges.
type Resolver struct {
	store        Store
	logger       ectologger.Logger
	locker       locking.Locker
	lockAttempts int
	batchSize    int
	observers    []Observer
}

func NewResolver(store Store, logger ectologger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:        store,
		logger:       logger,
		lockAttempts: DefaultLockMaxAttempts,
		batchSize:    DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type observation struct {
	matches []models.Contact
	cluster []models.Contact
}

type result struct {
	outcome Outcome
	view    models.ConsolidatedContact
	change  *ClusterChange
	size    int
}

// Identify links the observed email and phone number into the contact graph
// and returns the consolidated view of the resulting cluster.
func (r *Resolver) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.Identify")
	defer span.End()

	start := time.Now()
	email, phone := req.Attributes()
	if email == nil && phone == nil {
		metrics.RecordIdentify("invalid", time.Since(start).Seconds())
		return nil, ErrInvalidRequest()
	}

	var res *result
	var err error
	if r.locker == nil {
		res, err = r.resolve(ctx, email, phone)
	} else {
		res, err = r.resolveLocked(ctx, email, phone)
	}
	if err != nil {
		metrics.RecordIdentify(errorOutcome(err), time.Since(start).Seconds())
		return nil, err
	}

	metrics.RecordIdentify(string(res.outcome), time.Since(start).Seconds())
	metrics.RecordClusterSize(res.size)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"outcome":      res.outcome,
		"primary_id":   res.view.PrimaryContactID,
		"cluster_size": res.size,
	}).Info("Identified contact")

	if res.change != nil {
		r.notify(ctx, *res.change)
	}

	return &models.IdentifyResponse{Contact: res.view}, nil
}

// Lookup returns the consolidated view of the cluster containing id without
// modifying it.
func (r *Resolver) Lookup(ctx context.Context, id int64) (*models.IdentifyResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.Lookup")
	defer span.End()

	contact, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrContactNotFound(id)
	}

	cluster, err := r.collectCluster(ctx, seedIDs([]models.Contact{*contact}))
	if err != nil {
		return nil, err
	}

	primaries := primariesOf(cluster)
	if len(primaries) == 0 {
		return nil, errNoPrimary(contactIDs(cluster))
	}

	return &models.IdentifyResponse{Contact: buildResponse(primaries[0], cluster)}, nil
}

func (r *Resolver) resolve(ctx context.Context, email, phone *string) (*result, error) {
	obs, err := r.observe(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, email, phone, obs)
}

// resolveLocked reads the cluster, locks its attribute values and primaries,
// then reads again. It only writes when the second read holds no primary the
// lock does not cover. Lock timeouts and uncovered primaries share the
// lockAttempts budget.
func (r *Resolver) resolveLocked(ctx context.Context, email, phone *string) (*result, error) {
	obs, err := r.observe(ctx, email, phone)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= r.lockAttempts; attempt++ {
		keys := lockKeys(email, phone, primariesOf(obs.cluster))
		release, err := r.locker.Acquire(ctx, keys)
		if errors.Is(err, locking.ErrLockNotAcquired) {
			r.logger.WithContext(ctx).WithError(err).Warnf("Cluster lock not acquired (attempt %d/%d)", attempt, r.lockAttempts)
			if attempt == r.lockAttempts {
				break
			}
			metrics.RecordLockRetry()
			// the holder may have reshaped the cluster
			if obs, err = r.observe(ctx, email, phone); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		obs, err = r.observe(ctx, email, phone)
		if err != nil {
			release(ctx)
			return nil, err
		}

		if covers(keys, primariesOf(obs.cluster)) {
			res, err := r.apply(ctx, email, phone, obs)
			release(ctx)
			return res, err
		}

		release(ctx)
		metrics.RecordLockRetry()
		r.logger.WithContext(ctx).Debugf("Cluster changed while locking, retrying (attempt %d/%d)", attempt, r.lockAttempts)
	}

	return nil, ErrClusterBusy(r.lockAttempts)
}

// observe loads the direct matches and, when there are any, every cluster they touch.
func (r *Resolver) observe(ctx context.Context, email, phone *string) (*observation, error) {
	matches, err := r.store.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &observation{}, nil
	}

	cluster, err := r.collectCluster(ctx, seedIDs(matches))
	if err != nil {
		return nil, err
	}
	return &observation{matches: matches, cluster: cluster}, nil
}

func (r *Resolver) apply(ctx context.Context, email, phone *string, obs *observation) (*result, error) {
	if len(obs.matches) == 0 {
		return r.createPrimary(ctx, email, phone)
	}

	primaries := primariesOf(obs.cluster)
	switch len(primaries) {
	case 0:
		r.logger.WithContext(ctx).WithField("contact_ids", contactIDs(obs.cluster)).Error("Matched cluster has no live primary")
		return nil, errNoPrimary(contactIDs(obs.cluster))
	case 1:
		return r.extend(ctx, email, phone, primaries[0], obs)
	default:
		return r.merge(ctx, primaries)
	}
}

func (r *Resolver) createPrimary(ctx context.Context, email, phone *string) (*result, error) {
	created, err := r.store.Create(ctx, models.CreateContactRequest{
		Email:          email,
		PhoneNumber:    phone,
		LinkPrecedence: models.LinkPrecedencePrimary,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordContactCreated(string(models.LinkPrecedencePrimary))

	cluster := []models.Contact{*created}
	return &result{
		outcome: OutcomeCreated,
		view:    buildResponse(created, cluster),
		size:    1,
		change: &ClusterChange{
			Kind:         ChangeCreated,
			PrimaryID:    created.ID,
			Contacts:     cluster,
			NewContactID: &created.ID,
		},
	}, nil
}

// extend adds a secondary when the observation carries a value the cluster
// lacks and no matched contact already holds the exact pair.
func (r *Resolver) extend(ctx context.Context, email, phone *string, primary *models.Contact, obs *observation) (*result, error) {
	alreadyExists := false
	for i := range obs.matches {
		m := &obs.matches[i]
		if (email == nil || m.HasEmail(*email)) && (phone == nil || m.HasPhoneNumber(*phone)) {
			alreadyExists = true
			break
		}
	}

	hasNewInfo := (email != nil && !clusterHas(obs.cluster, (*models.Contact).HasEmail, *email)) ||
		(phone != nil && !clusterHas(obs.cluster, (*models.Contact).HasPhoneNumber, *phone))

	// primary points into obs.cluster, which may grow below
	primaryCopy := *primary
	cluster := obs.cluster

	if alreadyExists || !hasNewInfo {
		return &result{
			outcome: OutcomeUnchanged,
			view:    buildResponse(&primaryCopy, cluster),
			size:    len(cluster),
		}, nil
	}

	created, err := r.store.Create(ctx, models.CreateContactRequest{
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       &primaryCopy.ID,
		LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordContactCreated(string(models.LinkPrecedenceSecondary))

	cluster = append(cluster, *created)
	return &result{
		outcome: OutcomeExtended,
		view:    buildResponse(&primaryCopy, cluster),
		size:    len(cluster),
		change: &ClusterChange{
			Kind:         ChangeExtended,
			PrimaryID:    primaryCopy.ID,
			Contacts:     cluster,
			NewContactID: &created.ID,
		},
	}, nil
}

// merge keeps the oldest primary, demotes the rest and moves their
// secondaries onto the winner in one transaction.
func (r *Resolver) merge(ctx context.Context, primaries []*models.Contact) (*result, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.merge")
	defer span.End()

	winner := *primaries[0]
	demoted := ectolinq.Map(primaries[1:], func(c *models.Contact) int64 { return c.ID })

	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		for _, loserID := range demoted {
			if err := r.store.SetSecondary(ctx, loserID, winner.ID); err != nil {
				return err
			}
			if err := r.store.RelinkChildren(ctx, loserID, winner.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("primary_id", winner.ID).Error("Failed to merge contact clusters")
		return nil, err
	}
	metrics.RecordMerge(len(demoted))

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id": winner.ID,
		"demoted":    demoted,
	}).Info("Merged contact clusters")

	refreshed, err := r.collectCluster(ctx, []int64{winner.ID})
	if err != nil {
		return nil, err
	}
	for i := range refreshed {
		if refreshed[i].ID == winner.ID {
			winner = refreshed[i]
			break
		}
	}

	return &result{
		outcome: OutcomeMerged,
		view:    buildResponse(&winner, refreshed),
		size:    len(refreshed),
		change: &ClusterChange{
			Kind:              ChangeMerged,
			PrimaryID:         winner.ID,
			Contacts:          refreshed,
			DemotedPrimaryIDs: demoted,
		},
	}, nil
}

func clusterHas(cluster []models.Contact, has func(*models.Contact, string) bool, value string) bool {
	for i := range cluster {
		if has(&cluster[i], value) {
			return true
		}
	}
	return false
}

func lockKeys(email, phone *string, primaries []*models.Contact) []string {
	keys := make([]string, 0, len(primaries)+2)
	if email != nil {
		keys = append(keys, "email:"+*email)
	}
	if phone != nil {
		keys = append(keys, "phone:"+*phone)
	}
	for _, p := range primaries {
		keys = append(keys, primaryKey(p.ID))
	}
	return locking.NormalizeKeys(keys)
}

func primaryKey(id int64) string {
	return fmt.Sprintf("contact:%d", id)
}

func covers(keys []string, primaries []*models.Contact) bool {
	held := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		held[k] = struct{}{}
	}
	for _, p := range primaries {
		if _, ok := held[primaryKey(p.ID)]; !ok {
			return false
		}
	}
	return true
}

func errorOutcome(err error) string {
	if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict {
		return "busy"
	}
	return "error"
}
