// Package request makes sure a backend is actively pursuing a book, either by
// nudging a catalog entry it already has or by adding a new one.
package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/drallgood/bookrequest/internal/api/readarr"
	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/metrics"
	"github.com/drallgood/bookrequest/internal/models"
)

var (
	// ErrBookRequired is returned in create mode when no lookup record was supplied
	ErrBookRequired = errors.New("a lookup record is required to add a new book")
	// ErrInvalidExistingID is returned when the existing id is not positive
	ErrInvalidExistingID = errors.New("existing id must be a positive number")
)

// Gateway is the subset of a backend client the reconciler drives
type Gateway interface {
	Name() string
	MonitorBooks(ctx context.Context, ids []int, monitored bool) error
	SearchBooks(ctx context.Context, ids []int) error
	GetBook(ctx context.Context, id int) (models.BookRecord, error)
	UpdateBook(ctx context.Context, book models.BookRecord) error
	CreateBook(ctx context.Context, payload models.BookRecord) (models.BookRecord, error)
	ResolveDefaults(ctx context.Context) (readarr.Defaults, error)
}

// Outcome says which path satisfied a request
type Outcome string

const (
	OutcomeMonitored Outcome = "monitored"
	OutcomeSearched  Outcome = "searched"
	OutcomeRenewed   Outcome = "monitored_and_searched"
	OutcomeUpdated   Outcome = "updated"
	OutcomeCreated   Outcome = "created"
)

// Reconciler runs the ensure-requested operation
type Reconciler struct {
	// DefaultsResolutionEnabled lets the backend's own root folder and quality
	// profile stand in when the instance has none configured
	DefaultsResolutionEnabled bool
	Logger                    *logger.Logger
}

func (r *Reconciler) log() *logger.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logger.Get()
}

// EnsureRequested re-requests existingID when given, else creates book
func (r *Reconciler) EnsureRequested(ctx context.Context, gw Gateway, inst config.Instance, book *models.LookupRecord, existingID *int) (Outcome, error) {
	var (
		outcome Outcome
		err     error
		mode    = "create"
	)
	if existingID != nil {
		mode = "rerequest"
		outcome, err = r.rerequest(ctx, gw, inst, *existingID)
	} else {
		outcome, err = r.create(ctx, gw, inst, book)
	}

	label := string(outcome)
	if err != nil {
		label = "failed"
	}
	metrics.ReconcileTotal.WithLabelValues(mode, label).Inc()
	return outcome, err
}

func (r *Reconciler) rerequest(ctx context.Context, gw Gateway, inst config.Instance, id int) (Outcome, error) {
	if id <= 0 {
		return "", ErrInvalidExistingID
	}
	log := r.log().WithFields(map[string]interface{}{"instance": gw.Name(), "book_id": id})
	ids := []int{id}

	monitorErr := gw.MonitorBooks(ctx, ids, true)
	if monitorErr != nil {
		log.Warn("Failed to set book monitored", map[string]interface{}{"error": monitorErr.Error()})
	}
	searchErr := gw.SearchBooks(ctx, ids)
	if searchErr != nil {
		log.Warn("Failed to trigger book search", map[string]interface{}{"error": searchErr.Error()})
	}

	switch {
	case monitorErr == nil && searchErr == nil:
		return OutcomeRenewed, nil
	case monitorErr == nil:
		return OutcomeMonitored, nil
	case searchErr == nil:
		return OutcomeSearched, nil
	}

	log.Info("Falling back to a full record update")
	current, err := gw.GetBook(ctx, id)
	if err != nil {
		log.Error("Failed to fetch book for update", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("re-request of book %d failed (monitor: %v; search: %v): fetch: %w", id, monitorErr, searchErr, err)
	}

	updated := current.Clone()
	updated["monitored"] = true
	if d, ok := r.defaults(ctx, gw, inst, log); ok {
		updated["rootFolderPath"] = d.RootFolderPath
		updated["qualityProfileId"] = d.QualityProfileID
	}

	if err := gw.UpdateBook(ctx, updated); err != nil {
		log.Error("Failed to update book", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("re-request of book %d failed (monitor: %v; search: %v): update: %w", id, monitorErr, searchErr, err)
	}
	return OutcomeUpdated, nil
}

// defaults returns what to overlay on a fallback update. Resolution failures are
// logged and leave the record's own values untouched.
func (r *Reconciler) defaults(ctx context.Context, gw Gateway, inst config.Instance, log *logger.Logger) (readarr.Defaults, bool) {
	if inst.HasDefaults() {
		return readarr.Defaults{RootFolderPath: inst.DefaultRootFolderPath, QualityProfileID: inst.DefaultQualityProfileID}, true
	}
	if !r.DefaultsResolutionEnabled {
		return readarr.Defaults{}, false
	}
	d, err := gw.ResolveDefaults(ctx)
	if err != nil {
		log.Warn("Could not resolve backend defaults, updating monitored flag only", map[string]interface{}{"error": err.Error()})
		return readarr.Defaults{}, false
	}
	return d, true
}

func (r *Reconciler) create(ctx context.Context, gw Gateway, inst config.Instance, book *models.LookupRecord) (Outcome, error) {
	// an unmatchable record has nothing the backend could add
	if book == nil || book.Raw == nil || book.Identity() == "" {
		return "", ErrBookRequired
	}

	var d readarr.Defaults
	switch {
	case inst.HasDefaults():
		d = readarr.Defaults{RootFolderPath: inst.DefaultRootFolderPath, QualityProfileID: inst.DefaultQualityProfileID}
	case !r.DefaultsResolutionEnabled:
		return "", &config.ConfigError{
			Field: gw.Name(),
			Msg:   "needs a root folder path and quality profile to add books",
		}
	default:
		resolved, err := gw.ResolveDefaults(ctx)
		if err != nil {
			return "", err
		}
		d = resolved
	}

	payload := CreatePayload(book, d)
	if _, err := gw.CreateBook(ctx, payload); err != nil {
		return "", err
	}

	r.log().Info("Book added", map[string]interface{}{
		"instance": gw.Name(),
		"title":    book.Title,
	})
	return OutcomeCreated, nil
}

// CreatePayload copies the lookup record, drops its id and sets the fields that
// make the backend monitor the book and search for it straight away
func CreatePayload(book *models.LookupRecord, d readarr.Defaults) models.BookRecord {
	payload := book.Raw.Clone()
	delete(payload, "id")
	payload["rootFolderPath"] = d.RootFolderPath
	payload["qualityProfileId"] = d.QualityProfileID
	payload["monitored"] = true

	addOptions := map[string]any{}
	if existing := payload.Object("addOptions"); existing != nil {
		for k, v := range existing {
			addOptions[k] = v
		}
	}
	addOptions["searchForNewBook"] = true
	payload["addOptions"] = addOptions

	// a book for an unknown author creates the author too, which needs the same placement
	if author := payload.Object("author"); author != nil {
		a := author.Clone()
		if _, ok := a["rootFolderPath"]; !ok {
			a["rootFolderPath"] = d.RootFolderPath
		}
		if _, ok := a["qualityProfileId"]; !ok {
			a["qualityProfileId"] = d.QualityProfileID
		}
		payload["author"] = map[string]any(a)
	}
	return payload
}
