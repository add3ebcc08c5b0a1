package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const table = "contacts"

var columns = []string{"id", "phone_number", "email", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at"}

// Repository handles contact persistence in postgres
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByID returns nil, nil when the contact is missing or soft deleted.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var contact models.Contact
	if err := database.Executor(ctx, r.db).GetContext(ctx, &contact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contact")
	}

	return &contact, nil
}

func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByIDs")
	defer span.End()

	if len(ids) == 0 {
		return []models.Contact{}, nil
	}

	sb := r.selectLive()
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	return r.selectContacts(ctx, sb, "failed to get contacts")
}

// FindByEmailOrPhone matches any live contact sharing the email or the phone number.
func (r *Repository) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailOrPhone")
	defer span.End()

	sb := r.selectLive()
	var conditions []string
	if email != nil {
		conditions = append(conditions, sb.Equal("email", *email))
	}
	if phone != nil {
		conditions = append(conditions, sb.Equal("phone_number", *phone))
	}
	if len(conditions) == 0 {
		return []models.Contact{}, nil
	}
	sb.Where(sb.Or(conditions...))

	return r.selectContacts(ctx, sb, "failed to find contacts")
}

func (r *Repository) FindByLinkedIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByLinkedIDs")
	defer span.End()

	if len(ids) == 0 {
		return []models.Contact{}, nil
	}

	sb := r.selectLive()
	sb.Where(sb.In("linked_id", sqlbuilder.Flatten(ids)...))

	return r.selectContacts(ctx, sb, "failed to get linked contacts")
}

// Create inserts a contact and reads it back so the caller sees database timestamps.
func (r *Repository) Create(ctx context.Context, req models.CreateContactRequest) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	precedence := req.LinkPrecedence
	if precedence == "" {
		precedence = models.LinkPrecedencePrimary
	}

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at")
	ib.Values(req.Email, req.PhoneNumber, req.LinkedID, string(precedence), now, now)
	ib.Returning("id")

	query, args := ib.Build()
	var id int64
	if err := database.Executor(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contact")
	}

	contact, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		r.logger.WithContext(ctx).WithField("id", id).Error("Contact missing right after insert")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("contact %d missing after insert", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":              contact.ID,
		"link_precedence": contact.LinkPrecedence,
	}).Debug("Created contact")
	return contact, nil
}

func (r *Repository) SetSecondary(ctx context.Context, id, linkedID int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SetSecondary")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("link_precedence", string(models.LinkPrecedenceSecondary)),
		ub.Assign("linked_id", linkedID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to demote contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update contact")
	}

	return nil
}

func (r *Repository) RelinkChildren(ctx context.Context, oldPrimaryID, newPrimaryID int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.RelinkChildren")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("linked_id", newPrimaryID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("linked_id", oldPrimaryID))

	query, args := ub.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", oldPrimaryID).Error("Failed to relink contacts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to relink contacts")
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"from":  oldPrimaryID,
		"to":    newPrimaryID,
		"count": rows,
	}).Debug("Relinked contacts")
	return nil
}

// SoftDelete marks a contact deleted. It reports whether a live contact was found.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("deleted_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to soft delete contact")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete contact")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RunInTx joins the transaction on ctx or opens one, committing when fn succeeds.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctxTx)

	if err := fn(ctxTx); err != nil {
		return err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}
	return nil
}

func (r *Repository) selectLive() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("created_at ASC", "id ASC")
	return sb
}

func (r *Repository) selectContacts(ctx context.Context, sb *sqlbuilder.SelectBuilder, failure string) ([]models.Contact, error) {
	query, args := sb.Build()
	contacts := []models.Contact{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to query contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}
	return contacts, nil
}
