package services

import (
	"errors"

	"github.com/shopmesh/api/internal/enrichment"
	"github.com/shopmesh/api/internal/repositories"
)

var (
	// ErrValidation indicates the caller supplied missing or malformed input. No state was changed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a direct lookup by primary key found nothing.
	ErrNotFound = errors.New("not found")
	// ErrItemNotFound indicates the basket holds no item for the product.
	ErrItemNotFound = wrapKind(ErrNotFound, "basket item not found")
	// ErrConflict indicates the request contradicts current state.
	ErrConflict = errors.New("conflict")
	// ErrEmptyBasket indicates an order was requested for a basket with no items.
	ErrEmptyBasket = errors.New("basket is empty")
	// ErrInvalidAddress indicates the delivery address is missing or belongs to another user.
	ErrInvalidAddress = errors.New("invalid delivery address")
	// ErrDependency indicates a collaborator could not be reached or failed.
	ErrDependency = errors.New("dependency unavailable")
	// ErrCatalogUnavailable indicates fresh catalog prices could not be fetched during placement.
	ErrCatalogUnavailable = wrapKind(ErrDependency, "catalog unavailable")
	// ErrFetchFailed is re-exported so handlers need not import the enrichment package.
	ErrFetchFailed = enrichment.ErrFetchFailed
)

type kindError struct {
	kind error
	msg  string
}

func wrapKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

// translateRepoError maps repository failures onto service error kinds.
func translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return errors.Join(ErrNotFound, err)
		case repoErr.IsConflict():
			return errors.Join(ErrConflict, err)
		}
	}
	return errors.Join(ErrDependency, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
