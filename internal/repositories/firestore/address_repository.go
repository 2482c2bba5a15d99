package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/shopmesh/api/internal/domain"
	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
	"github.com/shopmesh/api/internal/repositories"
)

const (
	addressCollection   = "addresses"
	maxAddressesPerUser = 100
)

// AddressRepository persists delivery addresses in a top-level collection so they can be
// resolved in bulk without knowing the owning user.
type AddressRepository struct {
	base *pfirestore.BaseRepository[addressDocument]
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{base: pfirestore.NewBaseRepository[addressDocument](provider, addressCollection)}, nil
}

func (r *AddressRepository) Insert(ctx context.Context, address domain.Address) error {
	return r.base.Create(ctx, string(address.ID), newAddressDocument(address))
}

func (r *AddressRepository) Update(ctx context.Context, address domain.Address) error {
	return r.base.Set(ctx, string(address.ID), newAddressDocument(address))
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID domain.AddressID) (domain.Address, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(string(addressID)))
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByUser returns the user's addresses, most recently updated first.
func (r *AddressRepository) ListByUser(ctx context.Context, userID string) ([]domain.Address, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).
			OrderBy("updatedAt", firestore.Desc).
			Limit(maxAddressesPerUser)
	})
	if err != nil {
		return nil, err
	}
	addresses := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		addresses = append(addresses, doc.Data.toDomain(doc.ID))
	}
	return addresses, nil
}

func (r *AddressRepository) BulkGet(ctx context.Context, ids []domain.AddressID) (map[domain.AddressID]domain.Address, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, string(id))
	}
	docs, err := r.base.GetAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[domain.AddressID]domain.Address, len(docs))
	for _, doc := range docs {
		result[domain.AddressID(doc.ID)] = doc.Data.toDomain(doc.ID)
	}
	return result, nil
}

type addressDocument struct {
	UserID    string    `firestore:"userId"`
	Name      string    `firestore:"name"`
	Phone     string    `firestore:"phone"`
	AltPhone  string    `firestore:"altPhone,omitempty"`
	Pincode   string    `firestore:"pincode"`
	Locality  string    `firestore:"locality"`
	Line      string    `firestore:"address"`
	State     string    `firestore:"state"`
	Landmark  string    `firestore:"landmark,omitempty"`
	Kind      string    `firestore:"addressType"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		UserID:    a.UserID,
		Name:      a.Name,
		Phone:     a.Phone,
		AltPhone:  a.AltPhone,
		Pincode:   a.Pincode,
		Locality:  a.Locality,
		Line:      a.Line,
		State:     a.State,
		Landmark:  a.Landmark,
		Kind:      a.Kind,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:        domain.AddressID(id),
		UserID:    d.UserID,
		Name:      d.Name,
		Phone:     d.Phone,
		AltPhone:  d.AltPhone,
		Pincode:   d.Pincode,
		Locality:  d.Locality,
		Line:      d.Line,
		State:     d.State,
		Landmark:  d.Landmark,
		Kind:      d.Kind,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
