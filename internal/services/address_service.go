package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shopmesh/api/internal/platform/textutil"
	"github.com/shopmesh/api/internal/repositories"
)

var (
	errAddressRepositoryRequired = errors.New("address service: repository is required")
	errAddressClockRequired      = errors.New("address service: clock is required")
)

const (
	maxAddressFieldLength = 200
	addressIDPrefix       = "addr_"
)

var allowedAddressKinds = map[string]struct{}{
	"home":  {},
	"work":  {},
	"other": {},
}

// AddressServiceDeps wires the address repository.
type AddressServiceDeps struct {
	Repository  repositories.AddressRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type addressService struct {
	repo   repositories.AddressRepository
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewAddressService constructs an AddressService enforcing dependency validation.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Repository == nil {
		return nil, errAddressRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errAddressClockRequired
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return addressIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *addressService) Save(ctx context.Context, userID string, input AddressInput) (Address, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	address, err := normalizeAddressInput(input)
	if err != nil {
		return Address{}, err
	}

	now := s.now()
	address.ID = AddressID(s.newID())
	address.UserID = uid
	address.CreatedAt = now
	address.UpdatedAt = now

	if err := s.repo.Insert(ctx, address); err != nil {
		return Address{}, translateRepoError(err)
	}
	s.logger(ctx, "address.saved", map[string]any{"userId": uid, "addressId": string(address.ID)})
	return address, nil
}

// Update replaces the editable fields of an address the user owns. Orders placed earlier keep
// the snapshot taken at placement time.
func (s *addressService) Update(ctx context.Context, userID string, addressID AddressID, input AddressInput) (Address, error) {
	uid := strings.TrimSpace(userID)
	id := AddressID(strings.TrimSpace(string(addressID)))
	if uid == "" || id == "" {
		return Address{}, fmt.Errorf("%w: user id and address id are required", ErrValidation)
	}
	next, err := normalizeAddressInput(input)
	if err != nil {
		return Address{}, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Address{}, translateRepoError(err)
	}
	if existing.UserID != uid {
		return Address{}, fmt.Errorf("%w: address %s", ErrNotFound, id)
	}

	next.ID = existing.ID
	next.UserID = existing.UserID
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, next); err != nil {
		return Address{}, translateRepoError(err)
	}
	return next, nil
}

func (s *addressService) List(ctx context.Context, userID string) ([]Address, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	addresses, err := s.repo.ListByUser(ctx, uid)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if addresses == nil {
		addresses = []Address{}
	}
	return addresses, nil
}

// BulkLookup returns the addresses that exist, in request order. Unknown ids are omitted.
func (s *addressService) BulkLookup(ctx context.Context, ids []AddressID) ([]Address, error) {
	requested := uniqueIDs(ids)
	if len(requested) == 0 {
		return []Address{}, nil
	}
	found, err := s.repo.BulkGet(ctx, requested)
	if err != nil {
		return nil, translateRepoError(err)
	}
	result := make([]Address, 0, len(found))
	for _, id := range requested {
		if address, ok := found[id]; ok {
			result = append(result, address)
		}
	}
	return result, nil
}

func normalizeAddressInput(input AddressInput) (Address, error) {
	address := Address{
		Name:     textutil.NormalizeField(input.Name),
		Phone:    textutil.NormalizeDigits(input.Phone),
		AltPhone: textutil.NormalizeDigits(input.AltPhone),
		Pincode:  textutil.NormalizeDigits(input.Pincode),
		Locality: textutil.NormalizeField(input.Locality),
		Line:     textutil.NormalizeField(input.Line),
		State:    textutil.NormalizeField(input.State),
		Landmark: textutil.NormalizeField(input.Landmark),
		Kind:     strings.ToLower(textutil.NormalizeField(input.Kind)),
	}

	var problems []string
	if address.Name == "" {
		problems = append(problems, "name is required")
	}
	if address.Line == "" {
		problems = append(problems, "address line is required")
	}
	if !textutil.IsDigits(address.Phone) {
		problems = append(problems, "phone must contain digits only")
	}
	if address.AltPhone != "" && !textutil.IsDigits(address.AltPhone) {
		problems = append(problems, "alternate phone must contain digits only")
	}
	if !textutil.IsDigits(address.Pincode) {
		problems = append(problems, "pincode must contain digits only")
	}
	for _, field := range []struct{ name, value string }{
		{"name", address.Name},
		{"locality", address.Locality},
		{"line", address.Line},
		{"state", address.State},
		{"landmark", address.Landmark},
	} {
		if len(field.value) > maxAddressFieldLength {
			problems = append(problems, field.name+" is too long")
		}
	}
	if address.Kind == "" {
		address.Kind = "home"
	}
	if _, ok := allowedAddressKinds[address.Kind]; !ok {
		problems = append(problems, "address type must be home, work or other")
	}

	if len(problems) > 0 {
		return Address{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return address, nil
}
