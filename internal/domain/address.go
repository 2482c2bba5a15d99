package domain

import "time"

// Address is a delivery address owned by a single user.
type Address struct {
	ID        AddressID
	UserID    string
	Name      string
	Phone     string
	AltPhone  string
	Pincode   string
	Locality  string
	Line      string
	State     string
	Landmark  string
	Kind      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddressSnapshot is the copy of an address frozen into an order at placement time.
type AddressSnapshot struct {
	Name     string
	Phone    string
	AltPhone string
	Pincode  string
	Locality string
	Line     string
	State    string
	Landmark string
	Kind     string
}

// Snapshot copies the deliverable fields of the address.
func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		Name:     a.Name,
		Phone:    a.Phone,
		AltPhone: a.AltPhone,
		Pincode:  a.Pincode,
		Locality: a.Locality,
		Line:     a.Line,
		State:    a.State,
		Landmark: a.Landmark,
		Kind:     a.Kind,
	}
}
