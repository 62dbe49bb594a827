package domain

type CatalogEntity struct {
	ID          string   `json:"id"`
	Kind        ItemType `json:"kind,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Image       string   `json:"image,omitempty"`
	Price       float64  `json:"price"`
	Location    string   `json:"location,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
}

// Candidate turns a catalog entity into a cart candidate of the given quantity.
func (e CatalogEntity) Candidate(quantity int, booking *BookingRange) CartCandidate {
	return CartCandidate{
		ItemID:   e.ID,
		ItemType: e.Kind,
		Name:     e.Name,
		Image:    e.Image,
		Price:    e.Price,
		Quantity: quantity,
		Booking:  booking,
	}
}

type Pagination struct {
	TotalItems  int  `json:"totalItems"`
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// SinglePage wraps an unpaginated list.
func SinglePage[T any](items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items: items,
		Pagination: Pagination{
			TotalItems:  len(items),
			CurrentPage: 1,
			TotalPages:  1,
		},
	}
}
