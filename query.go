package constellation

import (
	"sort"
	"strings"
)

// Criteria maps an indexed field to the value it must match.
//
// A slice value lowers to a membership test, a nil value to an IS NULL test,
// anything else to equality. Multiple entries are joined with AND.
type Criteria map[string]any

// Fields returns the criteria keys in a stable order.
func (c Criteria) Fields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Order defines ordering on a field.
type Order struct {
	Field string
	Desc  bool
}

// Direction returns the SQL direction keyword.
func (o Order) Direction() string {
	if o.Desc {
		return "DESC"
	}
	return "ASC"
}

// Helper functions for creating orders
func Asc(field string) Order {
	return Order{Field: field, Desc: false}
}

func Desc(field string) Order {
	return Order{Field: field, Desc: true}
}

// ParseOrder builds an order from a field and a direction string. Anything
// other than "desc" (any case) sorts ascending.
func ParseOrder(field, direction string) Order {
	if strings.EqualFold(strings.TrimSpace(direction), "desc") {
		return Desc(field)
	}
	return Asc(field)
}

// Page holds limit/offset pagination. Zero limit means no pagination.
type Page struct {
	Limit  int
	Offset int
}
