package record

import (
	"fmt"
	"strings"

	"constellation/document"
)

// Client statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusProspect = "prospect"
	StatusArchived = "archived"
)

// Document keys of a client.
const (
	KeyEmail       = "email"
	KeyPhone       = "phone"
	KeyWebsite     = "website"
	KeyIndustry    = "industry"
	KeyAddress     = "address"
	KeyNotes       = "notes"
	KeyLogo        = "logo"
	KeyDescription = "description"
	KeyContacts    = "contacts"
)

var statusLabels = map[string]string{
	StatusActive:   "Active",
	StatusInactive: "Inactive",
	StatusProspect: "Prospect",
	StatusArchived: "Archived",
}

// Statuses returns the valid client statuses in display order.
func Statuses() []string {
	return []string{StatusActive, StatusInactive, StatusProspect, StatusArchived}
}

// ValidStatus reports whether s is a known client status.
func ValidStatus(s string) bool {
	_, ok := statusLabels[s]
	return ok
}

// StatusLabel returns the display label of a status, or the status itself
// when it is unknown.
func StatusLabel(s string) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return s
}

// Client is an organisation tracked by the store.
type Client struct {
	Base

	Name   string
	Slug   string
	Status string

	// Tags holds the tags loaded alongside the client. It is never persisted
	// through the client row.
	Tags []*Tag
}

// NewClient returns an unsaved active client.
func NewClient(name string) *Client {
	c := &Client{Status: StatusActive}
	c.SetName(name)
	return c
}

func (c *Client) GetName() string { return c.Name }

func (c *Client) GetSlug() string { return c.Slug }

// SetName stores the name as single-line text.
func (c *Client) SetName(name string) {
	c.Name = strings.Join(strings.Fields(name), " ")
}

// SetSlug normalizes and stores slug.
func (c *Client) SetSlug(slug string) {
	c.Slug = Slugify(slug)
}

func (c *Client) GenerateSlug() {
	if c.Slug == "" && c.Name != "" {
		c.Slug = Slugify(c.Name)
	}
}

// SetStatus changes the status. Unknown statuses are ignored.
func (c *Client) SetStatus(status string) bool {
	if !ValidStatus(status) {
		return false
	}
	c.Status = status
	return true
}

// StatusLabel returns the display label of the client's status.
func (c *Client) StatusLabel() string { return StatusLabel(c.Status) }

func (c *Client) IsActive() bool { return c.Status == StatusActive }

func (c *Client) Email() string { return c.Document.GetString(KeyEmail) }

func (c *Client) SetEmail(email string) {
	c.SetDataValue(KeyEmail, document.String(strings.TrimSpace(email)))
}

func (c *Client) Phone() string { return c.Document.GetString(KeyPhone) }

func (c *Client) SetPhone(phone string) {
	c.SetDataValue(KeyPhone, document.String(strings.Join(strings.Fields(phone), " ")))
}

func (c *Client) Website() string { return c.Document.GetString(KeyWebsite) }

func (c *Client) SetWebsite(url string) {
	c.SetDataValue(KeyWebsite, document.String(strings.TrimSpace(url)))
}

func (c *Client) Industry() string { return c.Document.GetString(KeyIndustry) }

func (c *Client) SetIndustry(industry string) {
	c.SetDataValue(KeyIndustry, document.String(strings.Join(strings.Fields(industry), " ")))
}

func (c *Client) Notes() string { return c.Document.GetString(KeyNotes) }

func (c *Client) SetNotes(notes string) {
	c.SetDataValue(KeyNotes, document.String(strings.TrimSpace(notes)))
}

func (c *Client) Description() string { return c.Document.GetString(KeyDescription) }

func (c *Client) SetDescription(description string) {
	c.SetDataValue(KeyDescription, document.String(strings.TrimSpace(description)))
}

// Logo returns the logo attachment reference, 0 when unset.
func (c *Client) Logo() int64 {
	v, ok := c.DataValue(KeyLogo)
	if !ok {
		return 0
	}
	i, _ := v.AsInt()
	return i
}

// SetLogo stores the logo reference as a non-negative integer.
func (c *Client) SetLogo(id int64) {
	if id < 0 {
		id = -id
	}
	c.SetDataValue(KeyLogo, document.Int(id))
}

// Address returns the address sub-document, or nil when unset.
func (c *Client) Address() *document.Map {
	v, ok := c.DataValue(KeyAddress)
	if !ok {
		return nil
	}
	m, _ := v.AsMap()
	return m
}

// SetAddress stores the address lines. Keys are lowercased and values are
// stored as single-line text.
func (c *Client) SetAddress(address map[string]string) {
	m := document.NewMap()
	for _, key := range sortedKeys(address) {
		m.Set(addressKey(key), document.String(strings.Join(strings.Fields(address[key]), " ")))
	}
	c.SetDataValue(KeyAddress, document.Object(m))
}

// Contacts returns the contact list, empty when unset.
func (c *Client) Contacts() []document.Value {
	v, ok := c.DataValue(KeyContacts)
	if !ok {
		return []document.Value{}
	}
	list, ok := v.AsList()
	if !ok {
		return []document.Value{}
	}
	return list
}

func (c *Client) SetContacts(contacts []document.Value) {
	c.SetDataValue(KeyContacts, document.List(contacts...))
}

// AddContact appends one contact to the contact list.
func (c *Client) AddContact(contact map[string]any) error {
	m, err := document.MapFromAny(contact)
	if err != nil {
		return err
	}
	existing := c.Contacts()
	contacts := make([]document.Value, 0, len(existing)+1)
	contacts = append(contacts, existing...)
	contacts = append(contacts, document.Object(m))
	c.SetContacts(contacts)
	return nil
}

// Clone returns a deep copy of the client, including loaded tags.
func (c *Client) Clone() *Client {
	out := *c
	out.Base = c.Base.clone()
	if c.Tags != nil {
		out.Tags = make([]*Tag, len(c.Tags))
		for i, t := range c.Tags {
			out.Tags[i] = t.Clone()
		}
	}
	return &out
}

// TagNames returns the names of the loaded tags.
func (c *Client) TagNames() []string {
	names := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Reserved attribute keys that Fill never touches.
var clientReserved = map[string]bool{
	"id": true, "created_at": true, "updated_at": true, "tags": true, "data": true,
}

var clientSetters = map[string]setter[*Client]{
	"name": func(c *Client, v any) error {
		s, err := textField(v)
		c.Name = s
		return err
	},
	"slug": func(c *Client, v any) error {
		s, err := asString(v)
		c.SetSlug(s)
		return err
	},
	"status": func(c *Client, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		c.SetStatus(s)
		return nil
	},
	KeyEmail: func(c *Client, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		c.SetEmail(s)
		return nil
	},
	KeyPhone: func(c *Client, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		c.SetPhone(s)
		return nil
	},
	KeyWebsite: func(c *Client, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		c.SetWebsite(s)
		return nil
	},
	KeyIndustry: func(c *Client, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		c.SetIndustry(s)
		return nil
	},
	KeyNotes: func(c *Client, v any) error {
		s, err := textArea(v)
		if err != nil {
			return err
		}
		c.SetNotes(s)
		return nil
	},
	KeyDescription: func(c *Client, v any) error {
		s, err := textArea(v)
		if err != nil {
			return err
		}
		c.SetDescription(s)
		return nil
	},
	KeyLogo: func(c *Client, v any) error {
		i, err := asInt64(v)
		if err != nil {
			return err
		}
		c.SetLogo(i)
		return nil
	},
	KeyAddress: func(c *Client, v any) error {
		lines, err := addressLines(v)
		if err != nil {
			return err
		}
		c.SetAddress(lines)
		return nil
	},
	KeyContacts: func(c *Client, v any) error {
		dv, err := document.FromAny(v)
		if err != nil {
			return err
		}
		list, ok := dv.AsList()
		if !ok {
			return fmt.Errorf("expected a list of contacts, got %T", v)
		}
		c.SetContacts(list)
		return nil
	},
}

// Fill applies attrs to the client. Indexed fields and known document keys
// go through their setters; any other key is stored in the document as-is.
func (c *Client) Fill(attrs Attributes) error {
	return fill(c, attrs, clientSetters, func(c *Client, key string, value any) error {
		if clientReserved[key] {
			return nil
		}
		v, err := document.FromAny(value)
		if err != nil {
			return err
		}
		c.SetDataValue(key, v)
		return nil
	})
}

func addressLines(v any) (map[string]string, error) {
	out := map[string]string{}
	switch t := v.(type) {
	case nil:
		return out, nil
	case map[string]string:
		return t, nil
	case map[string]any:
		for k, raw := range t {
			s, err := asString(raw)
			if err != nil {
				return nil, fmt.Errorf("address %s: %w", k, err)
			}
			out[k] = s
		}
		return out, nil
	case *document.Map:
		var err error
		t.Range(func(k string, dv document.Value) bool {
			var s string
			if s, err = asString(dv); err != nil {
				err = fmt.Errorf("address %s: %w", k, err)
				return false
			}
			out[k] = s
			return true
		})
		return out, err
	}
	return nil, fmt.Errorf("expected an address map, got %T", v)
}

// addressKey keeps lowercase letters, digits, dashes and underscores.
func addressKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
