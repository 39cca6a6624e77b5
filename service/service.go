package service

import (
	sqlstore "constellation/sql"
)

// Services groups the client and tag services of one store.
type Services struct {
	Clients *ClientService
	Tags    *TagService
}

// New builds both services over an opened SQL store.
func New(store *sqlstore.Service, opts ...Option) *Services {
	return &Services{
		Clients: NewClientService(store.Clients(), store.Tags(), store.Edges(), opts...),
		Tags:    NewTagService(store.Tags(), store.Edges(), opts...),
	}
}

var (
	_ ClientStore = (*sqlstore.ClientRepository)(nil)
	_ TagStore    = (*sqlstore.TagRepository)(nil)
	_ EdgeStore   = (*sqlstore.EdgeStore)(nil)
)
