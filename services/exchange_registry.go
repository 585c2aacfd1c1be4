package services

import (
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// ExchangeRegistry holds the exchange clients built at startup.
type ExchangeRegistry struct {
	clients map[string]*ExchangeClient
	names   []string
}

func NewExchangeRegistry(clients ...*ExchangeClient) *ExchangeRegistry {
	registry := &ExchangeRegistry{clients: make(map[string]*ExchangeClient)}
	for _, client := range clients {
		if _, exists := registry.clients[client.Name()]; !exists {
			registry.names = append(registry.names, client.Name())
		}
		registry.clients[client.Name()] = client
	}
	return registry
}

func (er *ExchangeRegistry) Get(name string) (*ExchangeClient, error) {
	client, ok := er.clients[name]
	if !ok {
		return nil, &models.NotFoundError{Entity: "exchange", Key: name}
	}
	return client, nil
}

// Default is the first registered exchange, used when a request names none.
func (er *ExchangeRegistry) Default() string {
	if len(er.names) == 0 {
		return ""
	}
	return er.names[0]
}

func (er *ExchangeRegistry) All() []*ExchangeClient {
	clients := make([]*ExchangeClient, 0, len(er.names))
	for _, name := range er.names {
		clients = append(clients, er.clients[name])
	}
	return clients
}
