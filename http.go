package tokenmanager

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/starius/api2"
)

func route(s Service, handler, httpMethod string) api2.Route {
	return api2.Route{
		Method:  httpMethod,
		Path:    fmt.Sprintf("/v1/tokens/%s", strings.ToLower(handler)),
		Handler: api2.Method(&s, handler),
		Transport: &api2.JsonTransport{
			Errors: map[string]error{
				"Error":           Error{},
				"ValidationError": ValidationError{},
			},
		},
	}
}

func GetRoutes(s Service) []api2.Route {
	return []api2.Route{
		route(s, "Connect", http.MethodPost),
		route(s, "Disconnect", http.MethodPost),
		route(s, "Wallet", http.MethodPost),
		route(s, "StorageQuote", http.MethodPost),
		route(s, "CreateToken", http.MethodPost),
		route(s, "ListTokens", http.MethodPost),
		route(s, "SelectToken", http.MethodPost),
		route(s, "UpdateMetadata", http.MethodPost),
		route(s, "BurnTokens", http.MethodPost),
		route(s, "ListAuthorities", http.MethodPost),
		route(s, "RevokeAuthority", http.MethodPost),
		route(s, "Notifications", http.MethodPost),
		route(s, "History", http.MethodPost),
	}
}
