package main

import (
	"github.com/starius/api2"

	tokenmanager "gitlab.com/scpcorp/spl-token-manager"
)

func main() {
	api2.GenerateClient(tokenmanager.GetRoutes)
	api2.GenerateOpenApiSpec(&api2.TypesGenConfig{
		OutDir: "./openapi",
		Routes: []interface{}{tokenmanager.GetRoutes},
	})
}
