package main

import (
	"github.com/gin-gonic/gin"

	"recall/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	server, err := api.NewServer(args.ServerConfig)
	if err != nil {
		panic(err)
	}
	server.Start()
	defer server.Close()

	router := gin.Default()
	api.RegisterHandlers(router, server)
	if err := router.Run(args.ServerURL); err != nil {
		panic(err)
	}
}
