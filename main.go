package main

import (
	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/routes"
	"github.com/cppla/qaforum/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase()

	r, err := routes.SetupRouter(db)
	if err != nil {
		utils.Sugar.Fatalf("failed to set up router: %v", err)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
