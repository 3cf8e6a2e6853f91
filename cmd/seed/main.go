package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"user-portal/internal/config"
	"user-portal/internal/repository/sqlite"
	"user-portal/internal/service"
)

// Seeds the initial admin account. Safe to run repeatedly; it does nothing
// when an admin already exists.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.Admin.Password == "" {
		logger.Fatalf("admin password is required")
	}

	ctx := context.Background()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	userService := service.NewUserService(userRepo, logger)

	admin, created, err := userService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		logger.Fatalf("seed admin: %v", err)
	}
	if !created {
		logger.Info("admin account already exists")
		return
	}
	logger.Infof("admin account created: %s", admin.Email)
}
