package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jobhive/jobhive/app/repository"
	"github.com/jobhive/jobhive/internal/pkg/cache"
	"github.com/jobhive/jobhive/internal/pkg/database"
	"github.com/jobhive/jobhive/internal/pkg/env"
	"github.com/jobhive/jobhive/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "JobHive",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
