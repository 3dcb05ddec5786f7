package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/api"
	"call-quality-eval/backend/internal/prompts"
	"call-quality-eval/backend/internal/util"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}
	util.ConfigureLogging(false)
	boot := util.StartTimer()

	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	promptsPath := filepath.Join(baseDir, "configs", prompts.DefaultFile)
	if override := strings.TrimSpace(os.Getenv("PROMPTS_CONFIG_PATH")); override != "" {
		promptsPath = override
	}
	cache := prompts.NewCache(promptsPath)
	if _, err := cache.Get(); err != nil {
		logrus.Fatalf("load prompts config: %v", err)
	}

	invoker, engine, err := ai.NewEngine(context.Background(), ai.EngineConfigFromEnv())
	if err != nil {
		logrus.Fatalf("create inference engine: %v", err)
	}

	origins := []string{
		"http://localhost:1000",
		"http://127.0.0.1:1000",
	}
	if value := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); value != "" {
		origins = origins[:0]
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}

	cfg := api.Config{
		DBPath:         filepath.Join(dataDir, "call-quality.db"),
		SilentDB:       true,
		AllowedOrigins: origins,
		Prompts:        cache,
		Invoker:        invoker,
		Engine:         engine,
	}
	if override := strings.TrimSpace(os.Getenv("DB_PATH")); override != "" {
		cfg.DBPath = override
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer func() {
		if cerr := server.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "2000"
	}

	logrus.WithField("boot_ms", boot.ElapsedMs()).Infof("starting call-quality-eval backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
