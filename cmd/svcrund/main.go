// svcrund is the service-spawning middleware's server binary.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brc-tools/svcrun/internal/arggen"
	"github.com/brc-tools/svcrun/internal/config"
	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/httpapi"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/sandboxworker"
	"github.com/brc-tools/svcrun/internal/service"
	"github.com/brc-tools/svcrun/internal/spawn"
	"github.com/brc-tools/svcrun/internal/transpile"
	"github.com/brc-tools/svcrun/pkg/auth"
)

func main() {
	// sandboxworker.Pool re-execs this binary with the literal flag
	// --sandbox-worker (mirroring the teacher's cwl/sandbox.Pool.startWorker);
	// handle that before cobra ever sees the argument, exactly as
	// cmd/sandbox-worker/main.go checks its own mode before flag parsing.
	for _, arg := range os.Args[1:] {
		if arg == "--sandbox-worker" {
			sandboxworker.RunWorker()
			return
		}
	}

	rootCmd := &cobra.Command{
		Use:   "svcrund",
		Short: "Polyglot service-spawning middleware",
		Long:  "Spawns a language-specific executor per HTTP request and streams its stdio through the response.",
	}

	configPath := rootCmd.PersistentFlags().String("config", "", "Path to configuration file")
	rootCmd.AddCommand(newServeCmd(configPath))
	rootCmd.AddCommand(newSandboxWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSandboxWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "sandbox-worker",
		Short:  "Run as a transpile sandbox worker (internal use, spawned by the pool)",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			sandboxworker.RunWorker()
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override the configured server port")
	return cmd
}

func runServe(cfg *config.Config) error {
	languages, err := buildLanguageRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build language registry: %w", err)
	}

	transpilers, sandboxPool, err := buildTranspilerRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build transpiler registry: %w", err)
	}
	if sandboxPool != nil {
		defer sandboxPool.Close()
	}

	var validator *auth.TokenValidator
	if len(cfg.Auth.Secrets) > 0 {
		validator = auth.NewTokenValidator(cfg.Auth.Secrets)
	}

	server := httpapi.NewServer(httpapi.Config{
		Languages:  languages,
		Transpiler: transpilers,
		EnvConfig: envbuild.Config{
			ServiceMaxTimeout: cfg.Services.MaxTimeout,
			DefaultEnv:        cfg.Services.DefaultEnv,
		},
		Validator:    validator,
		WriteTimeout: cfg.Server.WriteTimeout,
		Log:          log.Default(),
	})

	argvGen := arggen.NewRegistry(cfg.Services.ArgMax)
	spawner := spawn.NewController(languages, argvGen)

	for _, d := range cfg.Services.Descriptors {
		svc, err := service.New(service.Options{
			Code:          d.Code,
			Language:      d.Language,
			View:          d.View,
			Presenter:     d.Presenter,
			CustomTimeout: d.CustomTimeout,
			Config:        d.Config,
			IsHookio:      d.IsHookio,
			Log:           log.Default(),
		})
		if err != nil {
			return fmt.Errorf("register service %q: %w", d.Code, err)
		}
		server.Register(svc, spawner)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("svcrund: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("svcrund: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("svcrund: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("svcrund: shutdown error: %v", err)
	}
	log.Println("svcrund: stopped")
	return nil
}

func buildLanguageRegistry(cfg *config.Config) (*language.Registry, error) {
	if cfg.Services.LanguagesFile == "" {
		return language.NewRegistry(cfg.Services.BinariesRoot, language.DefaultEntries())
	}
	data, err := os.ReadFile(cfg.Services.LanguagesFile)
	if err != nil {
		return nil, fmt.Errorf("read languages file: %w", err)
	}
	return language.LoadRegistry(cfg.Services.BinariesRoot, data)
}

// buildTranspilerRegistry wires babel/coffee-script onto either the
// in-process goja transpiler or, when transpile.sandbox.worker_count is
// set, an isolated sandboxworker.Pool; the returned *sandboxworker.Pool is
// non-nil only in the latter case so the caller can Close it on shutdown.
func buildTranspilerRegistry(cfg *config.Config) (*transpile.Registry, *sandboxworker.Pool, error) {
	var cache transpile.Cache
	switch cfg.Transpile.CacheBackend {
	case "redis":
		redisCache, err := transpile.NewRedisCache(transpile.RedisCacheOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect transpile redis cache: %w", err)
		}
		cache = redisCache
	case "", "memory":
		cache = transpile.NewMemoryCache()
	default:
		return nil, nil, fmt.Errorf("unknown transpile cache backend %q", cfg.Transpile.CacheBackend)
	}

	registry := transpile.NewRegistry(cache)

	const identityScript = `function Entrypoint(source) { return source; }`

	transformScript := cfg.Transpile.Script
	if transformScript == "" {
		transformScript = identityScript
	}

	if cfg.Transpile.Sandbox.WorkerCount > 0 {
		pool, err := sandboxworker.NewPool(sandboxworker.Config{
			WorkerCount: cfg.Transpile.Sandbox.WorkerCount,
			Timeout:     cfg.Transpile.Sandbox.Timeout,
			MaxMemoryMB: cfg.Transpile.Sandbox.MaxMemoryMB,
			Script:      transformScript,
			Entrypoint:  "Entrypoint",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("start sandbox worker pool: %w", err)
		}
		registry.Register("babel", pool)
		registry.Register("coffee-script", pool)
		return registry, pool, nil
	}

	inProcess := transpile.NewInProcessTranspiler(transformScript, "Entrypoint", 5*time.Second)
	registry.Register("babel", inProcess)
	registry.Register("coffee-script", inProcess)
	return registry, nil, nil
}
