package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account"
	accountrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	bookrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/book/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	loanrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-library-go")

	// init db
	cfg := database.ConfigFromEnv()
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	books := bookrepo.NewBookRepo(sqlxDB)
	accounts := accountrepo.NewAccountRepo(sqlxDB)
	loans := loanrepo.NewLoanRepo(sqlxDB)
	settings := settingrepo.NewRepo(sqlxDB)

	// loans references books and accounts, so it goes last
	for name, ensure := range map[string]func(context.Context) error{
		"books":    books.EnsureTable,
		"accounts": accounts.EnsureTable,
		"settings": settings.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			sugar.Fatalf("ensure %s table: %v", name, err)
		}
	}
	if err := loans.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure loans table: %v", err)
	}

	accountSvc := account.NewService(accounts, nil, sugar)
	if err := accountSvc.EnsureLibrarian(ctx, account.LibrarianConfigFromEnv()); err != nil {
		sugar.Fatalf("librarian bootstrap: %v", err)
	}
	settingSvc := setting.NewService(settings, borrowing.PolicyFromEnv(), sugar)
	bookSvc := book.NewService(books, sugar)
	borrowSvc := borrowing.NewService(loanrepo.NewPostgres(sqlxDB), sugar,
		borrowing.WithPolicySource(settingSvc),
	)

	tokens, err := auth.NewTokenService(auth.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("token service: %v", err)
	}

	// mount http server
	handler := router.RegisterRoutes(sugar, router.Handlers{
		Tokens:    tokens,
		Auth:      auth.NewHandler(tokens, accountSvc, sugar),
		Accounts:  account.NewHandler(accountSvc, sugar),
		Books:     book.NewHandler(bookSvc, sugar),
		Borrowing: borrowing.NewHandler(borrowSvc, sugar),
		Settings:  setting.NewHandler(settingSvc, sugar),
	})
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// shutdown http server
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
