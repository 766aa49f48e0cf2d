package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/memory"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/setting"
)

type app struct {
	srv *httptest.Server

	mu  sync.Mutex
	now time.Time
}

func (a *app) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

func (a *app) setClock(t time.Time) {
	a.mu.Lock()
	a.now = t
	a.mu.Unlock()
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := zap.NewNop().Sugar()
	db := memory.New()
	a := &app{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	accounts := account.NewService(db.Accounts(), account.BcryptHasher{Cost: bcrypt.MinCost}, logger)
	require.NoError(t, accounts.EnsureLibrarian(context.Background(), account.LibrarianConfig{
		Username: "librarian", Password: "shelf-keeper", Email: "desk@library.test",
	}))
	settings := setting.NewService(db.Settings(), borrowing.DefaultPolicy(), logger)
	loans := borrowing.NewService(db, logger,
		borrowing.WithPolicySource(settings),
		borrowing.WithClock(a.clock),
	)
	tokens, err := auth.NewTokenService(auth.Config{Issuer: "library-test", TTL: time.Hour})
	require.NoError(t, err)

	handler := router.RegisterRoutes(logger, router.Handlers{
		Tokens:    tokens,
		Auth:      auth.NewHandler(tokens, accounts, logger),
		Accounts:  account.NewHandler(accounts, logger),
		Books:     book.NewHandler(book.NewService(db.Books(), logger), logger),
		Borrowing: borrowing.NewHandler(loans, logger),
		Settings:  setting.NewHandler(settings, logger),
	})
	a.srv = httptest.NewServer(handler)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *app) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+"/library-api"+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, out
}

func (a *app) login(t *testing.T, username, password string) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, status, string(body))
	var res auth.LoginResponse
	require.NoError(t, json.Unmarshal(body, &res))
	return res.AccessToken
}

func Test_Health_And_Headers(t *testing.T) {
	a := newApp(t)
	res, err := http.Get(a.srv.URL + "/library-api/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func Test_RoleGuards(t *testing.T) {
	a := newApp(t)

	status, _ := a.do(t, http.MethodGet, "/borrowings/all-history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, http.MethodGet, "/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	lib := a.login(t, "librarian", "shelf-keeper")
	status, _ = a.do(t, http.MethodPost, "/borrowings/borrow/1", lib, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodGet, "/users", lib, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "librarian", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func Test_LendingFlow(t *testing.T) {
	a := newApp(t)
	lib := a.login(t, "librarian", "shelf-keeper")

	// catalogue a book
	status, body := a.do(t, http.MethodPost, "/books", lib, map[string]any{
		"title": "Clean Code", "author": "Robert C. Martin", "isbn": "9780132350884",
		"genre": "EDUCATION", "price": "35.50",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var created struct {
		ID        int64 `json:"id"`
		Available bool  `json:"available"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Available)

	status, _ = a.do(t, http.MethodPost, "/books", lib, map[string]any{"title": "", "isbn": "1"})
	assert.Equal(t, http.StatusBadRequest, status)

	// register and log in a patron
	status, body = a.do(t, http.MethodPost, "/auth/register", lib, map[string]any{
		"username": "alice", "password": "secret-pw", "email": "alice@example.com",
		"first_name": "Alice", "last_name": "Reader",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	alice := a.login(t, "alice", "secret-pw")

	// search needs a token
	status, _ = a.do(t, http.MethodGet, "/books/search?title=code", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, body = a.do(t, http.MethodGet, "/books/search?title=code&genre=EDUCATION", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total":1`)

	// borrow
	status, body = a.do(t, http.MethodPost, fmt.Sprintf("/borrowings/borrow/%d", created.ID), alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var loan borrowing.LoanView
	require.NoError(t, json.Unmarshal(body, &loan))
	assert.Equal(t, "BORROWED", string(loan.Status))

	status, _ = a.do(t, http.MethodPost, fmt.Sprintf("/borrowings/borrow/%d", created.ID), alice, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = a.do(t, http.MethodGet, "/books/available", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	// return three days late
	a.setClock(loan.DueAt.Add(3*24*time.Hour + time.Hour))
	status, body = a.do(t, http.MethodPost, fmt.Sprintf("/borrowings/return/%d", loan.ID), alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var ret borrowing.ReturnSummary
	require.NoError(t, json.Unmarshal(body, &ret))
	assert.True(t, ret.Overdue)
	assert.Equal(t, "6.00", ret.Fine.StringFixed(2))

	status, _ = a.do(t, http.MethodPost, fmt.Sprintf("/borrowings/return/%d", loan.ID), alice, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = a.do(t, http.MethodPost, "/borrowings/return/987654", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// history and report
	status, body = a.do(t, http.MethodGet, "/borrowings/history", alice, nil)
	require.Equal(t, http.StatusOK, status)
	var hist []borrowing.LoanView
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, "Clean Code", hist[0].BookTitle)

	status, _ = a.do(t, http.MethodGet, "/borrowings/overdue/report", alice, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = a.do(t, http.MethodGet, "/borrowings/overdue/report", lib, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Total Overdue Books: 1\nTotal Users with Overdues: 1\n")
	assert.Contains(t, string(body), " - Alice Reader (alice@example.com): 1 book(s) overdue | Total fine: 6.00\n")
}

func Test_LendingPolicySettings(t *testing.T) {
	a := newApp(t)
	lib := a.login(t, "librarian", "shelf-keeper")

	status, body := a.do(t, http.MethodGet, "/settings/lending-policy", lib, nil)
	require.Equal(t, http.StatusOK, status)
	var p setting.LendingPolicy
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, 14, p.LoanPeriodDays)

	p.LoanPeriodDays = 7
	status, body = a.do(t, http.MethodPut, "/settings/lending-policy", lib, p)
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = a.do(t, http.MethodPut, "/settings/lending-policy", lib, p)
	assert.Equal(t, http.StatusConflict, status)
}
