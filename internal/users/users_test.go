package users

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"todoe2e/internal/apiclient"
	"todoe2e/internal/config"
)

// bcryptOf matches a hash of the given password.
type bcryptOf string

func (b bcryptOf) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && bcrypt.CompareHashAndPassword([]byte(s), []byte(b)) == nil
}

func registerServer(t *testing.T, status int, reply string) (*apiclient.Client, *string) {
	t.Helper()
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RegisterPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return apiclient.New(srv.URL), &body
}

func newMock(t *testing.T) (sqlmock.Sqlmock, *Provisioner) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, &Provisioner{db: db, cfg: config.UsersConfig{EmailDomain: "example.com", BcryptCost: bcrypt.MinCost}}
}

func TestEnsure_RegistersThroughAPI(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			mock, p := newMock(t)
			api, sent := registerServer(t, status, `{"userId":1}`)
			p.api = api

			mock.ExpectExec(regexp.QuoteMeta(deleteUserSQL)).
				WithArgs("testuser").
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, p.Ensure(context.Background(), "testuser", "password123"))
			assert.JSONEq(t, `{"username":"testuser","email":"testuser@example.com","password":"password123"}`, *sent)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEnsure_RegistrationRejected(t *testing.T) {
	mock, p := newMock(t)
	api, _ := registerServer(t, http.StatusBadRequest, `{"message":"用户名已存在"}`)
	p.api = api

	mock.ExpectExec(regexp.QuoteMeta(deleteUserSQL)).
		WithArgs("testuser").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.Ensure(context.Background(), "testuser", "password123")

	require.ErrorIs(t, err, ErrRegistrationFailed)
	var re *RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Contains(t, re.Body, "用户名已存在")
	assert.NoError(t, mock.ExpectationsWereMet(), "no direct insert without opt-in")
}

func TestEnsure_APIUnreachable(t *testing.T) {
	mock, p := newMock(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	p.api = apiclient.New(srv.URL)

	mock.ExpectExec(regexp.QuoteMeta(deleteUserSQL)).WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.Ensure(context.Background(), "testuser", "password123")
	assert.ErrorIs(t, err, ErrRegistrationFailed)
}

func TestEnsure_DirectInsertOptIn(t *testing.T) {
	mock, p := newMock(t)
	p.cfg.AllowDirectInsert = true
	api, _ := registerServer(t, http.StatusInternalServerError, `boom`)
	p.api = api

	mock.ExpectExec(regexp.QuoteMeta(deleteUserSQL)).
		WithArgs("testuser").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(upsertUserSQL)).
		WithArgs("testuser", "testuser@example.com", bcryptOf("password123")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, p.Ensure(context.Background(), "testuser", "password123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsure_DeleteFails(t *testing.T) {
	mock, p := newMock(t)
	p.api = apiclient.New("http://127.0.0.1:1")

	mock.ExpectExec(regexp.QuoteMeta(deleteUserSQL)).WillReturnError(errors.New("relation \"Users\" does not exist"))

	err := p.Ensure(context.Background(), "testuser", "password123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `delete existing user "testuser"`)
	assert.NotErrorIs(t, err, ErrRegistrationFailed)
}

func TestEmail(t *testing.T) {
	p := NewProvisioner(nil, nil, config.UsersConfig{})
	assert.Equal(t, "alice@example.com", p.Email("alice"))

	p = NewProvisioner(nil, nil, config.UsersConfig{EmailDomain: "test.local"})
	assert.Equal(t, "alice@test.local", p.Email("alice"))
}
