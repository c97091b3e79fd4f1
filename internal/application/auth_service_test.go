package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
	"github.com/oksasatya/turbo-auth/internal/infrastructure/memory"
	"github.com/oksasatya/turbo-auth/pkg/helpers"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, messageType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, messageType)
	return p.err
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	svc      *Service
	users    *memory.UserRepository
	sessions *memory.SessionRepository
	clock    *testClock
	events   *recordingPublisher
}

func newFixture(t *testing.T, sessionTTL time.Duration) *fixture {
	t.Helper()
	clock := &testClock{now: time.Now().UTC()}
	users := memory.NewUserRepository()
	users.Now = clock.Now
	sessions := memory.NewSessionRepository()
	sessions.Now = clock.Now

	svc := NewService(users, sessions,
		&helpers.PasswordHasher{Cost: bcrypt.MinCost},
		helpers.NewJWTManager("test-secret", helpers.TokenTTL),
		helpers.NewNopLogger(), sessionTTL)
	svc.Now = clock.Now
	events := &recordingPublisher{}
	svc.Events = events

	return &fixture{svc: svc, users: users, sessions: sessions, clock: clock, events: events}
}

func bearer(token string) string { return "Bearer " + token }

func (f *fixture) signup(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), SignupInput{Email: email, Password: password, Name: "Test"})
	require.NoError(t, err)
	return res
}

func TestSignup(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	res := f.signup(t, "  Alice@Example.COM ", "secret1")
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, entity.RoleUser, res.User.Role)
	assert.True(t, res.User.IsActive)
	assert.NotEqual(t, "secret1", res.User.Password)

	id, err := f.svc.Authenticate(ctx, bearer(res.Token))
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id.UserID)
	assert.Equal(t, []string{EventSignup}, f.events.Types())
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"bad email", SignupInput{Email: "not-an-email", Password: "secret1"}, "email"},
		{"empty email", SignupInput{Email: "", Password: "secret1"}, "email"},
		{"short password", SignupInput{Email: "a@b.co", Password: "12345"}, "password"},
		{"password over 72 bytes", SignupInput{Email: "a@b.co", Password: strings.Repeat("é", 40)}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Signup(ctx, tc.in)
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.signup(t, "dup@example.com", "secret1")

	_, err := f.svc.Signup(context.Background(), SignupInput{Email: "DUP@example.com", Password: "other12"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.signup(t, "bob@example.com", "secret1")

	res, err := f.svc.Login(ctx, "BOB@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", res.User.Email)

	_, err = f.svc.Login(ctx, "bob@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "carol@example.com", "secret1")
	require.NoError(t, f.users.SetActive(res.User.ID, false))

	_, err := f.svc.Login(ctx, "carol@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "carol@example.com", "secret1")
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = f.svc.Authenticate(ctx, bearer(res.Token))
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthenticate_Failures(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "dave@example.com", "secret1")

	_, err := f.svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrNoToken)
	_, err = f.svc.Authenticate(ctx, "Basic abc")
	assert.ErrorIs(t, err, ErrNoToken)
	_, err = f.svc.Authenticate(ctx, "Bearer ")
	assert.ErrorIs(t, err, ErrNoToken)
	_, err = f.svc.Authenticate(ctx, bearer("garbage"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := helpers.NewJWTManager("other-secret", time.Hour)
	forged, _, err := other.Issue(res.User.ID)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, bearer(forged))
	assert.ErrorIs(t, err, ErrInvalidToken)

	// validly signed but never stored
	signer := helpers.NewJWTManager("test-secret", time.Hour)
	orphan, _, err := signer.Issue(res.User.ID)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, bearer(orphan))
	assert.ErrorIs(t, err, ErrSessionExpired)

	f.users.Delete(res.User.ID)
	_, err = f.svc.Authenticate(ctx, bearer(res.Token))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_SessionExpiryBoundary(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "erin@example.com", "secret1")

	f.clock.Advance(time.Hour - time.Second)
	_, err := f.svc.Authenticate(ctx, bearer(res.Token))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	_, err = f.svc.Authenticate(ctx, bearer(res.Token))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestAuthenticateOptional(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "frank@example.com", "secret1")

	assert.Nil(t, f.svc.AuthenticateOptional(ctx, ""))
	assert.Nil(t, f.svc.AuthenticateOptional(ctx, bearer("garbage")))

	id := f.svc.AuthenticateOptional(ctx, bearer(res.Token))
	require.NotNil(t, id)
	assert.Equal(t, res.User.ID, id.UserID)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "gina@example.com", "secret1")

	require.NoError(t, f.svc.Logout(ctx, res.User.ID, res.Token))
	require.NoError(t, f.svc.Logout(ctx, res.User.ID, res.Token))

	_, err := f.svc.Authenticate(ctx, bearer(res.Token))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	first := f.signup(t, "hank@example.com", "secret1")
	second, err := f.svc.Login(ctx, "hank@example.com", "secret1")
	require.NoError(t, err)
	bystander := f.signup(t, "ivy@example.com", "secret1")

	require.NoError(t, f.svc.LogoutAll(ctx, first.User.ID))

	for _, tok := range []string{first.Token, second.Token} {
		_, err := f.svc.Authenticate(ctx, bearer(tok))
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	_, err = f.svc.Authenticate(ctx, bearer(bystander.Token))
	assert.NoError(t, err)
}

func TestLogin_PrunesToMaxSessions(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.signup(t, "jack@example.com", "secret1")

	var tokens []string
	for i := 0; i < 7; i++ {
		f.clock.Advance(time.Second)
		res, err := f.svc.Login(ctx, "jack@example.com", "secret1")
		require.NoError(t, err)
		tokens = append(tokens, res.Token)
	}

	valid := 0
	for _, tok := range tokens {
		if _, err := f.svc.Authenticate(ctx, bearer(tok)); err == nil {
			valid++
		}
	}
	assert.Equal(t, repository.MaxSessionsPerUser, valid)

	for _, tok := range tokens[len(tokens)-repository.MaxSessionsPerUser:] {
		_, err := f.svc.Authenticate(ctx, bearer(tok))
		assert.NoError(t, err)
	}
}

func TestLogin_ConcurrentStaysBounded(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "kate@example.com", "secret1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Login(ctx, "kate@example.com", "secret1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := f.sessions.ListForUser(ctx, res.User.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(list), repository.MaxSessionsPerUser)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	res := f.signup(t, "liam@example.com", "secret1")

	name := "Liam"
	u, err := f.svc.UpdateProfile(ctx, res.User.ID, UpdateProfileInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Liam", u.Name)
	assert.Empty(t, u.AvatarURL)

	avatar := "https://cdn.example.com/a.png"
	u, err = f.svc.UpdateProfile(ctx, res.User.ID, UpdateProfileInput{AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "Liam", u.Name)
	assert.Equal(t, avatar, u.AvatarURL)

	bad := "not a url"
	_, err = f.svc.UpdateProfile(ctx, res.User.ID, UpdateProfileInput{AvatarURL: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateProfile(ctx, "missing", UpdateProfileInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword_RevokesOtherSessions(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	a := f.signup(t, "mia@example.com", "oldpass")
	b, err := f.svc.Login(ctx, "mia@example.com", "oldpass")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, a.User.ID, a.Token, "wrong!", "newpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, a.User.ID, a.Token, "oldpass", "newpass"))

	_, err = f.svc.Authenticate(ctx, bearer(a.Token))
	assert.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, bearer(b.Token))
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = f.svc.Login(ctx, "mia@example.com", "oldpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "mia@example.com", "newpass")
	assert.NoError(t, err)
}

func TestChangePassword_ShortNewPassword(t *testing.T) {
	f := newFixture(t, time.Hour)
	a := f.signup(t, "noah@example.com", "oldpass")

	err := f.svc.ChangePassword(context.Background(), a.User.ID, a.Token, "oldpass", "123")
	assert.ErrorIs(t, err, ErrValidation)

	err = f.svc.ChangePassword(context.Background(), a.User.ID, a.Token, "oldpass", strings.Repeat("é", 40))
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrHashing)
}

func TestSignup_MultibytePasswordWithinBytes(t *testing.T) {
	f := newFixture(t, time.Hour)
	pw := strings.Repeat("é", 36)
	f.signup(t, "zoe@example.com", pw)

	_, err := f.svc.Login(context.Background(), "zoe@example.com", pw)
	assert.NoError(t, err)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	a := f.signup(t, "olga@example.com", "secret1")
	f.clock.Advance(time.Second)
	b, err := f.svc.Login(ctx, "olga@example.com", "secret1")
	require.NoError(t, err)

	list, err := f.svc.ListSessions(ctx, a.User.ID, b.Token)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Current)
	assert.False(t, list[1].Current)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
}

// A user signs up, logs in on a second device, changes the password from
// the first, and the second device is signed out.
func TestScenario_TwoDevices(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	laptop := f.signup(t, "pat@example.com", "hunter22")
	phone, err := f.svc.Login(ctx, "pat@example.com", "hunter22")
	require.NoError(t, err)

	me, err := f.svc.Authenticate(ctx, bearer(phone.Token))
	require.NoError(t, err)
	self, err := f.svc.GetSelf(ctx, me.UserID)
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", self.Email)

	require.NoError(t, f.svc.ChangePassword(ctx, laptop.User.ID, laptop.Token, "hunter22", "hunter33"))
	_, err = f.svc.Authenticate(ctx, bearer(phone.Token))
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, f.svc.Logout(ctx, laptop.User.ID, laptop.Token))
	_, err = f.svc.Authenticate(ctx, bearer(laptop.Token))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.events.err = fmt.Errorf("broker down")

	res, err := f.svc.Signup(context.Background(), SignupInput{Email: "quinn@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
}

type flakyHasher struct {
	*helpers.PasswordHasher
	mu    sync.Mutex
	fails int
	calls int
}

func (h *flakyHasher) Hash(plain string) (string, error) {
	h.mu.Lock()
	h.calls++
	fail := h.fails > 0
	if fail {
		h.fails--
	}
	h.mu.Unlock()
	if fail {
		return "", errors.New("entropy unavailable")
	}
	return h.PasswordHasher.Hash(plain)
}

func TestLogin_UnknownEmailRetriesDummyHash(t *testing.T) {
	f := newFixture(t, time.Hour)
	hasher := &flakyHasher{PasswordHasher: &helpers.PasswordHasher{Cost: bcrypt.MinCost}, fails: 1}
	f.svc.Hasher = hasher
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "ghost@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, f.svc.dummyHash)

	_, err = f.svc.Login(ctx, "ghost@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotEmpty(t, f.svc.dummyHash)

	_, err = f.svc.Login(ctx, "ghost@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 2, hasher.calls)
}

type failingSessions struct {
	*memory.SessionRepository
}

func (failingSessions) Create(context.Context, string, string, time.Duration) (*entity.Session, error) {
	return nil, errors.New("store down")
}

func TestSignup_SessionFailureKeepsUserAndLogs(t *testing.T) {
	f := newFixture(t, time.Hour)
	logger, hook := test.NewNullLogger()
	f.svc.Logger = logger
	f.svc.Sessions = failingSessions{f.sessions}
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Email: "rae@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHashing)

	u, err := f.users.GetByEmail(ctx, "rae@example.com")
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, u.ID, entry.Data["user_id"])
	assert.Empty(t, f.events.Types())

	f.svc.Sessions = f.sessions
	_, err = f.svc.Login(ctx, "rae@example.com", "secret1")
	assert.NoError(t, err)
}
