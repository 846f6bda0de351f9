package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"neuro-match/internal/testutil"
	"neuro-match/models"
)

type recordingMailer struct {
	links []string
}

func (m *recordingMailer) SendVerification(_ context.Context, _, _, link string) error {
	m.links = append(m.links, link)
	return nil
}

func newTestAuth(t *testing.T) (*AuthService, *recordingMailer, *gorm.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	mailer := &recordingMailer{}
	auth, err := NewAuthService(db, NewTokenManager(testSecret, time.Hour), NewPasswordHasher(4), mailer, "http://localhost:8082/", nil)
	require.NoError(t, err)
	return auth, mailer, db
}

func aliceInput() RegisterInput {
	return RegisterInput{
		Username:  "alice",
		Firstname: "Alice",
		Lastname:  "Liddell",
		Email:     " Alice@Example.com ",
		Password:  "wonderland",
	}
}

func TestAuthService_RegisterVerifyLogin(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	auth, mailer, _ := newTestAuth(t)

	user, token, err := auth.Register(ctx, aliceInput())
	r.NoError(err)
	r.NotEmpty(token)
	r.Equal("alice@example.com", user.Email)
	r.False(user.IsVerified)
	r.NotEqual("wonderland", user.Password)

	r.Len(mailer.links, 1)
	r.True(strings.HasPrefix(mailer.links[0], "http://localhost:8082/api/auth/verify/"))

	// 未验证不能登录
	_, _, err = auth.Login(ctx, "alice", "wonderland")
	r.ErrorIs(err, ErrNotVerified)

	verificationToken := strings.TrimPrefix(mailer.links[0], "http://localhost:8082/api/auth/verify/")
	verified, err := auth.VerifyEmail(ctx, verificationToken)
	r.NoError(err)
	r.True(verified.IsVerified)

	// token 只能使用一次
	_, err = auth.VerifyEmail(ctx, verificationToken)
	r.ErrorIs(err, ErrInvalidToken)

	loggedIn, session, err := auth.Login(ctx, "alice", "wonderland")
	r.NoError(err)
	r.Equal(user.ID, loggedIn.ID)

	current, err := auth.Authenticate(ctx, session)
	r.NoError(err)
	r.Equal("alice", current.Username)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	auth, _, _ := newTestAuth(t)

	_, _, err := auth.Register(ctx, aliceInput())
	r.NoError(err)

	sameEmail := aliceInput()
	sameEmail.Username = "alice2"
	_, _, err = auth.Register(ctx, sameEmail)
	r.ErrorIs(err, ErrUserExists)

	sameName := aliceInput()
	sameName.Email = "other@example.com"
	_, _, err = auth.Register(ctx, sameName)
	r.ErrorIs(err, ErrUserExists)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
		field  string
	}{
		{name: "username", mutate: func(in *RegisterInput) { in.Username = " " }, field: "username"},
		{name: "firstname", mutate: func(in *RegisterInput) { in.Firstname = "" }, field: "firstname"},
		{name: "lastname", mutate: func(in *RegisterInput) { in.Lastname = "" }, field: "lastname"},
		{name: "email", mutate: func(in *RegisterInput) { in.Email = "not-an-email" }, field: "email"},
		{name: "password", mutate: func(in *RegisterInput) { in.Password = "123" }, field: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)
			auth, mailer, db := newTestAuth(t)
			in := aliceInput()
			tt.mutate(&in)

			_, _, err := auth.Register(context.Background(), in)
			var ve *ValidationError
			r.ErrorAs(err, &ve)
			r.Equal(tt.field, ve.Field)
			r.Empty(mailer.links)

			var count int64
			r.NoError(db.Model(&models.User{}).Count(&count).Error)
			r.Zero(count)
		})
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	auth, _, db := newTestAuth(t)

	_, _, err := auth.Register(ctx, aliceInput())
	r.NoError(err)
	r.NoError(db.Model(&models.User{}).Where("username = ?", "alice").Update("is_verified", true).Error)

	_, _, err = auth.Login(ctx, "alice", "wrong-password")
	r.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = auth.Login(ctx, "nobody", "wonderland")
	r.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = auth.Login(ctx, "", "")
	r.ErrorIs(err, ErrInvalidCredentials)
}

func TestAuthService_AuthenticateUnknownUser(t *testing.T) {
	r := require.New(t)
	auth, _, _ := newTestAuth(t)

	token, err := auth.Tokens().Generate("ghost")
	r.NoError(err)

	_, err = auth.Authenticate(context.Background(), token)
	r.ErrorIs(err, ErrUserNotFound)

	_, err = auth.Authenticate(context.Background(), "garbage")
	r.ErrorIs(err, ErrInvalidToken)
}

func TestAuthService_CurrentUserIncludesFriends(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	auth, _, db := newTestAuth(t)
	friends := NewFriendService(db)

	alice := testutil.CreateUser(t, db, "u1", "alice")
	testutil.CreateUser(t, db, "u2", "bob")
	testutil.CreateUser(t, db, "u3", "carol")

	r.NoError(friends.SendRequest(ctx, "u2", "u1"))
	r.NoError(friends.AcceptRequest(ctx, "u1", "u2"))
	r.NoError(friends.SendRequest(ctx, "u3", "u1"))

	me, err := auth.CurrentUser(ctx, alice.ID)
	r.NoError(err)
	r.Len(me.Friends, 1)
	r.Equal("bob", me.Friends[0].Username)
	r.Len(me.FriendRequests, 1)
	r.Equal("carol", me.FriendRequests[0].Username)
}
