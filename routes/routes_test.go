package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"neuro-match/controllers"
	"neuro-match/internal/testutil"
	"neuro-match/middlewares"
	"neuro-match/models"
	"neuro-match/services"
)

type testApp struct {
	engine *gin.Engine
	db     *gorm.DB
	auth   *services.AuthService
	hub    *services.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.NewSQLiteDB(t)

	hub := services.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	store := services.NewMessageStore(db)
	relay := services.NewRelay(hub, store, nil, logger)
	auth, err := services.NewAuthService(db, services.NewTokenManager("routes-test-secret-0123456789", time.Hour),
		services.NewPasswordHasher(4), services.NewLogMailer(logger), "http://localhost:8082", logger)
	require.NoError(t, err)

	engine := RegisterRoutes(Handlers{
		Auth:          controllers.NewAuthController(auth, false, logger),
		Friends:       controllers.NewFriendController(services.NewFriendService(db), logger),
		Messages:      controllers.NewMessageController(store, relay, logger),
		Conversations: controllers.NewConversationController(services.NewConversationService(db), logger),
		Users:         controllers.NewUserController(services.NewUserService(db), logger),
		WS:            controllers.NewWSController(relay, nil, logger),
		Health:        controllers.NewHealthController(db, hub),
	}, auth, nil, logger)

	return &testApp{engine: engine, db: db, auth: auth, hub: hub}
}

func (a *testApp) session(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	token, err := a.auth.Tokens().Generate(userID)
	require.NoError(t, err)
	return &http.Cookie{Name: middlewares.SessionCookie, Value: token}
}

func (a *testApp) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == middlewares.SessionCookie {
			return c
		}
	}
	return nil
}

func TestMessages_AliceSendsBobReads(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	testutil.CreateUser(t, app.db, "u2", "bob")

	w := app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u2", "text": "hello"}, app.session(t, "u1"))
	r.Equal(http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	r.NoError(json.Unmarshal(w.Body.Bytes(), &created))
	r.Equal("u1", created["senderId"])
	r.Equal("u2", created["recipientId"])
	r.Equal("hello", created["text"])
	r.NotEmpty(created["_id"])
	r.NotContains(created, "id")
	r.NotEmpty(created["createdAt"])

	w = app.do(t, http.MethodGet, "/api/messages?with=u1", nil, app.session(t, "u2"))
	r.Equal(http.StatusOK, w.Code)

	var history []models.Message
	r.NoError(json.Unmarshal(w.Body.Bytes(), &history))
	r.Len(history, 1)
	r.Equal(created["_id"], history[0].MessageID)
	r.Equal("hello", history[0].Text)
}

func TestMessages_ConversationList(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	testutil.CreateUser(t, app.db, "u2", "bob")
	alice := app.session(t, "u1")

	w := app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u2", "text": "hello"}, alice)
	r.Equal(http.StatusCreated, w.Code)
	w = app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u1", "text": "again"}, app.session(t, "u2"))
	r.Equal(http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/api/messages/conversations", nil, alice)
	r.Equal(http.StatusOK, w.Code)
	var body struct {
		Data []models.Conversation `json:"data"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	r.Len(body.Data, 1)
	r.Equal("u1_u2", body.Data[0].ConversationID)
	r.Equal("bob", body.Data[0].Participant.Username)
	r.Equal("again", body.Data[0].LastMessage.Text)
}

func TestMessages_EmptyConversationIsEmptyArray(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")

	w := app.do(t, http.MethodGet, "/api/messages?with=u2", nil, app.session(t, "u1"))
	r.Equal(http.StatusOK, w.Code)
	r.JSONEq(`[]`, w.Body.String())
}

func TestMessages_Errors(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	alice := app.session(t, "u1")

	w := app.do(t, http.MethodGet, "/api/messages?with=u2", nil, nil)
	r.Equal(http.StatusUnauthorized, w.Code)
	r.Contains(w.Body.String(), `"success":false`)

	w = app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u2", "text": "hi"}, nil)
	r.Equal(http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodGet, "/api/messages", nil, alice)
	r.Equal(http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u2", "text": ""}, alice)
	r.Equal(http.StatusBadRequest, w.Code)
	r.Contains(w.Body.String(), `"validation_error"`)

	w = app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u2", "text": "   "}, alice)
	r.Equal(http.StatusBadRequest, w.Code)

	var count int64
	r.NoError(app.db.Model(&models.Message{}).Count(&count).Error)
	r.Zero(count)
}

func TestAuth_RegisterVerifyLoginMeLogout(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username":  "alice",
		"firstname": "Alice",
		"lastname":  "Liddell",
		"email":     "alice@example.com",
		"password":  "wonderland",
	}, nil)
	r.Equal(http.StatusCreated, w.Code, w.Body.String())
	r.NotNil(sessionCookie(w))
	r.NotContains(w.Body.String(), "wonderland")
	r.Contains(w.Body.String(), `"requiresVerification":true`)

	w = app.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username":  "alice",
		"firstname": "Alice",
		"lastname":  "Again",
		"email":     "alice2@example.com",
		"password":  "wonderland",
	}, nil)
	r.Equal(http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "wonderland"}, nil)
	r.Equal(http.StatusForbidden, w.Code)
	r.Contains(w.Body.String(), `"requiresVerification":true`)

	var user models.User
	r.NoError(app.db.Where("username = ?", "alice").First(&user).Error)
	w = app.do(t, http.MethodGet, "/api/auth/verify/"+user.VerificationToken, nil, nil)
	r.Equal(http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, http.MethodGet, "/api/auth/verify/"+user.VerificationToken, nil, nil)
	r.Equal(http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "nope"}, nil)
	r.Equal(http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "wonderland"}, nil)
	r.Equal(http.StatusOK, w.Code)
	cookie := sessionCookie(w)
	r.NotNil(cookie)
	r.True(cookie.HttpOnly)

	w = app.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	r.Equal(http.StatusOK, w.Code)
	var me struct {
		Success bool        `json:"success"`
		User    models.User `json:"user"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &me))
	r.True(me.Success)
	r.Equal("alice", me.User.Username)
	r.NotEmpty(me.User.ID)
	r.True(me.User.IsVerified)

	// 没有好友时也返回空数组
	var raw struct {
		User map[string]json.RawMessage `json:"user"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &raw))
	r.JSONEq(`[]`, string(raw.User["friends"]))
	r.JSONEq(`[]`, string(raw.User["friendRequests"]))
	r.Contains(raw.User, "_id")

	w = app.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	r.Equal(http.StatusOK, w.Code)
	cleared := sessionCookie(w)
	r.NotNil(cleared)
	r.Empty(cleared.Value)
	r.Less(cleared.MaxAge, 0)
}

func TestAuth_RegisterRequiresFields(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/auth/register", gin.H{"username": "alice"}, nil)
	r.Equal(http.StatusBadRequest, w.Code)
	r.Contains(w.Body.String(), `"success":false`)
}

func TestFriends_RequestAcceptListSearch(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	testutil.CreateUser(t, app.db, "u2", "bob")
	alice, bob := app.session(t, "u1"), app.session(t, "u2")

	w := app.do(t, http.MethodPost, "/api/friends/send-request", gin.H{"targetId": "u2"}, alice)
	r.Equal(http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/friends/send-request", gin.H{"targetId": "u2"}, alice)
	r.Equal(http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/api/friends/send-request", gin.H{"targetId": "u1"}, alice)
	r.Equal(http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/api/friends/send-request", gin.H{"targetId": "ghost"}, alice)
	r.Equal(http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodPost, "/api/friends/accept-request", gin.H{"requesterId": "u1"}, bob)
	r.Equal(http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/friends/accept-request", gin.H{"requesterId": "u1"}, bob)
	r.Equal(http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/api/friends", nil, alice)
	r.Equal(http.StatusOK, w.Code)
	var list struct {
		Friends []models.PublicUser `json:"friends"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &list))
	r.Len(list.Friends, 1)
	r.Equal("bob", list.Friends[0].Username)

	w = app.do(t, http.MethodGet, "/api/friends/search?query=BO", nil, alice)
	r.Equal(http.StatusOK, w.Code)
	var found struct {
		Success bool                `json:"success"`
		Users   []models.PublicUser `json:"users"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &found))
	r.True(found.Success)
	r.Len(found.Users, 1)
	r.Equal("u2", found.Users[0].ID)
	r.NotContains(w.Body.String(), "password")

	// 好友出现在 /me 的 friends 中
	w = app.do(t, http.MethodGet, "/api/auth/me", nil, alice)
	r.Equal(http.StatusOK, w.Code)
	var me struct {
		User models.User `json:"user"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &me))
	r.Len(me.User.Friends, 1)
	r.Equal("bob", me.User.Friends[0].Username)

	w = app.do(t, http.MethodGet, "/api/friends", nil, nil)
	r.Equal(http.StatusUnauthorized, w.Code)
}

func TestAuth_UpdateProfile(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	alice := app.session(t, "u1")

	w := app.do(t, http.MethodPut, "/api/auth/me", gin.H{
		"age":            27,
		"pronouns":       "she/her",
		"bio":            "down the rabbit hole",
		"height":         165,
		"profilePicture": "https://cdn.test/alice.png",
		"preferences":    gin.H{"gender": "any", "ageRange": gin.H{"min": 25, "max": 35}},
	}, alice)
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Success bool        `json:"success"`
		User    models.User `json:"user"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	r.True(body.Success)
	r.Equal(27, *body.User.Age)
	r.Equal("she/her", body.User.Pronouns)
	r.Equal("https://cdn.test/alice.png", body.User.ProfilePicture)
	r.Equal(35, *body.User.Preferences.AgeRange.Max)

	// 只修改出现的字段
	w = app.do(t, http.MethodPut, "/api/auth/me", gin.H{"bio": "back home"}, alice)
	r.Equal(http.StatusOK, w.Code)
	var updated struct {
		User models.User `json:"user"`
	}
	r.NoError(json.Unmarshal(w.Body.Bytes(), &updated))
	r.Equal("back home", updated.User.Bio)
	r.Equal("she/her", updated.User.Pronouns)
	r.Equal(27, *updated.User.Age)

	w = app.do(t, http.MethodPut, "/api/auth/me", gin.H{"profilePicture": "data:image/png;base64,AAAA"}, alice)
	r.Equal(http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPut, "/api/auth/me", gin.H{"bio": "x"}, nil)
	r.Equal(http.StatusUnauthorized, w.Code)
}

func TestUsers_Lookup(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	testutil.CreateUser(t, app.db, "u2", "bob")
	alice := app.session(t, "u1")

	w := app.do(t, http.MethodGet, "/api/users/username/bob", nil, alice)
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	var profile models.Profile
	r.NoError(json.Unmarshal(w.Body.Bytes(), &profile))
	r.Equal("u2", profile.ID)
	r.Equal("bob", profile.Username)
	r.NotContains(w.Body.String(), "email")
	r.NotContains(w.Body.String(), "password")

	w = app.do(t, http.MethodGet, "/api/users/id/u2", nil, alice)
	r.Equal(http.StatusOK, w.Code)
	r.Contains(w.Body.String(), `"_id":"u2"`)

	w = app.do(t, http.MethodGet, "/api/users/username/nobody", nil, alice)
	r.Equal(http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/api/users/id/u2", nil, nil)
	r.Equal(http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/health", nil, nil)
	r.Equal(http.StatusOK, w.Code)
	r.Contains(w.Body.String(), `"clients":0`)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestWebSocket_RequiresSession(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	server := httptest.NewServer(app.engine)
	t.Cleanup(server.Close)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	r.Error(err)
	r.NotNil(resp)
	r.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var env services.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event == event {
			return env.Data
		}
	}
}

func TestWebSocket_RestMessageReachesJoinedSocket(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	testutil.CreateUser(t, app.db, "u2", "bob")
	server := httptest.NewServer(app.engine)
	t.Cleanup(server.Close)

	header := http.Header{}
	header.Set("Cookie", app.session(t, "u2").String())
	bob, _, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	r.NoError(err)
	t.Cleanup(func() { _ = bob.Close() })

	r.NoError(bob.WriteJSON(gin.H{"event": services.EventJoinRoom, "data": services.RoomKey("u2", "u1")}))
	readEvent(t, bob, services.EventJoined)

	w := app.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "u2", "text": "over rest"}, app.session(t, "u1"))
	r.Equal(http.StatusCreated, w.Code)

	var msg models.Message
	r.NoError(json.Unmarshal(readEvent(t, bob, services.EventReceiveMessage), &msg))
	r.Equal("over rest", msg.Text)
	r.Equal("u1", msg.SenderID)
	r.Equal(1, app.hub.ClientCount())
}

func TestWebSocket_TokenQueryParameter(t *testing.T) {
	r := require.New(t)
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "u1", "alice")
	server := httptest.NewServer(app.engine)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server)+"?token="+app.session(t, "u1").Value, nil)
	r.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })

	r.NoError(conn.WriteJSON(gin.H{
		"event": services.EventSendMessage,
		"data":  gin.H{"ref": "q1", "recipientId": "u2", "text": "via query token"},
	}))
	var ack services.SendMessageAck
	r.NoError(json.Unmarshal(readEvent(t, conn, services.EventSendAck), &ack))
	r.True(ack.OK)
	r.Equal("u1", ack.Message.SenderID)
}
