package main

import (
	"encoding/json"
	"etix/src/db"
	"etix/src/lib"
	"etix/src/middlewares"
	"etix/src/types"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type TestSuite struct {
	suite.Suite
	Token *string
}

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

func (s *TestSuite) SetupSuite() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bookabledate", eventDateTimeValidatorFunc)
	}

	token, err := generateAdminJWT()
	if err != nil {
		log.Fatalf("Error generating JWT token: %s\n", err.Error())
		return
	}
	s.Token = &token
}

const (
	adminSecret = "letmein"
)

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	os.Setenv("MAINTENANCE_MODE", "true")
	defer os.Unsetenv("MAINTENANCE_MODE")

	router := setupRouter()
	router = maintenanceModeMiddleware(router)
	apiv1Group(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
}

func (s *TestSuite) TestAdminLogin() {
	os.Setenv("ADMIN_SECRET", adminSecret)
	defer os.Unsetenv("ADMIN_SECRET")

	router := setupRouter()
	publicRoutes(router)

	s.Run("Should reject a wrong secret with 401 status", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{"secret": "wrong"}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/admin/login", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 401, w.Code)
	})

	s.Run("Should return a token for the right secret", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{"secret": adminSecret}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/admin/login", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 200, w.Code)
		rbytes, err := io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		token := gjson.Get(string(rbytes), "token").String()
		assert.NotEmpty(s.T(), token)
	})
}

func (s *TestSuite) TestAdminRoutesAuth() {
	router := setupRouter()
	adminRoutes(router)

	token := *s.Token
	s.Run("Should reject a request without a token", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/admin/events", strings.NewReader("{}"))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 401, w.Code)
	})

	s.Run("Should reject a garbage token", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/admin/events", strings.NewReader("{}"))
		req.Header.Set("Authorization", "Bearer not-a-token")
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 401, w.Code)
	})

	s.Run("Should return a 400 error response for an invalid body", func() {
		w := httptest.NewRecorder()
		reqBody := types.CreateEventRequestBody{
			Title: "test event",
		}
		rbytes, err := json.Marshal(&reqBody)
		assert.Nil(s.T(), err)
		req, _ := http.NewRequest("POST", "/api/v1/admin/events", strings.NewReader(string(rbytes)))
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 400, w.Code)

		rbytes, err = io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		errMsg := gjson.Get(string(rbytes), "error").String()
		assert.NotEmpty(s.T(), errMsg)
	})
}

func (s *TestSuite) TestEvents() {
	d, mock := NewMockDB()
	db.NewDB(d)

	router := setupRouter()
	apiv1 := apiv1Group(router)
	eventHandlers(apiv1)

	s.Run("Should return list of Event with 200 status", func() {
		rows := sqlmock.NewRows([]string{"id", "title", "slug", "date", "venue"})
		mock.ExpectQuery(`SELECT (.+) FROM "events"`).WillReturnRows(rows)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/events", nil)
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 200, w.Code)
	})

	s.Run("Should return 404 for a missing event", func() {
		rows := sqlmock.NewRows([]string{"id", "title", "slug", "date", "venue"})
		mock.ExpectQuery(`SELECT (.+) FROM "events"`).WillReturnRows(rows)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/events/99", nil)
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 404, w.Code)
		rbytes, err := io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		errMsg := gjson.Get(string(rbytes), "error").String()
		assert.NotEmpty(s.T(), errMsg)
	})
}

func (s *TestSuite) TestPurchase() {
	d, mock := NewMockDB()
	db.NewDB(d)

	router := setupRouter()
	apiv1 := apiv1Group(router)
	ticketHandlers(apiv1)

	s.Run("Should return a 400 error response for an invalid body", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{
			"eventId": 1,
			"tickets": []map[string]any{},
		}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should return a 400 error response for a zero quantity", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{
			"eventId":   1,
			"buyerName": "Someone",
			"tickets":   []map[string]any{{"ticketType": "General", "quantity": 0}},
		}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should return a 400 error response for an oversized quantity", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{
			"eventId":   1,
			"buyerName": "Someone",
			"tickets":   []map[string]any{{"ticketType": "General", "quantity": 100000}},
		}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should return 404 for a missing event", func() {
		mock.ExpectBegin()
		rows := sqlmock.NewRows([]string{"id", "title", "slug", "date", "venue"})
		mock.ExpectQuery(`SELECT (.+) FROM "events"`).WillReturnRows(rows)
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		jbody := map[string]any{
			"eventId":   99,
			"buyerName": "Someone",
			"tickets":   []map[string]any{{"ticketType": "General", "quantity": 1}},
		}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 404, w.Code)
	})
}

func (s *TestSuite) TestPurchaseSuccess() {
	d, mock := NewMockDB()
	db.NewDB(d)
	rdb, rmock := redismock.NewClientMock()
	lib.NewRedisClient(rdb)
	defer lib.NewRedisClient(nil)

	router := setupRouter()
	apiv1 := apiv1Group(router)
	ticketHandlers(apiv1)

	mock.ExpectBegin()
	eventRows := sqlmock.NewRows([]string{"id", "title", "venue", "date"}).
		AddRow(1, "Concert", "Arena", time.Now().Add(48*time.Hour))
	mock.ExpectQuery(`SELECT (.+) FROM "events"(.+)FOR UPDATE`).WillReturnRows(eventRows)
	typeRows := sqlmock.NewRows([]string{"id", "event_id", "name", "price", "total_available", "sold"}).
		AddRow(1, 1, "GA", 25.0, 100, 90)
	mock.ExpectQuery(`SELECT (.+) FROM "ticket_types"`).WillReturnRows(typeRows)
	mock.ExpectExec(`UPDATE "ticket_types"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "tickets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "ticket_line_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE "tickets"`).WillReturnResult(sqlmock.NewResult(0, 1))
	rmock.ExpectDel("events:list").SetVal(1)

	w := httptest.NewRecorder()
	jbody := map[string]any{
		"eventId":   1,
		"buyerName": "Someone",
		"tickets":   []map[string]any{{"ticketType": "GA", "quantity": 2, "price": 1}},
	}
	sbody, _ := json.Marshal(&jbody)
	req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 201, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	sjson := string(rbytes)
	assert.Equal(s.T(), float64(50), gjson.Get(sjson, "totalAmount").Float(), "total must come from the stored price")
	assert.Equal(s.T(), float64(25), gjson.Get(sjson, "ticketsPurchased.0.price").Float())
	assert.True(s.T(), strings.HasPrefix(gjson.Get(sjson, "qrCode").String(), "data:image/jpeg;base64,"))
	assert.Nil(s.T(), mock.ExpectationsWereMet())
	assert.Nil(s.T(), rmock.ExpectationsWereMet())
}

func (s *TestSuite) TestPurchaseSoldOut() {
	d, mock := NewMockDB()
	db.NewDB(d)

	router := setupRouter()
	apiv1 := apiv1Group(router)
	ticketHandlers(apiv1)

	mock.ExpectBegin()
	eventRows := sqlmock.NewRows([]string{"id", "title", "venue", "date"}).
		AddRow(1, "Concert", "Arena", time.Now().Add(48*time.Hour))
	mock.ExpectQuery(`SELECT (.+) FROM "events"(.+)FOR UPDATE`).WillReturnRows(eventRows)
	typeRows := sqlmock.NewRows([]string{"id", "event_id", "name", "price", "total_available", "sold"}).
		AddRow(1, 1, "GA", 25.0, 10, 0)
	mock.ExpectQuery(`SELECT (.+) FROM "ticket_types"`).WillReturnRows(typeRows)
	mock.ExpectExec(`UPDATE "ticket_types"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	jbody := map[string]any{
		"eventId":   1,
		"buyerName": "Someone",
		"tickets":   []map[string]any{{"ticketType": "GA", "quantity": 1}},
	}
	sbody, _ := json.Marshal(&jbody)
	req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 409, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Contains(s.T(), gjson.Get(string(rbytes), "error").String(), "GA")
	assert.Nil(s.T(), mock.ExpectationsWereMet())
}

func (s *TestSuite) TestPurchaseIdempotentReplay() {
	rdb, rmock := redismock.NewClientMock()
	lib.NewRedisClient(rdb)
	defer lib.NewRedisClient(nil)

	router := setupRouter()
	apiv1 := apiv1Group(router)
	ticketHandlers(apiv1)

	key := "purchase:idem:abc-123"
	jbody := map[string]any{
		"eventId":   1,
		"buyerName": "Someone",
		"tickets":   []map[string]any{{"ticketType": "GA", "quantity": 1}},
	}
	sbody, _ := json.Marshal(&jbody)

	s.Run("Should replay the cached ticket for a reused key", func() {
		cached := `{"id":7,"buyerName":"Someone","totalAmount":50}`
		rmock.ExpectSetNX(key, "pending", 24*time.Hour).SetVal(false)
		rmock.ExpectGet(key).SetVal(cached)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
		req.Header.Set("X-Idempotency-Key", "abc-123")
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 200, w.Code)
		rbytes, err := io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		assert.Equal(s.T(), int64(7), gjson.Get(string(rbytes), "id").Int())
	})

	s.Run("Should return 409 while the key is still pending", func() {
		rmock.ExpectSetNX(key, "pending", 24*time.Hour).SetVal(false)
		rmock.ExpectGet(key).SetVal("pending")

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/tickets/purchase", strings.NewReader(string(sbody)))
		req.Header.Set("X-Idempotency-Key", "abc-123")
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 409, w.Code)
	})

	assert.Nil(s.T(), rmock.ExpectationsWereMet())
}

func (s *TestSuite) TestTicketSurvivesEventDeletion() {
	d, mock := NewMockDB()
	db.NewDB(d)

	router := setupRouter()
	apiv1 := apiv1Group(router)
	eventHandlers(apiv1)
	ticketHandlers(apiv1)

	s.Run("Should return 404 for the deleted event", func() {
		mock.ExpectQuery(`SELECT (.+) FROM "events"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/events/1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 404, w.Code)
	})

	s.Run("Should still resolve the event's ticket", func() {
		ticketRows := sqlmock.NewRows([]string{"id", "buyer_name", "event_id", "total_amount", "qr_code", "status"}).
			AddRow(1, "Someone", 1, 50.0, "data:image/jpeg;base64,00", "valid")
		mock.ExpectQuery(`SELECT (.+) FROM "tickets"`).WillReturnRows(ticketRows)
		itemRows := sqlmock.NewRows([]string{"id", "ticket_id", "ticket_type", "quantity", "price"}).
			AddRow(1, 1, "GA", 2, 25.0)
		mock.ExpectQuery(`SELECT (.+) FROM "ticket_line_items"`).WillReturnRows(itemRows)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/tickets/1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(s.T(), 200, w.Code)
		rbytes, err := io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		sjson := string(rbytes)
		assert.Equal(s.T(), "Someone", gjson.Get(sjson, "buyerName").String())
		assert.Equal(s.T(), "GA", gjson.Get(sjson, "ticketsPurchased.0.ticketType").String())
	})

	assert.Nil(s.T(), mock.ExpectationsWereMet())
}

func (s *TestSuite) TestAuthMiddlewareUnit() {
	router := gin.New()
	router.GET("/protected", middlewares.AdminAuthMiddleware, func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 401, w.Code)
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
