package query

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newHandlerFixture(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _, notifSvc := newFixture(t)
	seedNotifications(t, notifSvc, "ten_1", 25, 0)

	router := gin.New()
	h := NewHandler(svc)
	h.RegisterRoutes(router.Group("/v1"))
	return router, svc
}

func TestListNotificationsHandlerPaging(t *testing.T) {
	router, _ := newHandlerFixture(t)

	cases := []struct {
		name      string
		query     string
		wantCode  int
		wantItems int
	}{
		{"default page size when absent", "", http.StatusOK, 20},
		{"explicit page size", "?pageSize=10", http.StatusOK, 10},
		{"explicit zero page size rejected", "?pageSize=0", http.StatusBadRequest, 0},
		{"negative page size rejected", "?pageSize=-3", http.StatusBadRequest, 0},
		{"zero page rejected", "?page=0", http.StatusBadRequest, 0},
		{"garbage page rejected", "?page=abc", http.StatusBadRequest, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/tenants/ten_1/notifications"+tc.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantCode, w.Body.String())
			}
			if tc.wantCode != http.StatusOK {
				return
			}

			var page struct {
				Items []json.RawMessage `json:"items"`
				Total int               `json:"total"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(page.Items) != tc.wantItems {
				t.Errorf("items = %d, want %d", len(page.Items), tc.wantItems)
			}
			if page.Total != 25 {
				t.Errorf("total = %d, want 25", page.Total)
			}
		})
	}
}
