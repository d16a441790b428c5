package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgrijalva/jwt-go"
	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/gateway"
	"github.com/nexuspay/payd/pkg/mapping"
	"github.com/nexuspay/payd/pkg/store"
	"github.com/nexuspay/payd/pkg/watcher"
	"github.com/nexuspay/payd/rest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	jwtSecret    = "test-secret"
	testInterval = 10 * time.Millisecond
)

// upstream is a scripted execution network shared by the proxy tests.
type upstream struct {
	mu sync.Mutex

	submitCode  int
	statuses    []dex.Status
	statusCalls int
	submits     int
}

func (u *upstream) server() *httptest.Server {
	mux := http.NewServeMux()
	submit := func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.submits++
		w.WriteHeader(u.submitCode)
		fmt.Fprint(w, `{"success":true}`)
	}
	mux.HandleFunc("/fusion/relayer/v1.0/submit", submit)
	mux.HandleFunc("/fusion-plus/relayer/v1.0/submit", submit)
	status := func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		s := u.statuses[len(u.statuses)-1]
		if u.statusCalls < len(u.statuses) {
			s = u.statuses[u.statusCalls]
		}
		u.statusCalls++
		json.NewEncoder(w).Encode(map[string]string{"status": string(s)})
	}
	mux.HandleFunc("/fusion/orders/v1.0/order/status/", status)
	mux.HandleFunc("/fusion-plus/orders/v1.0/order/status/", status)
	mux.HandleFunc("/fusion-plus/orders/v1.0/order/ready-to-accept-secret-fills/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fills":[]}`)
	})
	mux.HandleFunc("/fusion/quoter/v1.0/quote", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteId":"q-proxy"}`)
	})
	return httptest.NewServer(mux)
}

var _ = Describe("REST server", Ordered, func() {
	var (
		str        store.Store
		mappings   mapping.Store
		mr         *miniredis.Miniredis
		up         *upstream
		upServer   *httptest.Server
		supervisor *watcher.Supervisor
		server     *rest.Server
	)

	BeforeAll(func() {
		_ = os.Remove("rest_test.db")
		db, err := gorm.Open(sqlite.Open("rest_test.db"))
		Expect(err).To(BeNil())
		str, err = store.NewStore(db)
		Expect(err).To(BeNil())

		mr, err = miniredis.Run()
		Expect(err).To(BeNil())
		mappings, err = mapping.NewRedisStore("redis://" + mr.Addr())
		Expect(err).To(BeNil())

		up = &upstream{submitCode: http.StatusCreated, statuses: []dex.Status{dex.StatusPending, dex.StatusExecuted}}
		upServer = up.server()

		logger, err := zap.NewDevelopment()
		Expect(err).To(BeNil())
		client := dex.NewClient(upServer.URL, "test-key")
		supervisor = watcher.NewSupervisor(str, client, nil, logger, testInterval)
		gw := gateway.New(str, mappings, client, supervisor, logger)
		server = rest.NewServer(str, mappings, gw, jwtSecret, logger)
	})

	AfterAll(func() {
		supervisor.Stop()
		upServer.Close()
		mr.Close()
		_ = os.Remove("rest_test.db")
	})

	token := func(userID string) string {
		claims := rest.Claims{
			UserID: userID,
			StandardClaims: jwt.StandardClaims{
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
		Expect(err).To(BeNil())
		return signed
	}

	request := func(method, path, user string, body interface{}) *httptest.ResponseRecorder {
		var reader *bytes.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).To(BeNil())
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.Header.Set("Authorization", "Bearer "+token(user))
		}
		recorder := httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		return recorder
	}

	createOrder := func(owner string) string {
		resp := request(http.MethodPost, "/orders", owner, map[string]interface{}{
			"merchant":    "acme",
			"outChain":    "137",
			"outToken":    "0xusdc",
			"usdCents":    2500,
			"deadlineSec": 3600,
		})
		Expect(resp.Code).To(Equal(http.StatusCreated))
		body := struct {
			UID string `json:"uid"`
		}{}
		Expect(json.Unmarshal(resp.Body.Bytes(), &body)).Should(Succeed())
		Expect(body.UID).ToNot(BeEmpty())
		return body.UID
	}

	Context("authentication", func() {
		It("should reject requests without a token", func() {
			resp := request(http.MethodGet, "/orders", "", nil)
			Expect(resp.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should reject a token signed with another secret", func() {
			forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rest.Claims{UserID: "u"}).SignedString([]byte("wrong"))
			Expect(err).To(BeNil())

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			req.Header.Set("Authorization", "Bearer "+forged)
			recorder := httptest.NewRecorder()
			server.Router().ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("order creation", func() {
		It("should reject an unsupported chain", func() {
			resp := request(http.MethodPost, "/orders", "user-1", map[string]interface{}{
				"merchant":    "acme",
				"outChain":    "999999",
				"outToken":    "0xusdc",
				"usdCents":    2500,
				"deadlineSec": 3600,
			})
			Expect(resp.Code).To(Equal(http.StatusBadRequest))
		})

		It("should create an order and list it", func() {
			uid := createOrder("user-1")

			resp := request(http.MethodGet, "/orders?page=1&limit=10", "user-1", nil)
			Expect(resp.Code).To(Equal(http.StatusOK))
			Expect(resp.Body.String()).To(ContainSubstring(uid))
		})

		It("should serve the public payment view without auth", func() {
			uid := createOrder("user-1")
			resp := request(http.MethodGet, "/orders/public/"+uid, "", nil)
			Expect(resp.Code).To(Equal(http.StatusOK))
			Expect(resp.Body.String()).To(ContainSubstring(`"status":"PENDING"`))
		})

		It("should hide foreign orders", func() {
			uid := createOrder("user-1")
			resp := request(http.MethodGet, "/orders/orderId/"+uid, "intruder", nil)
			Expect(resp.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("mapping registration", Ordered, func() {
		var orderUID string
		hash := func(prefix string) string {
			return "0x" + prefix + strings.Repeat("0", 64-len(prefix))
		}

		BeforeAll(func() {
			orderUID = createOrder("user-2")
		})

		It("should reject missing fields", func() {
			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId": orderUID,
			})
			Expect(resp.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject an unknown order", func() {
			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId":       "no-such-order",
				"quoteId":       "q-1",
				"executionHash": hash("aa"),
			})
			Expect(resp.Code).To(Equal(http.StatusNotFound))
		})

		It("should create a mapping", func() {
			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId":       orderUID,
				"quoteId":       "q-1",
				"executionHash": hash("aa"),
				"secrets":       []string{"s0"},
			})
			Expect(resp.Code).To(Equal(http.StatusCreated))
			Expect(resp.Body.String()).To(ContainSubstring("expiresAt"))
		})

		It("should reject a duplicate quote id", func() {
			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId":       orderUID,
				"quoteId":       "q-1",
				"executionHash": hash("bb"),
			})
			Expect(resp.Code).To(Equal(http.StatusConflict))
		})

		It("should reject a duplicate execution hash", func() {
			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId":       orderUID,
				"quoteId":       "q-2",
				"executionHash": hash("aa"),
			})
			Expect(resp.Code).To(Equal(http.StatusConflict))
		})
	})

	Context("derived status", Ordered, func() {
		var orderUID string

		BeforeAll(func() {
			orderUID = createOrder("user-3")
		})

		status := func() string {
			resp := request(http.MethodGet, "/orders/status/orderId/"+orderUID, "user-3", nil)
			Expect(resp.Code).To(Equal(http.StatusOK))
			body := struct {
				Status string `json:"status"`
			}{}
			Expect(json.Unmarshal(resp.Body.Bytes(), &body)).Should(Succeed())
			return body.Status
		}

		It("should walk PENDING, PROCESSING, COMPLETED", func() {
			Expect(status()).To(Equal("PENDING"))

			Expect(str.UpdateWatchStatus(orderUID, store.WatchInitiated)).Should(Succeed())
			Expect(status()).To(Equal("PROCESSING"))

			Expect(str.UpdateSettlement(orderUID, store.WatchSuccess, store.OutcomeExecuted)).Should(Succeed())
			Expect(status()).To(Equal("COMPLETED"))
		})

		It("should report UNKNOWN for expired and refunded settlements", func() {
			Expect(str.UpdateSettlement(orderUID, store.WatchSuccess, store.OutcomeExpired)).Should(Succeed())
			Expect(status()).To(Equal("UNKNOWN"))

			Expect(str.UpdateSettlement(orderUID, store.WatchSuccess, store.OutcomeRefunded)).Should(Succeed())
			Expect(status()).To(Equal("UNKNOWN"))
		})
	})

	Context("submission gateway", func() {
		hash := func(prefix string) string {
			return "0x" + prefix + strings.Repeat("1", 64-len(prefix))
		}

		It("should track a mapped submission end to end", func() {
			orderUID := createOrder("user-4")

			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId":       orderUID,
				"quoteId":       "q-tracked",
				"executionHash": hash("dd"),
				"secrets":       []string{"s0"},
			})
			Expect(resp.Code).To(Equal(http.StatusCreated))

			resp = request(http.MethodPost, "/dex/cross-chain-x/relayer/v1.0/submit", "", map[string]interface{}{
				"order":      map[string]string{"maker": "0xmaker"},
				"quoteId":    "q-tracked",
				"srcChainId": 1,
			})
			Expect(resp.Code).To(Equal(http.StatusCreated))

			Eventually(func() store.Derived {
				order, err := str.OrderByUID(orderUID)
				Expect(err).To(BeNil())
				return order.DerivedStatus()
			}, time.Second, testInterval).Should(Equal(store.DerivedCompleted))
		})

		It("should forward an unmapped submission without tracking it", func() {
			before := up.submits

			resp := request(http.MethodPost, "/dex/same-chain-x/relayer/v1.0/submit", "", map[string]interface{}{
				"order":      map[string]string{"maker": "0xmaker"},
				"quoteId":    "q-untracked",
				"srcChainId": 137,
			})
			Expect(resp.Code).To(Equal(http.StatusCreated))
			Expect(up.submits).To(Equal(before + 1))

			pending, err := str.PendingWatches()
			Expect(err).To(BeNil())
			for _, watch := range pending {
				Expect(watch.QuoteID).ToNot(Equal("q-untracked"))
			}
		})

		It("should reject a submission without a quote id", func() {
			resp := request(http.MethodPost, "/dex/same-chain-x/relayer/v1.0/submit", "", map[string]interface{}{
				"order": map[string]string{"maker": "0xmaker"},
			})
			Expect(resp.Code).To(Equal(http.StatusBadRequest))
		})

		It("should pass a non-success upstream response through and start no watch", func() {
			orderUID := createOrder("user-5")
			resp := request(http.MethodPost, "/orders/mapping", "", map[string]interface{}{
				"orderId":       orderUID,
				"quoteId":       "q-rejected",
				"executionHash": hash("ee"),
			})
			Expect(resp.Code).To(Equal(http.StatusCreated))

			up.mu.Lock()
			up.submitCode = http.StatusBadRequest
			up.mu.Unlock()
			defer func() {
				up.mu.Lock()
				up.submitCode = http.StatusCreated
				up.mu.Unlock()
			}()

			resp = request(http.MethodPost, "/dex/cross-chain-x/relayer/v1.0/submit", "", map[string]interface{}{
				"order":      map[string]string{"maker": "0xmaker"},
				"quoteId":    "q-rejected",
				"srcChainId": 1,
			})
			Expect(resp.Code).To(Equal(http.StatusBadRequest))

			order, err := str.OrderByUID(orderUID)
			Expect(err).To(BeNil())
			Expect(order.WatchStatus).To(Equal(store.WatchNotStarted))
		})

		It("should proxy non-submit routes untouched", func() {
			resp := request(http.MethodGet, "/dex/same-chain-x/quoter/v1.0/quote?chainId=137", "", nil)
			Expect(resp.Code).To(Equal(http.StatusOK))
			Expect(resp.Body.String()).To(ContainSubstring("q-proxy"))
		})
	})
})
