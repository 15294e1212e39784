package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
	"telephone-billing/internal/records"
	"telephone-billing/internal/storage/memory"
	"telephone-billing/internal/tariff"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subscriber = "99988526423"

var fixedNow = time.Date(2018, 9, 10, 12, 0, 0, 0, time.UTC)

func newRouter(t *testing.T, ready ...Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	engine, err := tariff.NewEngine(tariff.DefaultConfig())
	require.NoError(t, err)
	billReg := bills.NewRegistry(store, engine)
	h := Handlers{
		Records: records.NewService(store, calls.NewRegistry(store), billReg),
		Bills:   billReg,
		Ready:   ready,
		Now:     func() time.Time { return fixedNow },
	}

	r := gin.New()
	h.Register(r, nil, nil)
	return r
}

func postJSON(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestCreateRecord_StartAndEnd(t *testing.T) {
	r := newRouter(t)

	w := postJSON(r, `{"type":"start","call_id":70,"timestamp":"2018-08-25T08:28:00Z","source":"99988526423","destination":"9933468278"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"type":"start","call_id":70,"timestamp":"2018-08-25T08:28:00Z","source":"99988526423","destination":"9933468278"}`, w.Body.String())

	w = postJSON(r, `{"type":"end","call_id":70,"timestamp":"2018-08-25T08:30:00Z"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"type":"end","call_id":70,"timestamp":"2018-08-25T08:30:00Z"}`, w.Body.String())
}

func TestCreateRecord_FormEncoded(t *testing.T) {
	r := newRouter(t)
	form := url.Values{
		"type":        {"start"},
		"call_id":     {"71"},
		"timestamp":   {"2018-08-25T08:28:00Z"},
		"source":      {"99988526423"},
		"destination": {"9933468278"},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateRecord_BindingErrors(t *testing.T) {
	r := newRouter(t)

	w := postJSON(r, `{"type":"start","call_id":70,"timestamp":"2018-08-25T08:28:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"source":["This field is required."],"destination":["This field is required."]}`, w.Body.String())

	w = postJSON(r, `{"type":"pause","call_id":70,"timestamp":"2018-08-25T08:28:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"type":["\"pause\" is not a valid choice."]}`, w.Body.String())

	w = postJSON(r, `{"type":"end","timestamp":"2018-08-25T08:28:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"call_id":["This field is required."]}`, w.Body.String())

	w = postJSON(r, `{"type":"end","call_id":70,"timestamp":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"timestamp"`)

	w = postJSON(r, `{"type":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"detail"`)
}

func TestCreateRecord_ValidationErrors(t *testing.T) {
	r := newRouter(t)

	w := postJSON(r, `{"type":"start","call_id":70,"timestamp":"2018-08-25T08:28:00Z","source":"123","destination":"9933468278"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var fields map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fields))
	assert.Contains(t, fields["source"][0], "Invalid phone number")

	w = postJSON(r, `{"type":"start","call_id":70,"timestamp":"2018-08-25T08:28:00Z","source":"99988526423","destination":"99988526423"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `["Source and Destination cannot be equal"]`, w.Body.String())

	w = postJSON(r, `{"type":"end","call_id":404,"timestamp":"2018-08-25T08:28:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"call_id":["There is no call with this call_id."]}`, w.Body.String())
}

func TestGetBill(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, postJSON(r, `{"type":"start","call_id":70,"timestamp":"2018-08-25T08:28:00Z","source":"99988526423","destination":"9933468278"}`).Code)
	require.Equal(t, http.StatusCreated, postJSON(r, `{"type":"end","call_id":70,"timestamp":"2018-08-25T08:30:13Z"}`).Code)

	for _, ref := range []string{"", "?reference=08/2018", "?reference=08-2018"} {
		w := get(r, "/bills/"+subscriber+ref)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{
			"subscriber": "99988526423",
			"reference_period": "08/2018",
			"bill_call_records": [{
				"destination": "9933468278",
				"call_start_date": "2018-08-25",
				"call_start_time": "08:28:00",
				"call_duration": "0h2m13s",
				"call_price": "R$ 0,54"
			}]
		}`, w.Body.String())
	}

	w := get(r, "/bills/"+subscriber+"?reference=07/2018")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscriber":"99988526423","reference_period":"07/2018","bill_call_records":[]}`, w.Body.String())
}

func TestGetBill_ReferenceErrors(t *testing.T) {
	r := newRouter(t)

	w := get(r, "/bills/"+subscriber+"?reference=08/2098")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `["Invalid reference period. It's only possible to get a telephone bill after the reference period has ended."]`, w.Body.String())

	w = get(r, "/bills/"+subscriber+"?reference=082018")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `{"detail":"Invalid reference period format. Try one of the following: MM/YYYY, MM-YYYY, MM:YYYY, MM.YYYY where MM is the month and YYYY is the year."}`, w.Body.String())

	w = get(r, "/bills/12ab")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"subscriber"`)
}

func TestHealth(t *testing.T) {
	r := newRouter(t, PingFunc(func(ctx context.Context) error { return nil }))
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(r, "/readyz").Code)

	r = newRouter(t, PingFunc(func(ctx context.Context) error { return errors.New("db down") }))
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/readyz").Code)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "R$ 0,81", FormatPrice(decimal.RequireFromString("0.81")))
	assert.Equal(t, "R$ 12,00", FormatPrice(decimal.NewFromInt(12)))
}
