package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

func TestParsePriceCents(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "12.50", want: 1250},
		{in: "12.5", want: 1250},
		{in: "$3", want: 300},
		{in: " 0.99 ", want: 99},
		{in: ".75", want: 75},
		{in: "1.234", wantErr: true},
		{in: "1.", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePriceCents(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "12.50", formatPrice(1250))
	assert.Equal(t, "0.05", formatPrice(5))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0xabc", shortHash("0xabc"))
	assert.Equal(t, "0x123456...cdef", shortHash("0x1234567890abcdef"))
}

func TestToCreditRow(t *testing.T) {
	rec := model.CreditRecord{
		ID:             7,
		Producer:       "0x1111111111111111111111111111111111111111",
		EnergySource:   model.EnergySourceWind,
		ProductionTime: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		Owner:          "0x2222222222222222222222222222222222222222",
		Status:         model.CreditStatusAvailable,
	}

	t.Run("available and idle", func(t *testing.T) {
		row := toCreditRow(rec, model.ActionStatus{}, true)
		assert.Equal(t, uint64(7), row.ID)
		assert.Equal(t, "Mar 1, 2024", row.ProductionDate)
		assert.True(t, row.CanBuy)
		assert.False(t, row.CanRetire)
		assert.False(t, row.CanPrice)
	})

	t.Run("buy needs a connected viewer", func(t *testing.T) {
		row := toCreditRow(rec, model.ActionStatus{}, false)
		assert.False(t, row.CanBuy)
	})

	t.Run("pending hides controls", func(t *testing.T) {
		row := toCreditRow(rec, model.ActionStatus{Kind: model.ActionBuy, State: model.ActionPending}, true)
		assert.True(t, row.Pending)
		assert.False(t, row.CanBuy)
	})

	t.Run("owned offers retire and pricing", func(t *testing.T) {
		owned := rec
		owned.Status = model.CreditStatusOwned
		row := toCreditRow(owned, model.ActionStatus{State: model.ActionIdle, LastError: "declined"}, true)
		assert.True(t, row.CanRetire)
		assert.True(t, row.CanPrice)
		assert.False(t, row.CanBuy)
		assert.Equal(t, "declined", row.ActionError)
	})

	t.Run("success awaits acknowledgement", func(t *testing.T) {
		row := toCreditRow(rec, model.ActionStatus{Kind: model.ActionBuy, State: model.ActionSuccess}, true)
		assert.True(t, row.CanAck)
		assert.False(t, row.CanBuy)
	})
}

func TestSourceTotals(t *testing.T) {
	totals := sourceTotals([]model.CreditRecord{
		{EnergySource: model.EnergySourceWind},
		{EnergySource: model.EnergySourceSolar},
		{EnergySource: model.EnergySourceWind},
	})

	require.Len(t, totals, 2)
	assert.Equal(t, "Solar", totals[0].Source)
	assert.Equal(t, 1, totals[0].MWh)
	assert.Equal(t, "Wind", totals[1].Source)
	assert.Equal(t, 2, totals[1].MWh)
}

func TestRequireCSRF(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := requireCSRF(next)

	post := func(cookie, field string) int {
		form := url.Values{csrfFormField: {field}}
		req := httptest.NewRequest(http.MethodPost, "/app/refresh", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookie})
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("tok", "tok"))
	assert.Equal(t, http.StatusForbidden, post("tok", "other"))
	assert.Equal(t, http.StatusForbidden, post("", "tok"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/marketplace", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCSRFTokenReusesCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	rec := httptest.NewRecorder()

	assert.Equal(t, "existing", csrfToken(rec, req))
	assert.Empty(t, rec.Result().Cookies())

	fresh := httptest.NewRecorder()
	token := csrfToken(fresh, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, token, 2*csrfTokenBytes)
	require.Len(t, fresh.Result().Cookies(), 1)
	assert.Equal(t, token, fresh.Result().Cookies()[0].Value)
}
