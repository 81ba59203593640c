package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"teamtoken.com/pkg/xerr"
)

func init() { gin.SetMode(gin.TestMode) }

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(xerr.TradeInvalidRequest))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(xerr.TradeAmountOverflow))
	assert.Equal(t, http.StatusConflict, HTTPStatus(xerr.TradeAttemptInProgress))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(xerr.TradeStaleReference))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(xerr.TradeDerivationExhausted))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(xerr.ServerCommonError))
}

func TestFailFromErr(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    int
		message string
	}{
		{xerr.New(xerr.TradeInvalidRequest, "amount must be greater than zero"), http.StatusBadRequest, xerr.TradeInvalidRequest, "amount must be greater than zero"},
		{xerr.Wrap(errors.New("secret dsn"), xerr.TradeDerivationExhausted, "seed detail"), http.StatusInternalServerError, xerr.TradeDerivationExhausted, "地址推导失败"},
		{errors.New("boom"), http.StatusInternalServerError, xerr.ServerCommonError, "服务器开小差了"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

		FailFromErr(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.code, resp.Code)
		assert.Equal(t, tc.message, resp.Message)
		assert.Nil(t, resp.Data)
	}
}
